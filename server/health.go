package server

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// HealthInfo is the static deployment surface exposed for probes. The
// credential itself never leaves the process, only its presence.
type HealthInfo struct {
	Model     string `json:"model"`
	Cwd       string `json:"cwd"`
	HasAPIKey bool   `json:"has_api_key"`
}

// HealthHandler serves GET /api/health with the given info.
func HealthHandler(info HealthInfo) http.Handler {
	router := httprouter.New()
	router.GET("/api/health", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"model":       info.Model,
			"cwd":         info.Cwd,
			"has_api_key": info.HasAPIKey,
		})
	})
	return router
}
