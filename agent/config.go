package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the tunables of the orchestration core. Values are loaded
// from a JSON file; missing fields fall back to defaults.
type Config struct {
	Model               string  `json:"model"`
	ContextLimit        int     `json:"context_limit"`
	AutoCompactRatio    float64 `json:"auto_compact_ratio"`
	CompactKeepRecent   int     `json:"compact_keep_recent"`
	MaxToolRounds       int     `json:"max_tool_rounds"`
	ParallelWorkers     int     `json:"parallel_workers"`
	MaxContextMessages  int     `json:"max_context_messages"`
	LoopDetectionWindow int     `json:"loop_detection_window"`
	AutoConfirm         bool    `json:"auto_confirm"`
	AutoContext         bool    `json:"auto_context"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Model:               "gpt-4.1-mini",
		ContextLimit:        128000,
		AutoCompactRatio:    0.8,
		CompactKeepRecent:   10,
		MaxToolRounds:       40,
		ParallelWorkers:     4,
		MaxContextMessages:  200,
		LoopDetectionWindow: 6,
		AutoConfirm:         false,
		AutoContext:         true,
	}
}

// LoadConfig reads a JSON config file, applying defaults for absent
// fields. A missing file yields the defaults without error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// SaveConfig writes the config as indented JSON.
func SaveConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.ContextLimit <= 0 {
		c.ContextLimit = def.ContextLimit
	}
	if c.AutoCompactRatio <= 0 || c.AutoCompactRatio > 1 {
		c.AutoCompactRatio = def.AutoCompactRatio
	}
	if c.CompactKeepRecent <= 0 {
		c.CompactKeepRecent = def.CompactKeepRecent
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = def.MaxToolRounds
	}
	if c.ParallelWorkers <= 0 {
		c.ParallelWorkers = def.ParallelWorkers
	}
	if c.MaxContextMessages <= 0 {
		c.MaxContextMessages = def.MaxContextMessages
	}
	if c.LoopDetectionWindow <= 0 {
		c.LoopDetectionWindow = def.LoopDetectionWindow
	}
}

// StateDir returns the per-user state directory, creating it if needed.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".deskagent")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}
