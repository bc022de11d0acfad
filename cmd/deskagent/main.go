// Command deskagent runs the coding-assistant core, speaking the
// line-delimited JSON event protocol over stdio and/or a socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/martinemde/deskagent/agent"
	"github.com/martinemde/deskagent/llm"
	"github.com/martinemde/deskagent/server"
	"github.com/martinemde/deskagent/skills"
	"github.com/martinemde/deskagent/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "deskagent:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		workDir    = flag.String("workdir", ".", "workspace the tools operate in")
		configPath = flag.String("config", "", "config file (default ~/.deskagent/config.json)")
		skillsDir  = flag.String("skills", "", "skills directory (default <workdir>/skills)")
		socketPath = flag.String("socket", "", "also listen on this unix socket")
		healthAddr = flag.String("health", "", "serve /api/health on this address (e.g. 127.0.0.1:8765)")
		stdio      = flag.Bool("stdio", true, "serve the protocol over stdin/stdout")
	)
	flag.Parse()

	stateDir, err := agent.StateDir()
	if err != nil {
		return err
	}

	logger, err := newLogger(filepath.Join(stateDir, "deskagent.log"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	if *configPath == "" {
		*configPath = filepath.Join(stateDir, "config.json")
	}
	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		logger.Warn("config unreadable, using defaults", zap.Error(err))
	}

	ws, err := tools.NewWorkspace(*workDir)
	if err != nil {
		return err
	}

	client, err := llm.NewOpenAIClientFromEnv()
	if err != nil {
		return err
	}

	if *skillsDir == "" {
		*skillsDir = filepath.Join(ws.Root(), "skills")
	}
	skillReg := skills.NewRegistry(*skillsDir, filepath.Join(stateDir, "disabled_skills.json"), logger)
	if err := skillReg.Load(); err != nil {
		logger.Warn("skill load failed", zap.Error(err))
	}

	registry := agent.NewRegistry()
	emitter := agent.NewEmitter(256)
	gate := agent.NewConfirmationGate(emitter, logger)
	if err := tools.RegisterAll(registry, ws, skillReg); err != nil {
		return err
	}

	projectContext := ""
	if cfg.AutoContext {
		projectContext = tools.CollectProjectContext(ws.Root())
	}

	store, err := agent.NewFileStore(filepath.Join(stateDir, "conversations"))
	if err != nil {
		return err
	}

	manager := agent.NewManager(agent.ManagerOptions{
		Client:         client,
		Registry:       registry,
		Gate:           gate,
		Emitter:        emitter,
		Store:          store,
		Skills:         skillReg,
		Config:         cfg,
		WorkingDir:     ws.Root(),
		ProjectContext: projectContext,
		Logger:         logger,
	})
	if err := manager.Bootstrap(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(logger)
	go hub.Run(ctx, emitter.Events())

	go func() {
		err := skillReg.Watch(ctx, manager.EmitSkillsList)
		if err != nil && ctx.Err() == nil {
			logger.Warn("skill watcher stopped", zap.Error(err))
		}
	}()

	if *healthAddr != "" {
		info := server.HealthInfo{
			Model:     cfg.Model,
			Cwd:       ws.Root(),
			HasAPIKey: os.Getenv("OPENAI_API_KEY") != "",
		}
		go func() {
			srv := &http.Server{Addr: *healthAddr, Handler: server.HealthHandler(info)}
			go func() {
				<-ctx.Done()
				srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("health server stopped", zap.Error(err))
			}
		}()
	}

	handler := server.NewHandler(manager, emitter, logger)
	srv := server.New(hub, handler, manager, logger)

	if *socketPath != "" {
		os.Remove(*socketPath)
		ln, err := net.Listen("unix", *socketPath)
		if err != nil {
			return err
		}
		defer os.Remove(*socketPath)
		if *stdio {
			go func() {
				if err := srv.ServeListener(ctx, ln); err != nil {
					logger.Warn("socket listener stopped", zap.Error(err))
				}
			}()
		} else {
			logger.Info("listening", zap.String("socket", *socketPath))
			err := srv.ServeListener(ctx, ln)
			shutdown(manager, emitter, logger)
			return err
		}
	}

	logger.Info("serving over stdio", zap.String("workdir", ws.Root()), zap.String("model", cfg.Model))
	err = srv.ServeStdio(ctx)
	shutdown(manager, emitter, logger)
	return err
}

func shutdown(manager *agent.Manager, emitter *agent.Emitter, logger *zap.Logger) {
	logger.Info("shutting down")
	manager.Shutdown()
	emitter.Close()
}

// newLogger writes structured logs to a file, keeping stdout clean for
// the protocol stream.
func newLogger(path string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
