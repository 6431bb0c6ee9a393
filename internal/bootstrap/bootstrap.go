package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"clinivoice-server-go/internal/app/services"
	"clinivoice-server-go/internal/domain/action"
	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/domain/eventbus"
	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/observability"
	"clinivoice-server-go/internal/platform/storage"
	httptransport "clinivoice-server-go/internal/transport/http"
	"clinivoice-server-go/internal/transport/http/webapi"
	"clinivoice-server-go/internal/transport/ws"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      errors.Kind
	Execute   stepFn
}

type appState struct {
	config     *config.Config
	configPath string
	logger     *logging.Logger

	observabilityShutdown observability.ShutdownFunc

	db       *storage.Database
	sink     audit.Sink
	emitter  *audit.Emitter
	sessions *services.SessionService
}

// Run drives the whole service lifecycle: configuration, dependency
// initialisation, transports and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	cfg := state.config
	logger := state.logger
	if cfg == nil || logger == nil {
		return errors.New(errors.KindBootstrap, "bootstrap state validation", "config/logger not initialised")
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("Bootstrap", "observability shutdown failed: %v", err)
			}
		}()
	}

	defer func() {
		eventbus.Shutdown()
		if state.emitter != nil {
			if err := state.emitter.Close(); err != nil {
				logger.WarnTag("Audit", "emitter close failed: %v", err)
			}
		}
		if state.db != nil {
			if err := state.db.Close(); err != nil {
				logger.WarnTag("Storage", "database close failed: %v", err)
			}
		}
		logger.Close()
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	drainAuditErrors(groupCtx, state.emitter, logger)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	return waitForShutdown(signalCtx, cancel, state, group)
}

// InitGraph declares initialisation steps and their dependencies.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    errors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      errors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      errors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      errors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "audit:init-emitter",
			Title:     "Initialise audit emitter",
			DependsOn: []string{"storage:init-database"},
			Kind:      errors.KindStorage,
			Execute:   initAuditStep,
		},
		{
			ID:        "services:init-sessions",
			Title:     "Initialise session service",
			DependsOn: []string{"audit:init-emitter"},
			Kind:      errors.KindBootstrap,
			Execute:   initSessionServiceStep,
		},
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return errors.New(errors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return errors.New(errors.KindBootstrap, step.ID, fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return errors.New(errors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *errors.Error
			if stderrors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = errors.KindBootstrap
			}
			return errors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func logBootstrapGraph(steps []initStep, logger *logging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("Bootstrap", "initialisation order")
	for _, step := range steps {
		logger.InfoTag("Bootstrap", "  %s", step.Title)
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := config.NewLoader().Load()
	if err != nil {
		return errors.Wrap(errors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return errors.New(errors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	logger, err := logging.New(logging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return errors.Wrap(errors.KindBootstrap, "logging:init-provider", "failed to initialise logging", err)
	}

	state.logger = logger
	logger.InfoTag("Bootstrap", "logging ready [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return errors.New(errors.KindBootstrap, "observability:setup-hooks", "config/logger not initialised")
	}

	cfg := observability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}
	shutdown, err := observability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return errors.Wrap(errors.KindBootstrap, "observability:setup-hooks", "failed to setup observability", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return errors.New(errors.KindStorage, "storage:init-database", "config not loaded")
	}

	db, err := storage.Open(state.config.Audit.SQLite.DSN)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&audit.Record{}, &action.OrderRecord{}); err != nil {
		return err
	}
	state.db = db
	return nil
}

func initAuditStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return errors.New(errors.KindStorage, "audit:init-emitter", "missing config/logger")
	}

	sink, err := audit.NewSink(state.config.Audit, state.db, state.logger)
	if err != nil {
		return err
	}
	state.sink = sink
	state.emitter = audit.NewEmitter(sink, state.logger)
	return nil
}

func initSessionServiceStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return errors.New(errors.KindBootstrap, "services:init-sessions", "missing config/logger")
	}

	sessions, err := services.NewSessionService(state.config, state.db, state.emitter, state.logger)
	if err != nil {
		return err
	}
	state.sessions = sessions
	return nil
}

// drainAuditErrors surfaces sink failures in the log. Audit writes
// never block safety decisions, so failures only show up here.
func drainAuditErrors(ctx context.Context, emitter *audit.Emitter, logger *logging.Logger) {
	if emitter == nil {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-emitter.Errs():
				if !ok {
					return
				}
				logger.ErrorTag("Audit", "sink write failed: %v", err)
			}
		}
	}()
}

func startServices(state *appState, group *errgroup.Group, groupCtx context.Context) error {
	state.sessions.StartMaintenance(groupCtx)
	if err := startVoiceServer(state, group, groupCtx); err != nil {
		return fmt.Errorf("failed to start voice transport: %w", err)
	}
	if err := startHTTPServer(state, group, groupCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func startVoiceServer(state *appState, group *errgroup.Group, groupCtx context.Context) error {
	cfg := state.config
	logger := state.logger
	if !cfg.Transport.WebSocket.Enabled {
		logger.WarnTag("WS", "websocket transport disabled by config")
		return nil
	}

	hub := ws.NewHub(logger)
	router := ws.NewRouter(hub, logger, ws.RouterOptions{})
	server := ws.NewServer(ws.ServerConfig{
		Addr: fmt.Sprintf("%s:%d", cfg.Transport.WebSocket.IP, cfg.Transport.WebSocket.Port),
		Path: "/ws",
	}, router, hub, logger)

	sessions := state.sessions
	server.SetSessionBuilder(func(conn *ws.Connection, req *http.Request) (*ws.Session, error) {
		wsSess := ws.NewSession(conn, logger)
		inner, err := sessions.Open(wsSess)
		if err != nil {
			return nil, err
		}
		wsSess.Bind(inner)
		go sessions.Run(groupCtx, inner)
		return wsSess, nil
	})

	group.Go(func() error {
		go func() {
			<-groupCtx.Done()
			sessions.CloseAll("server shutdown")
			if err := server.Stop(); err != nil {
				logger.ErrorTag("WS", "shutdown failed: %v", err)
			}
		}()

		if err := server.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			logger.ErrorTag("WS", "server failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func startHTTPServer(state *appState, group *errgroup.Group, groupCtx context.Context) error {
	cfg := state.config
	logger := state.logger
	if !cfg.Web.Enabled {
		logger.WarnTag("HTTP", "web server disabled by config")
		return nil
	}

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:         cfg,
		Logger:         logger,
		AuthMiddleware: httptransport.AuthMiddleware(cfg.Server.Auth, cfg.Server.Token, logger),
	})
	if err != nil {
		return err
	}

	consoleAPI, err := webapi.NewService(cfg, state.db, state.sink, state.sessions, logger)
	if err != nil {
		return err
	}
	if err := consoleAPI.Register(groupCtx, httpRouter.API, httpRouter.Secured); err != nil {
		return err
	}

	httpRouter.Engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "api not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.Status(http.StatusNotFound)
	})

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Web.Port),
		Handler: httpRouter.Engine,
	}

	group.Go(func() error {
		logger.InfoTag("HTTP", "console API listening on http://localhost:%d", cfg.Web.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "shutdown failed: %v", err)
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, state *appState, group *errgroup.Group) error {
	logger := state.logger

	<-ctx.Done()
	logger.InfoTag("Bootstrap", "shutdown requested: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Bootstrap", "shutdown completed with errors: %v", err)
			return err
		}
		logger.InfoTag("Bootstrap", "all services stopped")
	case <-time.After(15 * time.Second):
		timeoutErr := stderrors.New("shutdown timed out")
		logger.ErrorTag("Bootstrap", "shutdown timed out, forcing exit")
		return timeoutErr
	}
	return nil
}
