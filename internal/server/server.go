// Package server wires the workspace daemon: orchestrator, host surfaces,
// storage and the HTTP/WebSocket API.
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apihttp "github.com/kubedesk/workspace/internal/api/http"
	"github.com/kubedesk/workspace/internal/api/middleware"
	"github.com/kubedesk/workspace/internal/api/ws"
	"github.com/kubedesk/workspace/internal/host/local"
	"github.com/kubedesk/workspace/internal/host/remote"
	"github.com/kubedesk/workspace/internal/infrastructure/config"
	"github.com/kubedesk/workspace/internal/infrastructure/logging"
	"github.com/kubedesk/workspace/internal/infrastructure/monitoring"
	"github.com/kubedesk/workspace/internal/storage"
	"github.com/kubedesk/workspace/internal/workspace"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router  *gin.Engine
	orch    *workspace.Orchestrator
	store   storage.Store
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// New assembles a server from configuration.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		l, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			OutputPaths: []string{"stdout"},
		})
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		logger = l
	}

	logger.Info("initializing workspace daemon",
		logging.String("addr", cfg.Server.Host+":"+cfg.Server.Port),
		logging.String("storage", cfg.Storage.Path))

	metrics := monitoring.NewMetrics()

	storePath, err := expandHome(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, storePath)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}

	terminals := local.NewTerminalHost(logger)
	surfaces := remote.NewSurfaceBridge(logger, metrics)

	orch, err := workspace.New(workspace.Config{
		Terminals:       terminals,
		Surfaces:        surfaces,
		Events:          surfaces.Events(),
		Store:           store,
		Log:             logger,
		Metrics:         metrics,
		PollInterval:    cfg.Terminal.PollInterval,
		DefaultCols:     cfg.Terminal.DefaultCols,
		DefaultRows:     cfg.Terminal.DefaultRows,
		ExportLineLimit: cfg.Terminal.ExportLineLimit,
		ClusterContext:  cfg.Workspace.ClusterContext,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	handlers := apihttp.NewHandlers(orch, logger)
	wsHandler := ws.NewHandler(orch, surfaces, logger, metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Session management
	router.GET("/sessions", handlers.ListSessions)
	router.POST("/sessions", handlers.CreateSession)
	router.GET("/sessions/:id", handlers.GetSession)
	router.DELETE("/sessions/:id", handlers.CloseSession)
	router.POST("/sessions/:id/activate", handlers.ActivateSession)
	router.POST("/sessions/:id/rename", handlers.RenameSession)
	router.POST("/sessions/:id/close-others", handlers.CloseOtherSessions)
	router.DELETE("/sessions", handlers.CloseAllSessions)
	router.POST("/reorder", handlers.ReorderSessions)
	router.POST("/pending", handlers.SubmitPending)
	router.POST("/pending/consume", handlers.ConsumePending)

	// Terminal operations
	router.POST("/sessions/:id/input", handlers.TerminalInput)
	router.POST("/sessions/:id/resize", handlers.TerminalResize)
	router.GET("/sessions/:id/export", handlers.TerminalExport)

	// Shell profiles
	router.GET("/profiles", handlers.ShellProfiles)
	router.PUT("/profiles/default", handlers.SetDefaultShellProfile)

	// Browser operations
	router.POST("/sessions/:id/navigate", handlers.BrowserNavigate)
	router.POST("/sessions/:id/back", handlers.BrowserBack)
	router.POST("/sessions/:id/forward", handlers.BrowserForward)
	router.POST("/sessions/:id/reload", handlers.BrowserReload)
	router.PUT("/sessions/:id/bounds", handlers.BrowserBounds)
	router.POST("/sessions/:id/favorite", handlers.BrowserFavorite)

	// Editor and logging session state
	router.PUT("/sessions/:id/dirty", handlers.EditorDirty)
	router.PUT("/sessions/:id/query", handlers.LoggingQuery)

	// Keyboard shortcuts
	router.POST("/keys", handlers.HandleKey)

	// WebSocket
	router.GET("/shell", wsHandler.HandleShell)
	router.GET("/sessions/:id/stream", wsHandler.HandleStream)

	// Metrics
	router.GET("/metrics", func(c *gin.Context) {
		metrics.UpdateUptime()
		promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).
			ServeHTTP(c.Writer, c.Request)
	})

	return &Server{
		router:  router,
		orch:    orch,
		store:   store,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Orchestrator exposes the orchestrator, primarily for tests.
func (s *Server) Orchestrator() *workspace.Orchestrator {
	return s.orch
}

// Router exposes the gin engine, primarily for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the orchestrator and serves HTTP until the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("starting HTTP server", logging.String("addr", addr))
	return s.router.Run(addr)
}

// Close shuts down sessions and releases resources.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("shutting down workspace daemon")
	s.orch.Shutdown(ctx)

	if err := s.store.Close(); err != nil {
		s.logger.Error("failed to close settings store", logging.Err(err))
		return err
	}

	s.logger.Sync()
	return nil
}

// expandHome resolves a leading ~/ against the current user's home.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
