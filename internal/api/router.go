package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tcron/internal/core"
)

// Deps are the repositories the HTTP API serves.
type Deps struct {
	Tasks         core.TaskRepository
	Terminal      core.TerminalRepository
	Notifications core.NotificationRepository
	Dashboard     core.DashboardRepository
	Settings      core.SettingsRepository
}

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	deps       Deps
	mcpHandler http.Handler
	logger     *slog.Logger
	authToken  string

	// background outlives requests; asynchronous runs are started on it.
	background context.Context
	stop       context.CancelFunc
}

// NewServer constructs the HTTP API server. mcpHandler may be nil, in which case /mcp is not mounted.
func NewServer(addr string, authToken string, deps Deps, mcpHandler http.Handler, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	background, stop := context.WithCancel(context.Background())
	s := &Server{
		router:     router,
		deps:       deps,
		mcpHandler: mcpHandler,
		logger:     logger,
		authToken:  authToken,
		background: background,
		stop:       stop,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and cancels runs it started in the background.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Mount MCP endpoint with optional authentication
	if s.mcpHandler != nil {
		mcpHandler := s.mcpHandler
		if s.authToken != "" {
			mcpHandler = AuthMiddleware(s.authToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		// Apply authentication to all API endpoints
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Post("/schedule/preview", s.handleSchedulePreview)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/stream", s.handleStreamTasks)
			r.Get("/running", s.handleRunningTasks)
			r.Get("/export", s.handleExportTasks)
			r.Post("/import", s.handleImportTasks)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Patch("/", s.handleUpdateTask)
				r.Delete("/", s.handleDeleteTask)
				r.Put("/enabled", s.handleSetEnabled)
				r.Post("/run", s.handleRunTask)
				r.Post("/cancel", s.handleCancelTask)
				r.Get("/status", s.handleTaskStatus)
				r.Get("/executions", s.handleListExecutions)
				r.Delete("/executions", s.handleClearExecutions)
				r.Get("/next", s.handleNextRuns)
			})
		})

		r.Get("/executions/{executionID}", s.handleGetExecution)

		r.Route("/terminal/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/close", s.handleCloseSession)
				r.Post("/commands", s.handleExecuteCommand)
				r.Get("/history", s.handleSessionHistory)
				r.Delete("/history", s.handleClearSessionHistory)
				r.Delete("/output", s.handleClearSessionOutput)
				r.Put("/cwd", s.handleChangeDirectory)
				r.Get("/env", s.handleGetEnvironment)
				r.Put("/env/{key}", s.handleSetEnvironment)
				r.Post("/kill", s.handleKillProcess)
				r.Post("/script", s.handleSaveScript)
				r.Get("/export", s.handleExportSession)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Post("/", s.handleCreateNotification)
			r.Delete("/", s.handleDeleteNotifications)
			r.Get("/summary", s.handleNotificationSummary)
			r.Post("/read", s.handleMarkAllRead)

			r.Route("/{notificationID}", func(r chi.Router) {
				r.Get("/", s.handleGetNotification)
				r.Post("/read", s.handleMarkRead)
				r.Delete("/", s.handleDeleteNotification)
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/", s.handleDashboardMetrics)
			r.Get("/tasks", s.handleDashboardTasks)
			r.Get("/distribution", s.handleTypeDistribution)
		})

		r.Route("/metrics", func(r chi.Router) {
			r.Get("/current", s.handleCurrentMetrics)
			r.Get("/history", s.handleMetricsHistory)
			r.Post("/", s.handleRecordMetrics)
			r.Delete("/", s.handleClearMetrics)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/", s.handleUpdateSettings)
			r.Delete("/", s.handleResetSettings)
		})
	})
}
