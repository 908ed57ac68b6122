// Package server exposes the orchestrator over HTTP: a JSON API, SSE
// event streams, and the hook endpoints agents report back through.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/conductor-hq/conductor/internal/bus"
	"github.com/conductor-hq/conductor/internal/config"
	"github.com/conductor-hq/conductor/internal/dispatch"
	"github.com/conductor-hq/conductor/internal/git"
	"github.com/conductor-hq/conductor/internal/state"
	"github.com/conductor-hq/conductor/internal/supervisor"
)

// Server wires the store, event bus and supervisor into an HTTP API.
type Server struct {
	cfg       *config.Config
	db        *state.DB
	bus       *bus.Bus
	manager   *supervisor.Manager
	worktrees git.WorktreeProvider
	engine    *gin.Engine
}

// New builds a Server and registers all routes.
func New(cfg *config.Config, db *state.DB, b *bus.Bus, manager *supervisor.Manager, worktrees git.WorktreeProvider) *Server {
	s := &Server{
		cfg:       cfg,
		db:        db,
		bus:       b,
		manager:   manager,
		worktrees: worktrees,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	// Permissive for the frontend dev server.
	engine.Use(cors.Default())
	s.registerRoutes(engine)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// Goal spaces
	api.POST("/goals", s.createGoal)
	api.GET("/goals", s.listGoals)
	api.GET("/goals/:id", s.getGoal)
	api.PUT("/goals/:id", s.updateGoal)
	api.DELETE("/goals/:id", s.archiveGoal)
	api.POST("/goals/:id/decompose", s.decomposeGoal)
	api.POST("/goals/:id/dispatch", s.dispatchGoal)
	api.GET("/goals/:id/tasks", s.listTasks)
	api.POST("/goals/:id/tasks", s.createTask)
	api.POST("/goals/:id/retry-failed", s.retryFailedTasks)
	api.GET("/goals/:id/summary", s.goalSummary)
	api.GET("/goals/:id/history", s.goalHistory)
	api.GET("/goals/:id/messages", s.listGoalMessages)
	api.POST("/goals/:id/chat", s.goalChat)

	// Tasks
	api.PUT("/tasks/:id", s.updateTask)
	api.POST("/tasks/:id/retry", s.retryTask)
	api.POST("/tasks/:id/dispatch", s.dispatchTask)

	// Agents
	api.GET("/agents", s.listAgents)
	api.GET("/agents/:id", s.getAgent)
	api.GET("/agents/:id/events", s.listAgentEvents)
	api.POST("/agents/:id/nudge", s.nudgeAgent)
	api.POST("/agents/:id/kill", s.killAgent)

	// SSE
	api.GET("/events", s.globalEventStream)
	api.GET("/agents/:id/stream", s.agentEventStream)

	// Hooks (agents report back here)
	api.POST("/hooks/stop", s.stopHook)
	api.POST("/hooks/subagent-stop", s.subagentStopHook)

	// Projects
	api.POST("/projects", s.createProject)
	api.GET("/projects", s.listProjects)
	api.GET("/projects/:id", s.getProject)
	api.PUT("/projects/:id", s.updateProject)
	api.DELETE("/projects/:id", s.deleteProject)
	api.GET("/projects/:id/goals", s.listProjectGoals)

	// Stats
	api.GET("/stats", s.getStats)
}

// Run reconciles stale state, then serves HTTP and the auto-dispatch
// loop until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	report, err := s.db.CleanupStale(s.manager.ActiveSessionIDs())
	if err != nil {
		log.Printf("startup cleanup: %v", err)
	} else if !report.Empty() {
		log.Printf("Startup %s", report)
	}

	dispatcher := dispatch.New(s.db, s.worktrees, s.manager, s.manager.DispatchChannel())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.engine,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("conductor server listening on :%d", s.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// errorJSON is the uniform error envelope.
func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
