package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"packrat/internal/engine"
	"packrat/internal/logger"
	"packrat/internal/model"
	"packrat/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server is the HTTP control plane: job CRUD, run control, and the queries
// external observers rely on.
type Server struct {
	echo      *echo.Echo
	engine    *engine.Engine
	jobs      *repository.JobRepository
	execs     *repository.ExecutionRepository
	transfers *repository.TransferRepository
	port      int
	stopCh    chan struct{}
}

func NewServer(eng *engine.Engine, gdb *gorm.DB, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		engine:    eng,
		jobs:      repository.NewJobRepository(gdb),
		execs:     repository.NewExecutionRepository(gdb),
		transfers: repository.NewTransferRepository(gdb),
		port:      port,
		stopCh:    make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// For the entire daemon
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)

	// Job configuration
	g := s.echo.Group("/jobs")
	g.GET("", s.handleListJobs)
	g.POST("", s.handleAddJob)
	g.DELETE("/:id", s.handleRemoveJob)
	g.POST("/:id/run", s.handleRunJob)

	// The single active run
	r := s.echo.Group("/run")
	r.POST("/pause", s.handlePause)
	r.POST("/resume", s.handleResume)
	r.POST("/stop", s.handleStopRun)

	// Execution history
	s.echo.GET("/executions/recent", s.handleRecentExecutions)
	s.echo.GET("/executions/paused", s.handlePausedExecutions)
	s.echo.GET("/executions/:id/transfers", s.handleTransfers)
	s.echo.POST("/executions/purge", s.handlePurge)
}

func (s *Server) Start() {
	go func() {
		addr := ":" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

// Stop parks any active run as paused before shutting the listener down, so
// no execution is abandoned without a persisted checkpoint.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.engine.Shutdown(ctx); err != nil {
		logger.Log.Warn("engine shutdown incomplete", zap.Error(err))
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleStop(c echo.Context) error {
	s.stopCh <- struct{}{}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleListJobs(c echo.Context) error {
	jobs, err := s.jobs.GetAll()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"jobs":   jobs,
		"status": s.engine.Snapshot(),
	})
}

type addJobRequest struct {
	Name            string   `json:"name"`
	Sources         []string `json:"sources"`
	IncludePatterns string   `json:"include_patterns"`
	ExcludePatterns string   `json:"exclude_patterns"`
	TargetType      string   `json:"target_type"`
	TargetPath      string   `json:"target_path"`
	ConflictPolicy  string   `json:"conflict_policy"`
	ScheduleCron    string   `json:"schedule_cron"`
}

func (s *Server) handleAddJob(c echo.Context) error {
	var req addJobRequest
	if err := c.Bind(&req); err != nil || req.Name == "" || len(req.Sources) == 0 || req.TargetPath == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name, sources and target_path required"})
	}

	if req.TargetType == "" {
		req.TargetType = string(model.TargetLocal)
	}
	if req.ConflictPolicy == "" {
		req.ConflictPolicy = string(model.PolicyRename)
	}

	job := model.Job{
		Name:            req.Name,
		IncludePatterns: req.IncludePatterns,
		ExcludePatterns: req.ExcludePatterns,
		TargetType:      model.TargetType(req.TargetType),
		TargetConfig:    `{"path":` + strconv.Quote(req.TargetPath) + `}`,
		ConflictPolicy:  model.ConflictPolicy(req.ConflictPolicy),
		ScheduleCron:    req.ScheduleCron,
		Active:          true,
	}
	if err := job.SetSources(req.Sources); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := s.jobs.Create(&job); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, job)
}

func (s *Server) handleRemoveJob(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.jobs.Deactivate(uint(id)); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRunJob(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.engine.Start(uint(id)); err != nil {
		if errors.Is(err, engine.ErrBusy) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handlePause(c echo.Context) error {
	if err := s.engine.Pause(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(c echo.Context) error {
	if err := s.engine.Resume(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleStopRun(c echo.Context) error {
	if err := s.engine.Stop(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleRecentExecutions(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil {
			n = parsed
		}
	}

	execs, err := s.execs.GetRecent(n)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, execs)
}

func (s *Server) handlePausedExecutions(c echo.Context) error {
	execs, err := s.execs.ListPaused()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, execs)
}

func (s *Server) handleTransfers(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	transfers, err := s.transfers.GetByExecution(uint(id))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, transfers)
}

func (s *Server) handlePurge(c echo.Context) error {
	days := 30
	if dStr := c.QueryParam("days"); dStr != "" {
		parsed, err := strconv.Atoi(dStr)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid days"})
		}
		days = parsed
	}

	purged, err := s.execs.PurgeOlderThan(days)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{"purged": purged})
}
