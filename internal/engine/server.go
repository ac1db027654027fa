package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/stagehand/internal/artifact"
	"github.com/zulandar/stagehand/internal/config"
	"github.com/zulandar/stagehand/internal/events"
	"github.com/zulandar/stagehand/internal/models"
	"github.com/zulandar/stagehand/internal/store"
	"gorm.io/gorm"
)

// Service hosts browser sessions behind the /launch endpoint. Concurrency
// is capped by a fixed worker pool with a bounded admission queue: launches
// beyond pool+queue capacity are rejected immediately instead of piling up.
type Service struct {
	db        *gorm.DB
	cfg       config.EngineConfig
	opener    Opener
	artifacts *artifact.Store

	slots  chan struct{}
	queued atomic.Int64

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService wires an engine service. opener may be nil, in which case a
// playwright Launcher is used.
func NewService(db *gorm.DB, cfg config.EngineConfig, opener Opener, artifacts *artifact.Store) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("engine: db is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("engine: artifact store is required")
	}
	if opener == nil {
		opener = NewLauncher()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 4
	}
	if cfg.QueueDepth < 0 {
		cfg.QueueDepth = 0
	}

	return &Service{
		db:        db,
		cfg:       cfg,
		opener:    opener,
		artifacts: artifacts,
		slots:     make(chan struct{}, cfg.MaxSessions),
		cancels:   make(map[string]context.CancelFunc),
	}, nil
}

// Router builds the engine's HTTP routes.
func (s *Service) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.POST("/launch", s.handleLaunch)
	router.POST("/terminate/:run_id", s.handleTerminate)
	router.GET("/runs/:run_id/events", s.handleRunEvents)
	return router
}

// handleLaunch admits the request, performs session setup synchronously so
// setup failures surface in the response, then runs the plan in the
// background.
func (s *Service) handleLaunch(c *gin.Context) {
	var req LaunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LaunchResponse{OK: false, Error: fmt.Sprintf("bad request: %v", err)})
		return
	}
	if req.RunID == "" {
		c.JSON(http.StatusBadRequest, LaunchResponse{OK: false, Error: "run_id is required"})
		return
	}

	if !s.admit() {
		c.JSON(http.StatusServiceUnavailable, LaunchResponse{OK: false, Error: "engine at capacity"})
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.registerCancel(req.RunID, cancel)

	sess, err := s.setup(runCtx, req)
	if err != nil {
		s.release(req.RunID)
		s.emit(req.RunID, models.EventWarn, "session_failed", err.Error())
		if finErr := store.FinishRun(s.db, req.RunID, models.RunFailed, err.Error()); finErr != nil {
			log.Printf("engine: finish run %s: %v", req.RunID, finErr)
		}
		c.JSON(http.StatusOK, LaunchResponse{OK: false, Error: err.Error()})
		return
	}

	s.emit(req.RunID, models.EventInfo, "session_start", req.Target)
	if err := store.StartRun(s.db, req.RunID); err != nil {
		log.Printf("engine: start run %s: %v", req.RunID, err)
	}

	go s.execute(runCtx, req, sess)

	c.JSON(http.StatusOK, LaunchResponse{OK: true})
}

// setup prepares the artifact location and opens the browser session.
func (s *Service) setup(ctx context.Context, req LaunchRequest) (Session, error) {
	open := OpenRequest{
		Spec:    req.LaunchSpec,
		Cookies: req.Cookies,
		Target:  req.Target,
	}
	if s.cfg.Trace {
		if err := s.artifacts.EnsureRunDir(req.RunID); err != nil {
			return nil, err
		}
		open.TracePath = s.artifacts.TracePath(req.RunID)
	}
	return s.opener.Open(ctx, open)
}

// execute drives the plan and finalizes the run. The session and its trace
// are released on every exit path.
func (s *Service) execute(ctx context.Context, req LaunchRequest, sess Session) {
	defer s.release(req.RunID)

	emit := func(level, action, detail string) {
		s.emit(req.RunID, level, action, detail)
	}

	runErr := RunSteps(ctx, sess, req.Plan, emit)

	if err := sess.Close(); err != nil {
		log.Printf("engine: close session for %s: %v", req.RunID, err)
	}
	if s.cfg.Trace {
		if key, err := s.artifacts.Flush(context.Background(), req.RunID); err == nil {
			if err := store.SetRunTrace(s.db, req.RunID, key); err != nil {
				log.Printf("engine: record trace for %s: %v", req.RunID, err)
			}
		} else {
			log.Printf("engine: flush trace for %s: %v", req.RunID, err)
		}
	}

	if runErr != nil {
		// Only cancellation aborts a plan mid-flight.
		s.emit(req.RunID, models.EventWarn, "session_terminated", runErr.Error())
		if err := store.FinishRun(s.db, req.RunID, models.RunTerminated, runErr.Error()); err != nil {
			log.Printf("engine: finish run %s: %v", req.RunID, err)
		}
		s.finishItem(req.RunID, models.ItemFailed, "terminated")
		return
	}

	s.emit(req.RunID, models.EventInfo, "session_complete", "")
	if err := store.FinishRun(s.db, req.RunID, models.RunCompleted, ""); err != nil {
		log.Printf("engine: finish run %s: %v", req.RunID, err)
	}
	s.finishItem(req.RunID, models.ItemCompleted, "")
}

// finishItem propagates a run's terminal status to its parent work item.
func (s *Service) finishItem(runID, itemStatus, reason string) {
	run, err := store.GetRun(s.db, runID)
	if err != nil {
		log.Printf("engine: load run %s: %v", runID, err)
		return
	}
	var markErr error
	if itemStatus == models.ItemCompleted {
		markErr = store.MarkItemCompleted(s.db, run.WorkItemID)
	} else {
		markErr = store.MarkItemFailed(s.db, run.WorkItemID, reason)
	}
	if markErr != nil {
		log.Printf("engine: mark item for run %s: %v", runID, markErr)
	}
}

// handleTerminate cancels an in-flight run. The cancellation propagates
// through the step interpreter, so the run aborts promptly instead of
// merely flipping a status flag.
func (s *Service) handleTerminate(c *gin.Context) {
	runID := c.Param("run_id")

	s.mu.Lock()
	cancel, ok := s.cancels[runID]
	s.mu.Unlock()

	if ok {
		cancel()
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	// Not in flight here: record the advisory terminate on the run row.
	if err := store.FinishRun(s.db, runID, models.RunTerminated, "terminated by operator"); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleRunEvents returns a run's structured event trail.
func (s *Service) handleRunEvents(c *gin.Context) {
	trail, err := events.Trail(s.db, c.Param("run_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "events": trail})
}

// admit reserves a worker slot, waiting in the bounded admission queue when
// the pool is full. It returns false when the queue is also full.
func (s *Service) admit() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
	}

	if s.queued.Add(1) > int64(s.cfg.QueueDepth) {
		s.queued.Add(-1)
		return false
	}
	defer s.queued.Add(-1)
	s.slots <- struct{}{}
	return true
}

// release frees the run's worker slot and cancellation entry.
func (s *Service) release(runID string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[runID]; ok {
		cancel()
		delete(s.cancels, runID)
	}
	s.mu.Unlock()
	<-s.slots
}

func (s *Service) registerCancel(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[runID] = cancel
	s.mu.Unlock()
}

// emit writes a run event, logging instead of failing when the store is
// unavailable.
func (s *Service) emit(runID, level, action, detail string) {
	if err := events.Emit(s.db, runID, level, action, detail); err != nil {
		log.Printf("engine: emit %s/%s: %v", runID, action, err)
	}
}

// Serve runs the engine HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Service) Serve(ctx context.Context, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	fmt.Fprintf(out, "Engine listening on :%d (max %d sessions)\n", s.cfg.Port, s.cfg.MaxSessions)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}
