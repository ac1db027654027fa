package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/stagehand/internal/artifact"
	"github.com/zulandar/stagehand/internal/config"
	"github.com/zulandar/stagehand/internal/db"
	"github.com/zulandar/stagehand/internal/events"
	"github.com/zulandar/stagehand/internal/models"
	"github.com/zulandar/stagehand/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeSession is a fakeDriver that also satisfies Session.
type fakeSession struct {
	fakeDriver
	closed bool
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// fakeOpener hands out fake sessions and records them, optionally failing.
type fakeOpener struct {
	mu       sync.Mutex
	sessions []*fakeSession
	openErr  error
}

func (o *fakeOpener) Open(_ context.Context, _ OpenRequest) (Session, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	sess := &fakeSession{}
	o.mu.Lock()
	o.sessions = append(o.sessions, sess)
	o.mu.Unlock()
	return sess, nil
}

func testEngineDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func testService(t *testing.T, gdb *gorm.DB, opener Opener, cfg config.EngineConfig) *Service {
	t.Helper()
	arts, err := artifact.New(config.ArtifactConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	svc, err := NewService(gdb, cfg, opener, arts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seedRun(t *testing.T, gdb *gorm.DB) *models.WorkRun {
	t.Helper()
	item := models.WorkItem{ID: "item-1", Target: "https://example.com", Status: models.ItemRunning}
	if err := gdb.Create(&item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	run, err := store.CreateRun(gdb, item.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

func postLaunch(t *testing.T, svc *Service, req LaunchRequest) (*httptest.ResponseRecorder, LaunchResponse) {
	t.Helper()
	body, _ := json.Marshal(req)
	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/launch", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	svc.Router().ServeHTTP(w, httpReq)

	var resp LaunchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, w.Body.String())
	}
	return w, resp
}

func waitForRunStatus(t *testing.T, gdb *gorm.DB, runID, want string) *models.WorkRun {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run, err := store.GetRun(gdb, runID)
		if err != nil {
			t.Fatalf("get run: %v", err)
		}
		if run.Status == want {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	run, _ := store.GetRun(gdb, runID)
	t.Fatalf("run %s stuck in %q, want %q", runID, run.Status, want)
	return nil
}

func TestLaunch_RunsPlanAndCompletes(t *testing.T) {
	gdb := testEngineDB(t)
	opener := &fakeOpener{}
	svc := testService(t, gdb, opener, config.EngineConfig{MaxSessions: 2, QueueDepth: 2})

	run := seedRun(t, gdb)
	_, resp := postLaunch(t, svc, LaunchRequest{
		RunID:  run.ID,
		Target: "https://example.com",
		Plan: []models.Step{
			{Action: models.ActionOpen, URL: "https://example.com"},
			{Action: models.ActionWait, WaitMs: 10},
		},
	})
	if !resp.OK {
		t.Fatalf("launch rejected: %s", resp.Error)
	}

	final := waitForRunStatus(t, gdb, run.ID, models.RunCompleted)
	if final.StartedAt == nil || final.FinishedAt == nil {
		t.Error("completed run is missing start/finish timestamps")
	}

	var item models.WorkItem
	if err := gdb.First(&item, "id = ?", "item-1").Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.Status != models.ItemCompleted {
		t.Errorf("item status = %q, want completed", item.Status)
	}

	opener.mu.Lock()
	sess := opener.sessions[0]
	opener.mu.Unlock()
	if !sess.closed {
		t.Error("session was not closed")
	}
	calls := sess.callList()
	if len(calls) != 1 || calls[0] != "open https://example.com" {
		t.Errorf("driver calls = %v", calls)
	}

	trail, err := events.Trail(gdb, run.ID)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	var attempts, completes int
	for _, ev := range trail {
		switch ev.Action {
		case "step_attempt":
			attempts++
		case "session_complete":
			completes++
		}
	}
	if attempts != 2 {
		t.Errorf("step_attempt events = %d, want 2", attempts)
	}
	if completes != 1 {
		t.Errorf("session_complete events = %d, want 1", completes)
	}
}

func TestLaunch_FailingStepStillCompletes(t *testing.T) {
	gdb := testEngineDB(t)
	opener := &failStepOpener{}
	svc := testService(t, gdb, opener, config.EngineConfig{MaxSessions: 1})

	run := seedRun(t, gdb)
	_, resp := postLaunch(t, svc, LaunchRequest{
		RunID:  run.ID,
		Target: "bad-url",
		Plan: []models.Step{
			{Action: models.ActionOpen, URL: "bad-url"},
			{Action: models.ActionWait, WaitMs: 10},
		},
	})
	if !resp.OK {
		t.Fatalf("launch rejected: %s", resp.Error)
	}

	// A failing step degrades the run, it does not fail it.
	waitForRunStatus(t, gdb, run.ID, models.RunCompleted)

	trail, err := events.Trail(gdb, run.ID)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	var warned bool
	for _, ev := range trail {
		if ev.Action == "step_failed" {
			warned = true
		}
	}
	if !warned {
		t.Error("failing step left no step_failed event")
	}
}

type failStepOpener struct{}

func (o *failStepOpener) Open(context.Context, OpenRequest) (Session, error) {
	return &fakeSession{fakeDriver: fakeDriver{fail: map[string]error{"open": errors.New("net::ERR_NAME_NOT_RESOLVED")}}}, nil
}

func TestLaunch_SetupFailure(t *testing.T) {
	gdb := testEngineDB(t)
	opener := &fakeOpener{openErr: errors.New("browser executable missing")}
	svc := testService(t, gdb, opener, config.EngineConfig{MaxSessions: 1})

	run := seedRun(t, gdb)
	w, resp := postLaunch(t, svc, LaunchRequest{RunID: run.ID, Target: "https://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp.OK {
		t.Fatal("setup failure reported ok=true")
	}
	if resp.Error == "" {
		t.Error("setup failure carried no error message")
	}

	final, err := store.GetRun(gdb, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if final.Status != models.RunFailed {
		t.Errorf("run status = %q, want failed", final.Status)
	}

	// The slot must be free again for the next launch.
	run2 := seedRun2(t, gdb, "item-2")
	opener.openErr = nil
	_, resp2 := postLaunch(t, svc, LaunchRequest{RunID: run2.ID, Target: "https://example.com"})
	if !resp2.OK {
		t.Errorf("slot not released after setup failure: %s", resp2.Error)
	}
}

func seedRun2(t *testing.T, gdb *gorm.DB, itemID string) *models.WorkRun {
	t.Helper()
	item := models.WorkItem{ID: itemID, Target: "https://example.com", Status: models.ItemRunning}
	if err := gdb.Create(&item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	run, err := store.CreateRun(gdb, itemID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

func TestLaunch_FinishRunErrorLogged(t *testing.T) {
	gdb := testEngineDB(t)
	opener := &fakeOpener{openErr: errors.New("browser executable missing")}
	svc := testService(t, gdb, opener, config.EngineConfig{MaxSessions: 1})

	run := seedRun(t, gdb)
	if err := gdb.Migrator().DropTable(&models.WorkRun{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	_, resp := postLaunch(t, svc, LaunchRequest{RunID: run.ID, Target: "https://example.com"})
	if resp.OK {
		t.Fatal("setup failure reported ok=true")
	}
	if !strings.Contains(buf.String(), "finish run") {
		t.Errorf("FinishRun error was not logged, log: %s", buf.String())
	}
}

func TestLaunch_MissingRunID(t *testing.T) {
	gdb := testEngineDB(t)
	svc := testService(t, gdb, &fakeOpener{}, config.EngineConfig{MaxSessions: 1})

	w, resp := postLaunch(t, svc, LaunchRequest{Target: "https://example.com"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if resp.OK {
		t.Error("missing run_id accepted")
	}
}

func TestLaunch_CapacityRejection(t *testing.T) {
	gdb := testEngineDB(t)
	release := make(chan struct{})
	opener := &holdOpener{release: release}
	svc := testService(t, gdb, opener, config.EngineConfig{MaxSessions: 1, QueueDepth: 0})

	run := seedRun(t, gdb)
	_, resp := postLaunch(t, svc, LaunchRequest{
		RunID:  run.ID,
		Target: "https://example.com",
		Plan:   []models.Step{{Action: models.ActionOpen, URL: "https://example.com"}},
	})
	if !resp.OK {
		t.Fatalf("first launch rejected: %s", resp.Error)
	}

	run2 := seedRun2(t, gdb, "item-2")
	w2, resp2 := postLaunch(t, svc, LaunchRequest{RunID: run2.ID, Target: "https://example.com"})
	if w2.Code != http.StatusServiceUnavailable {
		t.Errorf("over-capacity status = %d, want 503", w2.Code)
	}
	if resp2.OK {
		t.Error("over-capacity launch accepted")
	}

	close(release)
	waitForRunStatus(t, gdb, run.ID, models.RunCompleted)
}

// holdOpener returns sessions whose Navigate blocks until release closes.
type holdOpener struct {
	release chan struct{}
}

func (o *holdOpener) Open(context.Context, OpenRequest) (Session, error) {
	return &holdSession{release: o.release}, nil
}

type holdSession struct {
	release chan struct{}
}

func (s *holdSession) Navigate(string) error {
	<-s.release
	return nil
}
func (s *holdSession) Click(string, time.Duration) error        { return nil }
func (s *holdSession) Type(string, string, time.Duration) error { return nil }
func (s *holdSession) Scroll() error                            { return nil }
func (s *holdSession) Close() error                             { return nil }

func TestTerminate_CancelsInFlightRun(t *testing.T) {
	gdb := testEngineDB(t)
	opener := &fakeOpener{}
	svc := testService(t, gdb, opener, config.EngineConfig{MaxSessions: 1})

	run := seedRun(t, gdb)
	_, resp := postLaunch(t, svc, LaunchRequest{
		RunID:  run.ID,
		Target: "https://example.com",
		Plan: []models.Step{
			{Action: models.ActionOpen, URL: "https://example.com"},
			{Action: models.ActionWait, WaitMs: 60000},
		},
	})
	if !resp.OK {
		t.Fatalf("launch rejected: %s", resp.Error)
	}

	time.Sleep(50 * time.Millisecond)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/terminate/%s", run.ID), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("terminate status = %d", w.Code)
	}

	final := waitForRunStatus(t, gdb, run.ID, models.RunTerminated)
	if final.FinishedAt == nil {
		t.Error("terminated run has no finish timestamp")
	}

	var item models.WorkItem
	if err := gdb.First(&item, "id = ?", "item-1").Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.Status != models.ItemFailed {
		t.Errorf("item status = %q, want failed", item.Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	gdb := testEngineDB(t)
	svc := testService(t, gdb, &fakeOpener{}, config.EngineConfig{MaxSessions: 1})

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["ok"] {
		t.Error("health reported ok=false")
	}
}

func TestRunEventsEndpoint(t *testing.T) {
	gdb := testEngineDB(t)
	svc := testService(t, gdb, &fakeOpener{}, config.EngineConfig{MaxSessions: 1})

	run := seedRun(t, gdb)
	if err := events.Emit(gdb, run.ID, models.EventInfo, "session_start", "https://example.com"); err != nil {
		t.Fatalf("emit: %v", err)
	}

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/runs/%s/events", run.ID), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("events status = %d", w.Code)
	}
	var body struct {
		OK     bool              `json:"ok"`
		Events []models.RunEvent `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || len(body.Events) != 1 {
		t.Errorf("events = %+v", body)
	}
}
