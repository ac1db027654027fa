// Package scheduler polls for due work items and dispatches them to the
// execution engine as fully-resolved launch requests.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/zulandar/stagehand/internal/config"
	"github.com/zulandar/stagehand/internal/engine"
	"github.com/zulandar/stagehand/internal/events"
	"github.com/zulandar/stagehand/internal/launch"
	"github.com/zulandar/stagehand/internal/models"
	"github.com/zulandar/stagehand/internal/planner"
	"github.com/zulandar/stagehand/internal/store"
	"gorm.io/gorm"
)

// Daemon is the dispatch loop. Each cycle it loads a batch of due items,
// claims them one at a time, resolves persona, proxy and cookies into a
// launch request, and hands the request to the engine.
type Daemon struct {
	db      *gorm.DB
	cfg     *config.Config
	engine  EngineClient
	planner planner.Planner
	out     io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	DB      *gorm.DB
	Config  *config.Config
	Engine  EngineClient    // optional; defaults to HTTP against cfg.Scheduler.EngineURL
	Planner planner.Planner // optional; defaults to the heuristic planner
	Out     io.Writer       // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("scheduler: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("scheduler: config is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	eng := opts.Engine
	if eng == nil {
		eng = NewHTTPEngine(opts.Config.Scheduler.EngineURL)
	}
	pl := opts.Planner
	if pl == nil {
		pl = planner.Heuristic{}
	}
	return &Daemon{
		db:      opts.DB,
		cfg:     opts.Config,
		engine:  eng,
		planner: pl,
		out:     out,
	}, nil
}

// Run starts the dispatch loop and blocks until ctx is cancelled. Cycles
// never overlap: the next wait starts only after the current batch is fully
// dispatched. With a cron expression configured the loop fires on the cron
// schedule instead of the fixed interval.
func (d *Daemon) Run(ctx context.Context) error {
	sched := d.cfg.Scheduler
	if sched.Cron != "" {
		fmt.Fprintf(d.out, "Scheduler running on cron %q (batch %d)\n", sched.Cron, sched.BatchSize)
	} else {
		fmt.Fprintf(d.out, "Scheduler polling every %s (batch %d)\n", sched.Interval.Std(), sched.BatchSize)
	}

	// Advisory only: an unreachable engine is reported per dispatch, where
	// it fails the affected items.
	if err := d.engine.Health(ctx); err != nil {
		log.Printf("scheduler: engine health check: %v", err)
	}

	d.runCycle(ctx)

	for {
		wait := sched.Interval.Std()
		if sched.Cron != "" {
			if cw := nextCronDuration(sched.Cron); cw > 0 {
				wait = cw
			} else {
				log.Printf("scheduler: bad cron expression %q, falling back to interval", sched.Cron)
			}
		}

		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Scheduler stopped\n")
			return nil
		case <-time.After(wait):
			d.runCycle(ctx)
		}
	}
}

// runCycle dispatches one batch of due items. Failure to reach the engine
// is a dispatch-level error handled per item: the item is marked failed,
// never silently retried. Retry is external policy.
func (d *Daemon) runCycle(ctx context.Context) {
	items, err := store.DueItems(d.db, d.cfg.Scheduler.BatchSize, time.Now())
	if err != nil {
		log.Printf("scheduler: load due items: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}

	stagger := d.cfg.Scheduler.StaggerDelay.Std()
	dispatched := 0
	for i, item := range items {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && stagger > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(stagger):
			}
		}
		if d.dispatch(ctx, item) {
			dispatched++
		}
	}
	if dispatched > 0 {
		fmt.Fprintf(d.out, "Dispatched %d of %d due items\n", dispatched, len(items))
	}
}

// dispatch claims one item and pushes it to the engine. It returns true when
// a launch request was accepted. The claim is a conditional update, so two
// schedulers racing over the same item dispatch it exactly once.
func (d *Daemon) dispatch(ctx context.Context, item models.WorkItem) bool {
	claimed, err := store.Claim(d.db, item.ID)
	if err != nil {
		log.Printf("scheduler: claim item %s: %v", item.ID, err)
		return false
	}
	if !claimed {
		return false
	}

	req, runID, err := d.resolve(ctx, item)
	if err != nil {
		log.Printf("scheduler: resolve item %s: %v", item.ID, err)
		d.failItem(item.ID, runID, err.Error())
		return false
	}

	resp, err := d.engine.Launch(ctx, *req)
	if err != nil {
		log.Printf("scheduler: launch item %s: %v", item.ID, err)
		d.failItem(item.ID, runID, err.Error())
		return false
	}
	if !resp.OK {
		log.Printf("scheduler: engine rejected item %s: %s", item.ID, resp.Error)
		d.failItem(item.ID, runID, resp.Error)
		return false
	}

	if err := store.MarkItemRunning(d.db, item.ID); err != nil {
		log.Printf("scheduler: mark item %s running: %v", item.ID, err)
	}
	events.Emit(d.db, runID, models.EventInfo, "dispatched", item.Target)
	return true
}

// resolve assembles the launch request for a claimed item: persona, proxy,
// cookie snapshot, plan and the composed launch spec. Missing persona or
// proxy are not errors; the session simply runs anonymous or direct.
func (d *Daemon) resolve(ctx context.Context, item models.WorkItem) (*engine.LaunchRequest, string, error) {
	persona, err := store.LoadPersona(d.db, item.PersonaID)
	if err != nil {
		return nil, "", err
	}

	proxy, err := store.PickProxy(d.db, d.cfg.Scheduler.ProxyWindow)
	if err != nil {
		return nil, "", err
	}
	if proxy == nil {
		log.Printf("scheduler: no healthy proxy available, item %s goes direct", item.ID)
	}

	var cookies []models.Cookie
	var device *models.DeviceProfile
	if persona != nil {
		device = persona.DeviceProfile
		cookies, err = store.LatestCookies(d.db, persona.ID, item.Target)
		if err != nil {
			return nil, "", err
		}
	}

	plan := models.ParsePlan(item.Plan)
	if len(plan) == 0 {
		plan, err = d.planner.Plan(ctx, item.Target, nil)
		if err != nil {
			log.Printf("scheduler: plan item %s: %v", item.ID, err)
			plan = nil
		}
	}

	run, err := store.CreateRun(d.db, item.ID)
	if err != nil {
		return nil, "", err
	}

	spec := launch.Compose(device, proxy, launch.Flags{Headless: d.cfg.Engine.Headless})
	return &engine.LaunchRequest{
		RunID:      run.ID,
		LaunchSpec: spec,
		Cookies:    cookies,
		Target:     item.Target,
		Plan:       plan,
	}, run.ID, nil
}

// failItem records a dispatch failure on the item and, when a run row was
// already created, on the run as well.
func (d *Daemon) failItem(itemID, runID, reason string) {
	if err := store.MarkItemFailed(d.db, itemID, reason); err != nil {
		log.Printf("scheduler: mark item %s failed: %v", itemID, err)
	}
	if runID != "" {
		if err := store.FinishRun(d.db, runID, models.RunFailed, reason); err != nil {
			log.Printf("scheduler: finish run %s: %v", runID, err)
		}
	}
}
