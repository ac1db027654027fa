package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/stagehand/internal/models"
)

// DefaultStepTimeout applies to click and type steps that carry no timeout.
const DefaultStepTimeout = 10000 * time.Millisecond

// Driver is the set of browser operations the step interpreter needs. The
// playwright session implements it; tests substitute a fake.
type Driver interface {
	Navigate(url string) error
	Click(selector string, timeout time.Duration) error
	Type(selector, text string, timeout time.Duration) error
	Scroll() error
}

// EmitFunc receives one interpreter event: a level, an action tag and a
// human-readable detail line.
type EmitFunc func(level, action, detail string)

// RunSteps drives a session through a plan. Every step is individually
// fault-isolated: a failing step is logged at warn level and execution
// moves to the next one, so a single broken selector cannot waste the
// session. Unrecognized action tags are skipped as forward-compatible
// no-ops. RunSteps returns early only when ctx is cancelled.
func RunSteps(ctx context.Context, d Driver, steps []models.Step, emit EmitFunc) error {
	if emit == nil {
		emit = func(string, string, string) {}
	}

	for i, step := range steps {
		select {
		case <-ctx.Done():
			emit(models.EventWarn, "plan_aborted", fmt.Sprintf("cancelled before step %d", i))
			return ctx.Err()
		default:
		}

		emit(models.EventInfo, "step_attempt", describeStep(step))
		if err := runStep(ctx, d, step); err != nil {
			if ctx.Err() != nil {
				emit(models.EventWarn, "plan_aborted", fmt.Sprintf("cancelled during step %d", i))
				return ctx.Err()
			}
			emit(models.EventWarn, "step_failed", fmt.Sprintf("%s: %v", describeStep(step), err))
		}
	}
	return nil
}

// runStep executes one step against the driver.
func runStep(ctx context.Context, d Driver, step models.Step) error {
	switch step.Action {
	case models.ActionOpen:
		return d.Navigate(step.URL)
	case models.ActionClick:
		return d.Click(step.Selector, stepTimeout(step))
	case models.ActionType:
		return d.Type(step.Selector, step.Text, stepTimeout(step))
	case models.ActionWait:
		return sleep(ctx, time.Duration(step.WaitMs)*time.Millisecond)
	case models.ActionScroll:
		return d.Scroll()
	default:
		// Unknown tags are carried by newer planners; ignore them.
		return nil
	}
}

func stepTimeout(step models.Step) time.Duration {
	if step.TimeoutMs > 0 {
		return time.Duration(step.TimeoutMs) * time.Millisecond
	}
	return DefaultStepTimeout
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func describeStep(step models.Step) string {
	switch step.Action {
	case models.ActionOpen:
		return fmt.Sprintf("open %s", step.URL)
	case models.ActionClick:
		return fmt.Sprintf("click %s", step.Selector)
	case models.ActionType:
		return fmt.Sprintf("type into %s", step.Selector)
	case models.ActionWait:
		return fmt.Sprintf("wait %dms", step.WaitMs)
	case models.ActionScroll:
		return "scroll"
	default:
		return fmt.Sprintf("unknown action %q", step.Action)
	}
}
