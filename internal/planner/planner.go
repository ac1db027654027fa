// Package planner produces action plans for work items that carry none.
// The core only executes plans; producing them is a collaborator concern,
// so both implementations here sit behind a single interface.
package planner

import (
	"context"

	"github.com/zulandar/stagehand/internal/models"
)

// Planner turns a target locator and optional campaign metadata into an
// ordered step list. Implementations return an empty plan on failure; an
// empty plan is a valid no-op run downstream.
type Planner interface {
	Plan(ctx context.Context, target string, meta map[string]string) ([]models.Step, error)
}

// Heuristic is the rule-based default planner: visit the target, let it
// settle, scroll through it once.
type Heuristic struct{}

// Plan implements Planner.
func (Heuristic) Plan(_ context.Context, target string, _ map[string]string) ([]models.Step, error) {
	if target == "" {
		return nil, nil
	}
	return []models.Step{
		{Action: models.ActionOpen, URL: target},
		{Action: models.ActionWait, WaitMs: 1500},
		{Action: models.ActionScroll},
		{Action: models.ActionWait, WaitMs: 800},
	}, nil
}
