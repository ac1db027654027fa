// Package events records the structured, run-keyed event trail.
package events

import (
	"fmt"
	"time"

	"github.com/zulandar/stagehand/internal/models"
	"gorm.io/gorm"
)

// Emit writes one event to a run's trail. Detail may be empty.
func Emit(db *gorm.DB, runID, level, action, detail string) error {
	if db == nil {
		return fmt.Errorf("events: db is required")
	}
	if runID == "" {
		return fmt.Errorf("events: runID is required")
	}
	if action == "" {
		return fmt.Errorf("events: action is required")
	}
	if level == "" {
		level = models.EventInfo
	}

	ev := models.RunEvent{
		RunID:     runID,
		Level:     level,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	if err := db.Create(&ev).Error; err != nil {
		return fmt.Errorf("events: emit %s/%s: %w", runID, action, err)
	}
	return nil
}

// Trail returns a run's events in chronological order.
func Trail(db *gorm.DB, runID string) ([]models.RunEvent, error) {
	if db == nil {
		return nil, fmt.Errorf("events: db is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("events: runID is required")
	}

	var evs []models.RunEvent
	if err := db.Where("run_id = ?", runID).
		Order("id ASC").
		Find(&evs).Error; err != nil {
		return nil, fmt.Errorf("events: trail %s: %w", runID, err)
	}
	return evs, nil
}
