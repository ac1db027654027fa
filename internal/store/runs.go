package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/stagehand/internal/models"
	"gorm.io/gorm"
)

// CreateRun inserts a queued WorkRun for a work item and returns it.
func CreateRun(db *gorm.DB, itemID string) (*models.WorkRun, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if itemID == "" {
		return nil, fmt.Errorf("store: itemID is required")
	}

	run := models.WorkRun{
		ID:         uuid.New().String(),
		WorkItemID: itemID,
		Status:     models.RunQueued,
	}
	if err := db.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("store: create run for %s: %w", itemID, err)
	}
	return &run, nil
}

// StartRun marks a run as running and stamps its start time.
func StartRun(db *gorm.DB, runID string) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if runID == "" {
		return fmt.Errorf("store: runID is required")
	}

	now := time.Now()
	result := db.Model(&models.WorkRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":     models.RunRunning,
		"started_at": now,
	})
	if result.Error != nil {
		return fmt.Errorf("store: start run %s: %w", runID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: run %s not found", runID)
	}
	return nil
}

// FinishRun moves a run to a terminal status. The conditional update never
// overwrites an earlier terminal status, so a terminate that raced with
// normal completion leaves whichever verdict landed first.
func FinishRun(db *gorm.DB, runID, status, errMsg string) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if runID == "" {
		return fmt.Errorf("store: runID is required")
	}
	switch status {
	case models.RunCompleted, models.RunFailed, models.RunTerminated:
	default:
		return fmt.Errorf("store: %q is not a terminal run status", status)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      status,
		"finished_at": now,
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	result := db.Model(&models.WorkRun{}).
		Where("id = ? AND status NOT IN ?", runID, []string{models.RunCompleted, models.RunFailed, models.RunTerminated}).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store: finish run %s: %w", runID, result.Error)
	}
	return nil
}

// SetRunTrace records the artifact key a run's diagnostic trace was
// written under.
func SetRunTrace(db *gorm.DB, runID, traceKey string) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if runID == "" {
		return fmt.Errorf("store: runID is required")
	}

	result := db.Model(&models.WorkRun{}).Where("id = ?", runID).Update("trace_key", traceKey)
	if result.Error != nil {
		return fmt.Errorf("store: set trace for run %s: %w", runID, result.Error)
	}
	return nil
}

// GetRun fetches a run by id.
func GetRun(db *gorm.DB, runID string) (*models.WorkRun, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("store: runID is required")
	}

	var run models.WorkRun
	if err := db.First(&run, "id = ?", runID).Error; err != nil {
		return nil, fmt.Errorf("store: get run %s: %w", runID, err)
	}
	return &run, nil
}
