// Package store implements the scheduler's view of the work-item store.
package store

import (
	"fmt"
	"time"

	"github.com/zulandar/stagehand/internal/models"
	"gorm.io/gorm"
)

// DueItems returns up to batch work items whose scheduled time has arrived
// and whose status still allows dispatch, oldest due first.
func DueItems(db *gorm.DB, batch int, now time.Time) ([]models.WorkItem, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if batch <= 0 {
		return nil, fmt.Errorf("store: batch must be positive")
	}

	var items []models.WorkItem
	if err := db.Where("scheduled_time <= ? AND status IN ?", now, []string{models.ItemPending, models.ItemScheduled}).
		Order("scheduled_time ASC").
		Limit(batch).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("store: due items: %w", err)
	}
	return items, nil
}

// Claim transitions a work item to queued, but only if it is still pending
// or scheduled. The conditional update makes the transition safe against a
// second scheduler racing for the same item: exactly one writer sees a
// nonzero row count and wins the dispatch.
func Claim(db *gorm.DB, itemID string) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("store: db is required")
	}
	if itemID == "" {
		return false, fmt.Errorf("store: itemID is required")
	}

	result := db.Model(&models.WorkItem{}).
		Where("id = ? AND status IN ?", itemID, []string{models.ItemPending, models.ItemScheduled}).
		Update("status", models.ItemQueued)
	if result.Error != nil {
		return false, fmt.Errorf("store: claim %s: %w", itemID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkItemRunning records a successful dispatch. The update is conditional
// on the item still being queued: the engine finishes fast runs
// asynchronously, and a running mark that loses that race must not drag a
// completed or failed item back to running.
func MarkItemRunning(db *gorm.DB, itemID string) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if itemID == "" {
		return fmt.Errorf("store: itemID is required")
	}

	result := db.Model(&models.WorkItem{}).
		Where("id = ? AND status = ?", itemID, models.ItemQueued).
		Update("status", models.ItemRunning)
	if result.Error != nil {
		return fmt.Errorf("store: mark %s running: %w", itemID, result.Error)
	}
	return nil
}

// MarkItemCompleted records a finished run.
func MarkItemCompleted(db *gorm.DB, itemID string) error {
	return setItemStatus(db, itemID, models.ItemCompleted, "")
}

// MarkItemFailed records a dispatch or run failure with its reason.
func MarkItemFailed(db *gorm.DB, itemID, reason string) error {
	return setItemStatus(db, itemID, models.ItemFailed, reason)
}

func setItemStatus(db *gorm.DB, itemID, status, lastError string) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if itemID == "" {
		return fmt.Errorf("store: itemID is required")
	}

	updates := map[string]interface{}{"status": status}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	result := db.Model(&models.WorkItem{}).Where("id = ?", itemID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store: mark %s %s: %w", itemID, status, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: work item %s not found", itemID)
	}
	return nil
}

// LoadPersona fetches a persona with its device profile preloaded. Returns
// nil without error when personaID is nil; an absent persona degrades to an
// anonymous session upstream.
func LoadPersona(db *gorm.DB, personaID *string) (*models.Persona, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if personaID == nil || *personaID == "" {
		return nil, nil
	}

	var persona models.Persona
	err := db.Preload("DeviceProfile").First(&persona, "id = ?", *personaID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load persona %s: %w", *personaID, err)
	}
	return &persona, nil
}
