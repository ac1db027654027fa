package models

import "time"

// WorkItem status values. A work item moves pending/scheduled -> queued ->
// running -> completed/failed; only the scheduler writes these transitions.
const (
	ItemPending   = "pending"
	ItemScheduled = "scheduled"
	ItemQueued    = "queued"
	ItemRunning   = "running"
	ItemCompleted = "completed"
	ItemFailed    = "failed"
)

// WorkItem is a persisted unit of scheduled browser-automation work.
type WorkItem struct {
	ID            string  `gorm:"primaryKey;size:32"`
	Title         string  `gorm:"size:256"`
	PersonaID     *string `gorm:"size:32;index"`
	Target        string  `gorm:"size:1024"`
	Plan          string  `gorm:"type:json"`
	Status        string  `gorm:"size:16;default:pending;index"`
	ScheduledTime time.Time `gorm:"index"`
	LastError     string  `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Persona *Persona  `gorm:"foreignKey:PersonaID"`
	Runs    []WorkRun `gorm:"foreignKey:WorkItemID"`
}
