package models

import "time"

// RunEvent levels.
const (
	EventInfo = "info"
	EventWarn = "warn"
)

// RunEvent is one entry in a run's structured event trail. Every step
// attempt and lifecycle transition is recorded here so operators can
// reconstruct a session without re-running it.
type RunEvent struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"size:64;index;not null"`
	Level     string `gorm:"size:8;default:info"`
	Action    string `gorm:"size:32"`
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}
