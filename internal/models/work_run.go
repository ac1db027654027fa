package models

import "time"

// WorkRun status values. Terminal states are completed, failed and
// terminated; a run never leaves a terminal state.
const (
	RunQueued     = "queued"
	RunRunning    = "running"
	RunPaused     = "paused"
	RunCompleted  = "completed"
	RunFailed     = "failed"
	RunTerminated = "terminated"
)

// WorkRun is one execution attempt of a WorkItem. The scheduler creates it
// at dispatch time; the execution engine owns it afterwards.
type WorkRun struct {
	ID         string `gorm:"primaryKey;size:64"`
	WorkItemID string `gorm:"size:32;index;not null"`
	Status     string `gorm:"size:16;default:queued;index"`
	Error      string `gorm:"type:text"`
	TraceKey   string `gorm:"size:256"`
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	WorkItem *WorkItem `gorm:"foreignKey:WorkItemID"`
}

// Terminal reports whether the run has reached a final status.
func (r *WorkRun) Terminal() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunTerminated:
		return true
	}
	return false
}
