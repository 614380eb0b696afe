package model

import (
	"time"

	"gorm.io/gorm"
)

type ExecutionStatus string

const (
	ExecutionPending             ExecutionStatus = "pending"
	ExecutionRunning             ExecutionStatus = "running"
	ExecutionPaused              ExecutionStatus = "paused"
	ExecutionCompleted           ExecutionStatus = "completed"
	ExecutionCompletedWithErrors ExecutionStatus = "completed_with_errors"
	ExecutionFailed              ExecutionStatus = "failed"
	ExecutionCancelled           ExecutionStatus = "cancelled"
)

func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionCompletedWithErrors, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// Execution is one run of a Job. At most one Execution per Job may be in a
// non-terminal status; once terminal it is never mutated again.
type Execution struct {
	gorm.Model
	JobID            uint            `gorm:"not null;index"`
	Status           ExecutionStatus `gorm:"not null;default:'pending'"`
	StartedAt        time.Time
	CompletedAt      *time.Time
	PausedAt         *time.Time
	ResumedAt        *time.Time
	TotalFiles       int
	ProcessedFiles   int
	FailedFiles      int
	TotalBytes       int64
	TransferredBytes int64
	ErrorMessage     string

	Transfers []Transfer `gorm:"constraint:OnDelete:CASCADE"`
}

func (e *Execution) ProgressPercent() int {
	if e.TotalFiles == 0 {
		return 0
	}
	return min(100, e.ProcessedFiles*100/e.TotalFiles)
}

// TransferRate reports the average throughput in bytes per second.
func (e *Execution) TransferRate() float64 {
	if e.StartedAt.IsZero() || e.TransferredBytes == 0 {
		return 0
	}

	end := time.Now()
	if e.CompletedAt != nil {
		end = *e.CompletedAt
	}

	duration := end.Sub(e.StartedAt).Seconds()
	if duration <= 0 {
		return 0
	}

	return float64(e.TransferredBytes) / duration
}
