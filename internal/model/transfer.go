package model

import (
	"time"

	"gorm.io/gorm"
)

type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferInProgress TransferStatus = "in_progress"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
	TransferSkipped    TransferStatus = "skipped"
)

// Transfer records one file within an Execution. A source path has at most
// one completed Transfer per Execution; resume relies on that.
type Transfer struct {
	gorm.Model
	ExecutionID      uint   `gorm:"not null;index"`
	SourcePath       string `gorm:"not null"`
	TargetPath       string
	FileSize         int64
	Checksum         string
	Status           TransferStatus `gorm:"not null;default:'pending'"`
	TransferredBytes int64
	ErrorMessage     string
	StartedAt        *time.Time
	CompletedAt      *time.Time
}
