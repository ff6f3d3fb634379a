// Package ingest processes uploaded files through a staged pipeline using
// leased jobs on a shared table instead of a message broker.
package ingest

import "time"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
	StatusPaused     Status = "paused"
	StatusCanceled   Status = "canceled"
)

type Stage string

const (
	StageQueued     Stage = "queued"
	StageValidating Stage = "validating"
	StageConverting Stage = "converting"
	StageExtracting Stage = "extracting"
	StageAIMarkdown Stage = "ai_md"
	StageThumb      Stage = "thumb"
	StageFinalizing Stage = "finalizing"
	StageReady      Stage = "ready"
	StageFailed     Stage = "failed"
)

// StageSequence is the fixed pipeline walk. A reclaimed job restarts from
// the top, so every handler must be re-runnable from scratch.
var StageSequence = []Stage{
	StageValidating,
	StageConverting,
	StageExtracting,
	StageAIMarkdown,
	StageThumb,
	StageFinalizing,
}

// Job is one file's trip through the pipeline. Rows are never deleted;
// a re-upload supersedes them with a fresh row.
type Job struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	FileID      string `gorm:"type:uuid;index;not null"`
	FileName    string `gorm:"type:text;not null;default:''"`
	ObjectKey   string `gorm:"type:text;not null"`
	ContentType string `gorm:"type:text;not null;default:''"`

	Status Status `gorm:"type:text;index;not null;default:'queued'"`
	Stage  Stage  `gorm:"type:text;not null;default:'queued'"`

	Attempts     int     `gorm:"not null;default:0"`
	ErrorCode    *string `gorm:"type:text"`
	ErrorMessage *string `gorm:"type:text"`

	StartedAt  *time.Time `gorm:"type:timestamptz"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`

	WorkerID       *string    `gorm:"type:text"`
	LeaseExpiresAt *time.Time `gorm:"type:timestamptz"`
	AvailableAt    time.Time  `gorm:"not null;default:now()"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"index;not null;default:now()"`
}

func (Job) TableName() string { return "processing_jobs" }

func (s Status) Terminal() bool { return s == StatusReady || s == StatusFailed }
