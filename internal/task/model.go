package task

import (
	"encoding/json"
	"time"
)

// Task is a to-do item. Repeating series store the rule on every instance;
// the template row is the series root and is itself never completed.
type Task struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	Title   string `gorm:"type:text;not null"`
	Notes   string `gorm:"type:text;not null;default:''"`
	Project string `gorm:"type:text;not null;default:''"`

	Deadline    *time.Time `gorm:"type:timestamptz;index"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`

	Repeating        bool            `gorm:"not null;default:false"`
	RepeatTemplate   bool            `gorm:"not null;default:false"`
	RepeatTemplateID *string         `gorm:"type:uuid;index"`
	RecurrenceRule   json.RawMessage `gorm:"type:jsonb"`
	NextInstanceDate *time.Time      `gorm:"type:timestamptz"`

	CreatedAt time.Time  `gorm:"not null;default:now()"`
	UpdatedAt time.Time  `gorm:"index;not null;default:now()"`
	DeletedAt *time.Time `gorm:"type:timestamptz;index"`
}
