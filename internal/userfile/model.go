package userfile

import "time"

// File is an uploaded file's metadata row. The bytes live in object
// storage; the ingestion pipeline fills in the derived keys. A re-upload
// keeps the row and supersedes it with a fresh processing job.
type File struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	Name        string `gorm:"type:text;not null"`
	ObjectKey   string `gorm:"type:text;not null"`
	Size        int64  `gorm:"not null;default:0"`
	ContentType string `gorm:"type:text;not null;default:''"`

	TextKey     *string `gorm:"type:text"`
	MarkdownKey *string `gorm:"type:text"`
	ThumbKey    *string `gorm:"type:text"`

	CreatedAt time.Time  `gorm:"not null;default:now()"`
	UpdatedAt time.Time  `gorm:"index;not null;default:now()"`
	DeletedAt *time.Time `gorm:"type:timestamptz;index"`
}
