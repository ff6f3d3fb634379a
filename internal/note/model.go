package note

import (
	"time"

	"github.com/lib/pq"
)

// Note is a user-authored note. Offline clients generate the uuid so an
// add can be replayed against the same id.
type Note struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	Title string `gorm:"type:text;not null;default:''"`
	Body  string `gorm:"type:text;not null;default:''"`

	Tags pq.StringArray `gorm:"type:text[];not null;default:'{}'"`

	Pinned      bool `gorm:"not null;default:false"`
	PinnedOrder *int

	CreatedAt time.Time  `gorm:"not null;default:now()"`
	UpdatedAt time.Time  `gorm:"index;not null;default:now()"`
	DeletedAt *time.Time `gorm:"type:timestamptz;index"`
}
