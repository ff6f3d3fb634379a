package website

import (
	"time"

	"github.com/lib/pq"
)

// Website is a saved web page. Content extraction happens at save time in
// the web-save path; sync only reconciles the stored fields.
type Website struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	URL     string `gorm:"type:text;not null"`
	Title   string `gorm:"type:text;not null;default:''"`
	Excerpt string `gorm:"type:text;not null;default:''"`

	Tags pq.StringArray `gorm:"type:text[];not null;default:'{}'"`

	CreatedAt time.Time  `gorm:"not null;default:now()"`
	UpdatedAt time.Time  `gorm:"index;not null;default:now()"`
	DeletedAt *time.Time `gorm:"type:timestamptz;index"`
}
