package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TransitionRecord is the persisted feed of committed listing transitions,
// one row per broadcast event.
type TransitionRecord struct {
	ID         uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	ListingID  uint64         `json:"listing_id" gorm:"index;not null"`
	Action     string         `json:"action" gorm:"not null"`
	Status     uint8          `json:"status" gorm:"not null"`
	StatusName string         `json:"status_name" gorm:"not null"`
	Actor      string         `json:"actor" gorm:"index;not null"`
	Payload    datatypes.JSON `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at" gorm:"index;not null"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
}
