package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rwax/lending-portal/lending-portal-backend/internal/listings"
	"rwax/lending-portal/lending-portal-backend/internal/notifications/websocket"
)

// Service records committed listing transitions and fans them out to
// WebSocket subscribers. It satisfies the lifecycle's event publisher.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	hub    *websocket.Hub
}

func NewService(db *gorm.DB, logger *zap.Logger, hub *websocket.Hub) *Service {
	return &Service{db: db, logger: logger, hub: hub}
}

// PublishTransition stores the event and broadcasts it. Called after the
// listing transaction commits, so failures here only cost the audit row
// and never the transition itself.
func (s *Service) PublishTransition(event listings.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal transition event", zap.Error(err))
		return
	}

	record := TransitionRecord{
		ID:         uuid.New(),
		ListingID:  event.ListingID,
		Action:     event.Action,
		Status:     uint8(event.Status),
		StatusName: event.StatusName,
		Actor:      event.Actor,
		Payload:    payload,
		OccurredAt: event.OccurredAt,
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Error("persist transition event",
			zap.Uint64("listing_id", event.ListingID), zap.Error(err))
	}

	s.hub.Broadcast(websocket.Message{
		Type: "listing_transition",
		Data: map[string]any{
			"listing_id":  event.ListingID,
			"action":      event.Action,
			"status":      uint8(event.Status),
			"status_name": event.StatusName,
			"actor":       event.Actor,
			"occurred_at": event.OccurredAt,
		},
		Timestamp: time.Now().UTC(),
	})
}

// RecentTransitions returns the newest feed entries, optionally scoped to
// one listing.
func (s *Service) RecentTransitions(ctx context.Context, listingID *uint64, limit int) ([]TransitionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Model(&TransitionRecord{})
	if listingID != nil {
		query = query.Where("listing_id = ?", *listingID)
	}

	var records []TransitionRecord
	err := query.Order("occurred_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
