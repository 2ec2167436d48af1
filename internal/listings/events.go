package listings

import "time"

// Event describes one committed listing transition.
type Event struct {
	ListingID  uint64    `json:"listing_id"`
	Action     string    `json:"action"`
	Status     Status    `json:"status"`
	StatusName string    `json:"status_name"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher receives committed transitions. Publishing happens after
// the transaction commits so a rolled-back transition is never announced.
type EventPublisher interface {
	PublishTransition(event Event)
}

// NopPublisher discards events; used in tests and workers.
type NopPublisher struct{}

func (NopPublisher) PublishTransition(Event) {}
