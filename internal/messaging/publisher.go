package messaging

import (
	"context"
	"time"
)

// Transfer is an outgoing payment carried on a circle event for the
// settlement worker
type Transfer struct {
	ID           string `json:"id"`
	Recipient    string `json:"recipient"`
	Denomination string `json:"denomination"`
	Amount       uint64 `json:"amount"`
}

// CircleEvent is the message published after an engine operation commits.
// Transfers listed here are already deducted from the circle's escrow.
type CircleEvent struct {
	CircleID  uint64            `json:"circle_id"`
	EventType string            `json:"event_type"`
	Action    string            `json:"action"`
	Caller    string            `json:"caller,omitempty"`
	Atts      map[string]string `json:"attributes,omitempty"`
	Transfers []Transfer        `json:"transfers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher defines the interface for publishing circle events to the
// message queue
type Publisher interface {
	// PublishCircleEvent publishes a committed circle event to the broker
	PublishCircleEvent(ctx context.Context, event *CircleEvent) error
	// Close closes the connection
	Close()
}
