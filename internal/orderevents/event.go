// Package orderevents delivers order_paid and order_updated notifications to
// live dashboards and downstream consumers.
package orderevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventOrderPaid    = "order_paid"
	EventOrderUpdated = "order_updated"
)

// StreamOrders is the stream every staff dashboard follows.
const StreamOrders = "orders"

// OrderStream is the per-order stream followed by the customer page.
func OrderStream(orderID string) string {
	return fmt.Sprintf("order:%s", orderID)
}

type Event struct {
	Event  string `json:"event"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Broadcaster publishes an event to every configured sink.
type Broadcaster interface {
	Broadcast(ctx context.Context, event Event) error
}

// Envelope is the versioned wire format written to kafka.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}
