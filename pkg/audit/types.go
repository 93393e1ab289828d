package audit

import (
	"encoding/json"
	"time"
)

// Event is one applied order transition.
type Event struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	OrderID   string         `json:"order_id"`
	UserID    string         `json:"user_id"`
	Event     string         `json:"event"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToJSON marshals the event.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
