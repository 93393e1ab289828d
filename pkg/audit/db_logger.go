package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DefaultListLimit bounds ListForOrder when no limit is given.
const DefaultListLimit = 100

// DBLogger appends events to the order_events table.
type DBLogger struct {
	db *sql.DB
}

func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// Log inserts the event and sets its ID and Timestamp.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	withRequestID(ctx, event)

	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO order_events (order_id, user_id, event, from_state, to_state, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING id, created_at
	`
	err := l.db.QueryRowContext(ctx, query,
		event.OrderID, event.UserID, event.Event, event.From, event.To, event.RequestID, metadataJSON,
	).Scan(&event.ID, &event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert order event: %w", err)
	}
	return nil
}

// ListForOrder returns an order's events, oldest first.
func (l *DBLogger) ListForOrder(ctx context.Context, orderID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `
		SELECT id, created_at, order_id, user_id, event, from_state, to_state, COALESCE(request_id, ''), metadata
		FROM order_events
		WHERE order_id = $1
		ORDER BY id
		LIMIT $2
	`
	rows, err := l.db.QueryContext(ctx, query, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query order events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var metadataJSON []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.OrderID, &e.UserID, &e.Event, &e.From, &e.To, &e.RequestID, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order events: %w", err)
	}
	return events, nil
}
