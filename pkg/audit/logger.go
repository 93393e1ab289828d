package audit

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/voceacampusului/vocea/pkg/contextkeys"
)

// Logger records audit events.
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// NoOp discards every event.
type NoOp struct{}

func (NoOp) Log(context.Context, *Event) error { return nil }

// LogrusLogger writes events to a logrus logger.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	withRequestID(ctx, event)
	fields := logrus.Fields{
		"audit":    true,
		"order_id": event.OrderID,
		"user_id":  event.UserID,
		"event":    event.Event,
		"from":     event.From,
		"to":       event.To,
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}
	l.logger.WithFields(fields).Debug("order audit")
	return nil
}

// withRequestID copies the request id from ctx when the event has none.
func withRequestID(ctx context.Context, event *Event) {
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
}
