package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", "json", &buf)
	require.NoError(t, err)

	logger.WithField("order_id", "ord-1").Info("order paid")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "order paid", entry["msg"])
	assert.Equal(t, "ord-1", entry["order_id"])
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", "text", &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewLoggerInvalid(t *testing.T) {
	_, err := NewLogger("loud", "json", nil)
	assert.Error(t, err)

	_, err = NewLogger("info", "xml", nil)
	assert.Error(t, err)
}

func TestLoggerFromContext(t *testing.T) {
	fallback := logrus.New()
	assert.Equal(t, logrus.FieldLogger(fallback), LoggerFromContext(context.Background(), fallback))

	scoped := fallback.WithField("request_id", "r1")
	ctx := WithLogger(context.Background(), scoped)
	assert.Equal(t, logrus.FieldLogger(scoped), LoggerFromContext(ctx, fallback))
}
