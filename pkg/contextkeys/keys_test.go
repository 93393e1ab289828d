package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "u1")
	ctx = WithRequestID(ctx, "req-1")

	assert.Equal(t, "u1", GetUserID(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx))
}

func TestMissingValues(t *testing.T) {
	assert.Equal(t, "", GetUserID(context.Background()))
	assert.Equal(t, "", GetRequestID(context.Background()))
}
