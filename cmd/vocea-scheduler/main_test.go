package main

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunJobReturnsFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	j := job{name: "sweep", fn: func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("database down")
	}}

	err := runJob(context.Background(), j, logger)
	require.Error(t, err)
	assert.Equal(t, "sweep job: database down", err.Error())
	assert.Empty(t, hook.AllEntries())
}

func TestRunJobLogsSuccess(t *testing.T) {
	logger, hook := test.NewNullLogger()
	j := job{name: "billing", fn: func(ctx context.Context) (interface{}, error) {
		return map[string]int{"charged": 2}, nil
	}}

	require.NoError(t, runJob(context.Background(), j, logger))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "job completed", entry.Message)
	assert.Equal(t, "billing", entry.Data["job"])
}

func TestScheduledLogsFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	j := job{name: "pending", fn: func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("stripe unavailable")
	}}

	scheduled(context.Background(), j, logger)()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "job failed", entry.Message)
	assert.Equal(t, "pending", entry.Data["job"])
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "pending job: stripe unavailable")
}
