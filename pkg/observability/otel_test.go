package observability

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestInitOTelDisabled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)
	assert.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, ShutdownOTel(context.Background(), providers, logger))
}
