package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	entry := G(context.Background())
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithFieldsPropagates(t *testing.T) {
	ctx := WithFields(context.Background(), logrus.Fields{"run_id": "run-1"})
	ctx = WithFields(ctx, logrus.Fields{"mode": "baseline"})

	entry := G(ctx)
	assert.Equal(t, "run-1", entry.Data["run_id"])
	assert.Equal(t, "baseline", entry.Data["mode"])
}

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		_ = Configure("info", "text")
	})

	require.NoError(t, Configure("debug", "json"))
	G(context.Background()).WithField("trial_id", "t-1").Debug("scored")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scored", line["message"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "t-1", line["trial_id"])
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Configure("loud", "text"))
}
