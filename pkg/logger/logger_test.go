package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPackageLevelHelpersUseGlobal(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := L()
	Set(zap.New(core))
	t.Cleanup(func() { Set(prev) })

	Warn("queue full", zap.String("job", "view"))
	Named("community").Info("subscribed")

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "queue full", entries[0].Message)
	assert.Equal(t, "view", entries[0].ContextMap()["job"])
	assert.Equal(t, "community", entries[1].LoggerName)
}

func TestInitFallsBackToInfoOnBadLevel(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })

	require.NoError(t, Init(Options{Level: "loud"}))
	assert.False(t, L().Core().Enabled(zap.DebugLevel))
	assert.True(t, L().Core().Enabled(zap.InfoLevel))
}
