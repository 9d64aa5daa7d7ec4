package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	l, err := New(Config{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))
}

func TestGlobalHelpersWriteToGlobalLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := GetGlobalLogger()
	SetGlobalLogger(zap.New(core))
	t.Cleanup(func() { SetGlobalLogger(prev) })

	Info("pickup assigned", String("pickup_id", "p1"), Float64("distance_km", 1.5))
	Warn("broadcast dropped", String("topic", "pickup:p1"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "pickup assigned", entries[0].Message)
	assert.Equal(t, "p1", entries[0].ContextMap()["pickup_id"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}
