package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	auth "github.com/goliatone/go-bakery-auth"
)

func TestZapLogger_KeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := auth.NewZapLogger(zap.New(core))

	logger.Info("session terminated", "session_id", "abc", "reason", "manual")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "session terminated", entries[0].Message)
	assert.Equal(t, "auth", entries[0].LoggerName)
	assert.Equal(t, "abc", entries[0].ContextMap()["session_id"])
	assert.Equal(t, "manual", entries[0].ContextMap()["reason"])
}

func TestZapLogger_Printf(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := auth.NewZapLogger(zap.New(core))

	logger.Warn("swept %d sessions", 3)
	logger.Error("plain message")
	logger.Debug("debug %s", "line")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "swept 3 sessions", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "plain message", entries[1].Message)
	assert.Equal(t, "debug line", entries[2].Message)
}

func TestNewProductionZapLogger(t *testing.T) {
	l, err := auth.NewProductionZapLogger("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = auth.NewProductionZapLogger("loud")
	assert.Error(t, err)
}

func TestZapActivitySink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := auth.NewZapActivitySink(zap.New(core))

	err := sink.Record(context.Background(), auth.ActivityEvent{
		Type:      auth.ActivityEventLogout,
		UserID:    "user-1",
		SessionID: "session-1",
		Metadata:  map[string]any{"reason": "manual"},
		At:        testEpoch,
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "session.logout", entries[0].Message)
	assert.Equal(t, "activity", entries[0].LoggerName)

	fields := entries[0].ContextMap()
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Equal(t, "session-1", fields["session_id"])
	assert.Equal(t, "manual", fields["reason"])
}

func TestActivitySinks_FanOut(t *testing.T) {
	first, second := &capturingSink{}, &capturingSink{}
	failing := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return errors.New("audit queue full")
	})

	sinks := auth.ActivitySinks{first, nil, failing, second}
	err := sinks.Record(context.Background(), auth.ActivityEvent{Type: auth.ActivityEventSessionsSwept})

	assert.EqualError(t, err, "audit queue full")
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventSessionsSwept}, first.types())
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventSessionsSwept}, second.types())
}

func TestActivityEvent_Fields(t *testing.T) {
	fields := auth.ActivityEvent{Type: auth.ActivityEventSessionsPurged, At: testEpoch}.Fields()
	assert.Equal(t, []any{"event", "sessions.purged", "at", testEpoch}, fields)
}
