package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	UseLogger(zap.New(core))
	t.Cleanup(func() { UseLogger(nil) })
	return logs
}

func TestCategoryLoggersAreNamed(t *testing.T) {
	logs := observe(t)

	Pool("acquired worker %s", "w-1")
	FetchWarn("retrying %s", "https://example.com")
	PipelineDebug("stage %d", 3)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "pool", entries[0].LoggerName)
	assert.Equal(t, "acquired worker w-1", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "pipeline", entries[2].LoggerName)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	replace(zap.New(core), map[string]bool{"pool": false})
	t.Cleanup(func() { UseLogger(nil) })

	Pool("hidden")
	Search("visible")

	assert.False(t, IsCategoryEnabled(CategoryPool))
	assert.True(t, IsCategoryEnabled(CategorySearch))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "visible", logs.All()[0].Message)
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t)

	Get(CategoryLLM).With("model", "gemini").Info("call")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "gemini", logs.All()[0].ContextMap()["model"])
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t)

	timer := StartTimer(CategoryFetch, "slow op")
	time.Sleep(5 * time.Millisecond)
	timer.StopWithThreshold(time.Millisecond)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(Config{Level: "chatty"})
	assert.Error(t, err)

	require.NoError(t, Init(Config{Level: "warn", Format: "console"}))
	UseLogger(nil)
}
