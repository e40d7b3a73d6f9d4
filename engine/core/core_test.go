package core

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	err := NewError(KindDriver, "vulkan.SelectPhysicalDevice", ErrNoPhysicalDevice)
	wrapped := fmt.Errorf("initialize: %w", err)

	assert.ErrorIs(t, wrapped, ErrNoPhysicalDevice)
	assert.Equal(t, KindDriver, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "vulkan.SelectPhysicalDevice [driver]: no physical device found", err.Error())
}

func TestErrorfWrapsCause(t *testing.T) {
	err := Errorf(KindVerification, "verify", "index %d: %w", 5, ErrVerificationFailed)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Equal(t, "verification", err.Kind.String())
}

func TestNewErrorWithoutCause(t *testing.T) {
	err := NewError(KindResource, "alloc", nil)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestSetLogLevel(t *testing.T) {
	SetLogOutput(io.Discard)
	require.NoError(t, SetLogLevel(LogLevelDebug))
	require.NoError(t, SetLogLevel("WARN"))

	err := SetLogLevel("loud")
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	require.NoError(t, SetLogLevel(LogLevelInfo))
}

func TestMetricsCounts(t *testing.T) {
	m := NewMetrics()
	m.RecordSubmission()
	m.RecordFenceWait()
	m.RecordSubmission()
	m.RecordFenceWait()
	m.RecordEpisode(10 * time.Millisecond)
	m.RecordEpisode(20 * time.Millisecond)

	s := m.Snapshot()
	assert.Equal(t, uint32(2), s.Submissions)
	assert.Equal(t, uint32(2), s.FenceWaits)
	assert.Equal(t, uint32(2), s.Episodes)
	assert.InDelta(t, 15.0, s.EpisodeMSAvg, 0.0001)
	assert.Equal(t, 20*time.Millisecond, s.LastEpisode)
}

func TestMetricsRollingWindow(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.RecordEpisode(time.Millisecond)
	}
	// pushes one of the 1ms samples out of the window
	m.RecordEpisode(time.Duration(AVG_COUNT+1) * time.Millisecond)

	s := m.Snapshot()
	want := (float64(AVG_COUNT-1) + float64(AVG_COUNT+1)) / float64(AVG_COUNT)
	assert.InDelta(t, want, s.EpisodeMSAvg, 0.0001)
	assert.Equal(t, uint32(AVG_COUNT)+1, s.Episodes)
}

func TestClock(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	time.Sleep(2 * time.Millisecond)
	c.Stop()
	elapsed := c.Elapsed()
	assert.GreaterOrEqual(t, elapsed, 2*time.Millisecond)

	// stopped clocks keep their elapsed time
	c.Update()
	assert.Equal(t, elapsed, c.Elapsed())
}
