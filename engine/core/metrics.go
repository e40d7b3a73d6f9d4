package core

import (
	"sync"
	"time"

	"github.com/spaghettifunk/anima-compute/engine/containers"
)

const AVG_COUNT uint8 = 30

// MetricsState counts device work done through a context and keeps a rolling
// average of episode durations over the last AVG_COUNT episodes.
type MetricsState struct {
	mu sync.Mutex

	submissions uint32
	fenceWaits  uint32
	episodes    uint32

	msTimes *containers.RingQueue[float64]
	msAvg   float64
	last    time.Duration
}

type MetricsSnapshot struct {
	Submissions uint32
	FenceWaits  uint32
	Episodes    uint32
	// Average episode duration in milliseconds.
	EpisodeMSAvg float64
	LastEpisode  time.Duration
}

func NewMetrics() *MetricsState {
	return &MetricsState{
		msTimes: containers.NewRingQueue[float64](int(AVG_COUNT)),
	}
}

func (m *MetricsState) RecordSubmission() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions++
}

func (m *MetricsState) RecordFenceWait() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fenceWaits++
}

func (m *MetricsState) RecordEpisode(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.msTimes.Push(float64(elapsed) / float64(time.Millisecond))

	var sum float64
	for _, ms := range m.msTimes.Values() {
		sum += ms
	}
	m.msAvg = sum / float64(m.msTimes.Len())
	m.last = elapsed
	m.episodes++
}

func (m *MetricsState) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Submissions:  m.submissions,
		FenceWaits:   m.fenceWaits,
		Episodes:     m.episodes,
		EpisodeMSAvg: m.msAvg,
		LastEpisode:  m.last,
	}
}
