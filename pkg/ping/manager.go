// Package ping implements the round-trip-time and jitter estimation
// described in spec.md §4.9, grounded on the teacher's
// pkg/custom/reliable/client_handler.go RTT-sample tracking, adapted from
// its goroutine-driven timer to the caller-driven `now`-parameter style
// used throughout this module (spec.md §5).
package ping

import (
	"encoding/binary"
	"time"
)

// defaultSampleSize is the number of most recent RTT samples averaged to
// produce the reported RTT/jitter. Matches spec.md §6's ping_sample_size
// default of 20.
const defaultSampleSize = 20

// Manager tracks outstanding pings and maintains a rolling RTT/jitter
// estimate from the responses.
type Manager struct {
	interval time.Duration
	nextFire time.Time

	sampleSize int
	samples    []time.Duration // ring buffer, oldest first
	outgoing   map[uint16]time.Time

	nextIndex uint16
	rttAvg    time.Duration
	jitter    time.Duration
}

// NewManager creates a PingManager that fires a ping every interval.
func NewManager(interval time.Duration, now time.Time) *Manager {
	return &Manager{
		interval:   interval,
		nextFire:   now.Add(interval),
		sampleSize: defaultSampleSize,
		outgoing:   make(map[uint16]time.Time),
	}
}

// SetSampleSize overrides the RTT/jitter sample window size, e.g. from the
// configured ping_sample_size. A non-positive n is ignored, keeping the
// default.
func (m *Manager) SetSampleSize(n int) {
	if n > 0 {
		m.sampleSize = n
	}
}

// ShouldWrite reports whether a ping is due to be sent as of now.
func (m *Manager) ShouldWrite(now time.Time) bool {
	return !now.Before(m.nextFire)
}

// WritePing records the send time for a fresh ping index and returns its
// wire payload (u16 BE index). Advances the next-fire deadline relative
// to now.
func (m *Manager) WritePing(now time.Time) []byte {
	idx := m.nextIndex
	m.nextIndex++
	m.outgoing[idx] = now
	m.nextFire = now.Add(m.interval)

	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, idx)
	return buf
}

// ReadPong consumes a pong payload (u16 BE index echoed back by the
// peer), computes the elapsed RTT relative to now, and folds it into the
// rolling average/jitter estimate. Pongs for unknown or already-consumed
// indices are ignored.
func (m *Manager) ReadPong(payload []byte, now time.Time) {
	if len(payload) < 2 {
		return
	}
	idx := binary.BigEndian.Uint16(payload)
	sentAt, ok := m.outgoing[idx]
	if !ok {
		return
	}
	delete(m.outgoing, idx)

	rtt := now.Sub(sentAt)
	m.samples = append(m.samples, rtt)
	if len(m.samples) > m.sampleSize {
		m.samples = m.samples[1:]
	}
	m.recompute()
}

// recompute derives the average RTT and mean-absolute-deviation jitter
// from the current sample window.
func (m *Manager) recompute() {
	if len(m.samples) == 0 {
		return
	}
	var sum time.Duration
	for _, s := range m.samples {
		sum += s
	}
	avg := sum / time.Duration(len(m.samples))

	var devSum time.Duration
	for _, s := range m.samples {
		d := s - avg
		if d < 0 {
			d = -d
		}
		devSum += d
	}

	m.rttAvg = avg
	m.jitter = devSum / time.Duration(len(m.samples))
}

// RTT returns the current rolling-average round-trip time estimate.
func (m *Manager) RTT() time.Duration {
	return m.rttAvg
}

// Jitter returns the current mean-absolute-deviation jitter estimate.
func (m *Manager) Jitter() time.Duration {
	return m.jitter
}
