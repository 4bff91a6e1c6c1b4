// Package tick implements the monotonic wrapping logical clock described
// in spec.md §4.10, grounded on pkg/ping's caller-driven interval-timer
// pattern (no goroutines, advanced only when the caller supplies `now`,
// per spec.md §5).
package tick

import "time"

// Manager tracks a 16-bit wrapping logical tick, incremented at
// tick_interval wall-clock boundaries.
type Manager struct {
	interval time.Duration
	nextFire time.Time

	current uint16
}

// NewManager creates a Manager whose tick advances every interval,
// starting from now.
func NewManager(interval time.Duration, now time.Time) *Manager {
	return &Manager{
		interval: interval,
		nextFire: now.Add(interval),
	}
}

// Update advances the tick by however many interval boundaries have
// elapsed since the last call, wrapping on uint16 overflow. Call once per
// step of the owning Client/Server loop.
func (m *Manager) Update(now time.Time) {
	for !now.Before(m.nextFire) {
		m.current++
		m.nextFire = m.nextFire.Add(m.interval)
	}
}

// GetTick returns the current logical tick value.
func (m *Manager) GetTick() uint16 {
	return m.current
}

// SetTick snaps the logical tick to an externally-provided value — used
// once by the client when its handshake completes, to adopt the server
// tick reported in the challenge response (the client has no tick manager
// between challenge acceptance and connection), and
// optionally for jump-correction when drift exceeds an application
// threshold.
func (m *Manager) SetTick(tick uint16) {
	m.current = tick
}
