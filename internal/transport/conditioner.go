package transport

import (
	"math/rand"
	"time"
)

// LinkConditioner simulates an imperfect link above a real or fake
// PacketIO for integration tests: independent packet loss, extra
// jitter, and a minimum one-way latency floor. Grounded on spec.md §6.1's
// PacketIO EXPANSION, which calls out link conditioning as the mechanism
// integration tests use to exercise drop/retry and ack-bitfield recovery
// without a real flaky network.
type LinkConditioner struct {
	LossProbability float64
	JitterMax       time.Duration
	MinLatency      time.Duration

	rng *rand.Rand
}

// NewLinkConditioner creates a conditioner with the given parameters.
// seed makes drop/jitter decisions reproducible across test runs.
func NewLinkConditioner(lossProbability float64, jitterMax, minLatency time.Duration, seed int64) *LinkConditioner {
	return &LinkConditioner{
		LossProbability: lossProbability,
		JitterMax:       jitterMax,
		MinLatency:      minLatency,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// ShouldDrop decides whether an in-flight datagram is lost.
func (c *LinkConditioner) ShouldDrop() bool {
	if c.LossProbability <= 0 {
		return false
	}
	return c.rng.Float64() < c.LossProbability
}

// Delay returns how long a datagram that survives ShouldDrop should be
// held before delivery: a fixed minimum latency plus uniform jitter in
// [0, JitterMax).
func (c *LinkConditioner) Delay() time.Duration {
	d := c.MinLatency
	if c.JitterMax > 0 {
		d += time.Duration(c.rng.Int63n(int64(c.JitterMax)))
	}
	return d
}
