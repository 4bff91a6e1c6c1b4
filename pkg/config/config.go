// Package config collects the documented configuration defaults from
// spec.md §6 into one place, mirroring naia's
// shared/src/connection_config.rs `Default` impl and the teacher's
// constructor-returns-populated-struct convention (e.g.
// transport.ResolveUDPTarget's fixed fallbacks) rather than requiring every
// caller to restate magic durations.
package config

import (
	"time"

	"github.com/appnet-org/naia/internal/transport"
	"github.com/appnet-org/naia/pkg/conn"
)

// Defaults, named and valued per spec.md §6's configuration table.
const (
	DefaultDisconnectionTimeout       = 10 * time.Second
	DefaultHeartbeatInterval          = 4 * time.Second
	DefaultPingInterval               = time.Second
	DefaultPingSampleSize             = 20
	DefaultSendHandshakeInterval      = 500 * time.Millisecond
	DefaultTickInterval               = 50 * time.Millisecond
	DefaultMaxOutgoingPacketSizeBytes = 1400
)

// ConnectionConfig is the per-Connection parameter bundle a Client or
// Server threads through to pkg/conn.New, aliased rather than redefined so
// the two stay in lock-step.
type ConnectionConfig = conn.Config

// DefaultConnectionConfig returns a ConnectionConfig populated with
// spec.md §6's documented defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		HeartbeatInterval:          DefaultHeartbeatInterval,
		DisconnectionTimeout:       DefaultDisconnectionTimeout,
		PingInterval:               DefaultPingInterval,
		PingSampleSize:             DefaultPingSampleSize,
		MaxOutgoingPacketSizeBytes: DefaultMaxOutgoingPacketSizeBytes,
	}
}

// LinkConditionConfig mirrors spec.md §6's PacketIO
// `{loss_prob, jitter_ms, min_latency_ms}` option, named the way the spec
// names it rather than transport.NewLinkConditioner's positional
// constructor arguments.
type LinkConditionConfig struct {
	LossProb     float64
	JitterMS     uint32
	MinLatencyMS uint32
}

// NewConditioner builds a transport.LinkConditioner from cfg. seed makes
// drop/jitter decisions reproducible across test runs.
func NewConditioner(cfg LinkConditionConfig, seed int64) *transport.LinkConditioner {
	return transport.NewLinkConditioner(
		cfg.LossProb,
		time.Duration(cfg.JitterMS)*time.Millisecond,
		time.Duration(cfg.MinLatencyMS)*time.Millisecond,
		seed,
	)
}
