package handshake

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/appnet-org/naia/pkg/event"
)

// ClientState is the client-side handshake state machine position.
type ClientState int

const (
	// StateAwaitingChallenge has sent (or is about to send)
	// ClientChallengeRequest and is waiting for ServerChallengeResponse.
	StateAwaitingChallenge ClientState = iota
	// StateAwaitingConnect has sent ClientConnectRequest and is waiting
	// for ServerConnectResponse.
	StateAwaitingConnect
	// StateConnected has received ServerConnectResponse.
	StateConnected
)

// Driver runs the client side of the handshake described in spec.md §4.6.
type Driver struct {
	state ClientState

	timestamp uint64 // T, chosen fresh when (re)entering StateAwaitingChallenge
	digest    [DigestSize]byte

	serverTick uint16

	interval    time.Duration
	nextRetryAt time.Time

	authEvent event.Event // optional, nil if none
}

// NewDriver creates a Driver that will send its first ClientChallengeRequest
// immediately (ShouldSend returns true until the first BuildOutgoing call).
func NewDriver(interval time.Duration, timestamp uint64, authEvent event.Event) *Driver {
	return &Driver{
		state:       StateAwaitingChallenge,
		timestamp:   timestamp,
		interval:    interval,
		nextRetryAt: time.Time{}, // zero value: always due
		authEvent:   authEvent,
	}
}

// State returns the driver's current position in the handshake.
func (d *Driver) State() ClientState { return d.state }

// Reset returns the driver to StateAwaitingChallenge with a fresh
// timestamp, ready to immediately retry ClientChallengeRequest. Per
// spec.md §4.6's state diagram, a disconnected Connected client resets to
// AwaitingChallengeResponse rather than staying connected.
func (d *Driver) Reset(timestamp uint64) {
	d.state = StateAwaitingChallenge
	d.timestamp = timestamp
	d.serverTick = 0
	d.nextRetryAt = time.Time{}
}

// Connected reports whether the handshake has completed.
func (d *Driver) Connected() bool { return d.state == StateConnected }

// ServerTick returns the tick value the server reported in its challenge
// response. Only meaningful once Connected or past StateAwaitingChallenge.
func (d *Driver) ServerTick() uint16 { return d.serverTick }

// ShouldSend reports whether the current-state packet is due for
// (re)transmission as of now.
func (d *Driver) ShouldSend(now time.Time) bool {
	return d.state != StateConnected && !now.Before(d.nextRetryAt)
}

// BuildOutgoing returns the packet body to send for the current state,
// and arms the retry timer. Call only when ShouldSend is true.
func (d *Driver) BuildOutgoing(now time.Time, registry event.Registry) ([]byte, error) {
	d.nextRetryAt = now.Add(d.interval)

	switch d.state {
	case StateAwaitingChallenge:
		return writeUint64(nil, d.timestamp), nil

	case StateAwaitingConnect:
		buf := writeUint64(nil, d.timestamp)
		buf = append(buf, d.digest[:]...)
		if d.authEvent != nil {
			var err error
			buf, _, err = event.WriteEvent(buf, 1<<16, registry, d.authEvent)
			if err != nil {
				return nil, fmt.Errorf("handshake: encoding auth event: %w", err)
			}
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("handshake: no outgoing packet in state %d", d.state)
	}
}

// HandleChallengeResponse processes a ServerChallengeResponse body
// (u16 BE server_tick ∥ 8-byte timestamp echo ∥ 32-byte digest). The
// response is accepted only if the echoed timestamp matches d's stored T,
// defeating stale/replayed responses per spec.md §4.6. On acceptance the
// driver transitions to StateAwaitingConnect and the server's digest is
// adopted verbatim for the upcoming ClientConnectRequest (the client never
// knows the server's secret; it only ever echoes what the server computed).
func (d *Driver) HandleChallengeResponse(body []byte) error {
	if d.state != StateAwaitingChallenge {
		return nil // stale/duplicate, ignore
	}
	if len(body) < 2 {
		return fmt.Errorf("handshake: short challenge response")
	}
	serverTick := binary.BigEndian.Uint16(body[:2])
	rest := body[2:]

	echoed, rest, err := readUint64(rest)
	if err != nil {
		return err
	}
	if echoed != d.timestamp {
		// Stale response from a prior challenge round; ignore, keep
		// retrying the current challenge.
		return nil
	}
	if len(rest) < DigestSize {
		return fmt.Errorf("handshake: short digest")
	}

	d.serverTick = serverTick
	copy(d.digest[:], rest[:DigestSize])
	d.state = StateAwaitingConnect
	d.nextRetryAt = time.Time{}
	return nil
}

// HandleConnectResponse processes a ServerConnectResponse (empty body)
// and transitions the driver to StateConnected.
func (d *Driver) HandleConnectResponse() {
	if d.state == StateAwaitingConnect {
		d.state = StateConnected
	}
}
