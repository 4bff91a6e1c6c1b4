package handshake

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/appnet-org/naia/pkg/event"
	"github.com/appnet-org/naia/pkg/naia"
)

// AuthValidator is the application-supplied callback that inspects the
// optional auth event carried in ClientConnectRequest. Returning an error
// rejects the connection attempt.
type AuthValidator func(event.Event) error

// Validator runs the server side of the handshake described in spec.md
// §4.6. One Validator is shared by all in-flight and completed
// handshakes for a server instance; its secret is generated once at
// construction and never persisted, per spec.md §9.
type Validator struct {
	secret []byte
	auth   AuthValidator
}

// NewValidator creates a Validator with a fresh random secret. auth may be
// nil if the application does not require an auth payload.
func NewValidator(auth AuthValidator) (*Validator, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("handshake: generating secret: %w", err)
	}
	return &Validator{secret: secret, auth: auth}, nil
}

// HandleChallengeRequest processes a ClientChallengeRequest body (8-byte
// timestamp) from addr and returns the ServerChallengeResponse body
// (u16 BE server_tick ∥ timestamp echo ∥ 32-byte digest).
func (v *Validator) HandleChallengeRequest(body []byte, addr string, serverTick uint16) ([]byte, error) {
	timestamp, _, err := readUint64(body)
	if err != nil {
		return nil, err
	}
	digest := computeDigest(v.secret, timestamp, addr)

	out := make([]byte, 0, 2+8+DigestSize)
	out = binary.BigEndian.AppendUint16(out, serverTick)
	out = writeUint64(out, timestamp)
	out = append(out, digest[:]...)
	return out, nil
}

// HandleConnectRequest processes a ClientConnectRequest body (8-byte
// timestamp ∥ 32-byte digest ∥ optional auth event entry) from addr.
// Returns ErrDigestMismatch if the digest does not match what the
// server's secret would have produced for (timestamp, addr), or whatever
// error the application's AuthValidator returns. On success returns the
// (empty) ServerConnectResponse body and the decoded auth event, if any.
func (v *Validator) HandleConnectRequest(body []byte, addr string, registry event.Registry) ([]byte, event.Event, error) {
	timestamp, rest, err := readUint64(body)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) < DigestSize {
		return nil, nil, fmt.Errorf("handshake: short digest")
	}
	gotDigest := rest[:DigestSize]
	rest = rest[DigestSize:]

	want := computeDigest(v.secret, timestamp, addr)
	if subtle.ConstantTimeCompare(want[:], gotDigest) != 1 {
		return nil, nil, ErrDigestMismatch
	}

	var authEvent event.Event
	if len(rest) > 0 {
		m := event.NewManager()
		// Reuse the standard event block decoder: wrap the single
		// trailing entry as a one-event block.
		block := append([]byte{1}, rest...)
		if err := m.ProcessIncoming(bytes.NewReader(block), registry); err != nil {
			return nil, nil, fmt.Errorf("handshake: decoding auth event: %w", err)
		}
		authEvent, _ = m.PopIncoming()
	}

	if v.auth != nil {
		if err := v.auth(authEvent); err != nil {
			return nil, nil, fmt.Errorf("handshake: auth rejected: %w: %w", naia.ErrAuthFailed, err)
		}
	}

	return []byte{}, authEvent, nil
}
