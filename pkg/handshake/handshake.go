// Package handshake implements the challenge/response connection
// handshake described in spec.md §4.6/§6, grounded on naia_client.rs's
// receive() handshake branch for the state machine shape, with the MAC
// computed via crypto/hmac + crypto/sha256 — no pack repo imports a
// third-party MAC library, so the standard library is the correct choice
// here (see DESIGN.md).
package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/appnet-org/naia/pkg/naia"
)

// DigestSize is the fixed MAC length carried in handshake packets.
const DigestSize = sha256.Size

// computeDigest returns MAC(secret, T ∥ addr), matching spec.md §6's
// ServerChallengeResponse/ClientConnectRequest digest field exactly.
func computeDigest(secret []byte, timestamp uint64, addr string) [DigestSize]byte {
	mac := hmac.New(sha256.New, secret)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], timestamp)
	mac.Write(tsBuf[:])
	mac.Write([]byte(addr))

	var out [DigestSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// ErrDigestMismatch is returned when a ClientConnectRequest's digest does
// not match what the server's secret would have produced.
var ErrDigestMismatch = fmt.Errorf("handshake: digest mismatch: %w", naia.ErrAuthFailed)

// writeUint64 appends a big-endian uint64 to buf.
func writeUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("handshake: short timestamp")
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}
