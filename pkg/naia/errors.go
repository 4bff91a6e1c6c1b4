// Package naia defines the error-kind taxonomy shared across this module's
// packages, per spec.md §7: transport failures, malformed wire data,
// handshake auth failures, event-payload overflow, and peer-silence
// timeouts. Each kind is a sentinel error, wrapped with %w at the places
// noted on each one below, matching the teacher's errors.New/fmt.Errorf
// style rather than a custom error-code framework.
package naia

import "errors"

var (
	// ErrTransport indicates the underlying socket failed (send or
	// receive), as opposed to simply having nothing to read.
	ErrTransport = errors.New("naia: transport error")

	// ErrMalformed indicates a decoder ran off the end of a buffer, or
	// encountered an unrecognized top-level manager tag. Per spec.md §7 a
	// malformed manager block is dropped silently (the connection
	// continues); a malformed top-level StandardHeader closes the
	// connection as if timed out. It is wrapped by pkg/conn's block
	// dispatch, pkg/entity's item decoder and the client's header check;
	// truncated reads inside event/entity blocks, wire.ErrShortBuffer and
	// the handshake's short-body errors are returned without it.
	ErrMalformed = errors.New("naia: malformed packet")

	// ErrAuthFailed indicates a handshake digest mismatch or an
	// application auth validator rejection.
	ErrAuthFailed = errors.New("naia: authentication failed")

	// ErrOverflow indicates an event's encoded payload exceeds the
	// 255-byte length-prefix budget — a fatal, unrecoverable logic error
	// for that event.
	ErrOverflow = errors.New("naia: payload overflow")

	// ErrTimeout indicates a peer's silence exceeded
	// disconnection_timeout_duration. No function returns it: the client
	// attaches it to its disconnect log entry, and a timeout reaches the
	// application through the Client/Server Disconnected fields.
	ErrTimeout = errors.New("naia: connection timed out")
)
