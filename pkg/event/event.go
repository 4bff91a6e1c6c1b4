// Package event implements the reliable/unreliable event queues described
// in spec.md §4.3: outgoing/incoming FIFOs, per-packet in-flight
// bookkeeping, and drop-triggered requeue.
package event

import "io"

// TypeID identifies an Event's Go type for Manifest registration purposes.
// Concrete Event implementations return a package-level constant.
type TypeID uint16

// Event is the polymorphic contract every application-defined event type
// implements, mirroring naia's Event trait (write/read/get_type_id/
// is_guaranteed/clone_box).
type Event interface {
	// Write serializes the event's payload (not including the naia_id or
	// length prefix, which the caller adds).
	Write(w io.Writer) error
	// Read deserializes the event's payload from r.
	Read(r io.Reader) error
	// TypeID returns this event's stable Go-side type identifier.
	TypeID() TypeID
	// IsGuaranteed reports whether this event must be delivered reliably.
	IsGuaranteed() bool
	// Clone returns an independent copy of this event.
	Clone() Event
}
