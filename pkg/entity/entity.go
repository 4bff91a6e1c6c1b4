// Package entity implements server- and client-side entity replication
// scope management described in spec.md §4.7/§4.8: a server-authoritative
// Create/Update/Delete stream keyed by a per-client LocalEntityKey, and the
// client-side map that applies that stream.
package entity

import "io"

// TypeID identifies an Entity's Go type for Manifest registration purposes.
type TypeID uint16

// LocalEntityKey is a 16-bit handle the server assigns to an entity it has
// placed in a particular client's scope. Unique per (server, client) pair;
// its lifetime is the duration the entity is in scope for that client.
type LocalEntityKey uint16

// Entity is the polymorphic contract every application-defined entity type
// implements, mirroring naia's Entity trait (write/read/read_partial/
// get_typed_copy/equals).
type Entity interface {
	// Write serializes the entity's full state.
	Write(w io.Writer) error
	// Read deserializes the entity's full state from r.
	Read(r io.Reader) error
	// ReadPartial applies a partial-diff update read from r onto the
	// receiver, which must already hold a valid full state.
	ReadPartial(r io.Reader) error
	// TypeID returns this entity's stable Go-side type identifier.
	TypeID() TypeID
	// Clone returns an independent deep copy of this entity.
	Clone() Entity
	// Equals reports whether other holds the same replicated state as the
	// receiver, used by the server's tick-boundary diff to decide whether
	// an Update needs to be sent.
	Equals(other Entity) bool
	// Interpolate returns a new Entity whose fields are smoothed between
	// from (the older snapshot) and the receiver (the live value) at
	// fraction frac, which the caller guarantees is clamped to [0, 1].
	Interpolate(from Entity, frac float64) Entity
}
