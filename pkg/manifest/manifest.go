// Package manifest implements the immutable bidirectional {type_id ↔
// naia_id} mapping for both events and entities described in spec.md §3,
// grounded on the teacher's internal/packet.PacketRegistry
// (RegisterPacketTypeWithID/GetCodec/nextID allocator) — naia's Manifest
// and arpc's PacketRegistry are the same small-int-id-to-type-with-factory
// idea applied to different domains.
package manifest

import (
	"bytes"
	"fmt"
	"io"

	"github.com/appnet-org/naia/pkg/entity"
	"github.com/appnet-org/naia/pkg/event"
)

// EventFactory constructs a zero-valued Event for a registered event type,
// to be filled in by Event.Read.
type EventFactory func() event.Event

// EntityFactory constructs a zero-valued Entity for a registered entity
// type, to be filled in by Entity.Read.
type EntityFactory func() entity.Entity

type eventEntry struct {
	naiaID  uint16
	factory EventFactory
}

type entityEntry struct {
	naiaID  uint16
	factory EntityFactory
}

// Manifest is the shared, immutable-after-construction id↔type table used
// by both client and server to encode/decode events and entities by their
// stable 16-bit naia_id.
type Manifest struct {
	eventsByType map[event.TypeID]eventEntry
	eventsByID   map[uint16]eventEntry

	entitiesByType map[entity.TypeID]entityEntry
	entitiesByID   map[uint16]entityEntry
}

// New creates an empty Manifest.
func New() *Manifest {
	return &Manifest{
		eventsByType:   make(map[event.TypeID]eventEntry),
		eventsByID:     make(map[uint16]eventEntry),
		entitiesByType: make(map[entity.TypeID]entityEntry),
		entitiesByID:   make(map[uint16]entityEntry),
	}
}

// RegisterEvent assigns naiaID to an event type, using factory to
// construct new instances when decoding. Both client and server must
// register the same (typeID, naiaID) pairs in the same order for the wire
// protocol to interoperate.
func (m *Manifest) RegisterEvent(typeID event.TypeID, naiaID uint16, factory EventFactory) error {
	if _, exists := m.eventsByID[naiaID]; exists {
		return fmt.Errorf("manifest: naia_id %d already registered for an event", naiaID)
	}
	entry := eventEntry{naiaID: naiaID, factory: factory}
	m.eventsByType[typeID] = entry
	m.eventsByID[naiaID] = entry
	return nil
}

// RegisterEntity assigns naiaID to an entity type, using factory to
// construct new instances when decoding.
func (m *Manifest) RegisterEntity(typeID entity.TypeID, naiaID uint16, factory EntityFactory) error {
	if _, exists := m.entitiesByID[naiaID]; exists {
		return fmt.Errorf("manifest: naia_id %d already registered for an entity", naiaID)
	}
	entry := entityEntry{naiaID: naiaID, factory: factory}
	m.entitiesByType[typeID] = entry
	m.entitiesByID[naiaID] = entry
	return nil
}

// EventNaiaID implements event.Registry: Go TypeID -> wire naia_id.
func (m *Manifest) EventNaiaID(t event.TypeID) (uint16, bool) {
	e, ok := m.eventsByType[t]
	return e.naiaID, ok
}

// CreateEvent implements event.Registry: decode payload into a new Event
// of the type registered under naiaID. Unknown ids return ok=false so the
// caller can silently skip them per spec.md §7.
func (m *Manifest) CreateEvent(naiaID uint16, payload []byte) (event.Event, bool) {
	entry, ok := m.eventsByID[naiaID]
	if !ok {
		return nil, false
	}
	e := entry.factory()
	if err := e.Read(bytes.NewReader(payload)); err != nil {
		return nil, false
	}
	return e, true
}

// EntityNaiaID maps a Go entity TypeID to its wire naia_id.
func (m *Manifest) EntityNaiaID(t entity.TypeID) (uint16, bool) {
	e, ok := m.entitiesByType[t]
	return e.naiaID, ok
}

// CreateEntity decodes from r a new Entity of the type registered under
// naiaID. Entity items carry no length prefix (spec.md §6), so Read must
// consume exactly its own encoding from r, leaving it positioned for the
// next item in the block.
func (m *Manifest) CreateEntity(naiaID uint16, r io.Reader) (entity.Entity, bool) {
	entry, ok := m.entitiesByID[naiaID]
	if !ok {
		return nil, false
	}
	e := entry.factory()
	if err := e.Read(r); err != nil {
		return nil, false
	}
	return e, true
}
