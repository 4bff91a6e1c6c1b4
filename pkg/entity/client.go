package entity

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/appnet-org/naia/pkg/logging"
	"github.com/appnet-org/naia/pkg/naia"
	"go.uber.org/zap"
)

// ClientMessage is an application-facing notification of a replicated
// change applied to the client-side entity map, emitted by ApplyBlock
// for the local application to consume.
type ClientMessage struct {
	Kind   MessageKind
	Key    LocalEntityKey
	Entity Entity // the created/updated entity, or for Delete the entity just removed
}

// ClientManager applies the server's Create/Update/Delete stream to a
// local map of replicated entities, per spec.md §4.8. A separate instance
// is used for the player's own predicted entity, kept out of the regular
// replication map.
type ClientManager struct {
	entities map[LocalEntityKey]Entity
}

// NewClientManager creates an empty client-side replica map.
func NewClientManager() *ClientManager {
	return &ClientManager{entities: make(map[LocalEntityKey]Entity)}
}

// Get returns the entity currently stored under key, if any.
func (m *ClientManager) Get(key LocalEntityKey) (Entity, bool) {
	e, ok := m.entities[key]
	return e, ok
}

// All returns the manager's own key->entity map (not a copy) for
// iteration (e.g. by an interpolation buffer or renderer).
func (m *ClientManager) All() map[LocalEntityKey]Entity {
	return m.entities
}

// ApplyBlock decodes an Entity block (u8 count, then count × (u8 kind,
// u16 BE key, kind-specific bytes)) from r, applying each message to the
// local map in order and returning the application-facing notifications.
// r must be positioned at the block's leading count byte; on return it
// is positioned just past the block's last entry, ready for the caller
// to read the next manager block from the same packet body.
//
// An Entity item carries no per-item length prefix (spec.md §6: unlike
// Events, whose explicit length makes an unknown naia_id safe to skip),
// so an unrecognized Create naia_id cannot be skipped without losing
// track of where the next item starts. It is therefore treated as a
// malformed block and aborts the rest of it, rather than being silently
// dropped the way an unknown event is.
func (m *ClientManager) ApplyBlock(r *bytes.Reader, registry Registry) ([]ClientMessage, error) {
	count, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("entity: reading count: %w", err)
	}

	var out []ClientMessage
	for i := byte(0); i < count; i++ {
		msg, ok, err := m.readOne(r, registry)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// readOne decodes one wire entity message (u8 kind, u16 BE key, then
// kind-specific payload) from r and applies it to the local map. A
// Delete for a key with no prior Create is out-of-order and is dropped
// (ok=false), per spec.md §4.8 — Create always precedes its
// Updates/Delete because Create is guaranteed and ordered ahead of any
// Update referencing the same key; Delete carries no payload, so
// dropping it does not desynchronize the reader. An out-of-order Update
// has no such escape hatch: its payload has no length prefix, and with
// no existing entity there is no type information to parse (or skip) it
// by, so it is reported as malformed, aborting the rest of the block.
func (m *ClientManager) readOne(r *bytes.Reader, registry Registry) (ClientMessage, bool, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return ClientMessage{}, false, fmt.Errorf("entity: reading kind: %w", err)
	}
	kind := MessageKind(kindByte)

	var key uint16
	if err := binary.Read(r, binary.BigEndian, &key); err != nil {
		return ClientMessage{}, false, fmt.Errorf("entity: reading key: %w", err)
	}
	localKey := LocalEntityKey(key)

	switch kind {
	case KindCreate:
		var naiaID uint16
		if err := binary.Read(r, binary.BigEndian, &naiaID); err != nil {
			return ClientMessage{}, false, fmt.Errorf("entity: reading naia_id: %w", err)
		}
		e, known := registry.CreateEntity(naiaID, r)
		if !known {
			return ClientMessage{}, false, fmt.Errorf("entity: unknown naia_id %d: %w", naiaID, naia.ErrMalformed)
		}
		m.entities[localKey] = e
		return ClientMessage{Kind: KindCreate, Key: localKey, Entity: e}, true, nil

	case KindUpdate:
		existing, ok := m.entities[localKey]
		if !ok {
			return ClientMessage{}, false, fmt.Errorf("entity: out-of-order update for key %d: %w", key, naia.ErrMalformed)
		}
		if err := existing.ReadPartial(r); err != nil {
			return ClientMessage{}, false, fmt.Errorf("entity: applying update: %w", err)
		}
		return ClientMessage{Kind: KindUpdate, Key: localKey, Entity: existing}, true, nil

	case KindDelete:
		existing, ok := m.entities[localKey]
		if !ok {
			logging.Debug("entity: dropping delete for unknown key", zap.Uint16("key", key))
			return ClientMessage{}, false, nil
		}
		delete(m.entities, localKey)
		return ClientMessage{Kind: KindDelete, Key: localKey, Entity: existing}, true, nil

	default:
		return ClientMessage{}, false, fmt.Errorf("entity: unknown message kind %d: %w", kindByte, naia.ErrMalformed)
	}
}
