package entity

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageKind identifies which of Create/Update/Delete a wire entity
// message carries.
type MessageKind uint8

const (
	KindCreate MessageKind = iota
	KindUpdate
	KindDelete
)

// Registry is the subset of Manifest that entity replication needs:
// mapping a registered entity's Go TypeID to its wire naia_id and back. An
// Entity block has no per-item length prefix (spec.md §6), so
// CreateEntity must read exactly its type's encoding from r and no more,
// leaving r positioned for the next item in the block.
type Registry interface {
	EntityNaiaID(t TypeID) (uint16, bool)
	CreateEntity(naiaID uint16, r io.Reader) (Entity, bool)
}

// pendingMessage is one queued Create/Update/Delete awaiting transmission.
type pendingMessage struct {
	kind MessageKind
	key  LocalEntityKey
	// snapshot is the entity state to diff/encode against, valid for
	// Create (full state) and Update (diffed against lastSent).
	snapshot Entity
}

// ServerManager tracks, per client, which entities are in scope and what
// Create/Update/Delete messages are pending transmission, per spec.md
// §4.7. One ServerManager exists per client connection.
type ServerManager struct {
	nextKey LocalEntityKey

	// scope maps a LocalEntityKey to the live application entity
	// currently in that client's scope.
	scope map[LocalEntityKey]Entity
	// keysByEntity supports Remove/Update lookups by application identity
	// without the caller needing to track the assigned key.
	keysByEntity map[Entity]LocalEntityKey

	// lastSent holds the most recently transmitted full/diffed snapshot
	// for each in-scope key, used as the tick-boundary diff baseline.
	lastSent map[LocalEntityKey]Entity

	pending []pendingMessage

	// sentMessages tracks the guaranteed (Create/Delete) messages written
	// into a given outgoing packet, keyed by that packet's sequence. It is
	// the entity-replication analogue of event.Manager's sentEvents bucket:
	// NotifyDelivered drops the bucket, NotifyDropped requeues it. Update
	// messages are never added here — they are unreliable and simply
	// superseded by the next Tick's diff.
	sentMessages map[uint16][]pendingMessage
}

// NewServerManager creates an empty per-client entity scope.
func NewServerManager() *ServerManager {
	return &ServerManager{
		scope:        make(map[LocalEntityKey]Entity),
		keysByEntity: make(map[Entity]LocalEntityKey),
		lastSent:     make(map[LocalEntityKey]Entity),
		sentMessages: make(map[uint16][]pendingMessage),
	}
}

// allocateKey returns the next LocalEntityKey, wrapping around uint16 and
// skipping any key still in scope, per spec.md §3's reuse-after-wrap
// invariant.
func (m *ServerManager) allocateKey() LocalEntityKey {
	for {
		k := m.nextKey
		m.nextKey++
		if _, inUse := m.scope[k]; !inUse {
			return k
		}
	}
}

// AddEntity brings e into this client's scope, assigning it a fresh
// LocalEntityKey and queuing a guaranteed Create message.
func (m *ServerManager) AddEntity(e Entity) LocalEntityKey {
	k := m.allocateKey()
	m.scope[k] = e
	m.keysByEntity[e] = k
	m.lastSent[k] = e.Clone()
	m.pending = append(m.pending, pendingMessage{kind: KindCreate, key: k, snapshot: e.Clone()})
	return k
}

// RemoveEntity drops e from scope (if present) and queues a guaranteed
// Delete message.
func (m *ServerManager) RemoveEntity(e Entity) {
	k, ok := m.keysByEntity[e]
	if !ok {
		return
	}
	delete(m.scope, k)
	delete(m.keysByEntity, e)
	delete(m.lastSent, k)
	m.pending = append(m.pending, pendingMessage{kind: KindDelete, key: k})
}

// InScope reports whether e currently has a LocalEntityKey assigned.
func (m *ServerManager) InScope(e Entity) (LocalEntityKey, bool) {
	k, ok := m.keysByEntity[e]
	return k, ok
}

// Tick diffs every in-scope entity against its last-sent snapshot and
// queues an unreliable Update message for anything that changed. Call
// once per server tick, per spec.md §4.10.
func (m *ServerManager) Tick() {
	for k, live := range m.scope {
		last, ok := m.lastSent[k]
		if ok && live.Equals(last) {
			continue
		}
		m.pending = append(m.pending, pendingMessage{kind: KindUpdate, key: k, snapshot: live.Clone()})
		m.lastSent[k] = live.Clone()
	}
}

// HasPending reports whether any Create/Update/Delete message awaits
// transmission.
func (m *ServerManager) HasPending() bool {
	return len(m.pending) > 0
}

// WriteNext encodes and appends the next pending message to buf, provided
// it fits within maxLen. Create and Delete messages are returned with
// guaranteed=true and recorded into packetSeq's sent-message bucket so a
// later NotifyDropped(packetSeq) retransmits them; Update messages are
// guaranteed=false and are dropped on send failure, superseded by the next
// Tick's Update for the same key. Returns ok=false without consuming the
// pending message if it would not fit, so the caller can start a new
// packet.
func (m *ServerManager) WriteNext(buf []byte, maxLen int, registry Registry, packetSeq uint16) (out []byte, guaranteed bool, ok bool, err error) {
	if len(m.pending) == 0 {
		return buf, false, false, nil
	}
	msg := m.pending[0]

	var body bytes.Buffer
	body.WriteByte(byte(msg.kind))
	binary.Write(&body, binary.BigEndian, uint16(msg.key))

	switch msg.kind {
	case KindCreate:
		naiaID, known := registry.EntityNaiaID(msg.snapshot.TypeID())
		if !known {
			return buf, false, false, fmt.Errorf("entity: type %d not registered in manifest", msg.snapshot.TypeID())
		}
		binary.Write(&body, binary.BigEndian, naiaID)
		if err := msg.snapshot.Write(&body); err != nil {
			return buf, false, false, fmt.Errorf("entity: encoding create payload: %w", err)
		}
	case KindUpdate:
		if err := msg.snapshot.Write(&body); err != nil {
			return buf, false, false, fmt.Errorf("entity: encoding update payload: %w", err)
		}
	case KindDelete:
		// no payload
	}

	if len(buf)+body.Len() > maxLen {
		return buf, false, false, nil
	}

	m.pending = m.pending[1:]
	guaranteed = msg.kind != KindUpdate
	if guaranteed {
		m.sentMessages[packetSeq] = append(m.sentMessages[packetSeq], msg)
	}
	return append(buf, body.Bytes()...), guaranteed, true, nil
}

// NotifyDelivered drops packetSeq's sent-message bucket: its guaranteed
// Create/Delete messages reached the peer and no longer need tracking.
// Implements ack.Notifier.
func (m *ServerManager) NotifyDelivered(packetSeq uint16) {
	delete(m.sentMessages, packetSeq)
}

// NotifyDropped requeues every guaranteed message in packetSeq's bucket to
// the tail of the pending queue, then drops the bucket. Because keys are
// never reused while in scope, re-sending a stale message for a key that
// was subsequently removed and re-added is harmless: the key would differ.
// Implements ack.Notifier.
func (m *ServerManager) NotifyDropped(packetSeq uint16) {
	bucket, ok := m.sentMessages[packetSeq]
	if !ok {
		return
	}
	m.pending = append(m.pending, bucket...)
	delete(m.sentMessages, packetSeq)
}
