package event

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/appnet-org/naia/pkg/logging"
	"github.com/appnet-org/naia/pkg/naia"
	"go.uber.org/zap"
)

// ErrPayloadTooLarge is returned by WriteEvent when an event's
// encoded payload exceeds the 255-byte length-prefix budget. Per spec.md
// §4.3 this is a fatal logic error for that event: it is reported, not
// recovered.
var ErrPayloadTooLarge = fmt.Errorf("event: payload exceeds 255 bytes: %w", naia.ErrOverflow)

// Registry is the subset of Manifest that EventManager needs: mapping a
// registered event's Go TypeID to its stable wire naia_id and back, and
// constructing a concrete Event from a naia_id + payload.
type Registry interface {
	EventNaiaID(t TypeID) (uint16, bool)
	CreateEvent(naiaID uint16, payload []byte) (Event, bool)
}

// Manager implements the outgoing/incoming event queues and per-packet
// in-flight bookkeeping from spec.md §4.3.
type Manager struct {
	queuedOutgoing []Event
	queuedIncoming []Event
	sentEvents     map[uint16][]Event
}

// NewManager creates an empty EventManager.
func NewManager() *Manager {
	return &Manager{
		sentEvents: make(map[uint16][]Event),
	}
}

// QueueOutgoing clones e and appends it to the outgoing FIFO's tail.
func (m *Manager) QueueOutgoing(e Event) {
	m.queuedOutgoing = append(m.queuedOutgoing, e.Clone())
}

// HasOutgoing reports whether any event is queued for transmission.
func (m *Manager) HasOutgoing() bool {
	return len(m.queuedOutgoing) > 0
}

// PopOutgoing removes and returns the head of the outgoing FIFO. If the
// event is guaranteed, it is also appended to packetSeq's sent-events
// bucket so a later drop notification can requeue it.
func (m *Manager) PopOutgoing(packetSeq uint16) (Event, bool) {
	if len(m.queuedOutgoing) == 0 {
		return nil, false
	}
	e := m.queuedOutgoing[0]
	m.queuedOutgoing = m.queuedOutgoing[1:]

	if e.IsGuaranteed() {
		m.sentEvents[packetSeq] = append(m.sentEvents[packetSeq], e)
	}
	return e, true
}

// UnpopOutgoing is called when the packet writer could not fit e after it
// was popped for packetSeq: e is pushed back to the head of the outgoing
// FIFO, and if guaranteed, removed from packetSeq's sent-events bucket
// (deleting the bucket if it becomes empty). This restores exactly the
// state that existed immediately before the matching PopOutgoing call.
func (m *Manager) UnpopOutgoing(packetSeq uint16, e Event) {
	if e.IsGuaranteed() {
		bucket := m.sentEvents[packetSeq]
		if n := len(bucket); n > 0 {
			bucket = bucket[:n-1]
		}
		if len(bucket) == 0 {
			delete(m.sentEvents, packetSeq)
		} else {
			m.sentEvents[packetSeq] = bucket
		}
	}

	m.queuedOutgoing = append([]Event{e}, m.queuedOutgoing...)
}

// NotifyDelivered drops packetSeq's sent-events bucket: those events reached
// the peer and no longer need tracking. Implements ack.Notifier.
func (m *Manager) NotifyDelivered(packetSeq uint16) {
	delete(m.sentEvents, packetSeq)
}

// NotifyDropped requeues every event in packetSeq's bucket to the tail of
// the outgoing FIFO, then drops the bucket. Implements ack.Notifier.
func (m *Manager) NotifyDropped(packetSeq uint16) {
	bucket, ok := m.sentEvents[packetSeq]
	if !ok {
		return
	}
	for _, e := range bucket {
		m.queuedOutgoing = append(m.queuedOutgoing, e)
	}
	delete(m.sentEvents, packetSeq)
	logging.Debug("event: requeued dropped packet's guaranteed events",
		zap.Uint16("packetSeq", packetSeq), zap.Int("count", len(bucket)))
}

// HasIncoming reports whether any event is waiting to be handed to the
// application.
func (m *Manager) HasIncoming() bool {
	return len(m.queuedIncoming) > 0
}

// PopIncoming removes and returns the head of the incoming FIFO.
func (m *Manager) PopIncoming() (Event, bool) {
	if len(m.queuedIncoming) == 0 {
		return nil, false
	}
	e := m.queuedIncoming[0]
	m.queuedIncoming = m.queuedIncoming[1:]
	return e, true
}

// ProcessIncoming reads an Event block (u8 count, then count ×
// (u16 naia_id, u8 len, len bytes)) from r and pushes each successfully
// decoded event onto the incoming FIFO. r must be positioned at the
// block's leading count byte; on return it is positioned just past the
// block's last entry, ready for the caller to read the next manager
// block from the same packet body. Unknown naia_ids are silently
// skipped per spec.md §7's forward-compatibility escape hatch. A malformed
// block returns an error; the caller drops the packet, per spec.md §7, it
// does not close the connection.
func (m *Manager) ProcessIncoming(r *bytes.Reader, registry Registry) error {
	count, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("event: reading count: %w", err)
	}

	for i := byte(0); i < count; i++ {
		var naiaID uint16
		if err := binary.Read(r, binary.BigEndian, &naiaID); err != nil {
			return fmt.Errorf("event: reading naia_id: %w", err)
		}
		payloadLen, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("event: reading payload length: %w", err)
		}
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("event: reading payload: %w", err)
		}

		e, ok := registry.CreateEvent(naiaID, payload)
		if !ok {
			logging.Debug("event: skipping unknown naia_id", zap.Uint16("naiaID", naiaID))
			continue
		}
		m.queuedIncoming = append(m.queuedIncoming, e)
	}

	return nil
}

// WriteEvent attempts to append event e's wire encoding (naia_id, length,
// payload) to buf. It returns the updated buffer and true if e fit within
// maxLen; otherwise it returns buf unchanged and false, signaling the
// caller to stop draining the outgoing queue for this packet.
func WriteEvent(buf []byte, maxLen int, registry Registry, e Event) ([]byte, bool, error) {
	var payload bytes.Buffer
	if err := e.Write(&payload); err != nil {
		return buf, false, fmt.Errorf("event: encoding payload: %w", err)
	}
	if payload.Len() > 255 {
		return buf, false, ErrPayloadTooLarge
	}

	naiaID, ok := registry.EventNaiaID(e.TypeID())
	if !ok {
		return buf, false, fmt.Errorf("event: type %d not registered in manifest", e.TypeID())
	}

	entrySize := 2 + 1 + payload.Len()
	if len(buf)+entrySize > maxLen {
		return buf, false, nil
	}

	var entry bytes.Buffer
	binary.Write(&entry, binary.BigEndian, naiaID)
	entry.WriteByte(byte(payload.Len()))
	entry.Write(payload.Bytes())

	return append(buf, entry.Bytes()...), true, nil
}
