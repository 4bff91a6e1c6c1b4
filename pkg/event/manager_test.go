package event

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	typeGuaranteed TypeID = 1
	typeUnreliable TypeID = 2
)

// stringEvent is a minimal guaranteed/unreliable test event carrying a
// short string payload.
type stringEvent struct {
	typeID     TypeID
	guaranteed bool
	Value      string
}

func (e *stringEvent) Write(w io.Writer) error {
	_, err := w.Write([]byte(e.Value))
	return err
}

func (e *stringEvent) Read(r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	e.Value = string(buf)
	return nil
}

func (e *stringEvent) TypeID() TypeID    { return e.typeID }
func (e *stringEvent) IsGuaranteed() bool { return e.guaranteed }
func (e *stringEvent) Clone() Event {
	cp := *e
	return &cp
}

type testRegistry struct{}

func (testRegistry) EventNaiaID(t TypeID) (uint16, bool) {
	switch t {
	case typeGuaranteed:
		return 100, true
	case typeUnreliable:
		return 101, true
	default:
		return 0, false
	}
}

func (testRegistry) CreateEvent(naiaID uint16, payload []byte) (Event, bool) {
	switch naiaID {
	case 100:
		e := &stringEvent{typeID: typeGuaranteed, guaranteed: true}
		_ = e.Read(bytes.NewReader(payload))
		return e, true
	case 101:
		e := &stringEvent{typeID: typeUnreliable, guaranteed: false}
		_ = e.Read(bytes.NewReader(payload))
		return e, true
	default:
		return nil, false
	}
}

func TestEventManager_QueueAndPopOrderingFIFO(t *testing.T) {
	m := NewManager()
	m.QueueOutgoing(&stringEvent{typeID: typeGuaranteed, guaranteed: true, Value: "a"})
	m.QueueOutgoing(&stringEvent{typeID: typeGuaranteed, guaranteed: true, Value: "b"})

	e1, ok := m.PopOutgoing(0)
	require.True(t, ok)
	require.Equal(t, "a", e1.(*stringEvent).Value)

	e2, ok := m.PopOutgoing(0)
	require.True(t, ok)
	require.Equal(t, "b", e2.(*stringEvent).Value)

	_, ok = m.PopOutgoing(0)
	require.False(t, ok)
}

// TestEventManager_PopUnpopRestoresState covers invariant 4: state after
// pop;unpop equals state immediately before the pop.
func TestEventManager_PopUnpopRestoresState(t *testing.T) {
	m := NewManager()
	m.QueueOutgoing(&stringEvent{typeID: typeGuaranteed, guaranteed: true, Value: "hello"})

	require.True(t, m.HasOutgoing())
	require.Empty(t, m.sentEvents)

	e, ok := m.PopOutgoing(42)
	require.True(t, ok)
	require.False(t, m.HasOutgoing())
	require.Len(t, m.sentEvents[42], 1)

	m.UnpopOutgoing(42, e)

	require.True(t, m.HasOutgoing())
	require.NotContains(t, m.sentEvents, uint16(42))

	e2, ok := m.PopOutgoing(42)
	require.True(t, ok)
	require.Equal(t, "hello", e2.(*stringEvent).Value)
}

func TestEventManager_UnreliableEventNotTracked(t *testing.T) {
	m := NewManager()
	m.QueueOutgoing(&stringEvent{typeID: typeUnreliable, guaranteed: false, Value: "ping"})

	_, ok := m.PopOutgoing(7)
	require.True(t, ok)
	require.NotContains(t, m.sentEvents, uint16(7), "non-guaranteed events are fire-and-forget")
}

func TestEventManager_NotifyDeliveredDropsBucket(t *testing.T) {
	m := NewManager()
	m.QueueOutgoing(&stringEvent{typeID: typeGuaranteed, guaranteed: true, Value: "x"})
	m.PopOutgoing(1)
	require.Len(t, m.sentEvents[1], 1)

	m.NotifyDelivered(1)
	require.NotContains(t, m.sentEvents, uint16(1))
}

func TestEventManager_NotifyDroppedRequeues(t *testing.T) {
	m := NewManager()
	m.QueueOutgoing(&stringEvent{typeID: typeGuaranteed, guaranteed: true, Value: "x"})
	m.PopOutgoing(1)
	require.False(t, m.HasOutgoing())

	m.NotifyDropped(1)

	require.True(t, m.HasOutgoing())
	require.NotContains(t, m.sentEvents, uint16(1))

	e, ok := m.PopOutgoing(2)
	require.True(t, ok)
	require.Equal(t, "x", e.(*stringEvent).Value)
}

func TestEventManager_WriteEventRejectsOversizedPayload(t *testing.T) {
	big := &stringEvent{typeID: typeGuaranteed, guaranteed: true, Value: string(make([]byte, 256))}
	_, _, err := WriteEvent(nil, 1400, testRegistry{}, big)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestEventManager_WriteEventStopsAtMTUBudget(t *testing.T) {
	e := &stringEvent{typeID: typeGuaranteed, guaranteed: true, Value: "hello"}
	buf, ok, err := WriteEvent(nil, 3, testRegistry{}, e)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, buf)
}

// TestEventManager_RoundTrip covers invariant 3: writing an event and
// reading it back through the manifest-equivalent registry yields an
// observationally equal event.
func TestEventManager_RoundTrip(t *testing.T) {
	reg := testRegistry{}
	original := &stringEvent{typeID: typeGuaranteed, guaranteed: true, Value: "round-trip"}

	buf, ok, err := WriteEvent(nil, 1400, reg, original)
	require.NoError(t, err)
	require.True(t, ok)

	// Wrap in a one-event block: count=1, then the already-encoded entry.
	block := append([]byte{1}, buf...)

	m := NewManager()
	require.NoError(t, m.ProcessIncoming(bytes.NewReader(block), reg))
	require.True(t, m.HasIncoming())

	got, ok := m.PopIncoming()
	require.True(t, ok)
	require.Equal(t, original.Value, got.(*stringEvent).Value)
}

func TestEventManager_ProcessIncomingSkipsUnknownNaiaID(t *testing.T) {
	reg := testRegistry{}
	// One entry with an unregistered naia_id (999), payload length 0.
	block := []byte{1, 0x03, 0xE7, 0}

	m := NewManager()
	require.NoError(t, m.ProcessIncoming(bytes.NewReader(block), reg))
	require.False(t, m.HasIncoming())
}
