package entity

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/appnet-org/naia/pkg/naia"
	"github.com/stretchr/testify/require"
)

const typePoint TypeID = 1

// pointEntity is a minimal two-field entity used to exercise the
// server/client managers without pulling in the demo package's protowire
// encoding.
type pointEntity struct {
	X, Y int32
}

func (e *pointEntity) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, *e)
}

func (e *pointEntity) Read(r io.Reader) error {
	return binary.Read(r, binary.BigEndian, e)
}

func (e *pointEntity) ReadPartial(r io.Reader) error {
	return e.Read(r)
}

func (e *pointEntity) TypeID() TypeID { return typePoint }

func (e *pointEntity) Clone() Entity {
	cp := *e
	return &cp
}

func (e *pointEntity) Equals(other Entity) bool {
	o, ok := other.(*pointEntity)
	return ok && *e == *o
}

func (e *pointEntity) Interpolate(from Entity, frac float64) Entity {
	o := from.(*pointEntity)
	return &pointEntity{
		X: o.X + int32(float64(e.X-o.X)*frac),
		Y: o.Y + int32(float64(e.Y-o.Y)*frac),
	}
}

type testRegistry struct{}

func (testRegistry) EntityNaiaID(t TypeID) (uint16, bool) {
	if t == typePoint {
		return 200, true
	}
	return 0, false
}

func (testRegistry) CreateEntity(naiaID uint16, r io.Reader) (Entity, bool) {
	if naiaID != 200 {
		return nil, false
	}
	e := &pointEntity{}
	_ = e.Read(r)
	return e, true
}

// applyOne is a small test helper: it wraps a single already-encoded
// entity message as a one-item block (leading count=1) and runs it
// through ApplyBlock, returning the lone resulting message (if any).
func applyOne(cm *ClientManager, body []byte, registry Registry) (ClientMessage, bool, error) {
	block := append([]byte{1}, body...)
	msgs, err := cm.ApplyBlock(bytes.NewReader(block), registry)
	if err != nil {
		return ClientMessage{}, false, err
	}
	if len(msgs) == 0 {
		return ClientMessage{}, false, nil
	}
	return msgs[0], true, nil
}

func TestServerManager_AddEntityQueuesGuaranteedCreate(t *testing.T) {
	sm := NewServerManager()
	e := &pointEntity{X: 1, Y: 2}

	key := sm.AddEntity(e)
	require.True(t, sm.HasPending())

	buf, guaranteed, ok, err := sm.WriteNext(nil, 1400, testRegistry{}, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, guaranteed)
	require.False(t, sm.HasPending())

	cm := NewClientManager()
	msg, ok, err := applyOne(cm, buf, testRegistry{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, KindCreate, msg.Kind)
	require.Equal(t, key, msg.Key)
	require.Equal(t, e, msg.Entity)
}

func TestServerManager_TickSkipsUnchangedEntities(t *testing.T) {
	sm := NewServerManager()
	e := &pointEntity{X: 1, Y: 2}
	sm.AddEntity(e)
	sm.pending = nil // drain the Create for this test's purposes

	sm.Tick()
	require.False(t, sm.HasPending(), "no Update should be queued when nothing changed")

	e.X = 99
	sm.Tick()
	require.True(t, sm.HasPending())

	buf, guaranteed, ok, err := sm.WriteNext(nil, 1400, testRegistry{}, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, guaranteed, "updates are unreliable")
	_ = buf
}

func TestServerManager_RemoveEntityQueuesDelete(t *testing.T) {
	sm := NewServerManager()
	e := &pointEntity{X: 1, Y: 2}
	key := sm.AddEntity(e)
	sm.pending = nil

	sm.RemoveEntity(e)
	require.True(t, sm.HasPending())

	buf, guaranteed, ok, err := sm.WriteNext(nil, 1400, testRegistry{}, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, guaranteed)

	cm := NewClientManager()
	cm.entities[key] = e.Clone()
	msg, ok, err := applyOne(cm, buf, testRegistry{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, KindDelete, msg.Kind)
	_, stillPresent := cm.Get(key)
	require.False(t, stillPresent)
}

func TestServerManager_KeyAllocationWrapsAtMax(t *testing.T) {
	sm := NewServerManager()
	sm.nextKey = 65535
	a := &pointEntity{X: 1}
	keyA := sm.AddEntity(a) // consumes 65535, nextKey wraps to 0
	require.Equal(t, LocalEntityKey(65535), keyA)

	b := &pointEntity{X: 2}
	keyB := sm.AddEntity(b)
	require.Equal(t, LocalEntityKey(0), keyB)
}

func TestClientManager_UpdateBeforeCreateDropped(t *testing.T) {
	cm := NewClientManager()

	body := []byte{byte(KindUpdate), 0, 7}
	body = append(body, make([]byte, 8)...) // encoded pointEntity payload

	// Unlike an unknown Create naia_id or a Delete for an unknown key, an
	// out-of-order Update has no length prefix and no existing entity to
	// size it by, so it cannot be safely skipped: it is reported as
	// malformed rather than silently dropped.
	_, _, err := applyOne(cm, body, testRegistry{})
	require.ErrorIs(t, err, naia.ErrMalformed)
}

func TestClientManager_WriteReadRoundTrip(t *testing.T) {
	e := &pointEntity{X: 10, Y: -5}
	cm := NewClientManager()
	cm.entities[3] = e

	buf, guaranteed, ok, err := (&ServerManager{pending: []pendingMessage{{kind: KindUpdate, key: 3, snapshot: &pointEntity{X: 11, Y: -5}}}}).WriteNext(nil, 1400, testRegistry{}, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, guaranteed)

	msg, ok, err := applyOne(cm, buf, testRegistry{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, KindUpdate, msg.Kind)
	require.Equal(t, int32(11), e.X)
}

func TestServerManager_NotifyDroppedRequeuesGuaranteed(t *testing.T) {
	sm := NewServerManager()
	e := &pointEntity{X: 1, Y: 2}
	sm.AddEntity(e)

	_, guaranteed, ok, err := sm.WriteNext(nil, 1400, testRegistry{}, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, guaranteed)
	require.False(t, sm.HasPending())

	sm.NotifyDropped(7)
	require.True(t, sm.HasPending(), "a dropped guaranteed message must be requeued")

	sm.NotifyDropped(7)
	require.True(t, sm.HasPending(), "notifying an already-cleared bucket is a no-op, not a second requeue")
}

func TestServerManager_NotifyDeliveredDropsBucketWithoutRequeue(t *testing.T) {
	sm := NewServerManager()
	e := &pointEntity{X: 1, Y: 2}
	sm.AddEntity(e)

	_, _, ok, err := sm.WriteNext(nil, 1400, testRegistry{}, 3)
	require.NoError(t, err)
	require.True(t, ok)

	sm.NotifyDelivered(3)
	sm.NotifyDropped(3)
	require.False(t, sm.HasPending(), "a delivered message's bucket must not be requeued on a later spurious drop")
}
