package demo

import (
	"bytes"
	"testing"

	"github.com/appnet-org/naia/pkg/manifest"
	"github.com/stretchr/testify/require"
)

func TestChatEvent_RoundTrip(t *testing.T) {
	e := &ChatEvent{From: "alice", Body: "hello there"}

	var buf bytes.Buffer
	require.NoError(t, e.Write(&buf))

	got := &ChatEvent{}
	require.NoError(t, got.Read(&buf))
	require.Equal(t, e, got)
}

func TestInputEvent_RoundTrip(t *testing.T) {
	e := &InputEvent{Tick: 4242, Buttons: 0b1010_0001}

	var buf bytes.Buffer
	require.NoError(t, e.Write(&buf))

	got := &InputEvent{}
	require.NoError(t, got.Read(&buf))
	require.Equal(t, e, got)
}

func TestPlayerEntity_FullRoundTrip(t *testing.T) {
	e := &PlayerEntity{X: 1.5, Y: -2.5, VX: 0.25, VY: 0, Name: "p1"}

	var buf bytes.Buffer
	require.NoError(t, e.Write(&buf))

	got := &PlayerEntity{}
	require.NoError(t, got.Read(&buf))
	require.Equal(t, e, got)
}

func TestPlayerEntity_PartialUpdateLeavesNameUntouched(t *testing.T) {
	live := &PlayerEntity{X: 0, Y: 0, VX: 1, VY: 1, Name: "p1"}

	diff := appendFloat4(nil, 10, 20, 0, 0)
	require.NoError(t, live.ReadPartial(bytes.NewReader(diff)))

	require.Equal(t, float32(10), live.X)
	require.Equal(t, float32(20), live.Y)
	require.Equal(t, "p1", live.Name)
}

func TestPlayerEntity_InterpolateLerpsFields(t *testing.T) {
	from := &PlayerEntity{X: 0, Y: 0, Name: "p1"}
	live := &PlayerEntity{X: 10, Y: 20, Name: "p1"}

	mid := live.Interpolate(from, 0.5).(*PlayerEntity)
	require.InDelta(t, 5, mid.X, 0.001)
	require.InDelta(t, 10, mid.Y, 0.001)
	require.Equal(t, "p1", mid.Name)
}

func TestRegister_AssignsDistinctNaiaIDs(t *testing.T) {
	m := manifest.New()
	require.NoError(t, Register(m))

	id, ok := m.EventNaiaID(TypeChat)
	require.True(t, ok)
	require.Equal(t, NaiaIDChat, id)

	eid, ok := m.EntityNaiaID(TypePlayer)
	require.True(t, ok)
	require.Equal(t, NaiaIDPlayer, eid)
}
