package conn

import (
	"net"
	"testing"
	"time"

	"github.com/appnet-org/naia/internal/wire"
	"github.com/appnet-org/naia/pkg/demo"
	"github.com/appnet-org/naia/pkg/manifest"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(0, 0)

func testConfig() Config {
	return Config{
		HeartbeatInterval:          100 * time.Millisecond,
		DisconnectionTimeout:       time.Second,
		PingInterval:               200 * time.Millisecond,
		MaxOutgoingPacketSizeBytes: 1400,
	}
}

func TestConnection_NoOutgoingWhenIdle(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	c := New(addr, testConfig(), epoch)
	m := manifest.New()

	_, ok := c.GetOutgoingPacket(m, 1400, epoch)
	require.False(t, ok)
}

func TestConnection_SendsHeartbeatAfterSilence(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	c := New(addr, testConfig(), epoch)
	m := manifest.New()

	later := epoch.Add(150 * time.Millisecond)
	packet, ok := c.GetOutgoingPacket(m, 1400, later)
	require.True(t, ok)

	h, _, err := wire.ReadHeader(packet)
	require.NoError(t, err)
	require.Equal(t, wire.PacketTypeHeartbeat, h.PacketType)
}

func TestConnection_SendsPingBlockWhenDue(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	c := New(addr, testConfig(), epoch)
	m := manifest.New()

	due := epoch.Add(200 * time.Millisecond)
	packet, ok := c.GetOutgoingPacket(m, 1400, due)
	require.True(t, ok)

	_, body, err := wire.ReadHeader(packet)
	require.NoError(t, err)
	require.Equal(t, blockTagPing, body[0])
}

func TestConnection_MarkSentResetsHeartbeatTimer(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	c := New(addr, testConfig(), epoch)

	require.False(t, c.ShouldSendHeartbeat(epoch.Add(50*time.Millisecond)))
	c.MarkSent(epoch.Add(50 * time.Millisecond))
	require.False(t, c.ShouldSendHeartbeat(epoch.Add(100*time.Millisecond)))
	require.True(t, c.ShouldSendHeartbeat(epoch.Add(151*time.Millisecond)))
}

func TestConnection_ShouldDropAfterSilenceTimeout(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	c := New(addr, testConfig(), epoch)

	require.False(t, c.ShouldDrop(epoch.Add(500*time.Millisecond)))
	require.True(t, c.ShouldDrop(epoch.Add(time.Second+time.Millisecond)))
}

func TestConnection_MarkHeardResetsDropTimer(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	c := New(addr, testConfig(), epoch)

	c.MarkHeard(epoch.Add(900 * time.Millisecond))
	require.False(t, c.ShouldDrop(epoch.Add(1800*time.Millisecond)))
}

// TestScenario_ReliableEventRecovery covers S3: a guaranteed event queued
// on one Connection is encoded by GetOutgoingPacket, decoded by a peer
// Connection's ProcessIncomingBody, delivered exactly once, and its
// sent-bucket is cleared once the packet is acknowledged.
func TestScenario_ReliableEventRecovery(t *testing.T) {
	m := manifest.New()
	require.NoError(t, demo.Register(m))

	addrA := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9001}
	addrB := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9002}
	sender := New(addrA, testConfig(), epoch)
	receiver := New(addrB, testConfig(), epoch)

	sender.Event.QueueOutgoing(&demo.ChatEvent{From: "alice", Body: "hi"})

	packet, ok := sender.GetOutgoingPacket(m, 1400, epoch)
	require.True(t, ok)

	header, body, err := wire.ReadHeader(packet)
	require.NoError(t, err)

	require.NoError(t, receiver.ProcessIncomingBody(body, m, epoch))

	require.True(t, receiver.Event.HasIncoming())
	got, ok := receiver.Event.PopIncoming()
	require.True(t, ok)
	chat, ok := got.(*demo.ChatEvent)
	require.True(t, ok)
	require.Equal(t, "alice", chat.From)
	require.Equal(t, "hi", chat.Body)
	require.False(t, receiver.Event.HasIncoming(), "event delivered exactly once")

	// Ack arrives for the packet: its guaranteed event's sent-bucket is
	// cleared, so a later spurious drop notification for the same
	// sequence must not resend it.
	sender.Event.NotifyDelivered(header.PacketSeq)
	sender.Event.NotifyDropped(header.PacketSeq)
	require.False(t, sender.Event.HasOutgoing(), "delivered event must not be resent on a later spurious drop")
}
