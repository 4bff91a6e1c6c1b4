// Package conn implements the per-peer Connection described in spec.md
// §4.5: AckManager + EventManager + PingManager composition plus the
// heartbeat/drop liveness timers and the get_outgoing_packet algorithm.
// Grounded in shape on the teacher's internal/transport/timer.go
// TimerManager (interval + next-fire comparison), adapted per spec.md §5
// to a pure caller-driven `now` parameter instead of a goroutine loop —
// see DESIGN.md Open Question #1.
package conn

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/appnet-org/naia/internal/ack"
	"github.com/appnet-org/naia/internal/wire"
	"github.com/appnet-org/naia/pkg/entity"
	"github.com/appnet-org/naia/pkg/event"
	"github.com/appnet-org/naia/pkg/manifest"
	"github.com/appnet-org/naia/pkg/naia"
	"github.com/appnet-org/naia/pkg/ping"
)

// Manager tags identifying which collaborator a Data-packet block belongs
// to, per spec.md §6: "Manager tags: 0=Event, 1=Entity, 2=Ping."
const (
	blockTagEvent  byte = 0
	blockTagEntity byte = 1
	blockTagPing   byte = 2
)

// timer is a logical interval timer: it "rings" once now has reached
// deadline, and Reset rearms it relative to a fresh now.
type timer struct {
	interval time.Duration
	deadline time.Time
}

func newTimer(interval time.Duration, now time.Time) timer {
	return timer{interval: interval, deadline: now.Add(interval)}
}

func (t *timer) ringing(now time.Time) bool {
	return !now.Before(t.deadline)
}

func (t *timer) reset(now time.Time) {
	t.deadline = now.Add(t.interval)
}

// Connection holds all per-peer protocol state: the wire address, ACK
// bookkeeping, reliable/unreliable event queues, RTT/jitter estimation,
// and the liveness timers, per spec.md §3's Connection definition.
// EntityOut/EntityIn are optional and mutually exclusive in practice: a
// server-side Connection (one per client) populates EntityOut to stream
// that client's scope; a client-side Connection populates EntityIn to
// apply the server's stream.
type Connection struct {
	RemoteAddr *net.UDPAddr

	Ack   *ack.Manager
	Event *event.Manager
	Ping  *ping.Manager

	EntityOut *entity.ServerManager
	EntityIn  *entity.ClientManager

	// EntityEvents accumulates the client-facing Create/Update/Delete
	// notifications produced by the most recent ProcessIncomingBody call
	// on a client-side Connection (EntityIn != nil). The owning Client
	// drains it after each Receive step; it is reset at the start of each
	// ProcessIncomingBody call.
	EntityEvents []entity.ClientMessage

	heartbeat timer
	drop      timer

	lastHeard time.Time
}

// Config bundles the interval parameters a Connection needs at
// construction, per spec.md §9's parameter table.
type Config struct {
	HeartbeatInterval          time.Duration
	DisconnectionTimeout       time.Duration
	PingInterval               time.Duration
	PingSampleSize             int
	MaxOutgoingPacketSizeBytes int
}

// New creates a Connection for a peer at addr, arming its liveness timers
// relative to now.
func New(addr *net.UDPAddr, cfg Config, now time.Time) *Connection {
	pingMgr := ping.NewManager(cfg.PingInterval, now)
	pingMgr.SetSampleSize(cfg.PingSampleSize)
	return &Connection{
		RemoteAddr: addr,
		Ack:        ack.NewManager(),
		Event:      event.NewManager(),
		Ping:       pingMgr,
		heartbeat:  newTimer(cfg.HeartbeatInterval, now),
		drop:       newTimer(cfg.DisconnectionTimeout, now),
		lastHeard:  now,
	}
}

// MarkSent records that a packet was just transmitted: it resets the
// heartbeat timer (more outbound traffic postpones the next heartbeat).
func (c *Connection) MarkSent(now time.Time) {
	c.heartbeat.reset(now)
}

// MarkHeard records that a packet was just received from this peer: it
// resets the drop timer.
func (c *Connection) MarkHeard(now time.Time) {
	c.lastHeard = now
	c.drop.reset(now)
}

// ShouldSendHeartbeat reports whether the connection has gone
// heartbeat_interval without sending anything else.
func (c *Connection) ShouldSendHeartbeat(now time.Time) bool {
	return c.heartbeat.ringing(now)
}

// ShouldDrop reports whether this peer has been silent longer than
// disconnection_timeout_duration.
func (c *Connection) ShouldDrop(now time.Time) bool {
	return c.drop.ringing(now)
}

// connectionNotifier fans an ack.Manager delivered/dropped notification out
// to every per-packet tracking table a Connection maintains: the
// EventManager's guaranteed-event buckets, and — on a server-side
// Connection — the EntityManager's guaranteed Create/Delete buckets.
type connectionNotifier struct {
	event     *event.Manager
	entityOut *entity.ServerManager
}

func (n connectionNotifier) NotifyDelivered(seq uint16) {
	n.event.NotifyDelivered(seq)
	if n.entityOut != nil {
		n.entityOut.NotifyDelivered(seq)
	}
}

func (n connectionNotifier) NotifyDropped(seq uint16) {
	n.event.NotifyDropped(seq)
	if n.entityOut != nil {
		n.entityOut.NotifyDropped(seq)
	}
}

// HandleIncomingHeader folds an incoming StandardHeader into the ack
// manager (delivering/dropping our own in-flight packets) and resets the
// drop timer.
func (c *Connection) HandleIncomingHeader(h wire.StandardHeader, now time.Time) {
	c.Ack.ProcessIncomingHeader(h, connectionNotifier{event: c.Event, entityOut: c.EntityOut})
	c.MarkHeard(now)
}

// writeCountedBlock appends a manager block to body: tag, then a u8 count
// of however many items fit from items, then the items' bytes
// themselves, per spec.md §6's Event/Entity block framing (the block
// carries no outer length — only a leading count — so individual items
// must be self-delimiting on read). A no-op if count is 0.
func writeCountedBlock(body []byte, tag byte, items []byte, count int) []byte {
	if count == 0 {
		return body
	}
	body = append(body, tag, byte(count))
	return append(body, items...)
}

// GetOutgoingPacket implements spec.md §4.5's algorithm: it returns the
// next packet to send, or (nil, false) if there is nothing to send (no
// queued events, no entity traffic, no ping due, and no heartbeat due).
func (c *Connection) GetOutgoingPacket(m *manifest.Manifest, maxLen int, now time.Time) ([]byte, bool) {
	pingDue := c.Ping.ShouldWrite(now)
	hasEntityWork := c.EntityOut != nil && c.EntityOut.HasPending()
	if !c.Event.HasOutgoing() && !hasEntityWork && !pingDue && !c.ShouldSendHeartbeat(now) {
		return nil, false
	}

	seq := c.Ack.NextPacketIndex()
	ackSeq, ackBitfield := c.Ack.LocalAckState()
	budget := maxLen - wire.HeaderSize

	var body []byte
	if pingDue {
		body = append(body, blockTagPing)
		body = append(body, c.Ping.WritePing(now)...)
	}

	if c.EntityOut != nil {
		var items []byte
		count := 0
		itemBudget := budget - len(body) - 2
		for count < 255 && c.EntityOut.HasPending() {
			next, _, ok, err := c.EntityOut.WriteNext(items, itemBudget, m, seq)
			if err != nil || !ok {
				break
			}
			items = next
			count++
		}
		body = writeCountedBlock(body, blockTagEntity, items, count)
	}

	{
		var items []byte
		count := 0
		itemBudget := budget - len(body) - 2
		for count < 255 && c.Event.HasOutgoing() {
			e, _ := c.Event.PopOutgoing(seq)
			next, ok, err := event.WriteEvent(items, itemBudget, m, e)
			if err != nil || !ok {
				c.Event.UnpopOutgoing(seq, e)
				break
			}
			items = next
			count++
		}
		body = writeCountedBlock(body, blockTagEvent, items, count)
	}

	packetType := wire.PacketTypeData
	if len(body) == 0 {
		// Nothing but liveness to report: a minimal keepalive packet.
		packetType = wire.PacketTypeHeartbeat
	}

	header := wire.StandardHeader{
		PacketType:  packetType,
		PacketSeq:   seq,
		AckSeq:      ackSeq,
		AckBitfield: ackBitfield,
	}
	packet := wire.WriteHeader(header, body)

	c.Ack.MarkSent(seq)
	c.MarkSent(now)

	return packet, true
}

// ProcessIncomingBody decodes a Data packet's body into its manager
// blocks and dispatches each to the matching collaborator, per spec.md
// §6's "Manager tags: 0=Event, 1=Entity, 2=Ping" framing: body is one
// shared stream with no outer per-block length, so each collaborator's
// decoder must consume exactly its own block's bytes and leave the
// reader positioned at the next tag. now is used for ping RTT
// accounting.
func (c *Connection) ProcessIncomingBody(body []byte, m *manifest.Manifest, now time.Time) error {
	c.EntityEvents = c.EntityEvents[:0]

	r := bytes.NewReader(body)
	for r.Len() > 0 {
		tag, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("conn: reading manager tag: %w", naia.ErrMalformed)
		}

		switch tag {
		case blockTagEvent:
			if err := c.Event.ProcessIncoming(r, m); err != nil {
				return fmt.Errorf("conn: event block: %w", err)
			}
		case blockTagEntity:
			if c.EntityIn == nil {
				return fmt.Errorf("conn: entity block on a connection with no entity manager: %w", naia.ErrMalformed)
			}
			msgs, err := c.EntityIn.ApplyBlock(r, m)
			if err != nil {
				return fmt.Errorf("conn: entity block: %w", err)
			}
			c.EntityEvents = append(c.EntityEvents, msgs...)
		case blockTagPing:
			var pong [2]byte
			if _, err := io.ReadFull(r, pong[:]); err != nil {
				return fmt.Errorf("conn: reading ping block: %w", naia.ErrMalformed)
			}
			c.Ping.ReadPong(pong[:], now)
		default:
			return fmt.Errorf("conn: unknown manager tag %d: %w", tag, naia.ErrMalformed)
		}
	}
	return nil
}
