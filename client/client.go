// Package client implements the top-level Client loop described in
// spec.md §5/§9: a single-shot Receive() step function driven by an
// external loop rather than a background goroutine, grounded in struct
// shape on the teacher's pkg/rpc/client.go (transport + serializer-style
// collaborator composition) but deliberately diverging from its
// goroutine-driven receiveLoop — see DESIGN.md Open Question #1.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/appnet-org/naia/internal/transport"
	"github.com/appnet-org/naia/internal/wire"
	"github.com/appnet-org/naia/pkg/conn"
	"github.com/appnet-org/naia/pkg/entity"
	"github.com/appnet-org/naia/pkg/event"
	"github.com/appnet-org/naia/pkg/handshake"
	"github.com/appnet-org/naia/pkg/interpolation"
	"github.com/appnet-org/naia/pkg/logging"
	"github.com/appnet-org/naia/pkg/manifest"
	"github.com/appnet-org/naia/pkg/naia"
	"github.com/appnet-org/naia/pkg/tick"
	"go.uber.org/zap"
)

// Config bundles the interval parameters needed to drive both the
// handshake and the post-handshake Connection, per spec.md §9.
type Config struct {
	SendHandshakeInterval time.Duration
	conn.Config
	TickInterval time.Duration
}

// Client is one client-side endpoint: it owns a socket, the manifest of
// registered event/entity types, the handshake state machine, and — once
// connected — a Connection and the replicated entity maps.
type Client struct {
	socket     *transport.UDPSocket
	serverAddr *net.UDPAddr
	manifest   *manifest.Manifest
	cfg        Config

	driver *handshake.Driver
	conn   *conn.Connection
	tick   *tick.Manager

	entities *entity.ClientManager
	pawns    *entity.ClientManager
	interp   *interpolation.Buffer

	// Incoming is populated with application-facing notifications each
	// Receive() call; the caller drains it after each step.
	Incoming     []event.Event
	EntityEvents []entity.ClientMessage

	// Disconnected is set true for exactly the Receive() call that detects
	// the server's silence exceeded disconnection_timeout_duration, or that
	// received a packet whose StandardHeader could not be parsed, per
	// spec.md §7's "Timeout is reported exactly once" policy. The caller
	// checks it after a nil-error Receive; subsequent calls resume the
	// handshake from scratch and Disconnected reads false again.
	Disconnected bool
}

// New creates a Client that will connect to serverAddr, starting the
// handshake with the given timestamp and optional auth event.
func New(localAddr, serverAddrStr string, cfg Config, m *manifest.Manifest, timestamp uint64, authEvent event.Event) (*Client, error) {
	sock, err := transport.Listen(localAddr)
	if err != nil {
		return nil, err
	}
	serverAddr, err := transport.ResolveUDPTarget(serverAddrStr)
	if err != nil {
		return nil, err
	}

	return &Client{
		socket:     sock,
		serverAddr: serverAddr,
		manifest:   m,
		cfg:        cfg,
		driver:     handshake.NewDriver(cfg.SendHandshakeInterval, timestamp, authEvent),
		entities:   entity.NewClientManager(),
		pawns:      entity.NewClientManager(),
		interp:     interpolation.NewBuffer(cfg.TickInterval),
	}, nil
}

// Entities returns the client's replica of server-authoritative entities
// currently in scope, per spec.md §4.8.
func (c *Client) Entities() *entity.ClientManager { return c.entities }

// Pawns returns the client's map of locally-predicted entities. Unlike
// Entities, it is not driven by the wire stream — the application populates
// it directly for entities whose inputs originate locally, per spec.md §4.8
// and the GLOSSARY's "Pawn" entry.
func (c *Client) Pawns() *entity.ClientManager { return c.pawns }

// GetInterpolation returns a render-smoothed snapshot of the replicated
// entity at key, interpolating between the last server update and its
// current live value, per spec.md §4.9. pawn selects the locally-predicted
// map instead of the server-authoritative one.
func (c *Client) GetInterpolation(key entity.LocalEntityKey, now time.Time, pawn bool) (entity.Entity, bool) {
	mgr := c.entities
	if pawn {
		mgr = c.pawns
	}
	live, ok := mgr.Get(key)
	if !ok {
		return nil, false
	}
	return c.interp.GetInterpolation(key, live, now, pawn)
}

// Connected reports whether the handshake has completed and normal
// Data/Heartbeat/Ping flow is active.
func (c *Client) Connected() bool {
	return c.conn != nil
}

// QueueEvent enqueues e for delivery to the server, reliable or not
// according to e.IsGuaranteed(), per spec.md §4.3. Reports false if the
// handshake has not completed yet.
func (c *Client) QueueEvent(e event.Event) bool {
	if c.conn == nil {
		return false
	}
	c.conn.Event.QueueOutgoing(e)
	return true
}

// Tick returns the client's logical tick manager, valid once Connected.
func (c *Client) Tick() *tick.Manager {
	return c.tick
}

// Close releases the client's socket.
func (c *Client) Close() error {
	return c.socket.Close()
}

// Receive performs one single-shot step of the client loop, per spec.md
// §5: drain the handshake retransmit, process at most one inbound
// datagram, then drain any due outbound traffic. It waits at most about a
// millisecond for an inbound datagram.
func (c *Client) Receive(now time.Time) error {
	c.Incoming = c.Incoming[:0]
	c.EntityEvents = c.EntityEvents[:0]
	c.Disconnected = false

	if !c.Connected() {
		return c.stepHandshake(now)
	}

	c.tick.Update(now)

	data, addr, err := c.socket.Receive()
	if err != nil {
		return fmt.Errorf("client: receive: %w", err)
	}
	if data != nil && addr.String() == c.serverAddr.String() {
		if c.handleConnected(data, now) == errMalformedHeader {
			// A malformed top-level header closes the connection as if
			// timed out, per spec.md §7: a single bad packet body is
			// recoverable, but framing itself is not.
			c.disconnect(now, "malformed header")
			return nil
		}
	}

	if c.conn.ShouldDrop(now) {
		c.disconnect(now, "server timed out")
		return nil
	}

	if packet, ok := c.conn.GetOutgoingPacket(c.manifest, c.cfg.MaxOutgoingPacketSizeBytes, now); ok {
		if err := c.socket.Send(c.serverAddr, packet); err != nil {
			return fmt.Errorf("client: send: %w", err)
		}
	}

	return nil
}

func (c *Client) stepHandshake(now time.Time) error {
	if c.driver.ShouldSend(now) {
		body, err := c.driver.BuildOutgoing(now, c.manifest)
		if err != nil {
			return err
		}
		var packetType wire.PacketType
		switch c.driver.State() {
		case handshake.StateAwaitingChallenge:
			packetType = wire.PacketTypeClientChallengeRequest
		case handshake.StateAwaitingConnect:
			packetType = wire.PacketTypeClientConnectRequest
		}
		if err := c.socket.Send(c.serverAddr, wire.WriteHandshake(packetType, body)); err != nil {
			return fmt.Errorf("client: send handshake: %w", err)
		}
	}

	data, addr, err := c.socket.Receive()
	if err != nil {
		return fmt.Errorf("client: receive: %w", err)
	}
	if data == nil || addr.String() != c.serverAddr.String() {
		return nil
	}

	packetType, body, err := wire.ReadHandshake(data)
	if err != nil {
		return nil // malformed, drop silently per spec.md §7
	}

	switch packetType {
	case wire.PacketTypeServerChallengeResponse:
		if err := c.driver.HandleChallengeResponse(body); err != nil {
			logging.Warn("client: bad challenge response", zap.Error(err))
		}
	case wire.PacketTypeServerConnectResponse:
		c.driver.HandleConnectResponse()
		if c.driver.Connected() {
			c.onConnected(now)
		}
	}
	return nil
}

// disconnect tears down the connected state and resets the handshake
// driver to retry from scratch, per spec.md §4.6's Connected ->
// (Disconnected resets to AwaitingChallengeResponse) transition and §7's
// "Timeout is reported exactly once" policy (Disconnected is true only for
// the Receive() call that triggers this).
func (c *Client) disconnect(now time.Time, reason string) {
	logging.Warn("client: disconnecting", zap.String("reason", reason), zap.Error(naia.ErrTimeout))
	c.conn = nil
	c.Disconnected = true
	c.driver.Reset(uint64(now.UnixNano()))
}

func (c *Client) onConnected(now time.Time) {
	c.conn = conn.New(c.serverAddr, c.cfg.Config, now)
	c.conn.EntityIn = c.entities
	c.tick = tick.NewManager(c.cfg.TickInterval, now)
	c.tick.SetTick(c.driver.ServerTick())
}

// errMalformedHeader signals that handleConnected could not even parse the
// StandardHeader prefix, which per spec.md §7 closes the connection as if
// timed out, unlike a malformed manager block (dropped silently, see below).
var errMalformedHeader = fmt.Errorf("client: malformed header: %w", naia.ErrMalformed)

// handleConnected processes one inbound Data/Heartbeat/Ping/Disconnect
// datagram from the server. It returns errMalformedHeader exactly when the
// StandardHeader itself could not be parsed; any other error is logged and
// treated as a silently-dropped bad packet body, per spec.md §7.
func (c *Client) handleConnected(data []byte, now time.Time) error {
	header, body, err := wire.ReadHeader(data)
	if err != nil {
		return errMalformedHeader
	}
	c.conn.HandleIncomingHeader(header, now)

	if header.PacketType == wire.PacketTypeHeartbeat {
		return nil
	}

	if err := c.conn.ProcessIncomingBody(body, c.manifest, now); err != nil {
		logging.Warn("client: dropping malformed packet body", zap.Error(err))
		return nil
	}

	for c.conn.Event.HasIncoming() {
		e, _ := c.conn.Event.PopIncoming()
		c.Incoming = append(c.Incoming, e)
	}

	for _, msg := range c.conn.EntityEvents {
		switch msg.Kind {
		case entity.KindCreate:
			c.interp.CreateInterpolation(msg.Key, msg.Entity, now, false)
		case entity.KindUpdate:
			c.interp.SyncInterpolation(msg.Key, msg.Entity, now, false)
		case entity.KindDelete:
			c.interp.DeleteInterpolation(msg.Key, false)
		}
		c.EntityEvents = append(c.EntityEvents, msg)
	}
	return nil
}
