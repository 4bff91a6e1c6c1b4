// Package server implements the top-level Server loop described in
// spec.md §2/§5: a single-shot Receive() step function that fans in
// handshake and connected traffic from every peer, grounded in struct shape
// on the teacher's pkg/rpc/server.go (socket + registry + per-request
// dispatch composition) but replacing its RPC service dispatch with the
// per-client Connection + EntityManager composition this spec requires.
package server

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
	"github.com/appnet-org/naia/pkg/logging"
	"github.com/appnet-org/naia/pkg/manifest"
	"github.com/appnet-org/naia/pkg/tick"
	"go.uber.org/zap"
)

// Config bundles the interval parameters a Server needs, per spec.md §9's
// parameter table.
type Config struct {
	conn.Config
	TickInterval time.Duration
}

// client is one connected peer's server-side state.
type client struct {
	addr   *net.UDPAddr
	conn   *conn.Connection
	entity *entity.ServerManager
}

// EventRecord pairs an incoming application event with the address it
// arrived from: a server fans in traffic from many peers at once, and
// spec.md §5 promises no ordering across connections, so the address is
// carried alongside each event rather than implied by call order.
type EventRecord struct {
	Addr  string
	Event event.Event
}

// Server is the top-level server-side endpoint: one listening socket, a
// shared Manifest and HandshakeValidator, and one Connection plus
// per-client EntityManager for every connected peer, per spec.md §2.
type Server struct {
	socket    *transport.UDPSocket
	manifest  *manifest.Manifest
	validator *handshake.Validator
	cfg       Config
	tick      *tick.Manager

	clients map[string]*client

	// Connected, Disconnected, and Events are populated with
	// application-facing notifications by each Receive() call; the caller
	// drains them after each step, mirroring Client's Incoming field.
	Connected    []string
	Disconnected []string
	Events       []EventRecord
}

// New binds a listening socket at bindAddr and creates an empty Server.
func New(bindAddr string, cfg Config, m *manifest.Manifest, validator *handshake.Validator, now time.Time) (*Server, error) {
	sock, err := transport.Listen(bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		socket:    sock,
		manifest:  m,
		validator: validator,
		cfg:       cfg,
		tick:      tick.NewManager(cfg.TickInterval, now),
		clients:   make(map[string]*client),
	}, nil
}

// Close releases the server's socket.
func (s *Server) Close() error {
	return s.socket.Close()
}

// LocalAddr returns the server's bound local address.
func (s *Server) LocalAddr() net.Addr {
	return s.socket.LocalAddr()
}

// Tick returns the server's logical tick manager.
func (s *Server) Tick() *tick.Manager {
	return s.tick
}

// Clients returns the addresses of currently connected peers.
func (s *Server) Clients() []string {
	out := make([]string, 0, len(s.clients))
	for addr := range s.clients {
		out = append(out, addr)
	}
	return out
}

// AddEntityToClientScope brings e into addr's replication scope, assigning
// a fresh LocalEntityKey and queuing a guaranteed Create message, per
// spec.md §4.7. Reports ok=false if addr is not a connected client.
func (s *Server) AddEntityToClientScope(addr string, e entity.Entity) (key entity.LocalEntityKey, ok bool) {
	c, ok := s.clients[addr]
	if !ok {
		return 0, false
	}
	return c.entity.AddEntity(e), true
}

// RemoveEntityFromClientScope drops e from addr's scope, queuing a
// guaranteed Delete message. A no-op if addr is not connected or e was not
// in that client's scope.
func (s *Server) RemoveEntityFromClientScope(addr string, e entity.Entity) {
	if c, ok := s.clients[addr]; ok {
		c.entity.RemoveEntity(e)
	}
}

// QueueEvent enqueues e for delivery to addr, reliable or not according to
// e.IsGuaranteed(), per spec.md §4.3. Reports false if addr is not a
// connected client.
func (s *Server) QueueEvent(addr string, e event.Event) bool {
	c, ok := s.clients[addr]
	if !ok {
		return false
	}
	c.conn.Event.QueueOutgoing(e)
	return true
}

// Broadcast queues e for delivery to every currently connected client.
func (s *Server) Broadcast(e event.Event) {
	for _, c := range s.clients {
		c.conn.Event.QueueOutgoing(e)
	}
}

// AdvanceTick advances the server's logical clock and diffs every connected
// client's entity scope against its last-sent snapshot, queuing Update
// messages for anything that changed, per spec.md §4.7/§4.10. Call once per
// tick_interval boundary of the owning loop.
func (s *Server) AdvanceTick(now time.Time) {
	s.tick.Update(now)
	for _, c := range s.clients {
		c.entity.Tick()
	}
}

// Receive performs one single-shot step of the server loop, per spec.md
// §5: process at most one inbound datagram (handshake or connected traffic
// from any peer), then drain any due outbound traffic for every connected
// client. It waits at most about a millisecond for an inbound datagram.
func (s *Server) Receive(now time.Time) error {
	s.Connected = s.Connected[:0]
	s.Disconnected = s.Disconnected[:0]
	s.Events = s.Events[:0]

	data, addr, err := s.socket.Receive()
	if err != nil {
		return fmt.Errorf("server: receive: %w", err)
	}
	if data != nil {
		s.dispatch(data, addr, now)
	}

	for key, c := range s.clients {
		if c.conn.ShouldDrop(now) {
			delete(s.clients, key)
			s.Disconnected = append(s.Disconnected, key)
			continue
		}
		if packet, ok := c.conn.GetOutgoingPacket(s.manifest, s.cfg.MaxOutgoingPacketSizeBytes, now); ok {
			if err := s.socket.Send(c.addr, packet); err != nil {
				logging.Warn("server: send failed", zap.String("addr", key), zap.Error(err))
			}
		}
	}

	return nil
}

// dispatch routes one inbound datagram to either the handshake validator
// (no Connection yet for addr) or the matching client's Connection.
func (s *Server) dispatch(data []byte, addr *net.UDPAddr, now time.Time) {
	key := addr.String()

	if c, ok := s.clients[key]; ok {
		s.handleConnected(c, data, now)
		return
	}

	packetType, body, err := wire.ReadHandshake(data)
	if err != nil || !packetType.IsHandshake() {
		// Connected-packet framing from an address with no Connection:
		// not a peer we recognize, drop silently per spec.md §7.
		return
	}

	switch packetType {
	case wire.PacketTypeClientChallengeRequest:
		resp, err := s.validator.HandleChallengeRequest(body, key, s.tick.GetTick())
		if err != nil {
			logging.Debug("server: malformed challenge request", zap.String("addr", key), zap.Error(err))
			return
		}
		s.send(addr, wire.WriteHandshake(wire.PacketTypeServerChallengeResponse, resp))

	case wire.PacketTypeClientConnectRequest:
		resp, authEvent, err := s.validator.HandleConnectRequest(body, key, s.manifest)
		if err != nil {
			logging.Debug("server: rejected connect request", zap.String("addr", key), zap.Error(err))
			return
		}
		s.onConnect(addr, now)
		if authEvent != nil {
			s.Events = append(s.Events, EventRecord{Addr: key, Event: authEvent})
		}
		s.send(addr, wire.WriteHandshake(wire.PacketTypeServerConnectResponse, resp))

	default:
		// ServerChallengeResponse/ServerConnectResponse arriving at a
		// server is misdirected or spoofed traffic; ignore.
	}
}

// onConnect creates the per-client Connection and entity scope for a peer
// that just passed the handshake. A ClientConnectRequest retry for an
// already-connected addr simply replaces its state with a fresh one — safe
// because the validator is stateless and recomputes the same digest.
func (s *Server) onConnect(addr *net.UDPAddr, now time.Time) {
	key := addr.String()
	c := &client{
		addr:   addr,
		conn:   conn.New(addr, s.cfg.Config, now),
		entity: entity.NewServerManager(),
	}
	c.conn.EntityOut = c.entity
	s.clients[key] = c
	s.Connected = append(s.Connected, key)
}

// handleConnected processes one inbound Data/Heartbeat/Ping datagram from
// an already-connected client.
func (s *Server) handleConnected(c *client, data []byte, now time.Time) {
	header, body, err := wire.ReadHeader(data)
	if err != nil {
		// A malformed top-level header closes the connection as if timed
		// out, per spec.md §7.
		delete(s.clients, c.addr.String())
		s.Disconnected = append(s.Disconnected, c.addr.String())
		return
	}
	c.conn.HandleIncomingHeader(header, now)

	if header.PacketType == wire.PacketTypeHeartbeat {
		return
	}

	if err := c.conn.ProcessIncomingBody(body, s.manifest, now); err != nil {
		logging.Warn("server: dropping malformed packet body", zap.String("addr", c.addr.String()), zap.Error(err))
		return
	}

	for c.conn.Event.HasIncoming() {
		e, _ := c.conn.Event.PopIncoming()
		s.Events = append(s.Events, EventRecord{Addr: c.addr.String(), Event: e})
	}
}

func (s *Server) send(addr *net.UDPAddr, data []byte) {
	if err := s.socket.Send(addr, data); err != nil {
		logging.Warn("server: handshake send failed", zap.Error(err))
	}
}
