// Package transport implements the PacketIO collaborator described in
// spec.md §6.1: single-packet-per-call UDP send/receive plus an optional
// link conditioner for testing. Grounded on the teacher's
// internal/transport/udp.go — ResolveUDPTarget's FQDN/IP/empty-address
// resolution and NewUDPTransport/Send/Receive's ListenUDP-based socket
// ownership are kept, adapted from that type's multi-packet fragmenting
// protocol down to naia's single-datagram-per-packet model (fragmentation
// belongs to the application above this layer, not to PacketIO).
package transport

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/appnet-org/naia/pkg/naia"
)

// MaxDatagramSize bounds a single Receive call's read buffer. Packets
// larger than this are truncated by the OS socket, matching typical UDP
// MTU budgets used elsewhere in this module (spec.md §4.3's 1400-byte
// default event-packet budget plus header overhead).
const MaxDatagramSize = 1472

// UDPSocket is the PacketIO collaborator: a bound UDP socket with a
// short-polling Receive via a read deadline, so the owning Client/Server
// loop's single-shot step function never blocks waiting for a datagram
// that may never arrive (spec.md §5).
type UDPSocket struct {
	conn *net.UDPConn
}

// Listen binds a UDP socket at address, which may be an IP:port, ":port"
// (binds 0.0.0.0), or an FQDN:port (one of the resolved IPs is chosen at
// random).
func Listen(address string) (*UDPSocket, error) {
	target, err := ResolveUDPTarget(address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", target)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", address, err)
	}
	return &UDPSocket{conn: conn}, nil
}

// Close releases the underlying socket.
func (s *UDPSocket) Close() error {
	return s.conn.Close()
}

// LocalAddr returns the socket's bound local address.
func (s *UDPSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Send writes one datagram to addr.
func (s *UDPSocket) Send(addr *net.UDPAddr, data []byte) error {
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("transport: send to %s: %w: %w", addr, naia.ErrTransport, err)
	}
	return nil
}

// Receive reads at most one pending datagram, waiting no longer than one
// millisecond: it returns (nil, nil, nil) if nothing arrives by then,
// satisfying spec.md §5's "a single call processes at most one inbound
// datagram and then returns" requirement. (A deadline of exactly now would
// make every read time out before checking for data.)
func (s *UDPSocket) Receive() ([]byte, *net.UDPAddr, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return nil, nil, fmt.Errorf("transport: set read deadline: %w: %w", naia.ErrTransport, err)
	}

	buf := make([]byte, MaxDatagramSize)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("transport: receive: %w: %w", naia.ErrTransport, err)
	}
	return buf[:n], addr, nil
}

// ResolveUDPTarget resolves a UDP address string that may be an IP, FQDN,
// or empty. Empty or ":port" binds to 0.0.0.0:<port>. For FQDNs, all
// resolved IPs are logged and one is picked at random.
func ResolveUDPTarget(addr string) (*net.UDPAddr, error) {
	if addr == "" {
		return &net.UDPAddr{IP: net.IPv4zero, Port: 0}, nil
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		if after, ok := strings.CutPrefix(addr, ":"); ok {
			portStr = after
			host = ""
		} else {
			return nil, fmt.Errorf("transport: invalid addr %q: %w", addr, err)
		}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid port in %q: %w", addr, err)
	}

	if host == "" {
		return &net.UDPAddr{IP: net.IPv4zero, Port: port}, nil
	}

	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return nil, fmt.Errorf("transport: DNS lookup failed for %q: %w", host, err)
	}
	for i, resolvedIP := range ips {
		log.Printf("transport: DNS lookup for %s [%d] -> %s", host, i, resolvedIP)
	}

	chosen := ips[rand.Intn(len(ips))]
	return &net.UDPAddr{IP: chosen, Port: port}, nil
}
