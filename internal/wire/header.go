package wire

import (
	"encoding/binary"
	"errors"
)

// PacketType identifies the kind of a connected or connectionless packet.
type PacketType uint8

const (
	PacketTypeClientChallengeRequest PacketType = iota
	PacketTypeServerChallengeResponse
	PacketTypeClientConnectRequest
	PacketTypeServerConnectResponse
	PacketTypeData
	PacketTypeHeartbeat
	PacketTypePing
	PacketTypePong
	PacketTypeDisconnect
)

// HandshakePacketTypes are connectionless: they carry no StandardHeader,
// only a 1-byte type prefix followed by their payload.
func (t PacketType) IsHandshake() bool {
	switch t {
	case PacketTypeClientChallengeRequest, PacketTypeServerChallengeResponse,
		PacketTypeClientConnectRequest, PacketTypeServerConnectResponse:
		return true
	default:
		return false
	}
}

// HeaderSize is the fixed size in bytes of a StandardHeader:
// 1 (type) + 2 (seq) + 2 (ack_seq) + 4 (ack_bitfield).
const HeaderSize = 9

// StandardHeader is the fixed-layout prefix on every connected packet.
type StandardHeader struct {
	PacketType  PacketType
	PacketSeq   uint16
	AckSeq      uint16
	AckBitfield uint32
}

// ErrShortBuffer is returned when a buffer is too small to hold the
// structure being decoded from it.
var ErrShortBuffer = errors.New("wire: buffer too short")

// WriteHeader prepends a StandardHeader to payload and returns the new
// byte slice.
func WriteHeader(h StandardHeader, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(h.PacketType)
	binary.BigEndian.PutUint16(buf[1:3], h.PacketSeq)
	binary.BigEndian.PutUint16(buf[3:5], h.AckSeq)
	binary.BigEndian.PutUint32(buf[5:9], h.AckBitfield)
	copy(buf[HeaderSize:], payload)
	return buf
}

// ReadHeader splits data into a StandardHeader and the remaining payload.
func ReadHeader(data []byte) (StandardHeader, []byte, error) {
	if len(data) < HeaderSize {
		return StandardHeader{}, nil, ErrShortBuffer
	}
	h := StandardHeader{
		PacketType:  PacketType(data[0]),
		PacketSeq:   binary.BigEndian.Uint16(data[1:3]),
		AckSeq:      binary.BigEndian.Uint16(data[3:5]),
		AckBitfield: binary.BigEndian.Uint32(data[5:9]),
	}
	return h, data[HeaderSize:], nil
}

// WriteHandshake prepends the 1-byte connectionless packet-type prefix used
// by the pre-connection handshake packets.
func WriteHandshake(t PacketType, payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(t)
	copy(buf[1:], payload)
	return buf
}

// ReadHandshake splits data into its connectionless packet type and payload.
func ReadHandshake(data []byte) (PacketType, []byte, error) {
	if len(data) < 1 {
		return 0, nil, ErrShortBuffer
	}
	return PacketType(data[0]), data[1:], nil
}
