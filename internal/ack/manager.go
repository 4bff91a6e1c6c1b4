// Package ack implements the sliding-window ACK bitfield bookkeeping
// described in spec.md §4.2: tracking which of our outbound sequences the
// remote peer has acknowledged, and emitting delivered/dropped
// notifications for sequences that were.
package ack

import (
	"github.com/appnet-org/naia/internal/wire"
	"github.com/appnet-org/naia/pkg/logging"
	"go.uber.org/zap"
)

// ackWindow is the number of trailing sequences, strictly older than
// ack_seq, addressed by the 32-bit ack_bitfield. Pinned by spec.md §9.
const ackWindow = 32

// Notifier receives delivered/dropped callbacks for sequences we sent.
// EventManager implements this to requeue guaranteed events on drop and
// stop tracking them on delivery.
type Notifier interface {
	NotifyDelivered(seq uint16)
	NotifyDropped(seq uint16)
}

// Manager tracks in-flight sequences for one connection and turns incoming
// StandardHeaders into delivered/dropped notifications.
type Manager struct {
	nextOutgoingSeq   uint16
	lastRemoteSeqRecv uint16
	hasRemoteSeq      bool
	remoteAckBitfield uint32
	sentTable         map[uint16]struct{}
}

// NewManager creates a Manager with a zero-valued outgoing sequence.
func NewManager() *Manager {
	return &Manager{
		sentTable: make(map[uint16]struct{}),
	}
}

// NextPacketIndex returns the sequence the next outgoing packet will use,
// without advancing it.
func (m *Manager) NextPacketIndex() uint16 {
	return m.nextOutgoingSeq
}

// MarkSent records that seq was just sent and advances the outgoing
// sequence counter.
func (m *Manager) MarkSent(seq uint16) {
	m.sentTable[seq] = struct{}{}
	m.nextOutgoingSeq = seq + 1
}

// LocalAckState returns the ack_seq/ack_bitfield fields this side should
// place in its next outgoing StandardHeader, describing what it has
// received from the remote peer so far.
func (m *Manager) LocalAckState() (ackSeq uint16, ackBitfield uint32) {
	return m.lastRemoteSeqRecv, m.remoteAckBitfield
}

// ProcessIncomingHeader updates remote-ack-bitfield bookkeeping from h's
// packet_seq, then walks h's ack_seq/ack_bitfield to notify delivery for
// any of our sequences newly acknowledged, and notify drop for any
// sequence older than ack_seq-32 that is still outstanding.
func (m *Manager) ProcessIncomingHeader(h wire.StandardHeader, notifier Notifier) {
	m.observeRemoteSeq(h.PacketSeq)
	m.processAcks(h.AckSeq, h.AckBitfield, notifier)
}

func (m *Manager) observeRemoteSeq(seq uint16) {
	if !m.hasRemoteSeq {
		m.lastRemoteSeqRecv = seq
		m.remoteAckBitfield = 0
		m.hasRemoteSeq = true
		return
	}

	if seq == m.lastRemoteSeqRecv {
		return
	}

	if !wire.SeqGreaterThan(seq, m.lastRemoteSeqRecv) {
		// Older-than-most-recent, arrived out of order: mark its bit if
		// still inside the window, a no-op if already set (a true stale
		// duplicate).
		dist := wire.SeqDiff(m.lastRemoteSeqRecv, seq)
		if dist >= 1 && dist <= ackWindow {
			m.remoteAckBitfield |= 1 << uint(dist-1)
		}
		return
	}

	// bit i of the *old* bitfield == "did we receive lastRemoteSeqRecv-i-1".
	// Shifting left by `shift` re-bases those bits to the new lastRemoteSeqRecv,
	// and we set the bit for the just-superseded lastRemoteSeqRecv itself.
	shift := wire.SeqDiff(seq, m.lastRemoteSeqRecv)
	if shift > ackWindow {
		m.remoteAckBitfield = 0
	} else {
		m.remoteAckBitfield <<= uint(shift)
		m.remoteAckBitfield |= 1 << uint(shift-1)
	}
	m.lastRemoteSeqRecv = seq
}

func (m *Manager) processAcks(ackSeq uint16, ackBitfield uint32, notifier Notifier) {
	// ack_seq itself was received.
	m.tryDeliver(ackSeq, notifier)

	for i := uint(0); i < ackWindow; i++ {
		if ackBitfield&(1<<i) == 0 {
			continue
		}
		seq := ackSeq - uint16(i) - 1
		m.tryDeliver(seq, notifier)
	}

	// Anything more than ackWindow packets older than ack_seq and still
	// outstanding is outside the bitfield's reach and considered lost.
	for seq := range m.sentTable {
		if wire.SeqDiff(ackSeq, seq) > ackWindow {
			delete(m.sentTable, seq)
			notifier.NotifyDropped(seq)
			logging.Debug("ack: packet dropped", zap.Uint16("seq", seq))
		}
	}
}

func (m *Manager) tryDeliver(seq uint16, notifier Notifier) {
	if _, ok := m.sentTable[seq]; !ok {
		return
	}
	delete(m.sentTable, seq)
	notifier.NotifyDelivered(seq)
	logging.Debug("ack: packet delivered", zap.Uint16("seq", seq))
}
