// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import "time"

// ConnState classifies a client-side connection's liveness for the purpose
// of connection-count adaptation (spec.md §4.7). Server-side connections
// never use this field.
type ConnState int

const (
	ConnIdle ConnState = iota
	ConnBusy
	ConnSlow
)

func (s ConnState) String() string {
	switch s {
	case ConnIdle:
		return "idle"
	case ConnBusy:
		return "busy"
	case ConnSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// unconfirmedPacket is an AcknowledgeRequired packet written on a
// connection but not yet acknowledged. seq is the position it was assigned
// in that connection's single outbound numbering space, shared by Data and
// Finish (spec.md §4.5: "Data(b) at position k ... Finish at position k").
// isRetransmission records whether the packet was already addressed with an
// explicit (connId, packId) pair, so a second cleanup pass never renumbers
// it again.
type unconfirmedPacket struct {
	seq             uint32
	packet          Packet
	isRetransmission bool
}

// Connection is the per-stream protocol state described in spec.md §3. A
// nil Stream means the connection is disconnected but still tracked because
// it has undelivered or unacknowledged packets (invariant C1).
type Connection struct {
	ID     uint32
	stream Stream

	numDataSent          uint32
	numAckReceivedForData uint32
	numDataReceived      uint32

	receiveIDSet     *IdSet
	finishIDReceived *uint32
	isFinishSent     bool
	isShutdown       bool

	unconfirmed []unconfirmedPacket

	// Client-role-only fields. Zero value is meaningful (ConnIdle, no timer)
	// on server-side connections, which never read them.
	state      ConnState
	busyTimer  *time.Timer
	isGhost    bool
}

func newConnection(id uint32) *Connection {
	return &Connection{
		ID:           id,
		receiveIDSet: NewIdSet(0),
		state:        ConnIdle,
	}
}

// newGhostConnection synthesizes a placeholder record for an id gap caused
// by a stream lost before its handshake completed (spec.md §4.4).
func newGhostConnection(id uint32) *Connection {
	c := newConnection(id)
	c.isGhost = true
	c.isFinishSent = true // a ghost never had a local sender to finish
	return c
}

// outstanding is the current size of the unacknowledged-data window,
// ≤ numDataSent per invariant C5.
func (c *Connection) outstanding() uint32 {
	return c.numDataSent - c.numAckReceivedForData
}

// allConfirmed reports whether this connection currently belongs in the
// sentinel AllConfirmed scheduling bucket (invariant C3).
func (c *Connection) allConfirmed() bool {
	return len(c.unconfirmed) == 0
}

// drainable reports whether invariant C1 holds for this connection: it can
// be removed from the session's connection table.
func (c *Connection) drainable() bool {
	return c.isFinishSent &&
		c.finishIDReceived != nil &&
		c.receiveIDSet.AllReceivedBelow(*c.finishIDReceived) &&
		len(c.unconfirmed) == 0
}

// isOpen reports whether the connection has a live stream and has not been
// shut down — the condition for membership in the sending rotation
// (invariant C2).
func (c *Connection) isOpen() bool {
	return c.stream != nil && !c.isShutdown
}

// enqueueUnconfirmed appends p to the unconfirmed FIFO under the next
// sequence number in this connection's shared Data/Finish numbering space,
// so Finish/Data get their true sequence-addressed form when rewritten later;
// already-addressed retransmission packets are recorded with
// isRetransmission=true and keep their own PackID.
func (c *Connection) enqueueUnconfirmed(p Packet) {
	switch v := p.(type) {
	case DataPacket:
		seq := c.numDataSent
		c.numDataSent++
		c.unconfirmed = append(c.unconfirmed, unconfirmedPacket{seq: seq, packet: v})
	case FinishPacket:
		seq := c.numDataSent
		c.unconfirmed = append(c.unconfirmed, unconfirmedPacket{seq: seq, packet: v})
		c.isFinishSent = true
	case RetransmissionDataPacket:
		c.unconfirmed = append(c.unconfirmed, unconfirmedPacket{seq: v.PackID, packet: v, isRetransmission: true})
	case RetransmissionFinishPacket:
		c.unconfirmed = append(c.unconfirmed, unconfirmedPacket{seq: v.PackID, packet: v, isRetransmission: true})
		c.isFinishSent = true
	default:
		panic("bcp: enqueueUnconfirmed called with a non-AcknowledgeRequired packet")
	}
}

// popAcknowledged dequeues the head of the unconfirmed FIFO in response to
// a received Acknowledge, bumping numAckReceivedForData when the head was a
// (possibly retransmitted) Data packet. It reports whether a packet was
// dequeued.
func (c *Connection) popAcknowledged() bool {
	if len(c.unconfirmed) == 0 {
		return false
	}
	head := c.unconfirmed[0]
	c.unconfirmed = c.unconfirmed[1:]
	switch head.packet.(type) {
	case DataPacket, RetransmissionDataPacket:
		c.numAckReceivedForData++
	}
	return true
}

// retransmissionPackets rewrites every still-unconfirmed packet into its
// retransmission-addressed form (spec.md §4.5 step 4), clearing the FIFO.
// thisConnID is this connection's own id, used as the origin address for
// packets that were not already a retransmission.
func (c *Connection) retransmissionPackets(thisConnID uint32) []Packet {
	out := make([]Packet, 0, len(c.unconfirmed))
	for _, u := range c.unconfirmed {
		if u.isRetransmission {
			out = append(out, u.packet)
			continue
		}
		switch v := u.packet.(type) {
		case DataPacket:
			out = append(out, RetransmissionDataPacket{ConnID: thisConnID, PackID: u.seq, Buffers: v.Buffers})
		case FinishPacket:
			out = append(out, RetransmissionFinishPacket{ConnID: thisConnID, PackID: u.seq})
		}
	}
	c.unconfirmed = nil
	return out
}
