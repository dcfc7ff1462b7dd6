// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import "container/list"

// packetQueue is the bounded FIFO of AcknowledgeRequired packets a session
// buffers while it has no usable connection (spec.md §3, Offline(PacketQueue)).
type packetQueue struct {
	max   int
	items []Packet
}

func newPacketQueue(max int) *packetQueue {
	return &packetQueue{max: max}
}

// push appends p, returning ErrOfflineQueueFull once the bound is exceeded.
func (q *packetQueue) push(p Packet) error {
	if len(q.items) >= q.max {
		return ErrOfflineQueueFull
	}
	q.items = append(q.items, p)
	return nil
}

// drain empties the queue and returns everything that was buffered, in
// FIFO order, for flushing onto the first connection that attaches.
func (q *packetQueue) drain() []Packet {
	items := q.items
	q.items = nil
	return items
}

func (q *packetQueue) len() int { return len(q.items) }

// sendingConnQueue implements the least-recently-used-for-sending rotation
// described in spec.md §4.2 and the design note in §9: the head of the
// rotation is the connection that has waited longest since it was last
// picked to send, and moving a connection to "just sent" is O(1). A
// doubly-linked list plus an id→element index gives both in constant time,
// in place of the sorted-map-of-buckets the source uses; invariant C3 (is
// this connection's unconfirmed queue empty?) is derived from Connection
// state rather than tracked as a separate structural bucket.
type sendingConnQueue struct {
	order *list.List // list.Element.Value is *Connection; front = next to pick
	elems map[uint32]*list.Element
}

func newSendingConnQueue() *sendingConnQueue {
	return &sendingConnQueue{
		order: list.New(),
		elems: make(map[uint32]*list.Element),
	}
}

// add inserts a newly opened connection at the front of the rotation, so it
// is immediately eligible to be picked (invariant C2: must appear iff open).
func (q *sendingConnQueue) add(c *Connection) {
	if _, ok := q.elems[c.ID]; ok {
		return
	}
	q.elems[c.ID] = q.order.PushFront(c)
}

// remove drops a connection from the rotation, e.g. on cleanup or shutdown.
func (q *sendingConnQueue) remove(id uint32) {
	if e, ok := q.elems[id]; ok {
		q.order.Remove(e)
		delete(q.elems, id)
	}
}

// touch moves a connection to the back of the rotation after it was picked
// to send, marking it as most-recently-used.
func (q *sendingConnQueue) touch(id uint32) {
	if e, ok := q.elems[id]; ok {
		q.order.MoveToBack(e)
	}
}

// head returns the least-recently-used-for-sending connection, if any.
func (q *sendingConnQueue) head() (*Connection, bool) {
	e := q.order.Front()
	if e == nil {
		return nil, false
	}
	return e.Value.(*Connection), true
}

func (q *sendingConnQueue) len() int { return len(q.elems) }

// all returns every connection currently in the rotation, front to back.
func (q *sendingConnQueue) all() []*Connection {
	out := make([]*Connection, 0, q.order.Len())
	for e := q.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Connection))
	}
	return out
}

// sendingQueue is the tagged union of spec.md §3: either Offline(PacketQueue)
// or Online(SendingConnectionQueue), never both.
type sendingQueue struct {
	offline *packetQueue
	online  *sendingConnQueue
}

func newOfflineSendingQueue(maxOfflinePack int) *sendingQueue {
	return &sendingQueue{offline: newPacketQueue(maxOfflinePack)}
}

func (q *sendingQueue) isOffline() bool { return q.offline != nil }
