// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import "testing"

func TestConnectionEnqueueAndAck(t *testing.T) {
	c := newConnection(1)
	if !c.allConfirmed() {
		t.Fatalf("allConfirmed() = false for a fresh connection")
	}

	c.enqueueUnconfirmed(DataPacket{Buffers: [][]byte{[]byte("a")}})
	c.enqueueUnconfirmed(DataPacket{Buffers: [][]byte{[]byte("b")}})
	if c.allConfirmed() {
		t.Fatalf("allConfirmed() = true with two packets outstanding")
	}
	if c.numDataSent != 2 {
		t.Errorf("numDataSent = %d, want 2", c.numDataSent)
	}

	if !c.popAcknowledged() {
		t.Fatalf("popAcknowledged() = false, want true")
	}
	if c.numAckReceivedForData != 1 {
		t.Errorf("numAckReceivedForData = %d, want 1", c.numAckReceivedForData)
	}
	if !c.popAcknowledged() {
		t.Fatalf("popAcknowledged() = false on second pop, want true")
	}
	if !c.allConfirmed() {
		t.Errorf("allConfirmed() = false after draining both packets")
	}
	if c.popAcknowledged() {
		t.Errorf("popAcknowledged() = true on an empty queue")
	}
}

func TestConnectionDrainable(t *testing.T) {
	c := newConnection(1)
	if c.drainable() {
		t.Fatalf("drainable() = true before Finish in either direction")
	}

	c.enqueueUnconfirmed(FinishPacket{})
	if c.drainable() {
		t.Fatalf("drainable() = true with Finish still unconfirmed")
	}
	c.popAcknowledged()
	if !c.isFinishSent {
		t.Fatalf("isFinishSent = false after enqueueing Finish")
	}
	if c.drainable() {
		t.Fatalf("drainable() = true before the peer's Finish arrived")
	}

	id := uint32(0)
	c.finishIDReceived = &id
	if !c.drainable() {
		t.Errorf("drainable() = false once both directions finished and nothing is outstanding")
	}
}

func TestConnectionRetransmissionPackets(t *testing.T) {
	c := newConnection(5)
	c.enqueueUnconfirmed(DataPacket{Buffers: [][]byte{[]byte("x")}})
	c.enqueueUnconfirmed(FinishPacket{})

	out := c.retransmissionPackets(5)
	if len(out) != 2 {
		t.Fatalf("retransmissionPackets returned %d packets, want 2", len(out))
	}
	data, ok := out[0].(RetransmissionDataPacket)
	if !ok {
		t.Fatalf("out[0] = %T, want RetransmissionDataPacket", out[0])
	}
	if data.ConnID != 5 || data.PackID != 0 {
		t.Errorf("RetransmissionDataPacket = %+v, want ConnID=5 PackID=0", data)
	}
	finish, ok := out[1].(RetransmissionFinishPacket)
	if !ok {
		t.Fatalf("out[1] = %T, want RetransmissionFinishPacket", out[1])
	}
	// Finish takes the position after the one Data packet sent before it.
	if finish.ConnID != 5 || finish.PackID != 1 {
		t.Errorf("RetransmissionFinishPacket = %+v, want ConnID=5 PackID=1", finish)
	}
	if !c.allConfirmed() {
		t.Errorf("allConfirmed() = false after retransmissionPackets cleared the queue")
	}
}

func TestGhostConnectionCountsFinishAsSent(t *testing.T) {
	g := newGhostConnection(9)
	if !g.isGhost {
		t.Fatalf("isGhost = false for newGhostConnection")
	}
	if !g.isFinishSent {
		t.Errorf("isFinishSent = false for a ghost connection, want true")
	}
}
