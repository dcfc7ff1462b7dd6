// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"io"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeStream is a deterministic, in-process Stream: WritePacket and Close
// take effect synchronously (no writer goroutine), and ReadPacket blocks on
// an explicit inbox so tests control exactly when the engine observes each
// incoming frame instead of racing a real socket.
type fakeStream struct {
	mu     sync.Mutex
	outbox []Packet
	inbox  chan Packet
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{inbox: make(chan Packet, 16)}
}

func (f *fakeStream) ReadPacket() (Packet, error) {
	p, ok := <-f.inbox
	if !ok {
		return nil, io.EOF
	}
	return p, nil
}

func (f *fakeStream) WritePacket(p Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return io.ErrClosedPipe
	}
	f.outbox = append(f.outbox, p)
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
	return nil
}

func (f *fakeStream) RemoteAddr() string { return "fake" }

func (f *fakeStream) written() []Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Packet, len(f.outbox))
	copy(out, f.outbox)
	return out
}

func newTestSession(t *testing.T, role string, cb Callbacks) *Session {
	t.Helper()
	opts := Options{}.withDefaults()
	return NewSession(SessionID{1}, role, opts, cb)
}

func TestSessionSendWritesDataOnTheOnlyConnection(t *testing.T) {
	s := newTestSession(t, "client", Callbacks{})
	stream := newFakeStream()
	if err := s.installStream(0, stream); err != nil {
		t.Fatalf("installStream: %v", err)
	}

	if err := s.Send([][]byte{[]byte("hi")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := []Packet{DataPacket{Buffers: [][]byte{[]byte("hi")}}}
	if diff := cmp.Diff(want, stream.written()); diff != "" {
		t.Errorf("stream.written() mismatch (-want +got):\n%s", diff)
	}
	c := s.connections[0]
	if c.allConfirmed() {
		t.Errorf("allConfirmed() = true before the peer's Acknowledge arrived")
	}
}

func TestSessionAckDrainsUnconfirmed(t *testing.T) {
	s := newTestSession(t, "client", Callbacks{})
	stream := newFakeStream()
	if err := s.installStream(0, stream); err != nil {
		t.Fatalf("installStream: %v", err)
	}
	if err := s.Send([][]byte{[]byte("hi")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.handleIncoming(0, AcknowledgePacket{}); err != nil {
		t.Fatalf("handleIncoming: %v", err)
	}
	if c := s.connections[0]; !c.allConfirmed() {
		t.Errorf("allConfirmed() = false after the matching Acknowledge")
	}
}

func TestSessionReceiveDeliversAndAcks(t *testing.T) {
	var got [][]byte
	s := newTestSession(t, "server", Callbacks{Received: func(b [][]byte) { got = b }})
	stream := newFakeStream()
	if err := s.installStream(0, stream); err != nil {
		t.Fatalf("installStream: %v", err)
	}

	if err := s.handleIncoming(0, DataPacket{Buffers: [][]byte{[]byte("payload")}}); err != nil {
		t.Fatalf("handleIncoming: %v", err)
	}

	if diff := cmp.Diff([][]byte{[]byte("payload")}, got); diff != "" {
		t.Errorf("Received buffers mismatch (-want +got):\n%s", diff)
	}
	want := []Packet{AcknowledgePacket{}}
	if diff := cmp.Diff(want, stream.written()); diff != "" {
		t.Errorf("stream.written() mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionRetransmissionDataDeliveredAtMostOnce(t *testing.T) {
	var mu sync.Mutex
	var calls int
	s := newTestSession(t, "server", Callbacks{Received: func([][]byte) {
		mu.Lock()
		calls++
		mu.Unlock()
	}})
	stream := newFakeStream()
	if err := s.installStream(0, stream); err != nil {
		t.Fatalf("installStream: %v", err)
	}

	pkt := RetransmissionDataPacket{ConnID: 0, PackID: 5, Buffers: [][]byte{[]byte("x")}}
	if err := s.handleIncoming(0, pkt); err != nil {
		t.Fatalf("handleIncoming 1: %v", err)
	}
	if err := s.handleIncoming(0, pkt); err != nil {
		t.Fatalf("handleIncoming 2 (duplicate): %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("Received called %d times, want exactly 1 (at-most-once delivery)", calls)
	}
}

func TestSessionConnectionDrainsOnceBothDirectionsFinish(t *testing.T) {
	s := newTestSession(t, "server", Callbacks{})
	stream := newFakeStream()
	if err := s.installStream(0, stream); err != nil {
		t.Fatalf("installStream: %v", err)
	}

	if err := s.handleIncoming(0, FinishPacket{}); err != nil {
		t.Fatalf("handleIncoming Finish: %v", err)
	}
	if _, ok := s.connections[0]; !ok {
		t.Fatalf("connection 0 removed too early: our own Finish has not been acked yet")
	}

	if err := s.handleIncoming(0, AcknowledgePacket{}); err != nil {
		t.Fatalf("handleIncoming Ack: %v", err)
	}
	if _, ok := s.connections[0]; ok {
		t.Errorf("connection 0 still present after both directions finished and drained")
	}
}

func TestSessionCleanupRedistributesUnconfirmedAcrossSurvivors(t *testing.T) {
	s := newTestSession(t, "client", Callbacks{})
	s1, s2 := newFakeStream(), newFakeStream()
	if err := s.installStream(0, s1); err != nil {
		t.Fatalf("installStream 0: %v", err)
	}
	if err := s.installStream(1, s2); err != nil {
		t.Fatalf("installStream 1: %v", err)
	}

	// A newly installed connection joins the front of the sending rotation,
	// so this Send lands on connection 1; the check below reads which
	// stream actually got it rather than relying on that.
	if err := s.Send([][]byte{[]byte("m1")}); err != nil {
		t.Fatalf("Send m1: %v", err)
	}

	var lostID, survivorID uint32 = 0, 1
	if len(s1.written()) == 0 {
		lostID, survivorID = 1, 0
	}

	s.handleStreamError(lostID, io.EOF)

	// The peer's Finish has not arrived, so invariant C1 keeps the lost
	// connection tracked, with its stream detached.
	if lost, ok := s.connections[lostID]; !ok || lost.isOpen() {
		t.Errorf("connection %d: tracked=%v, want tracked and closed until the peer's Finish arrives", lostID, ok)
	}
	survivor := s.connections[survivorID]
	if survivor == nil {
		t.Fatalf("surviving connection %d missing from table", survivorID)
	}
	found := false
	for _, p := range survivor.unconfirmed {
		if rp, ok := p.packet.(RetransmissionDataPacket); ok && rp.ConnID == lostID {
			found = true
		}
	}
	if !found {
		t.Errorf("survivor's unconfirmed queue does not contain the redistributed retransmission")
	}
}

func TestSessionShutDownClosesStreamsAndNotifies(t *testing.T) {
	shutdown := make(chan struct{}, 1)
	s := newTestSession(t, "client", Callbacks{ShutedDown: func() { shutdown <- struct{}{} }})
	stream := newFakeStream()
	if err := s.installStream(0, stream); err != nil {
		t.Fatalf("installStream: %v", err)
	}

	s.ShutDown()

	select {
	case <-shutdown:
	default:
		t.Fatalf("ShutedDown callback did not fire")
	}
	if !s.IsShutdown() {
		t.Errorf("IsShutdown() = false after ShutDown()")
	}
	if err := s.Send([][]byte{[]byte("too late")}); err == nil {
		t.Errorf("Send() after ShutDown() = nil error, want ErrSessionShutdown")
	}
}

func TestSessionInterruptClearsConnections(t *testing.T) {
	interrupted := make(chan error, 1)
	s := newTestSession(t, "client", Callbacks{Interrupted: func(err error) { interrupted <- err }})
	stream := newFakeStream()
	if err := s.installStream(0, stream); err != nil {
		t.Fatalf("installStream: %v", err)
	}

	s.Interrupt()

	select {
	case <-interrupted:
	default:
		t.Fatalf("Interrupted callback did not fire")
	}
	if len(s.connections) != 0 {
		t.Errorf("connections = %d, want 0 after Interrupt", len(s.connections))
	}
}
