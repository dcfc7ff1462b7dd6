// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// listenLoopback starts a Server on a loopback TCP listener and returns it
// along with a Dialer that connects back to it, the loopback-TCP harness
// the end-to-end scenarios of spec.md §8 call for.
func listenLoopback(t *testing.T, accepted Accepted, opts ...ServerOption) (*Server, Dialer) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	srv := NewServer(accepted, opts...)
	go func() { _ = srv.Serve(ln) }()

	addr := ln.Addr().String()
	dialer := func(ctx context.Context) (net.Conn, error) {
		d := net.Dialer{}
		return d.DialContext(ctx, "tcp", addr)
	}
	return srv, dialer
}

func TestEndToEndSingleConnectionEcho(t *testing.T) {
	received := make(chan [][]byte, 4)
	_, dialer := listenLoopback(t, func(s *Session) Callbacks {
		return Callbacks{
			Received: func(b [][]byte) { received <- b },
		}
	})

	cs, err := NewClientSession(context.Background(), dialer, Callbacks{})
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	t.Cleanup(cs.Session().Interrupt)

	for _, msg := range [][]byte{[]byte("hi"), []byte("world")} {
		if err := cs.Session().Send([][]byte{msg}); err != nil {
			t.Fatalf("Send(%q): %v", msg, err)
		}
		select {
		case got := <-received:
			if diff := cmp.Diff([][]byte{msg}, got); diff != "" {
				t.Errorf("Received mismatch (-want +got):\n%s", diff)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting to receive %q", msg)
		}
	}
}

func TestEndToEndServerRejectsUnknownGap(t *testing.T) {
	srv, dialer := listenLoopback(t, func(s *Session) Callbacks {
		return Callbacks{}
	}, WithMaxConnectionsPerSession(2))

	conn, err := dialer(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A gap bigger than MaxConnectionsPerSession must interrupt the
	// session rather than silently synthesizing an unbounded run of
	// ghost connections.
	head := ConnectionHead{SessionID: SessionID{7}, IsRenew: false, ConnectionID: 50}
	buf := EncodeConnectionHead(nil, head)
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("write head: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	buf2 := make([]byte, 1)
	if _, err := conn.Read(buf2); err == nil {
		t.Errorf("expected the connection to be closed after an oversized gap, read succeeded")
	}

	srv.mu.Lock()
	_, stillTracked := srv.sessions[SessionID{7}]
	srv.mu.Unlock()
	if stillTracked {
		s := srv.Sessions()[0]
		if !s.IsShutdown() {
			t.Errorf("session should be interrupted after the oversized-gap admission failure")
		}
	}
}
