// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/chank/go-bcp/internal/util"
)

// ServerOption configures a Server. See ClientOption for why this is an
// alias rather than a distinct type.
type ServerOption = Option

// Accepted is invoked for each Session the server constructs for a sessionId
// it has not seen, before that Session is inserted into the server's table
// and before any stream is attached to it. If two streams race to open the
// same new sessionId, it may also run for a Session that is then discarded.
// It returns the Callbacks that session's application-level notifications
// should be delivered through.
type Accepted func(s *Session) Callbacks

// Server demuxes freshly accepted streams into sessions keyed by sessionId
// (spec.md §4.8). SessionId is compared by content, never by pointer
// identity, so the table below is keyed directly on the fixed-width array
// value — the same content-keying the teacher's ServerSessionStateStore
// does with a string session id.
type Server struct {
	mu       sync.Mutex
	sessions map[SessionID]*Session

	opts     Options
	accepted Accepted
	logger   *slog.Logger
}

// NewServer constructs a Server with no sessions yet.
func NewServer(accepted Accepted, opts ...ServerOption) *Server {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	o = o.withDefaults()
	return &Server{
		sessions: make(map[SessionID]*Session),
		opts:     o,
		accepted: accepted,
		logger:   o.Logger,
	}
}

// Serve accepts connections from ln until it returns an error, handing each
// to Handle in its own goroutine. It always returns a non-nil error, same
// as net/http's Serve.
func (srv *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Handle(conn); err != nil {
				srv.logger.Warn("rejected incoming connection", "remote", conn.RemoteAddr(), "error", err)
			}
		}()
	}
}

// Handle performs the accept-time handshake and dispatch of spec.md §4.8
// for one freshly accepted net.Conn: read ConnectionHead, look up or
// create the session, apply isRenew if requested, then hand the stream to
// the session's addStream admission path.
func (srv *Server) Handle(conn net.Conn) error {
	r := bufio.NewReader(conn)
	head, err := DecodeConnectionHead(r)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("bcp: connection head: %w", err)
	}

	s := srv.sessionFor(head.SessionID)
	if head.IsRenew {
		s.renew()
	}
	if remote := conn.RemoteAddr(); remote != nil && util.IsLoopback(remote.String()) {
		// tcpdiag skips TCP_INFO sampling on loopback (RTT noise swamps the
		// signal there); log it at accept time so its absence from a
		// session's diagnostics isn't mistaken for a platform problem.
		s.logger.Debug("accepted loopback connection", "connection_id", head.ConnectionID, "remote", remote)
	}

	stream := NewTCPStreamFromReader(conn, r, srv.opts.streamOptions())
	if err := s.addStream(head.ConnectionID, stream); err != nil {
		_ = stream.Close()
		return fmt.Errorf("bcp: add stream %d to session %x: %w", head.ConnectionID, head.SessionID[:], err)
	}
	return nil
}

// sessionFor looks up the session for id, constructing and registering one
// on first contact (spec.md §4.8: "if absent, construct a new session,
// invoking accepted() after commit, and insert"). accepted() is always
// called with srv.mu released, matching spec.md §5's rule that no lock is
// ever held across a user callback: a callback that calls back into the
// Server (Sessions, a concurrent Handle racing to look up this or another
// session id) must not deadlock on this same mutex.
func (srv *Server) sessionFor(id SessionID) *Session {
	srv.mu.Lock()
	if s, ok := srv.sessions[id]; ok {
		srv.mu.Unlock()
		return s
	}
	srv.mu.Unlock()

	s := NewSession(id, "server", srv.opts, Callbacks{})
	cb := srv.accepted(s).withDefaults()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if existing, ok := srv.sessions[id]; ok {
		return existing
	}
	s.cb = cb
	srv.sessions[id] = s
	return s
}

// Sessions returns a snapshot slice of every currently tracked session, for
// diagnostics and graceful-shutdown sweeps.
func (srv *Server) Sessions() []*Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]*Session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		out = append(out, s)
	}
	return out
}

// Forget drops a session from the table, e.g. once its ShutedDown callback
// has fired. It does not itself shut the session down.
func (srv *Server) Forget(id SessionID) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.sessions, id)
}
