// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Dialer opens the underlying transport for a client session's initial
// connection, and for every reconnect attempt increaseConnection makes
// afterward.
type Dialer func(ctx context.Context) (net.Conn, error)

// ClientOption configures a ClientSession. It is the same Option used by
// NewServer; the distinct name documents intent at call sites,
// mirroring how the teacher separates its client- and server-construction
// option sets even though both ultimately populate one options struct.
type ClientOption = Option

// ClientSession layers spec.md §4.7's connection-count adaptation on top of
// a role-agnostic Session: Idle/Busy/Slow tracking, reconnect-on-Slow, and
// idle-overcapacity trim.
type ClientSession struct {
	session *Session
	dialer  Dialer
	opts    Options

	mu         sync.Mutex
	connecting bool
	nextConnID uint32
	idleTimer  *time.Timer

	reconnectLimiter *rate.Limiter
}

// NewClientSession mints a fresh sessionId, dials the first underlying
// connection, and returns a ready ClientSession. cb receives the session's
// application-level notifications (spec.md §6); the caller does not
// construct a Session directly.
func NewClientSession(ctx context.Context, dialer Dialer, cb Callbacks, opts ...ClientOption) (*ClientSession, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	o = o.withDefaults()

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	cs := &ClientSession{
		dialer:           dialer,
		opts:             o,
		reconnectLimiter: rate.NewLimiter(rate.Every(o.BusyTimeout), 1),
	}
	cs.session = NewSession(id, "client", o, cb)
	cs.session.setClientHooks(cs.onConnBusy, cs.onConnIdle)

	conn, err := dialer(ctx)
	if err != nil {
		return nil, fmt.Errorf("bcp: dial initial connection: %w", err)
	}
	if err := cs.handshakeAndInstall(conn, 0, false); err != nil {
		return nil, err
	}
	cs.nextConnID = 1
	return cs, nil
}

// Session exposes the underlying role-agnostic engine for Send/ShutDown/
// Interrupt/ID.
func (cs *ClientSession) Session() *Session { return cs.session }

// Renew reconnects under the same sessionId, telling the server to reset
// the session's state (spec.md §4.8 isRenew) rather than treat this as an
// ordinary additional connection. Renew does not clear the local session's
// shut-down state: once ShutDown or Interrupt has taken effect, Send keeps
// returning ErrSessionShutdown after a Renew.
func (cs *ClientSession) Renew(ctx context.Context) error {
	conn, err := cs.dialer(ctx)
	if err != nil {
		return fmt.Errorf("bcp: dial renew connection: %w", err)
	}
	cs.mu.Lock()
	connID := cs.nextConnID
	cs.nextConnID++
	cs.mu.Unlock()
	return cs.handshakeAndInstall(conn, connID, true)
}

func (cs *ClientSession) handshakeAndInstall(conn net.Conn, connID uint32, isRenew bool) error {
	head := ConnectionHead{SessionID: cs.session.ID(), IsRenew: isRenew, ConnectionID: connID}
	buf := EncodeConnectionHead(make([]byte, 0, NumBytesSessionId+1+maxVarintBytes), head)
	if _, err := conn.Write(buf); err != nil {
		_ = conn.Close()
		return fmt.Errorf("bcp: write connection head: %w", err)
	}
	stream := NewTCPStream(conn, cs.opts.streamOptions())
	if err := cs.session.installStream(connID, stream); err != nil {
		_ = stream.Close()
		return err
	}
	return nil
}

// onConnBusy arms a connection's busy timer the moment it flips Idle→Busy
// (spec.md §4.7). Called as a Session after-commit hook, so it never runs
// under the session's lock.
func (cs *ClientSession) onConnBusy(c *Connection) {
	s := cs.session
	_ = s.withLock(func(tx *txn) error {
		cur, ok := s.connections[c.ID]
		if !ok || cur.state != ConnBusy || cur.busyTimer != nil {
			return nil
		}
		connID := c.ID
		cur.busyTimer = time.AfterFunc(cs.opts.BusyTimeout, func() {
			cs.handleBusyTimeout(connID)
		})
		return nil
	})
}

// onConnIdle re-evaluates whether the idle-overcapacity trim timer should
// be armed now that a connection has drained to Idle (spec.md §4.7).
func (cs *ClientSession) onConnIdle(c *Connection) {
	cs.maybeArmIdleTrim()
}

// handleBusyTimeout is the Busy→Slow transition (spec.md §4.7): the busy
// timer fired before the connection's unconfirmed queue drained, so it's
// reclassified Slow and a reconnect is attempted.
func (cs *ClientSession) handleBusyTimeout(connID uint32) {
	s := cs.session
	_ = s.withLock(func(tx *txn) error {
		c, ok := s.connections[connID]
		if !ok || c.state != ConnBusy {
			return nil
		}
		c.busyTimer = nil
		c.state = ConnSlow
		return nil
	})
	cs.increaseConnection(context.Background())
}

// increaseConnection opens a new underlying connection iff not already
// connecting, the reconnect limiter (one attempt per BusyTimeout) allows it,
// the session has room for one more, and every existing connection is Slow
// (spec.md §4.7).
func (cs *ClientSession) increaseConnection(ctx context.Context) {
	cs.mu.Lock()
	if cs.connecting {
		cs.mu.Unlock()
		return
	}
	if !cs.reconnectLimiter.Allow() {
		cs.mu.Unlock()
		return
	}

	s := cs.session
	s.mu.Lock()
	n := len(s.connections)
	allSlow := n > 0
	for _, c := range s.connections {
		if c.isGhost {
			continue
		}
		if c.state != ConnSlow {
			allSlow = false
			break
		}
	}
	maxConns := s.opts.MaxConnectionsPerSession
	s.mu.Unlock()

	if n == 0 || !allSlow || n >= maxConns {
		cs.mu.Unlock()
		return
	}
	cs.connecting = true
	connID := cs.nextConnID
	cs.nextConnID++
	cs.mu.Unlock()

	go cs.dialAndInstall(ctx, connID)
}

func (cs *ClientSession) dialAndInstall(ctx context.Context, connID uint32) {
	conn, err := cs.dialer(ctx)
	cs.mu.Lock()
	cs.connecting = false
	cs.mu.Unlock()
	if err != nil {
		cs.session.logger.Warn("reconnect dial failed, backing off", "connection_id", connID, "error", err)
		time.AfterFunc(cs.opts.BusyTimeout, func() { cs.increaseConnection(ctx) })
		return
	}
	if err := cs.handshakeAndInstall(conn, connID, false); err != nil {
		cs.session.logger.Warn("reconnect handshake failed, backing off", "connection_id", connID, "error", err)
		time.AfterFunc(cs.opts.BusyTimeout, func() { cs.increaseConnection(ctx) })
	}
}

// maybeArmIdleTrim arms a single session-wide idle timer when there is at
// least one Idle connection alongside at least one other connection
// (spec.md §4.7 idle trim). Caller must not hold cs.session.mu.
func (cs *ClientSession) maybeArmIdleTrim() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.idleTimer != nil {
		return
	}

	s := cs.session
	s.mu.Lock()
	n := len(s.connections)
	hasIdle := false
	for _, c := range s.connections {
		if c.isOpen() && c.state == ConnIdle {
			hasIdle = true
			break
		}
	}
	s.mu.Unlock()

	if n <= 1 || !hasIdle {
		return
	}
	cs.idleTimer = time.AfterFunc(cs.opts.IdleTimeout, cs.trimOneIdle)
}

// trimOneIdle gracefully finishes one Idle connection once IdleTimeout has
// elapsed with the session still overcapacity (spec.md §4.7). The
// connection is not torn down here; enqueueing Finish just starts the
// normal drain (C1) that cleanupLocked/handleIncoming will complete once
// the peer acknowledges it.
func (cs *ClientSession) trimOneIdle() {
	cs.mu.Lock()
	cs.idleTimer = nil
	cs.mu.Unlock()

	s := cs.session
	_ = s.withLock(func(tx *txn) error {
		if len(s.connections) <= 1 {
			return nil
		}
		var target *Connection
		for _, c := range s.connections {
			if c.isOpen() && c.state == ConnIdle && !c.isFinishSent {
				target = c
				break
			}
		}
		if target == nil {
			return nil
		}
		wasAllConfirmed := target.allConfirmed()
		target.enqueueUnconfirmed(FinishPacket{})
		s.afterSend(tx, target, wasAllConfirmed, true)
		connID, stream := target.ID, target.stream
		tx.onCommit(func() {
			if err := stream.WritePacket(FinishPacket{}); err != nil {
				s.handleStreamError(connID, err)
			}
		})
		return nil
	})
}

func newSessionID() (SessionID, error) {
	var id SessionID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("bcp: mint session id: %w", err)
	}
	return id, nil
}
