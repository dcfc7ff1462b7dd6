// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package bcp implements the Bundled Connection Protocol: a reliable
// message-oriented session layer that bundles one-to-many concurrent byte
// streams into a single logical bidirectional channel. As long as at least
// one stream is alive (or can be re-established), the session's message
// stream stays intact, with at-most-once delivery and in-order receipt.
package bcp

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chank/go-bcp/bcpdebug"
	"golang.org/x/time/rate"
)

// MetricsSink receives session lifecycle events for observability. See
// bcpmetrics for a Prometheus-backed implementation. All methods must be
// safe for concurrent use and must not block.
type MetricsSink interface {
	ConnectionOpened(sessionID string, role string)
	ConnectionClosed(sessionID string, role string)
	RetransmissionSent(sessionID string, role string)
	OfflineQueueDepth(sessionID string, role string, depth int)
	SessionInterrupted(sessionID string, role string)
	SessionShutdown(sessionID string, role string)
}

// Callbacks are the session→application notifications of spec.md §6.
type Callbacks struct {
	// Received is invoked once per accepted application message, with the
	// buffers exactly as sent (invariant C6: at-most-once, even under
	// retransmission).
	Received func(buffers [][]byte)
	// Available fires once when the sending queue transitions Offline→Online.
	Available func()
	// Unavailable fires on the reverse transition.
	Unavailable func()
	// ShutedDown fires once a graceful ShutDown has fully committed.
	ShutedDown func()
	// Interrupted fires once an abnormal, session-wide failure has
	// committed; err identifies the cause.
	Interrupted func(err error)
}

func (c Callbacks) withDefaults() Callbacks {
	if c.Received == nil {
		c.Received = func([][]byte) {}
	}
	if c.Available == nil {
		c.Available = func() {}
	}
	if c.Unavailable == nil {
		c.Unavailable = func() {}
	}
	if c.ShutedDown == nil {
		c.ShutedDown = func() {}
	}
	if c.Interrupted == nil {
		c.Interrupted = func(error) {}
	}
	return c
}

// txn accumulates the side effects ("after-commit hooks") a locked session
// operation wants to perform once the lock is released, plus the
// "after-rollback hooks" that undo anything scheduled optimistically if the
// operation aborts before committing. This is the disciplined substitute
// the design notes call for in place of the source's STM: never write to a
// socket, invoke a user callback, or leave a timer armed from a state that
// didn't actually commit.
type txn struct {
	commit   []func()
	rollback []func()
}

func (t *txn) onCommit(f func())   { t.commit = append(t.commit, f) }
func (t *txn) onRollback(f func()) { t.rollback = append(t.rollback, f) }

// Session is the per-session protocol engine of spec.md §3–§5: a single
// logical serial domain (guarded by mu) that multiplexes logical messages
// over N concurrent connections. ClientSession and Server layer
// role-specific behavior on top (spec.md §4.7, §4.8); Session itself is
// role-agnostic.
type Session struct {
	mu sync.Mutex

	id   SessionID
	role string // "client" or "server", for logging/metrics labels only
	opts Options

	connections map[uint32]*Connection
	lastConnID  uint32
	sendQ       *sendingQueue
	isShutdown  bool

	logger  *slog.Logger
	metrics MetricsSink
	cb      Callbacks

	// Client-role hooks (nil on server sessions). Session stays
	// role-agnostic: it flips Connection.state and calls these as
	// after-commit hooks; ClientSession supplies them to drive its
	// Idle/Busy/Slow machinery (spec.md §4.7).
	onConnBusy func(c *Connection)
	onConnIdle func(c *Connection)

	// warnOfflineFull throttles the "offline queue full" log line so a
	// pathological sender spamming Send after the session has gone
	// Interrupted can't flood the log: log the first occurrence, then at
	// most once per 10s after that.
	warnOfflineFull rate.Sometimes
}

// setClientHooks wires the client-role Idle/Busy transition callbacks.
// Called once by NewClientSession.
func (s *Session) setClientHooks(onBusy, onIdle func(c *Connection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnBusy = onBusy
	s.onConnIdle = onIdle
}

// transitionBusy moves c from Idle to Busy the first time it has an
// outstanding unconfirmed packet, invoking the client's busy(connection)
// hook if one is registered.
func (s *Session) transitionBusy(tx *txn, c *Connection) {
	if c.state == ConnBusy || c.state == ConnSlow {
		return
	}
	c.state = ConnBusy
	if s.onConnBusy != nil {
		hook, cc := s.onConnBusy, c
		tx.onCommit(func() { hook(cc) })
	}
}

// transitionIdleOnDrain moves c back to Idle once its unconfirmed queue has
// drained to empty, cancelling any armed busy timer and invoking the
// client's idle(connection) hook if one is registered.
func (s *Session) transitionIdleOnDrain(tx *txn, c *Connection) {
	if c.busyTimer != nil {
		t := c.busyTimer
		c.busyTimer = nil
		tx.onCommit(func() { t.Stop() })
	}
	if c.state == ConnIdle {
		return
	}
	c.state = ConnIdle
	if s.onConnIdle != nil {
		hook, cc := s.onConnIdle, c
		tx.onCommit(func() { hook(cc) })
	}
}

// NewSession constructs a Session with no connections, starting Offline.
func NewSession(id SessionID, role string, opts Options, cb Callbacks) *Session {
	opts = opts.withDefaults()
	s := &Session{
		id:          id,
		role:        role,
		opts:        opts,
		connections: make(map[uint32]*Connection),
		sendQ:       newOfflineSendingQueue(opts.MaxOfflinePack),
		logger:      opts.Logger.With("session_id", fmt.Sprintf("%x", id[:]), "role", role),
		metrics:     opts.Metrics,
		cb:          cb.withDefaults(),
	}
	s.warnOfflineFull = rate.Sometimes{First: 1, Interval: 10 * time.Second}
	return s
}

// ID returns the session's opaque identifier.
func (s *Session) ID() SessionID { return s.id }

// withLock runs fn under mu, then runs its accumulated after-commit hooks
// (on nil error) or after-rollback hooks (otherwise) with mu released, so no
// hook ever executes network I/O or a user callback while holding the lock.
func (s *Session) withLock(fn func(tx *txn) error) error {
	tx := &txn{}
	s.mu.Lock()
	err := fn(tx)
	s.mu.Unlock()
	if err != nil {
		for _, f := range tx.rollback {
			f()
		}
		return err
	}
	for _, f := range tx.commit {
		f()
	}
	return nil
}

// --- connection registry -------------------------------------------------

// synthesizeGhosts fills every id in (fromExclusive, toInclusive] with a
// ghost Connection (spec.md §4.4), bumping lastConnID. Caller holds mu.
func (s *Session) synthesizeGhosts(fromExclusive, toInclusive uint32) {
	for id := fromExclusive + 1; id <= toInclusive; id++ {
		if _, ok := s.connections[id]; !ok {
			s.connections[id] = newGhostConnection(id)
		}
	}
	if toInclusive > s.lastConnID {
		s.lastConnID = toInclusive
	}
}

// ensureConnectionForRoute resolves the Connection a Retransmission* packet
// addressed to targetID should be delivered through, synthesizing ghost
// connections for any gap (targetID inclusive) per spec.md §4.4. A nil,
// nil return means targetID was already fully drained and removed; the
// packet should be silently ignored.
func (s *Session) ensureConnectionForRoute(targetID uint32) (*Connection, error) {
	if c, ok := s.connections[targetID]; ok {
		return c, nil
	}
	if targetID <= s.lastConnID {
		return nil, nil
	}
	gap := targetID - s.lastConnID
	if gap+uint32(len(s.connections)) >= uint32(s.opts.MaxConnectionsPerSession) {
		return nil, ErrTooManyConnections
	}
	s.synthesizeGhosts(s.lastConnID, targetID)
	return s.connections[targetID], nil
}

// removeIfDrainable runs cleanup (spec.md §4.5) and deletes c from the
// connection table once invariant C1 holds: drop it from the sending
// rotation so pickConnection can never select it again, close its stream
// if still open, then remove it and record the metrics side effect as an
// after-commit hook. Safe to call on a connection cleanupLocked already
// tore down (stream nil, already out of sendQ.online) — both steps are
// no-ops in that case.
func (s *Session) removeIfDrainable(tx *txn, c *Connection) {
	if !c.drainable() {
		return
	}
	if s.sendQ.online != nil {
		s.sendQ.online.remove(c.ID)
	}
	if c.stream != nil {
		stream := c.stream
		c.stream = nil
		tx.onCommit(func() { _ = stream.Close() })
	}
	delete(s.connections, c.ID)
	tx.onCommit(func() {
		if s.metrics != nil {
			s.metrics.ConnectionClosed(s.logID(), s.role)
		}
	})
}

func (s *Session) logID() string { return fmt.Sprintf("%x", s.id[:]) }

// --- sending queue scheduling (spec.md §4.2) -----------------------------

// pickConnection returns the least-recently-used-for-sending open
// connection, if the session is Online. Caller holds mu.
func (s *Session) pickConnection() (*Connection, bool) {
	if s.sendQ.isOffline() {
		return nil, false
	}
	return s.sendQ.online.head()
}

// afterSend updates scheduling state once a packet has been handed to a
// connection's stream: move it to the back of the rotation, and flip
// Idle→Busy if this was its first outstanding packet. wasAllConfirmed is
// evaluated by the caller before the packet was appended to unconfirmed.
func (s *Session) afterSend(tx *txn, c *Connection, wasAllConfirmed, requiresAck bool) {
	s.sendQ.online.touch(c.ID)
	if wasAllConfirmed && requiresAck {
		s.transitionBusy(tx, c)
	}
}

// enqueue is the AcknowledgeRequired send path (spec.md §4.2): pick a
// connection, write the packet, record it as unconfirmed. If the session is
// Offline, the packet is buffered instead, up to MaxOfflinePack.
func (s *Session) enqueue(p Packet) error {
	return s.withLock(func(tx *txn) error {
		return s.enqueueLocked(tx, p)
	})
}

func (s *Session) enqueueLocked(tx *txn, p Packet) error {
	if s.isShutdown {
		return ErrSessionShutdown
	}
	if s.sendQ.isOffline() {
		if err := s.sendQ.offline.push(p); err != nil {
			// MaxOfflinePack overflow is a session-level violation.
			max := s.opts.MaxOfflinePack
			s.warnOfflineFull.Do(func() {
				// Send returns err from its transaction (rollback hooks run);
				// cleanupLocked only logs it (commit hooks run).
				warn := func() {
					s.logger.Warn("offline packet queue full, interrupting session", "max", max)
				}
				tx.onCommit(warn)
				tx.onRollback(warn)
			})
			s.internalInterruptLocked(tx, err)
			return err
		}
		depth := s.sendQ.offline.len()
		tx.onCommit(func() {
			if s.metrics != nil {
				s.metrics.OfflineQueueDepth(s.logID(), s.role, depth)
			}
		})
		return nil
	}
	c, ok := s.pickConnection()
	if !ok {
		return fmt.Errorf("bcp: no open connection despite Online sendingQueue")
	}
	wasAllConfirmed := c.allConfirmed()
	stream := c.stream
	c.enqueueUnconfirmed(p)
	s.afterSend(tx, c, wasAllConfirmed, true)
	connID := c.ID
	tx.onCommit(func() {
		if err := stream.WritePacket(p); err != nil {
			s.handleStreamError(connID, err)
		}
	})
	return nil
}

// trySend is the fire-and-forget path for packets that never require an
// ack (HeartBeat is handled by the stream itself; this is used for
// ShutDown).
func (s *Session) trySend(p Packet) {
	_ = s.withLock(func(tx *txn) error {
		if s.sendQ.isOffline() {
			return nil // nothing to send to
		}
		c, ok := s.pickConnection()
		if !ok {
			return nil
		}
		s.sendQ.online.touch(c.ID)
		stream := c.stream
		tx.onCommit(func() {
			_ = stream.WritePacket(p)
		})
		return nil
	})
}

// Send submits one application message (one or more buffers, atomically)
// for delivery (spec.md §6 send(buffers...)).
func (s *Session) Send(buffers [][]byte) error {
	return s.enqueue(DataPacket{Buffers: buffers})
}

// flushOffline moves every buffered offline packet onto newly-opened
// connection c's unconfirmed queue and stream (spec.md §4.2: "when the
// first connection attaches later, all buffered packets are flushed onto
// that connection"). Caller holds mu; c must already be Online.
func (s *Session) flushOffline(tx *txn, c *Connection) {
	pending := s.sendQ.offline.drain()
	stream := c.stream
	for _, p := range pending {
		wasAllConfirmed := c.allConfirmed()
		c.enqueueUnconfirmed(p)
		s.afterSend(tx, c, wasAllConfirmed, true)
		pCopy := p
		tx.onCommit(func() {
			if err := stream.WritePacket(pCopy); err != nil {
				s.handleStreamError(c.ID, err)
			}
		})
	}
}

// --- stream lifecycle -----------------------------------------------------

// installStream attaches stream to connID, creating the Connection record
// if needed, transitioning Offline→Online if this is the first live
// stream, and flushing any buffered offline packets onto it. ClientSession
// calls this directly; Server goes through addStream, which performs the
// server-side admission checks first.
func (s *Session) installStream(connID uint32, stream Stream) error {
	return s.withLock(func(tx *txn) error {
		return s.installStreamLocked(tx, connID, stream)
	})
}

// installStreamLocked is the shared body of installStream and addStream.
// Caller holds mu and has already performed any role-specific admission
// checks (server's addStream) or has none to perform (client reconnects).
func (s *Session) installStreamLocked(tx *txn, connID uint32, stream Stream) error {
	c, ok := s.connections[connID]
	if !ok {
		c = newConnection(connID)
		s.connections[connID] = c
		if connID > s.lastConnID {
			s.lastConnID = connID
		}
	}
	c.stream = stream
	c.isShutdown = false
	wasOffline := s.sendQ.isOffline()
	if wasOffline {
		s.sendQ.online = newSendingConnQueue()
		s.sendQ.offline = nil
	}
	s.sendQ.online.add(c)
	if wasOffline {
		s.flushOffline(tx, c)
	}
	tx.onCommit(func() {
		if s.metrics != nil {
			s.metrics.ConnectionOpened(s.logID(), s.role)
		}
		if wasOffline {
			s.cb.Available()
		}
		go s.runReceiveLoop(connID, stream)
	})
	return nil
}

// addStream installs a freshly accepted stream for connID, enforcing the
// server-side admission safeguards of spec.md §4.8. The caller (Server)
// has already performed the ConnectionHead handshake and any isRenew
// handling via renew().
func (s *Session) addStream(connID uint32, stream Stream) error {
	return s.withLock(func(tx *txn) error {
		if len(s.connections) >= s.opts.MaxConnectionsPerSession {
			return fmt.Errorf("%w: connection %d", ErrTooManyConnections, connID)
		}
		active := 0
		for _, c := range s.connections {
			if c.isOpen() {
				active++
			}
		}
		if active >= s.opts.MaxActiveConnectionsPerSession {
			return fmt.Errorf("%w: connection %d", ErrTooManyActiveStreams, connID)
		}
		if connID < s.lastConnID {
			err := fmt.Errorf("%w: got %d, last %d", ErrConnectionIDRegression, connID, s.lastConnID)
			s.internalInterruptLocked(tx, err)
			return err
		}
		if c, ok := s.connections[connID]; ok && c.isOpen() {
			return fmt.Errorf("bcp: duplicate stream for connection %d", connID)
		}
		if connID > s.lastConnID+1 {
			gap := connID - s.lastConnID
			if gap+uint32(len(s.connections)) > uint32(s.opts.MaxConnectionsPerSession) {
				err := fmt.Errorf("%w: gap to connection %d", ErrTooManyConnections, connID)
				s.internalInterruptLocked(tx, err)
				return err
			}
			s.synthesizeGhosts(s.lastConnID, connID-1)
		}
		return s.installStreamLocked(tx, connID, stream)
	})
}

// renew resets the session per spec.md §4.8's isRenew handling: every open
// connection is torn down, the connection table and counters are cleared,
// and the sending queue drops back to empty-Offline. Used when a peer
// reconnects under a sessionId it believes is still live.
func (s *Session) renew() {
	_ = s.withLock(func(tx *txn) error {
		for _, c := range s.connections {
			if c.isOpen() {
				stream := c.stream
				c.stream = nil
				tx.onCommit(func() { _ = stream.Close() })
			}
		}
		s.connections = make(map[uint32]*Connection)
		s.lastConnID = 0
		s.sendQ = newOfflineSendingQueue(s.opts.MaxOfflinePack)
		return nil
	})
}

// runReceiveLoop is the single cooperative receive loop of spec.md §4.3: it
// reads one packet at a time from stream and dispatches it, until a
// transport error ends the connection.
func (s *Session) runReceiveLoop(connID uint32, stream Stream) {
	for {
		p, err := stream.ReadPacket()
		if err != nil {
			s.handleStreamError(connID, err)
			return
		}
		if bcpdebug.TracePackets() {
			s.logger.Debug("recv", "connection_id", connID, "kind", p.Kind())
		}
		if err := s.handleIncoming(connID, p); err != nil {
			s.logger.Warn("protocol error, closing connection", "connection_id", connID, "error", err)
			_ = stream.Close()
			s.handleStreamError(connID, err)
			return
		}
	}
}

// handleStreamError runs cleanup for a connection that just failed, either
// from a read/write transport error or a protocol violation localized to
// it (spec.md §7).
func (s *Session) handleStreamError(connID uint32, cause error) {
	_ = s.withLock(func(tx *txn) error {
		c, ok := s.connections[connID]
		if !ok || !c.isOpen() {
			return nil
		}
		s.cleanupLocked(tx, c)
		return nil
	})
	_ = cause
}

// cleanupLocked implements spec.md §4.5: remove from the sending rotation,
// ensure a local Finish has been recorded, cancel the heartbeat (owned by
// the Stream itself so nothing to do here beyond closing it), null the
// stream, and redistribute unconfirmed packets as retransmissions onto
// surviving connections. Caller holds mu.
func (s *Session) cleanupLocked(tx *txn, c *Connection) {
	if s.sendQ.online != nil {
		s.sendQ.online.remove(c.ID)
	}
	if !c.isFinishSent {
		c.enqueueUnconfirmed(FinishPacket{})
	}
	stream := c.stream
	c.stream = nil
	if stream != nil {
		tx.onCommit(func() { _ = stream.Close() })
	}

	retransmitted := c.retransmissionPackets(c.ID)
	if c.busyTimer != nil {
		t := c.busyTimer
		c.busyTimer = nil
		tx.onCommit(func() { t.Stop() })
	}
	c.state = ConnIdle

	if s.sendQ.online != nil && s.sendQ.online.len() == 0 {
		// no surviving connection: go Offline, so redistribution below
		// re-buffers instead of failing to find a connection to pick.
		s.sendQ.offline = newPacketQueue(s.opts.MaxOfflinePack)
		s.sendQ.online = nil
		tx.onCommit(func() { s.cb.Unavailable() })
	}
	for _, p := range retransmitted {
		if err := s.enqueueLocked(tx, p); err != nil {
			s.logger.Warn("failed to redistribute retransmission", "error", err)
		}
	}
	if len(retransmitted) > 0 {
		tx.onCommit(func() {
			if s.metrics != nil {
				s.metrics.RetransmissionSent(s.logID(), s.role)
			}
		})
	}

	s.removeIfDrainable(tx, c)
}

// ackOn writes a single Acknowledge directly back on the connection it
// arrived on (spec.md §4.1: decoupled from upstream delivery, so this
// happens before any application-level processing).
func (s *Session) ackOn(c *Connection) {
	if c.stream == nil {
		return
	}
	_ = c.stream.WritePacket(AcknowledgePacket{})
}

// --- receive dispatch (spec.md §4.3) --------------------------------------

func (s *Session) handleIncoming(connID uint32, p Packet) error {
	return s.withLock(func(tx *txn) error {
		c, ok := s.connections[connID]
		if !ok || c.stream == nil {
			return nil // connection already torn down locally; drop
		}
		if p.RequiresAck() {
			s.ackOn(c)
		}
		switch v := p.(type) {
		case HeartBeatPacket:
			// stream-level read deadline reset already happened in ReadPacket
		case DataPacket:
			id := c.numDataReceived
			c.numDataReceived++
			s.dataReceived(tx, c, id, v.Buffers)
		case RetransmissionDataPacket:
			target, err := s.ensureConnectionForRoute(v.ConnID)
			if err != nil {
				s.internalInterruptLocked(tx, err)
				return err
			}
			if target == nil {
				return nil // already drained, safely ignored
			}
			s.dataReceived(tx, target, v.PackID, v.Buffers)
		case AcknowledgePacket:
			wasAllConfirmed := c.allConfirmed()
			if c.popAcknowledged() && !wasAllConfirmed && c.allConfirmed() {
				s.transitionIdleOnDrain(tx, c)
				s.removeIfDrainable(tx, c)
			}
		case FinishPacket:
			if !c.isFinishSent {
				c.enqueueUnconfirmed(FinishPacket{})
				stream := c.stream
				tx.onCommit(func() { _ = stream.WritePacket(FinishPacket{}) })
			}
			id := c.numDataReceived
			c.finishIDReceived = &id
			s.removeIfDrainable(tx, c)
		case RetransmissionFinishPacket:
			target, err := s.ensureConnectionForRoute(v.ConnID)
			if err != nil {
				s.internalInterruptLocked(tx, err)
				return err
			}
			if target == nil {
				return nil
			}
			if target.finishIDReceived != nil {
				return fmt.Errorf("%w: connection %d", ErrAlreadyReceivedFinish, v.ConnID)
			}
			id := v.PackID
			target.finishIDReceived = &id
			s.removeIfDrainable(tx, target)
		case ShutDownPacket:
			s.checkShutDownLocked(tx)
		}
		return nil
	})
}

// dataReceived is the idempotent delivery step shared by Data and
// RetransmissionData (spec.md §4.3, invariant C6): if the id has already
// been seen on this connection, drop it; otherwise deliver upstream and
// record it.
func (s *Session) dataReceived(tx *txn, c *Connection, id uint32, buffers [][]byte) {
	if c.receiveIDSet.Contains(id) {
		return
	}
	c.receiveIDSet.Add(id)
	tx.onCommit(func() {
		s.cb.Received(buffers)
	})
	s.removeIfDrainable(tx, c)
}

// --- shutdown / interrupt (spec.md §4.6, §7) ------------------------------

// checkShutDownLocked performs a graceful, session-wide shutdown: send
// ShutDown on one connection, mark every open connection down, reset the
// sending queue to empty-Offline, and fire shutedDown(). Caller holds mu.
func (s *Session) checkShutDownLocked(tx *txn) {
	if s.isShutdown {
		return
	}
	s.isShutdown = true
	if c, ok := s.pickConnection(); ok {
		stream := c.stream
		tx.onCommit(func() { _ = stream.WritePacket(ShutDownPacket{}) })
	}
	for _, c := range s.connections {
		if c.isOpen() {
			c.isShutdown = true
			stream := c.stream
			c.stream = nil
			tx.onCommit(func() { _ = stream.Close() })
		}
		if c.busyTimer != nil {
			t := c.busyTimer
			c.busyTimer = nil
			tx.onCommit(func() { t.Stop() })
		}
	}
	s.sendQ = newOfflineSendingQueue(s.opts.MaxOfflinePack)
	tx.onCommit(func() {
		if s.metrics != nil {
			s.metrics.SessionShutdown(s.logID(), s.role)
		}
		s.cb.ShutedDown()
	})
}

// ShutDown performs a graceful exit (spec.md §6 shutDown()).
func (s *Session) ShutDown() {
	_ = s.withLock(func(tx *txn) error {
		s.checkShutDownLocked(tx)
		return nil
	})
}

// internalInterruptLocked is the abnormal exit of spec.md §4.6: like
// shutdown but skips sending ShutDown, fires interrupted() instead, and
// abandons pending data outright. Caller holds mu.
func (s *Session) internalInterruptLocked(tx *txn, cause error) {
	if s.isShutdown {
		return
	}
	s.isShutdown = true
	var effects []func()
	for _, c := range s.connections {
		if c.isOpen() {
			stream := c.stream
			c.stream = nil
			effects = append(effects, func() { _ = stream.Close() })
		}
		if c.busyTimer != nil {
			t := c.busyTimer
			c.busyTimer = nil
			effects = append(effects, func() { t.Stop() })
		}
	}
	s.connections = make(map[uint32]*Connection)
	s.sendQ = newOfflineSendingQueue(s.opts.MaxOfflinePack)
	wrapped := &InterruptedError{Cause: cause}
	effects = append(effects, func() {
		if s.metrics != nil {
			s.metrics.SessionInterrupted(s.logID(), s.role)
		}
		s.cb.Interrupted(wrapped)
	})
	// Callers that report the violation return it from the transaction, which
	// then runs rollback hooks instead of commit hooks; the interrupt is never
	// undone, so its side effects run on either path.
	run := func() {
		for _, f := range effects {
			f()
		}
	}
	tx.onCommit(run)
	tx.onRollback(run)
}

// Interrupt performs an abrupt exit (spec.md §6 interrupt()).
func (s *Session) Interrupt() {
	_ = s.withLock(func(tx *txn) error {
		s.internalInterruptLocked(tx, fmt.Errorf("bcp: interrupt requested by application"))
		return nil
	})
}

// IsShutdown reports whether the session has shut down or been interrupted.
func (s *Session) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isShutdown
}
