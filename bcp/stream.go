// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// Stream is the per-connection transport the session engine reads frames
// from and writes frames to. spec.md treats the socket-level read/write
// queueing and heartbeat scheduling as an external collaborator; Stream is
// the interface the core depends on, and tcpStream below is the default,
// concrete implementation over a net.Conn.
type Stream interface {
	// ReadPacket blocks until one full frame has been decoded, the
	// ReadingTimeout has elapsed, or the stream is closed.
	ReadPacket() (Packet, error)
	// WritePacket enqueues p on the stream's write queue. It may block
	// briefly under backpressure but never blocks on network I/O itself;
	// actual writes, and their WritingTimeout, happen on the stream's own
	// writer goroutine.
	WritePacket(p Packet) error
	// Close tears down the underlying connection and stops the stream's
	// background goroutines. Safe to call more than once.
	Close() error
	// RemoteAddr is used only for logging.
	RemoteAddr() string
}

// StreamOptions configures the default tcpStream.
type StreamOptions struct {
	ReadingTimeout  time.Duration
	WritingTimeout  time.Duration
	HeartBeatDelay  time.Duration
	MaxDataSize     int
	WriteQueueDepth int
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.ReadingTimeout <= 0 {
		o.ReadingTimeout = 60 * time.Second
	}
	if o.WritingTimeout <= 0 {
		o.WritingTimeout = 10 * time.Second
	}
	if o.HeartBeatDelay <= 0 {
		o.HeartBeatDelay = 15 * time.Second
	}
	if o.MaxDataSize <= 0 {
		o.MaxDataSize = 1 << 20
	}
	if o.WriteQueueDepth <= 0 {
		o.WriteQueueDepth = 64
	}
	return o
}

// tcpStream is the default Stream implementation: one reader using a
// per-read deadline, one writer goroutine draining a bounded queue with a
// per-write deadline, and a ticker goroutine that enqueues a HeartBeat frame
// every HeartBeatDelay, skipping a beat when the write queue is full.
type tcpStream struct {
	conn net.Conn
	r    *bufio.Reader
	opts StreamOptions

	writeQueue chan Packet
	writeErrMu sync.Mutex
	writeErr   error

	closeOnce sync.Once
	closed    chan struct{}
}

// NewTCPStream wraps conn as a Stream, starting its writer and heartbeat
// goroutines. The caller must still perform (or have already performed) the
// ConnectionHead handshake on conn.
func NewTCPStream(conn net.Conn, opts StreamOptions) Stream {
	return newTCPStream(conn, bufio.NewReader(conn), opts)
}

// NewTCPStreamFromReader is like NewTCPStream but reuses a *bufio.Reader
// that may already hold bytes buffered past an out-of-band read performed
// before the stream took ownership of conn (the server reads
// ConnectionHead off its own bufio.Reader before handing the connection to
// a Stream).
func NewTCPStreamFromReader(conn net.Conn, r *bufio.Reader, opts StreamOptions) Stream {
	return newTCPStream(conn, r, opts)
}

func newTCPStream(conn net.Conn, r *bufio.Reader, opts StreamOptions) Stream {
	opts = opts.withDefaults()
	s := &tcpStream{
		conn:       conn,
		r:          r,
		opts:       opts,
		writeQueue: make(chan Packet, opts.WriteQueueDepth),
		closed:     make(chan struct{}),
	}
	go s.writeLoop()
	go s.heartbeatLoop()
	return s
}

func (s *tcpStream) ReadPacket() (Packet, error) {
	if s.opts.ReadingTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadingTimeout))
	}
	return DecodePacket(s.r, s.opts.MaxDataSize)
}

func (s *tcpStream) WritePacket(p Packet) error {
	select {
	case s.writeQueue <- p:
		return nil
	case <-s.closed:
		return net.ErrClosed
	}
}

func (s *tcpStream) writeLoop() {
	buf := make([]byte, 0, 4096)
	for {
		select {
		case p := <-s.writeQueue:
			buf = buf[:0]
			buf = EncodePacket(buf, p)
			if s.opts.WritingTimeout > 0 {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WritingTimeout))
			}
			if _, err := s.conn.Write(buf); err != nil {
				s.writeErrMu.Lock()
				s.writeErr = err
				s.writeErrMu.Unlock()
				_ = s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *tcpStream) heartbeatLoop() {
	t := time.NewTicker(s.opts.HeartBeatDelay)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			select {
			case s.writeQueue <- HeartBeatPacket{}:
			default:
				// write queue is backed up; skip this beat rather than block
			}
		case <-s.closed:
			return
		}
	}
}

func (s *tcpStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return s.conn.Close()
}

func (s *tcpStream) RemoteAddr() string {
	if a := s.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
