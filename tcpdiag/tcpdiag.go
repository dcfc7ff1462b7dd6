// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package tcpdiag supplements the client's timer-driven Busy→Slow
// heuristic (spec.md §4.7) with an optional, best-effort TCP_INFO reading
// of the underlying socket, so operators can see *why* a connection went
// Slow (high RTT, pending retransmits) rather than only *that* its busy
// timer fired. It never participates in the Busy→Slow decision itself —
// that stays exactly the BusyTimeout-driven transition the spec requires.
package tcpdiag

import (
	"errors"
	"net"
	"time"

	"github.com/chank/go-bcp/internal/util"
)

// ErrUnsupported is returned on platforms (or for connection types) this
// package has no TCP_INFO reader for.
var ErrUnsupported = errors.New("tcpdiag: TCP_INFO not supported on this platform/connection")

// Sample is the subset of Linux's tcp_info this package surfaces.
type Sample struct {
	RTT         time.Duration
	RTTVariance time.Duration
	Retransmits uint32
	TotalRetrans uint32
}

// Read attempts to read TCP_INFO for conn. It returns ErrUnsupported on any
// platform other than Linux, for any net.Conn that isn't backed by a raw
// *net.TCPConn file descriptor, or for a loopback connection (where RTT
// noise swamps the signal and operators gain nothing from it).
func Read(conn net.Conn) (Sample, error) {
	if conn.RemoteAddr() != nil && util.IsLoopback(conn.RemoteAddr().String()) {
		return Sample{}, ErrUnsupported
	}
	return readPlatform(conn)
}
