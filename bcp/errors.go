// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import "fmt"

// Protocol-level errors. These are returned from the codec or from the
// session engine when a peer violates the wire protocol. They always cause
// the offending stream (and, for session-level violations, the whole
// session) to be torn down.
var (
	ErrUnknownHead           = fmt.Errorf("bcp: unknown packet tag")
	ErrVarintTooBig          = fmt.Errorf("bcp: varint exceeds maximum width")
	ErrDataTooBig            = fmt.Errorf("bcp: data payload exceeds MaxDataSize")
	ErrShortHandshake        = fmt.Errorf("bcp: truncated connection handshake")
	ErrAlreadyReceivedFinish = fmt.Errorf("bcp: finish already received on this connection")
)

// Session-level violations. ErrConnectionIDRegression, ErrOfflineQueueFull
// and an id gap reported as ErrTooManyConnections interrupt the session;
// addStream's admission limits (ErrTooManyConnections on a full table,
// ErrTooManyActiveStreams) reject only the new stream.
var (
	ErrConnectionIDRegression = fmt.Errorf("bcp: connection id regressed below lastConnectionId")
	ErrTooManyConnections     = fmt.Errorf("bcp: connection id gap would exceed MaxConnectionsPerSession")
	ErrOfflineQueueFull       = fmt.Errorf("bcp: offline packet queue exceeded MaxOfflinePack")
	ErrTooManyActiveStreams   = fmt.Errorf("bcp: active stream count exceeds MaxActiveConnectionsPerSession")
)

// ErrSessionShutdown is returned by Send once a session has been
// shut down or interrupted.
var ErrSessionShutdown = fmt.Errorf("bcp: session is shut down")

// InterruptedError wraps the cause that made the session engine call
// internalInterrupt. Callers that want to distinguish a protocol violation
// from a resource-exhaustion violation should errors.Is/As against the
// sentinels above via Unwrap.
type InterruptedError struct {
	Cause error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("bcp: session interrupted: %v", e.Cause)
}

func (e *InterruptedError) Unwrap() error {
	return e.Cause
}

// ConnectionError reports a protocol or transport failure local to a single
// connection. It does not necessarily end the session.
type ConnectionError struct {
	ConnectionID uint32
	Cause        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("bcp: connection %d: %v", e.ConnectionID, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}
