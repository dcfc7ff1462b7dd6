// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"fmt"

	segjson "github.com/segmentio/encoding/json"
)

// ConnectionSnapshot is a read-only view of one Connection's protocol
// state, for diagnostics endpoints and tests that want to assert against
// engine state without reaching into unexported fields.
type ConnectionSnapshot struct {
	ID                    uint32 `json:"id"`
	State                 string `json:"state"`
	IsGhost               bool   `json:"isGhost"`
	IsOpen                bool   `json:"isOpen"`
	NumDataSent           uint32 `json:"numDataSent"`
	NumAckReceivedForData uint32 `json:"numAckReceivedForData"`
	NumDataReceived       uint32 `json:"numDataReceived"`
	UnconfirmedCount      int    `json:"unconfirmedCount"`
	IsFinishSent          bool   `json:"isFinishSent"`
	FinishReceived        bool   `json:"finishReceived"`
}

// SessionSnapshot is a read-only view of a Session's connection table and
// sending queue, polled frequently enough on a status endpoint that it is
// worth encoding with segmentio/encoding/json instead of the stdlib
// encoder.
type SessionSnapshot struct {
	SessionID   string               `json:"sessionId"`
	Role        string               `json:"role"`
	IsOffline   bool                 `json:"isOffline"`
	OfflineDepth int                 `json:"offlineDepth"`
	Connections []ConnectionSnapshot `json:"connections"`
}

// Snapshot captures the session's current state under its lock.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SessionSnapshot{
		SessionID: fmt.Sprintf("%x", s.id[:]),
		Role:      s.role,
		IsOffline: s.sendQ.isOffline(),
	}
	if snap.IsOffline {
		snap.OfflineDepth = s.sendQ.offline.len()
	}
	snap.Connections = make([]ConnectionSnapshot, 0, len(s.connections))
	for _, c := range s.connections {
		snap.Connections = append(snap.Connections, ConnectionSnapshot{
			ID:                    c.ID,
			State:                 c.state.String(),
			IsGhost:               c.isGhost,
			IsOpen:                c.isOpen(),
			NumDataSent:           c.numDataSent,
			NumAckReceivedForData: c.numAckReceivedForData,
			NumDataReceived:       c.numDataReceived,
			UnconfirmedCount:      len(c.unconfirmed),
			IsFinishSent:          c.isFinishSent,
			FinishReceived:        c.finishIDReceived != nil,
		})
	}
	return snap
}

// MarshalJSON encodes the snapshot via segmentio/encoding/json, which is
// faster than the stdlib encoder on the hot, frequently-polled status
// path this type is meant for.
func (s SessionSnapshot) MarshalJSON() ([]byte, error) {
	type alias SessionSnapshot
	return segjson.Marshal(alias(s))
}
