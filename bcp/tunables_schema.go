// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tunables is the JSON-document form of the operator-chosen contract
// values of spec.md §6, for deployments that prefer a config file over
// functional options. Durations are milliseconds; sizes are bytes/counts.
type Tunables struct {
	MaxConnectionsPerSession       int   `json:"maxConnectionsPerSession,omitempty" jsonschema:"connection id space ceiling, including ghosts" minimum:"1"`
	MaxActiveConnectionsPerSession int   `json:"maxActiveConnectionsPerSession,omitempty" jsonschema:"live-stream ceiling enforced by the server" minimum:"1"`
	MaxOfflinePack                 int   `json:"maxOfflinePack,omitempty" jsonschema:"offline packet buffer ceiling" minimum:"1"`
	HeartBeatDelayMillis           int64 `json:"heartBeatDelayMillis,omitempty" jsonschema:"per-stream heartbeat interval" minimum:"1"`
	BusyTimeoutMillis              int64 `json:"busyTimeoutMillis,omitempty" jsonschema:"client Busy to Slow transition delay" minimum:"1"`
	IdleTimeoutMillis              int64 `json:"idleTimeoutMillis,omitempty" jsonschema:"client idle-overcapacity trim delay" minimum:"1"`
	ReadingTimeoutMillis           int64 `json:"readingTimeoutMillis,omitempty" jsonschema:"per-stream read idle limit" minimum:"1"`
	WritingTimeoutMillis           int64 `json:"writingTimeoutMillis,omitempty" jsonschema:"per-stream write idle limit" minimum:"1"`
	MaxDataSize                    int   `json:"maxDataSize,omitempty" jsonschema:"single Data/RetransmissionData payload ceiling in bytes" minimum:"1"`
}

var tunablesSchema = func() *jsonschema.Schema {
	s, err := jsonschema.For[Tunables](nil)
	if err != nil {
		panic(fmt.Sprintf("bcp: building tunables schema: %v", err))
	}
	return s
}()

// ParseTunables validates doc against the inferred Tunables schema, then
// unmarshals it. Use ApplyTo to fold the result into an Options value.
func ParseTunables(doc []byte) (Tunables, error) {
	var raw any
	if err := json.Unmarshal(doc, &raw); err != nil {
		return Tunables{}, fmt.Errorf("bcp: tunables document: %w", err)
	}
	resolved, err := tunablesSchema.Resolve(nil)
	if err != nil {
		return Tunables{}, fmt.Errorf("bcp: resolve tunables schema: %w", err)
	}
	if err := resolved.Validate(raw); err != nil {
		return Tunables{}, fmt.Errorf("bcp: tunables document failed validation: %w", err)
	}
	var t Tunables
	if err := json.Unmarshal(doc, &t); err != nil {
		return Tunables{}, fmt.Errorf("bcp: tunables document: %w", err)
	}
	return t, nil
}

// ApplyTo returns an Option that overlays every non-zero field of t onto an
// Options value, so a parsed Tunables document can be passed alongside
// ordinary functional options: either call t.ApplyTo()(&opts) on an Options
// value before passing it to NewSession(id, role, opts, cb), or more
// commonly compose it into a ClientOption/ServerOption slice.
func (t Tunables) ApplyTo() Option {
	return func(o *Options) {
		if t.MaxConnectionsPerSession != 0 {
			o.MaxConnectionsPerSession = t.MaxConnectionsPerSession
		}
		if t.MaxActiveConnectionsPerSession != 0 {
			o.MaxActiveConnectionsPerSession = t.MaxActiveConnectionsPerSession
		}
		if t.MaxOfflinePack != 0 {
			o.MaxOfflinePack = t.MaxOfflinePack
		}
		if t.HeartBeatDelayMillis != 0 {
			o.HeartBeatDelay = time.Duration(t.HeartBeatDelayMillis) * time.Millisecond
		}
		if t.BusyTimeoutMillis != 0 {
			o.BusyTimeout = time.Duration(t.BusyTimeoutMillis) * time.Millisecond
		}
		if t.IdleTimeoutMillis != 0 {
			o.IdleTimeout = time.Duration(t.IdleTimeoutMillis) * time.Millisecond
		}
		if t.ReadingTimeoutMillis != 0 {
			o.ReadingTimeout = time.Duration(t.ReadingTimeoutMillis) * time.Millisecond
		}
		if t.WritingTimeoutMillis != 0 {
			o.WritingTimeout = time.Duration(t.WritingTimeoutMillis) * time.Millisecond
		}
		if t.MaxDataSize != 0 {
			o.MaxDataSize = t.MaxDataSize
		}
	}
}
