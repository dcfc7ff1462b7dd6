// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"log/slog"
	"time"
)

// Options holds the operator-chosen tunables of spec.md §6. Zero-value
// fields are replaced by sane defaults in withDefaults.
type Options struct {
	MaxConnectionsPerSession       int
	MaxActiveConnectionsPerSession int
	MaxOfflinePack                 int
	HeartBeatDelay                 time.Duration
	BusyTimeout                    time.Duration
	IdleTimeout                    time.Duration
	ReadingTimeout                 time.Duration
	WritingTimeout                 time.Duration
	MaxDataSize                    int

	Logger  *slog.Logger
	Metrics MetricsSink
}

func (o Options) withDefaults() Options {
	if o.MaxConnectionsPerSession <= 0 {
		o.MaxConnectionsPerSession = 64
	}
	if o.MaxActiveConnectionsPerSession <= 0 {
		o.MaxActiveConnectionsPerSession = 8
	}
	if o.MaxOfflinePack <= 0 {
		o.MaxOfflinePack = 1024
	}
	if o.HeartBeatDelay <= 0 {
		o.HeartBeatDelay = 15 * time.Second
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Second
	}
	if o.ReadingTimeout <= 0 {
		o.ReadingTimeout = 60 * time.Second
	}
	if o.WritingTimeout <= 0 {
		o.WritingTimeout = 10 * time.Second
	}
	if o.MaxDataSize <= 0 {
		o.MaxDataSize = 1 << 20
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) streamOptions() StreamOptions {
	return StreamOptions{
		ReadingTimeout: o.ReadingTimeout,
		WritingTimeout: o.WritingTimeout,
		HeartBeatDelay: o.HeartBeatDelay,
		MaxDataSize:    o.MaxDataSize,
	}
}

// Option configures Options. ClientOption and ServerOption (client.go,
// server.go) are aliases of this type, so the same WithX setters serve
// both roles.
type Option func(*Options)

// WithLogger sets the *slog.Logger the session, client and server log
// through. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics wires a MetricsSink (see bcpmetrics) into the session engine.
func WithMetrics(m MetricsSink) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithMaxConnectionsPerSession bounds connections.size, including ghosts.
func WithMaxConnectionsPerSession(n int) Option {
	return func(o *Options) { o.MaxConnectionsPerSession = n }
}

// WithMaxActiveConnectionsPerSession bounds concurrently live streams
// (server-side admission control, spec.md §4.8).
func WithMaxActiveConnectionsPerSession(n int) Option {
	return func(o *Options) { o.MaxActiveConnectionsPerSession = n }
}

// WithMaxOfflinePack bounds the offline packet buffer (spec.md §4.2).
func WithMaxOfflinePack(n int) Option {
	return func(o *Options) { o.MaxOfflinePack = n }
}

// WithHeartBeatDelay sets the per-stream heartbeat interval.
func WithHeartBeatDelay(d time.Duration) Option {
	return func(o *Options) { o.HeartBeatDelay = d }
}

// WithBusyTimeout sets the client Busy→Slow transition delay.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *Options) { o.BusyTimeout = d }
}

// WithIdleTimeout sets the client idle-overcapacity trim delay.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Options) { o.IdleTimeout = d }
}

// WithReadingTimeout sets the per-stream read idle limit.
func WithReadingTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReadingTimeout = d }
}

// WithWritingTimeout sets the per-stream write idle limit.
func WithWritingTimeout(d time.Duration) Option {
	return func(o *Options) { o.WritingTimeout = d }
}

// WithMaxDataSize bounds a single Data/RetransmissionData payload.
func WithMaxDataSize(n int) Option {
	return func(o *Options) { o.MaxDataSize = n }
}
