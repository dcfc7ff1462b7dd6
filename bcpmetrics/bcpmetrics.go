// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package bcpmetrics implements bcp.MetricsSink with Prometheus
// instrumentation, grounded on the collector style of
// runZeroInc-sockstats/pkg/exporter.
package bcpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sink is a bcp.MetricsSink backed by a set of Prometheus vectors, labeled
// by session id and role ("client" or "server").
type Sink struct {
	connectionsOpened   *prometheus.CounterVec
	connectionsClosed   *prometheus.CounterVec
	openConnections     *prometheus.GaugeVec
	retransmissionsSent *prometheus.CounterVec
	offlineQueueDepth   *prometheus.GaugeVec
	sessionsInterrupted *prometheus.CounterVec
	sessionsShutdown    *prometheus.CounterVec
}

// NewSink constructs a Sink and registers its collectors with reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		connectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bcp",
			Name:      "connections_opened_total",
			Help:      "Underlying connections installed onto a session.",
		}, []string{"session_id", "role"}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bcp",
			Name:      "connections_closed_total",
			Help:      "Underlying connections fully drained and removed from a session.",
		}, []string{"session_id", "role"}),
		openConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bcp",
			Name:      "open_connections",
			Help:      "Currently open connections per session.",
		}, []string{"session_id", "role"}),
		retransmissionsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bcp",
			Name:      "retransmissions_total",
			Help:      "Packets rewritten into retransmission-addressed form after a connection was lost.",
		}, []string{"session_id", "role"}),
		offlineQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bcp",
			Name:      "offline_queue_depth",
			Help:      "Packets currently buffered while the session has no usable connection.",
		}, []string{"session_id", "role"}),
		sessionsInterrupted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bcp",
			Name:      "sessions_interrupted_total",
			Help:      "Sessions that ended via internalInterrupt rather than a graceful shutdown.",
		}, []string{"session_id", "role"}),
		sessionsShutdown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bcp",
			Name:      "sessions_shutdown_total",
			Help:      "Sessions that ended via a graceful shutDown.",
		}, []string{"session_id", "role"}),
	}
	reg.MustRegister(
		s.connectionsOpened,
		s.connectionsClosed,
		s.openConnections,
		s.retransmissionsSent,
		s.offlineQueueDepth,
		s.sessionsInterrupted,
		s.sessionsShutdown,
	)
	return s
}

func (s *Sink) ConnectionOpened(sessionID, role string) {
	s.connectionsOpened.WithLabelValues(sessionID, role).Inc()
	s.openConnections.WithLabelValues(sessionID, role).Inc()
}

func (s *Sink) ConnectionClosed(sessionID, role string) {
	s.connectionsClosed.WithLabelValues(sessionID, role).Inc()
	s.openConnections.WithLabelValues(sessionID, role).Dec()
}

func (s *Sink) RetransmissionSent(sessionID, role string) {
	s.retransmissionsSent.WithLabelValues(sessionID, role).Inc()
}

func (s *Sink) OfflineQueueDepth(sessionID, role string, depth int) {
	s.offlineQueueDepth.WithLabelValues(sessionID, role).Set(float64(depth))
}

func (s *Sink) SessionInterrupted(sessionID, role string) {
	s.sessionsInterrupted.WithLabelValues(sessionID, role).Inc()
}

func (s *Sink) SessionShutdown(sessionID, role string) {
	s.sessionsShutdown.WithLabelValues(sessionID, role).Inc()
}
