// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.
package util

import (
	"net"
	"net/netip"
	"strings"
)

// IsLoopback reports whether addr (host, or host:port) names a loopback
// address. tcpdiag uses this to skip TCP_INFO sampling on loopback, where
// RTT noise swamps the signal; Server.Handle uses it to annotate accept-time
// logs so a session's missing tcpdiag samples aren't mistaken for a platform
// problem.
func IsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// If SplitHostPort fails, it might be just a host without a port.
		host = strings.Trim(addr, "[]")
	}
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return ip.IsLoopback()
}
