// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package tcpdiag

import (
	"net"
	"time"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

func readPlatform(conn net.Conn) (Sample, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return Sample{}, ErrUnsupported
	}
	fd, err := netfd.GetFdFromConn(tcpConn)
	if err != nil {
		return Sample{}, err
	}
	info, err := unix.GetsockoptTCPInfo(fd, unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		RTT:          time.Duration(info.Rtt) * time.Microsecond,
		RTTVariance:  time.Duration(info.Rttvar) * time.Microsecond,
		Retransmits:  uint32(info.Retransmits),
		TotalRetrans: info.Total_retrans,
	}, nil
}
