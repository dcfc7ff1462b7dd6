// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package tcpdiag

import "net"

func readPlatform(conn net.Conn) (Sample, error) {
	return Sample{}, ErrUnsupported
}
