// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package bcpdebug provides a mechanism to configure debug/compatibility
// parameters via the BCPGODEBUG environment variable, the same role
// MCPGODEBUG plays for the Go MCP SDK this package is adapted from.
//
// The value of BCPGODEBUG is a comma-separated list of key=value pairs, for
// example:
//
//	BCPGODEBUG=tracepackets=1,noheartbeat=1
package bcpdebug

import (
	"fmt"
	"os"
	"strings"
)

const envKey = "BCPGODEBUG"

var params map[string]string

func init() {
	var err error
	params, err = parse(os.Getenv(envKey))
	if err != nil {
		panic(err)
	}
}

// Value returns the value of the named debug parameter, or "" if unset.
func Value(key string) string {
	return params[key]
}

// TracePackets reports whether BCPGODEBUG=tracepackets=1 is set. It turns on
// packet-level tracing of received frames; the trace lines are logged at
// slog.LevelDebug, so they appear only if the session's *slog.Logger also
// enables that level.
func TracePackets() bool {
	return Value("tracepackets") == "1"
}

func parse(envValue string) (map[string]string, error) {
	if envValue == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(envValue, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%s: invalid format: %q", envKey, part)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
