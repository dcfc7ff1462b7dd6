// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

// MaxUnconfirmedIds bounds the width of the rolling window an IdSet tracks.
const MaxUnconfirmedIds = 1024

// IdSet is a compact representation of "which packet ids within a rolling
// window have been received", used on the receive side to detect
// RetransmissionData/RetransmissionFinish duplicates (invariant C6).
//
// It tracks a contiguous low-water mark (low) below which every id has been
// delivered and compacted away, a high-water mark (high) above which no id
// has been seen yet, and a sparse set of ids received out of order inside
// [low, high). Ids are compared with wraparound (modular) semantics so the
// set keeps working across a 32-bit id space rollover.
type IdSet struct {
	low   uint32
	high  uint32
	holes map[uint32]struct{}
}

// NewIdSet returns an IdSet whose window starts at the given id.
func NewIdSet(start uint32) *IdSet {
	return &IdSet{low: start, high: start}
}

// between reports whether test lies in the modular half-open range
// [low, high), accounting for 32-bit wraparound.
func between(low, high, test uint32) bool {
	if low <= high {
		return test >= low && test < high
	}
	// window wraps past 2^32-1 back to 0
	return test >= low || test < high
}

// Add records id as received. Ids outside the [low, low+MaxUnconfirmedIds)
// window are treated as already delivered (the window has since rolled past
// them) and are silently ignored.
func (s *IdSet) Add(id uint32) {
	if between(s.low, s.high, id) {
		if s.holes == nil {
			s.holes = make(map[uint32]struct{})
		}
		s.holes[id] = struct{}{}
		s.compact()
		return
	}
	if between(s.high, s.low+MaxUnconfirmedIds, id) {
		s.high = id + 1
		if s.holes == nil {
			s.holes = make(map[uint32]struct{})
		}
		s.holes[id] = struct{}{}
		s.compact()
		return
	}
	// out of window: presumed already received
}

// compact advances low past every id that is now contiguously received,
// shrinking the sparse hole set as it goes.
func (s *IdSet) compact() {
	for {
		if _, ok := s.holes[s.low]; !ok {
			return
		}
		delete(s.holes, s.low)
		s.low++
	}
}

// Contains reports whether id has already been delivered: true inside
// [low, high) iff it is in the sparse set, false inside [high, low+1024)
// (not seen yet), and true elsewhere (the window has rolled past it, so it
// is presumed already delivered).
func (s *IdSet) Contains(id uint32) bool {
	if between(s.low, s.high, id) {
		_, ok := s.holes[id]
		return ok
	}
	if between(s.high, s.low+MaxUnconfirmedIds, id) {
		return false
	}
	return true
}

// AllReceivedBelow reports whether every id below id has been delivered and
// there are no pending holes — used to evaluate invariant C1 against a
// connection's finishIdReceived.
func (s *IdSet) AllReceivedBelow(id uint32) bool {
	return len(s.holes) == 0 && s.low == s.high && s.low == id
}
