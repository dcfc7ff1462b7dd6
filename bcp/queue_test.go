// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"errors"
	"testing"
)

func TestPacketQueueBounded(t *testing.T) {
	q := newPacketQueue(2)
	if err := q.push(DataPacket{}); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := q.push(DataPacket{}); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := q.push(DataPacket{}); !errors.Is(err, ErrOfflineQueueFull) {
		t.Errorf("push 3: got %v, want ErrOfflineQueueFull", err)
	}
	if n := q.len(); n != 2 {
		t.Errorf("len() = %d, want 2", n)
	}
	drained := q.drain()
	if len(drained) != 2 {
		t.Errorf("drain() returned %d packets, want 2", len(drained))
	}
	if n := q.len(); n != 0 {
		t.Errorf("len() after drain = %d, want 0", n)
	}
}

func TestSendingConnQueueRotation(t *testing.T) {
	q := newSendingConnQueue()
	c1, c2, c3 := newConnection(1), newConnection(2), newConnection(3)
	q.add(c1)
	q.add(c2)
	q.add(c3)

	// add inserts at the front, so the newest connection is picked first.
	head, ok := q.head()
	if !ok || head.ID != c3.ID {
		t.Fatalf("head() = %v, want connection 3", head)
	}

	q.touch(c3.ID)
	head, ok = q.head()
	if !ok || head.ID != c2.ID {
		t.Fatalf("after touch(3), head() = %v, want connection 2", head)
	}

	q.remove(c2.ID)
	head, ok = q.head()
	if !ok || head.ID != c1.ID {
		t.Fatalf("after remove(2), head() = %v, want connection 1", head)
	}

	if n := q.len(); n != 2 {
		t.Errorf("len() = %d, want 2", n)
	}
}

func TestSendingConnQueueAddIsIdempotent(t *testing.T) {
	q := newSendingConnQueue()
	c1 := newConnection(1)
	q.add(c1)
	q.add(c1)
	if n := q.len(); n != 1 {
		t.Errorf("len() = %d, want 1 after adding the same connection twice", n)
	}
}

func TestSendingQueueOfflineOnlineTransition(t *testing.T) {
	q := newOfflineSendingQueue(4)
	if !q.isOffline() {
		t.Fatalf("isOffline() = false, want true for a fresh sendingQueue")
	}
	q.online = newSendingConnQueue()
	q.offline = nil
	if q.isOffline() {
		t.Errorf("isOffline() = true after swapping to online")
	}
}
