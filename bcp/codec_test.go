// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func roundTrip(t *testing.T, p Packet) Packet {
	t.Helper()
	buf := EncodePacket(nil, p)
	got, err := DecodePacket(bufio.NewReader(bytes.NewReader(buf)), 1<<20)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	return got
}

func TestPacketRoundTrip(t *testing.T) {
	cases := []Packet{
		HeartBeatPacket{},
		AcknowledgePacket{},
		FinishPacket{},
		ShutDownPacket{},
		DataPacket{Buffers: [][]byte{[]byte("hi"), []byte("world")}},
		DataPacket{Buffers: [][]byte{}},
		RetransmissionDataPacket{ConnID: 3, PackID: 7, Buffers: [][]byte{[]byte("retry")}},
		RetransmissionFinishPacket{ConnID: 3, PackID: 9},
	}
	for _, want := range cases {
		got := roundTrip(t, want)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip %T mismatch (-want +got):\n%s", want, diff)
		}
	}
}

func TestPacketRequiresAck(t *testing.T) {
	cases := []struct {
		p    Packet
		want bool
	}{
		{HeartBeatPacket{}, false},
		{AcknowledgePacket{}, false},
		{ShutDownPacket{}, false},
		{FinishPacket{}, true},
		{DataPacket{}, true},
		{RetransmissionDataPacket{}, true},
		{RetransmissionFinishPacket{}, true},
	}
	for _, c := range cases {
		if got := c.p.RequiresAck(); got != c.want {
			t.Errorf("%T.RequiresAck() = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestDecodePacketUnknownTag(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0xff}))
	if _, err := DecodePacket(r, 1<<20); !errors.Is(err, ErrUnknownHead) {
		t.Errorf("DecodePacket unknown tag: got %v, want ErrUnknownHead", err)
	}
}

func TestDecodePacketDataTooBig(t *testing.T) {
	buf := EncodePacket(nil, DataPacket{Buffers: [][]byte{make([]byte, 100)}})
	r := bufio.NewReader(bytes.NewReader(buf))
	if _, err := DecodePacket(r, 10); !errors.Is(err, ErrDataTooBig) {
		t.Errorf("DecodePacket over MaxDataSize: got %v, want ErrDataTooBig", err)
	}
}

func TestConnectionHeadRoundTrip(t *testing.T) {
	want := ConnectionHead{
		SessionID:    SessionID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		IsRenew:      true,
		ConnectionID: 42,
	}
	buf := EncodeConnectionHead(nil, want)
	got, err := DecodeConnectionHead(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		t.Fatalf("DecodeConnectionHead: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ConnectionHead round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeConnectionHeadShort(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{1, 2, 3}))
	if _, err := DecodeConnectionHead(r); !errors.Is(err, ErrShortHandshake) {
		t.Errorf("DecodeConnectionHead truncated: got %v, want ErrShortHandshake", err)
	}
}
