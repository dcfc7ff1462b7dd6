// Copyright 2025 The Go BCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package bcp

import (
	"bufio"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// NumBytesSessionId is the protocol-fixed width of a session id.
const NumBytesSessionId = 16

// SessionID is an opaque, fixed-width session identifier compared by
// content, never by pointer identity.
type SessionID [NumBytesSessionId]byte

// maxVarintBytes bounds how many bytes a varint may occupy on the wire
// before it is rejected as malformed (protowire itself caps this at 10
// bytes for a 64-bit value; BCP ids and lengths never need more than 5).
const maxVarintBytes = 10

// PacketKind is the wire discriminator tag for a frame.
type PacketKind byte

const (
	KindHeartBeat PacketKind = iota + 1
	KindData
	KindAcknowledge
	KindFinish
	KindRetransmissionData
	KindRetransmissionFinish
	KindShutDown
)

// Packet is any frame the codec can encode/decode after the initial
// ConnectionHead handshake.
type Packet interface {
	Kind() PacketKind
	// RequiresAck reports whether receipt of this packet must be answered
	// by exactly one Acknowledge frame (spec.md §4.1).
	RequiresAck() bool
	encode(buf []byte) []byte
}

type HeartBeatPacket struct{}

func (HeartBeatPacket) Kind() PacketKind    { return KindHeartBeat }
func (HeartBeatPacket) RequiresAck() bool   { return false }
func (HeartBeatPacket) encode(b []byte) []byte { return append(b, byte(KindHeartBeat)) }

// DataPacket carries one atomic application message as one or more buffers.
type DataPacket struct {
	Buffers [][]byte
}

func (DataPacket) Kind() PacketKind  { return KindData }
func (DataPacket) RequiresAck() bool { return true }
func (p DataPacket) encode(b []byte) []byte {
	b = append(b, byte(KindData))
	return appendBuffers(b, p.Buffers)
}

type AcknowledgePacket struct{}

func (AcknowledgePacket) Kind() PacketKind     { return KindAcknowledge }
func (AcknowledgePacket) RequiresAck() bool    { return false }
func (AcknowledgePacket) encode(b []byte) []byte { return append(b, byte(KindAcknowledge)) }

type FinishPacket struct{}

func (FinishPacket) Kind() PacketKind     { return KindFinish }
func (FinishPacket) RequiresAck() bool    { return true }
func (FinishPacket) encode(b []byte) []byte { return append(b, byte(KindFinish)) }

// RetransmissionDataPacket resends a Data packet originally sent on
// connection ConnID as pack number PackID, now addressed explicitly so the
// receiver can route it to the right per-connection IdSet regardless of
// which connection it actually arrives on.
type RetransmissionDataPacket struct {
	ConnID  uint32
	PackID  uint32
	Buffers [][]byte
}

func (RetransmissionDataPacket) Kind() PacketKind  { return KindRetransmissionData }
func (RetransmissionDataPacket) RequiresAck() bool { return true }
func (p RetransmissionDataPacket) encode(b []byte) []byte {
	b = append(b, byte(KindRetransmissionData))
	b = protowire.AppendVarint(b, uint64(p.ConnID))
	b = protowire.AppendVarint(b, uint64(p.PackID))
	return appendBuffers(b, p.Buffers)
}

type RetransmissionFinishPacket struct {
	ConnID uint32
	PackID uint32
}

func (RetransmissionFinishPacket) Kind() PacketKind  { return KindRetransmissionFinish }
func (RetransmissionFinishPacket) RequiresAck() bool { return true }
func (p RetransmissionFinishPacket) encode(b []byte) []byte {
	b = append(b, byte(KindRetransmissionFinish))
	b = protowire.AppendVarint(b, uint64(p.ConnID))
	b = protowire.AppendVarint(b, uint64(p.PackID))
	return b
}

type ShutDownPacket struct{}

func (ShutDownPacket) Kind() PacketKind     { return KindShutDown }
func (ShutDownPacket) RequiresAck() bool    { return false }
func (ShutDownPacket) encode(b []byte) []byte { return append(b, byte(KindShutDown)) }

func appendBuffers(b []byte, buffers [][]byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(buffers)))
	for _, buf := range buffers {
		b = protowire.AppendVarint(b, uint64(len(buf)))
		b = append(b, buf...)
	}
	return b
}

// EncodePacket appends the wire encoding of p to buf and returns the
// extended slice, so callers can batch several packets into one write
// queue entry without extra allocation.
func EncodePacket(buf []byte, p Packet) []byte {
	return p.encode(buf)
}

// ConnectionHead is the first frame written on every new underlying stream.
type ConnectionHead struct {
	SessionID    SessionID
	IsRenew      bool
	ConnectionID uint32
}

// EncodeConnectionHead writes [16]byte sessionId, 1 byte isRenew, varint
// connectionId.
func EncodeConnectionHead(buf []byte, h ConnectionHead) []byte {
	buf = append(buf, h.SessionID[:]...)
	if h.IsRenew {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = protowire.AppendVarint(buf, uint64(h.ConnectionID))
	return buf
}

// DecodeConnectionHead reads a ConnectionHead from r.
func DecodeConnectionHead(r *bufio.Reader) (ConnectionHead, error) {
	var h ConnectionHead
	if _, err := io.ReadFull(r, h.SessionID[:]); err != nil {
		return h, fmt.Errorf("%w: session id: %v", ErrShortHandshake, err)
	}
	renewByte, err := r.ReadByte()
	if err != nil {
		return h, fmt.Errorf("%w: isRenew: %v", ErrShortHandshake, err)
	}
	switch renewByte {
	case 0:
		h.IsRenew = false
	case 1:
		h.IsRenew = true
	default:
		return h, fmt.Errorf("%w: isRenew byte %d", ErrShortHandshake, renewByte)
	}
	cid, err := readVarint(r)
	if err != nil {
		return h, fmt.Errorf("%w: connection id: %v", ErrShortHandshake, err)
	}
	h.ConnectionID = uint32(cid)
	return h, nil
}

// DecodePacket reads one frame from r. maxDataSize bounds the total byte
// length of a single Data/RetransmissionData payload (spec.md §6).
func DecodePacket(r *bufio.Reader, maxDataSize int) (Packet, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err // EOF / transport error, propagated as-is
	}
	switch PacketKind(tagByte) {
	case KindHeartBeat:
		return HeartBeatPacket{}, nil
	case KindAcknowledge:
		return AcknowledgePacket{}, nil
	case KindFinish:
		return FinishPacket{}, nil
	case KindShutDown:
		return ShutDownPacket{}, nil
	case KindData:
		buffers, err := readBuffers(r, maxDataSize)
		if err != nil {
			return nil, err
		}
		return DataPacket{Buffers: buffers}, nil
	case KindRetransmissionData:
		connID, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		packID, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		buffers, err := readBuffers(r, maxDataSize)
		if err != nil {
			return nil, err
		}
		return RetransmissionDataPacket{ConnID: uint32(connID), PackID: uint32(packID), Buffers: buffers}, nil
	case KindRetransmissionFinish:
		connID, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		packID, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		return RetransmissionFinishPacket{ConnID: uint32(connID), PackID: uint32(packID)}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownHead, tagByte)
	}
}

func readBuffers(r *bufio.Reader, maxDataSize int) ([][]byte, error) {
	count, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	buffers := make([][]byte, 0, count)
	total := 0
	for i := uint64(0); i < count; i++ {
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		total += int(n)
		if total > maxDataSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrDataTooBig, total)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		buffers = append(buffers, buf)
	}
	return buffers, nil
}

// readVarint reads a base-128 varint one byte at a time, the streaming
// equivalent of protowire.ConsumeVarint (which requires the whole buffer to
// already be in memory).
func readVarint(r io.ByteReader) (uint64, error) {
	var v uint64
	for shift := 0; ; shift += 7 {
		if shift >= maxVarintBytes*7 {
			return 0, ErrVarintTooBig
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
}
