// File: wire/header.go
// Author: momentics <momentics@gmail.com>
//
// Wire header encode/decode (spec §6). Grounded in the teacher's framing
// style from protocol/frame_codec.go (a fixed-field binary.LittleEndian
// header followed by a variable-length body) — generalized here from a
// WebSocket frame's mask/opcode/payload-length fields to the Portals4
// request/response header of spec §6.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/portals4ni/api"
)

// CurrentVersion is the only wire version this engine speaks (spec §6:
// "version is currently 1; peers with mismatched version drop the
// packet").
const CurrentVersion uint8 = 1

// HeaderSize is the fixed on-wire byte length of Header, excluding any
// trailing data descriptors.
const HeaderSize = 1 + 1 + 1 + 1 + 1 + 4 + 4 + 4 + 8 + 4 + 8 + 8 + 8 + 1 + 1 + 1 + 1

// Flags is a bitfield carried in the header's single flags byte.
type Flags uint8

const (
	FlagDataIn Flags = 1 << iota
	FlagDataOut
	FlagAckReq
)

// Header is the fixed-size Portals4-style packet header (spec §6),
// little-endian on the wire.
type Header struct {
	Version   uint8
	Operation api.OpKind
	NIType    uint8 // api.NIFlavor<<1 | api.MatchMode, packed for wire compactness
	PktFmt    uint8
	Flags     Flags
	HdrHandle uint32
	SrcNID    uint32
	SrcPID    uint32
	Length    uint64
	PtIndex   uint32
	MatchBits uint64
	RemoteOffset uint64
	HdrData   uint64
	AtomOp    api.AtomOp
	AtomType  api.AtomType
	AckReq    api.AckReq
	Reserved  uint8
}

// Encode writes h's fixed fields into dst (dst must have len >=
// HeaderSize) and returns the number of bytes written.
func Encode(dst []byte, h Header) (int, error) {
	if len(dst) < HeaderSize {
		return 0, fmt.Errorf("wire: destination too small for header (%d < %d)", len(dst), HeaderSize)
	}
	off := 0
	dst[off] = h.Version
	off++
	dst[off] = uint8(h.Operation)
	off++
	dst[off] = h.NIType
	off++
	dst[off] = h.PktFmt
	off++
	dst[off] = uint8(h.Flags)
	off++
	binary.LittleEndian.PutUint32(dst[off:], h.HdrHandle)
	off += 4
	binary.LittleEndian.PutUint32(dst[off:], h.SrcNID)
	off += 4
	binary.LittleEndian.PutUint32(dst[off:], h.SrcPID)
	off += 4
	binary.LittleEndian.PutUint64(dst[off:], h.Length)
	off += 8
	binary.LittleEndian.PutUint32(dst[off:], h.PtIndex)
	off += 4
	binary.LittleEndian.PutUint64(dst[off:], h.MatchBits)
	off += 8
	binary.LittleEndian.PutUint64(dst[off:], h.RemoteOffset)
	off += 8
	binary.LittleEndian.PutUint64(dst[off:], h.HdrData)
	off += 8
	dst[off] = uint8(h.AtomOp)
	off++
	dst[off] = uint8(h.AtomType)
	off++
	dst[off] = uint8(h.AckReq)
	off++
	dst[off] = h.Reserved
	off++
	return off, nil
}

// ErrTruncated indicates the buffer is shorter than a complete header
// (spec §7 "Protocol errors (wrong version, truncated header) —
// silently dropped").
var ErrTruncated = fmt.Errorf("wire: truncated header")

// ErrVersionMismatch indicates the peer speaks a different wire
// version (spec §6).
var ErrVersionMismatch = fmt.Errorf("wire: version mismatch")

// Decode parses a Header from src. Both ErrTruncated and
// ErrVersionMismatch are "silent drop" conditions per spec §7; the
// caller (progress.dispatch) increments num_recv_drops and returns
// without further processing rather than propagating the error.
func Decode(src []byte) (Header, int, error) {
	if len(src) < HeaderSize {
		return Header{}, 0, ErrTruncated
	}
	var h Header
	off := 0
	h.Version = src[off]
	off++
	if h.Version != CurrentVersion {
		return Header{}, off, ErrVersionMismatch
	}
	h.Operation = api.OpKind(src[off])
	off++
	h.NIType = src[off]
	off++
	h.PktFmt = src[off]
	off++
	h.Flags = Flags(src[off])
	off++
	h.HdrHandle = binary.LittleEndian.Uint32(src[off:])
	off += 4
	h.SrcNID = binary.LittleEndian.Uint32(src[off:])
	off += 4
	h.SrcPID = binary.LittleEndian.Uint32(src[off:])
	off += 4
	h.Length = binary.LittleEndian.Uint64(src[off:])
	off += 8
	h.PtIndex = binary.LittleEndian.Uint32(src[off:])
	off += 4
	h.MatchBits = binary.LittleEndian.Uint64(src[off:])
	off += 8
	h.RemoteOffset = binary.LittleEndian.Uint64(src[off:])
	off += 8
	h.HdrData = binary.LittleEndian.Uint64(src[off:])
	off += 8
	h.AtomOp = api.AtomOp(src[off])
	off++
	h.AtomType = api.AtomType(src[off])
	off++
	h.AckReq = api.AckReq(src[off])
	off++
	h.Reserved = src[off]
	off++
	return h, off, nil
}

// DataDescriptor describes one inline-or-RDMA data segment trailing a
// request header (spec §6: "zero, one, or two data descriptors each
// describing either inline bytes or an RDMA/knem cookie").
type DataDescriptor struct {
	Inline bool
	Length uint64
	// RDMA/knem cookie, meaningful only when !Inline.
	RemoteAddr uint64
	RemoteKey  uint32
}

const dataDescriptorSize = 1 + 8 + 8 + 4

// EncodeDataDescriptor appends d's wire form to dst.
func EncodeDataDescriptor(dst []byte, d DataDescriptor) (int, error) {
	if len(dst) < dataDescriptorSize {
		return 0, fmt.Errorf("wire: destination too small for data descriptor")
	}
	off := 0
	if d.Inline {
		dst[off] = 1
	} else {
		dst[off] = 0
	}
	off++
	binary.LittleEndian.PutUint64(dst[off:], d.Length)
	off += 8
	binary.LittleEndian.PutUint64(dst[off:], d.RemoteAddr)
	off += 8
	binary.LittleEndian.PutUint32(dst[off:], d.RemoteKey)
	off += 4
	return off, nil
}

// DecodeDataDescriptor parses one DataDescriptor from src.
func DecodeDataDescriptor(src []byte) (DataDescriptor, int, error) {
	if len(src) < dataDescriptorSize {
		return DataDescriptor{}, 0, ErrTruncated
	}
	var d DataDescriptor
	off := 0
	d.Inline = src[off] != 0
	off++
	d.Length = binary.LittleEndian.Uint64(src[off:])
	off += 8
	d.RemoteAddr = binary.LittleEndian.Uint64(src[off:])
	off += 8
	d.RemoteKey = binary.LittleEndian.Uint32(src[off:])
	off += 4
	return d, off, nil
}
