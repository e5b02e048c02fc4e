// File: progress/codec.go
// Author: momentics <momentics@gmail.com>
//
// Frames a wire.Header plus its payload for transport.Send, and parses
// one back out of a transport.Completion (spec §6).
package progress

import (
	"github.com/momentics/portals4ni/wire"
)

// EncodeFrame renders h followed by payload into one contiguous slice.
func EncodeFrame(h wire.Header, payload []byte) []byte {
	frame := make([]byte, wire.HeaderSize+len(payload))
	_, _ = wire.Encode(frame, h)
	copy(frame[wire.HeaderSize:], payload)
	return frame
}

// DecodeFrame splits frame back into its header and payload. Truncated
// or version-mismatched frames return wire's sentinel errors, which the
// caller treats as a silent drop (spec §7).
func DecodeFrame(frame []byte) (wire.Header, []byte, error) {
	h, n, err := wire.Decode(frame)
	if err != nil {
		return wire.Header{}, nil, err
	}
	return h, frame[n:], nil
}
