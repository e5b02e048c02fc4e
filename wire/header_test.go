package wire

import (
	"testing"

	"github.com/momentics/portals4ni/api"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Version:      CurrentVersion,
		Operation:    api.OpPut,
		NIType:       1,
		PktFmt:       0,
		Flags:        FlagDataIn | FlagAckReq,
		HdrHandle:    0xdeadbeef,
		SrcNID:       0x0a000001,
		SrcPID:       4242,
		Length:       16,
		PtIndex:      3,
		MatchBits:    0x1234,
		RemoteOffset: 8,
		HdrData:      0xcafe,
		AtomOp:       api.AtomSum,
		AtomType:     api.AtomInt32,
		AckReq:       api.AckFull,
	}

	buf := make([]byte, HeaderSize)
	n, err := Encode(buf, h)
	require.NoError(t, err)
	require.Equal(t, HeaderSize, n)

	got, consumed, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, HeaderSize, consumed)
	require.Equal(t, h, got)
}

func TestDecode_Truncated(t *testing.T) {
	_, _, err := Decode(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecode_VersionMismatch(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = CurrentVersion + 1
	_, _, err := Decode(buf)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestDataDescriptorRoundTrip(t *testing.T) {
	d := DataDescriptor{Inline: false, Length: 4096, RemoteAddr: 0x1000, RemoteKey: 7}
	buf := make([]byte, dataDescriptorSize)
	_, err := EncodeDataDescriptor(buf, d)
	require.NoError(t, err)
	got, _, err := DecodeDataDescriptor(buf)
	require.NoError(t, err)
	require.Equal(t, d, got)
}
