package iobuf

import (
	"encoding/binary"
	"testing"

	"github.com/momentics/portals4ni/api"
	"github.com/stretchr/testify/require"
)

func int32Bytes(vals ...int32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
	}
	return b
}

func decodeInt32s(b []byte) []int32 {
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// TestApplyAtomic_SUM exercises spec §8 scenario 3: SUM over a
// scatter/gather iovec.
func TestApplyAtomic_SUM(t *testing.T) {
	remote := int32Bytes(1, 2, 3, 4) // 16 bytes, 4 int32 elements
	iov := Iovec{
		{Base: remote[0:4]},
		{Base: remote[4:12]},
		{Base: remote[12:16]},
	}
	src := int32Bytes(10, 20, 30, 40)

	prev, err := ApplyAtomic(api.AtomSum, api.AtomInt32, iov, 0, 16, src, nil)
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3, 4}, decodeInt32s(prev))

	got := make([]byte, 16)
	require.NoError(t, CopyOut(got, iov, 0, 16))
	require.Equal(t, []int32{11, 22, 33, 44}, decodeInt32s(got))
}

// TestApplyAtomic_CSWAP_LT exercises spec §8 scenario 4.
func TestApplyAtomic_CSWAP_LT(t *testing.T) {
	remote := int32Bytes(5, 10, 15)
	iov := Iovec{{Base: remote}}
	local := int32Bytes(3, 12, 14)
	operand := int32Bytes(4, 11, 16)

	prev, err := ApplyAtomic(api.AtomCSwapLT, api.AtomInt32, iov, 0, 12, local, operand)
	require.NoError(t, err)
	require.Equal(t, []int32{5, 10, 15}, decodeInt32s(prev))

	got := make([]byte, 12)
	require.NoError(t, CopyOut(got, iov, 0, 12))
	require.Equal(t, []int32{5, 12, 14}, decodeInt32s(got))
}

func TestValidateAtomMatrix(t *testing.T) {
	require.NoError(t, ValidateAtomMatrix(api.AtomSum, api.AtomInt32, false, false))
	require.Error(t, ValidateAtomMatrix(api.AtomBOR, api.AtomFloat64, false, false))
	require.NoError(t, ValidateAtomMatrix(api.AtomCSwap, api.AtomInt64, true, true))
	require.Error(t, ValidateAtomMatrix(api.AtomCSwap, api.AtomInt64, true, false))
	require.Error(t, ValidateAtomMatrix(api.AtomMSwap, api.AtomFloat32, true, true))
}
