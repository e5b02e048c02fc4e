// File: iobuf/atomic.go
// Author: momentics <momentics@gmail.com>
//
// Elementwise, typed atomic/swap application over an iovec range (spec
// §4.2 atomic_in, §4.6 atomic op matrix, §8 scenarios 3/4). The caller
// (package target) is responsible for the per-element atomicity
// guarantee of spec §5: it must hold the matched entry's lock for the
// duration of one ApplyAtomic call, which is exactly how the target
// state machine already serializes DATA_IN/ATOMIC_DATA_IN/SWAP_DATA_IN
// against a single matched (L|M)E (spec §4.5).
package iobuf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/momentics/portals4ni/api"
)

// ErrBadAtomMatrix is returned when an (op, type) combination violates
// the validity matrix of spec §4.6.
var ErrBadAtomMatrix = fmt.Errorf("iobuf: invalid atomic op/type combination")

// ValidateAtomMatrix enforces spec §4.6's table at submission time, as
// spec §7 requires ("Submission errors ... returned synchronously").
func ValidateAtomMatrix(op api.AtomOp, typ api.AtomType, usesSwap, usesOperand bool) error {
	floatOK := typ.isFloatOrDouble() || typ.isComplex()
	switch op {
	case api.AtomMin, api.AtomMax:
		if typ.isComplex() || usesSwap {
			return ErrBadAtomMatrix
		}
	case api.AtomSum, api.AtomProd:
		if usesSwap {
			return ErrBadAtomMatrix
		}
	case api.AtomLOR, api.AtomLAND, api.AtomBOR, api.AtomBAND, api.AtomLXOR, api.AtomBXOR:
		if floatOK || usesSwap {
			return ErrBadAtomMatrix
		}
	case api.AtomSwap:
		if !usesSwap || usesOperand {
			return ErrBadAtomMatrix
		}
	case api.AtomCSwap, api.AtomCSwapNE:
		if !usesSwap || !usesOperand {
			return ErrBadAtomMatrix
		}
	case api.AtomCSwapLE, api.AtomCSwapLT, api.AtomCSwapGE, api.AtomCSwapGT:
		if !usesSwap || !usesOperand || typ.isComplex() {
			return ErrBadAtomMatrix
		}
	case api.AtomMSwap:
		if !usesSwap || !usesOperand || floatOK {
			return ErrBadAtomMatrix
		}
	default:
		return ErrBadAtomMatrix
	}
	return nil
}

// OpUsesOperand reports whether op compares the existing value against
// a caller-supplied operand before deciding what to write — the CSWAP
// family and MSWAP (spec §4.6's "uses operand" column). Plain SWAP
// writes unconditionally and carries no operand.
func OpUsesOperand(op api.AtomOp) bool {
	switch op {
	case api.AtomCSwap, api.AtomCSwapNE, api.AtomCSwapLE, api.AtomCSwapLT, api.AtomCSwapGE, api.AtomCSwapGT, api.AtomMSwap:
		return true
	default:
		return false
	}
}

// ApplyAtomic applies op elementwise and typed over iov[offset,
// offset+length), combining each element with the corresponding
// element of src (spec §4.2 atomic_in). It returns the pre-image
// bytes, which the caller copies into a FETCH/SWAP reply buffer (spec
// §4.5 "FETCH first reads old bytes ... then applies").
func ApplyAtomic(op api.AtomOp, typ api.AtomType, iov Iovec, offset, length int, src []byte, operand []byte) (prev []byte, err error) {
	elemSize := typ.Size()
	if elemSize == 0 || length%elemSize != 0 {
		return nil, fmt.Errorf("iobuf: length %d not a multiple of element size %d", length, elemSize)
	}
	if err := iov.checkBounds(offset, length); err != nil {
		return nil, err
	}

	prev = make([]byte, length)
	if err := CopyOut(prev, iov, offset, length); err != nil {
		return nil, err
	}

	nElems := length / elemSize
	next := make([]byte, length)
	for i := 0; i < nElems; i++ {
		lo := i * elemSize
		hi := lo + elemSize
		oldElem := prev[lo:hi]
		srcElem := src[lo:hi]
		var operandElem []byte
		if operand != nil {
			operandElem = operand[lo:hi]
		}
		newElem, err := combineElement(op, typ, oldElem, srcElem, operandElem)
		if err != nil {
			return nil, err
		}
		copy(next[lo:hi], newElem)
	}

	if err := CopyIn(iov, offset, next, length); err != nil {
		return nil, err
	}
	return prev, nil
}

func combineElement(op api.AtomOp, typ api.AtomType, oldB, srcB, operandB []byte) ([]byte, error) {
	switch op {
	case api.AtomSwap:
		return append([]byte(nil), srcB...), nil
	case api.AtomCSwap:
		if bytesEqual(oldB, operandB) {
			return append([]byte(nil), srcB...), nil
		}
		return oldB, nil
	case api.AtomCSwapNE:
		if !bytesEqual(oldB, operandB) {
			return append([]byte(nil), srcB...), nil
		}
		return oldB, nil
	case api.AtomMSwap:
		// masked swap: operand is the mask, src is the new bits.
		out := append([]byte(nil), oldB...)
		for i := range out {
			out[i] = (out[i] &^ operandB[i]) | (srcB[i] & operandB[i])
		}
		return out, nil
	}

	if typ.isInteger() {
		return combineInt(op, typ, oldB, srcB, operandB)
	}
	return combineFloatOrComplex(op, typ, oldB, srcB, operandB)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func loadInt(typ api.AtomType, b []byte) int64 {
	switch typ {
	case api.AtomInt8, api.AtomUint8:
		return int64(b[0])
	case api.AtomInt16, api.AtomUint16:
		return int64(binary.LittleEndian.Uint16(b))
	case api.AtomInt32, api.AtomUint32:
		return int64(binary.LittleEndian.Uint32(b))
	default:
		return int64(binary.LittleEndian.Uint64(b))
	}
}

func storeInt(typ api.AtomType, v int64) []byte {
	switch typ {
	case api.AtomInt8, api.AtomUint8:
		return []byte{byte(v)}
	case api.AtomInt16, api.AtomUint16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return b
	case api.AtomInt32, api.AtomUint32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		return b
	default:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v))
		return b
	}
}

func combineInt(op api.AtomOp, typ api.AtomType, oldB, srcB, operandB []byte) ([]byte, error) {
	oldV := loadInt(typ, oldB)
	srcV := loadInt(typ, srcB)
	var resultV int64
	switch op {
	case api.AtomMin:
		resultV = minInt64(oldV, srcV)
	case api.AtomMax:
		resultV = maxInt64(oldV, srcV)
	case api.AtomSum:
		resultV = oldV + srcV
	case api.AtomProd:
		resultV = oldV * srcV
	case api.AtomLOR:
		resultV = boolToInt(oldV != 0 || srcV != 0)
	case api.AtomLAND:
		resultV = boolToInt(oldV != 0 && srcV != 0)
	case api.AtomBOR:
		resultV = oldV | srcV
	case api.AtomBAND:
		resultV = oldV & srcV
	case api.AtomLXOR:
		resultV = boolToInt((oldV != 0) != (srcV != 0))
	case api.AtomBXOR:
		resultV = oldV ^ srcV
	case api.AtomCSwapLE, api.AtomCSwapLT, api.AtomCSwapGE, api.AtomCSwapGT:
		operandV := loadInt(typ, operandB)
		if compareSwapTriggers(op, oldV, operandV) {
			resultV = srcV
		} else {
			resultV = oldV
		}
	default:
		return nil, fmt.Errorf("iobuf: op %v unsupported for integer elements", op)
	}
	return storeInt(typ, resultV), nil
}

func compareSwapTriggers(op api.AtomOp, old, operand int64) bool {
	switch op {
	case api.AtomCSwapLE:
		return old <= operand
	case api.AtomCSwapLT:
		return old < operand
	case api.AtomCSwapGE:
		return old >= operand
	case api.AtomCSwapGT:
		return old > operand
	default:
		return false
	}
}

func combineFloatOrComplex(op api.AtomOp, typ api.AtomType, oldB, srcB, operandB []byte) ([]byte, error) {
	if typ.isComplex() {
		return combineComplex(op, typ, oldB, srcB)
	}
	oldV := loadFloat(typ, oldB)
	srcV := loadFloat(typ, srcB)
	var resultV float64
	switch op {
	case api.AtomMin:
		resultV = math.Min(oldV, srcV)
	case api.AtomMax:
		resultV = math.Max(oldV, srcV)
	case api.AtomSum:
		resultV = oldV + srcV
	case api.AtomProd:
		resultV = oldV * srcV
	case api.AtomCSwapLE, api.AtomCSwapLT, api.AtomCSwapGE, api.AtomCSwapGT:
		operandV := loadFloat(typ, operandB)
		if compareSwapTriggersFloat(op, oldV, operandV) {
			return append([]byte(nil), srcB...), nil
		}
		return oldB, nil
	default:
		return nil, fmt.Errorf("iobuf: op %v unsupported for float elements", op)
	}
	return storeFloat(typ, resultV), nil
}

func compareSwapTriggersFloat(op api.AtomOp, old, operand float64) bool {
	switch op {
	case api.AtomCSwapLE:
		return old <= operand
	case api.AtomCSwapLT:
		return old < operand
	case api.AtomCSwapGE:
		return old >= operand
	case api.AtomCSwapGT:
		return old > operand
	default:
		return false
	}
}

func loadFloat(typ api.AtomType, b []byte) float64 {
	if typ == api.AtomFloat32 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func storeFloat(typ api.AtomType, v float64) []byte {
	if typ == api.AtomFloat32 {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		return b
	}
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func combineComplex(op api.AtomOp, typ api.AtomType, oldB, srcB []byte) ([]byte, error) {
	half := len(oldB) / 2
	oldR, oldI := loadFloatHalf(typ, oldB[:half]), loadFloatHalf(typ, oldB[half:])
	srcR, srcI := loadFloatHalf(typ, srcB[:half]), loadFloatHalf(typ, srcB[half:])
	var r, i float64
	switch op {
	case api.AtomSum:
		r, i = oldR+srcR, oldI+srcI
	case api.AtomProd:
		r, i = oldR*srcR-oldI*srcI, oldR*srcI+oldI*srcR
	case api.AtomSwap:
		return append([]byte(nil), srcB...), nil
	default:
		return nil, fmt.Errorf("iobuf: op %v unsupported for complex elements", op)
	}
	out := make([]byte, len(oldB))
	copy(out[:half], storeFloatHalf(typ, r))
	copy(out[half:], storeFloatHalf(typ, i))
	return out, nil
}

func loadFloatHalf(typ api.AtomType, b []byte) float64 {
	if typ == api.AtomFloat32Complex {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func storeFloatHalf(typ api.AtomType, v float64) []byte {
	if typ == api.AtomFloat32Complex {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		return b
	}
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
