// File: iobuf/iovec.go
// Author: momentics <momentics@gmail.com>
//
// Scatter/gather iovec primitives over a memory descriptor's regions
// (spec §4.2). Grounded in the teacher's zero-copy Buffer.Slice
// (api/buffer.go) pattern of returning O(1) sub-views rather than
// copying — copy_out/copy_in here are the one place actual byte copies
// happen, exactly where the spec calls for them.
package iobuf

import "fmt"

// Segment is one contiguous range of an iovec.
type Segment struct {
	Base []byte
}

// Iovec is an ordered list of memory segments, e.g. an MD's
// scatter/gather list (spec §3 MD.iovec).
type Iovec []Segment

// Len returns the total addressable length across all segments.
func (iov Iovec) Len() int {
	var n int
	for _, s := range iov {
		n += len(s.Base)
	}
	return n
}

// CountElem locates the segment containing byte offset, returning its
// index and the segment-relative base offset (spec §4.2 count_elem).
func (iov Iovec) CountElem(offset int) (index int, base int, err error) {
	remaining := offset
	for i, s := range iov {
		if remaining < len(s.Base) {
			return i, remaining, nil
		}
		remaining -= len(s.Base)
	}
	return 0, 0, fmt.Errorf("iobuf: offset %d out of range (iovec length %d)", offset, iov.Len())
}

func (iov Iovec) checkBounds(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > iov.Len() {
		return fmt.Errorf("iobuf: range [%d,%d) exceeds iovec length %d", offset, offset+length, iov.Len())
	}
	return nil
}

// CopyOut gathers length bytes starting at offset from iov into dst
// (spec §4.2 copy_out). dst must have capacity >= length.
func CopyOut(dst []byte, iov Iovec, offset, length int) error {
	if err := iov.checkBounds(offset, length); err != nil {
		return err
	}
	idx, base, err := iov.CountElem(offset)
	if err != nil {
		return err
	}
	written := 0
	for written < length && idx < len(iov) {
		seg := iov[idx].Base[base:]
		n := copy(dst[written:length], seg)
		written += n
		idx++
		base = 0
	}
	return nil
}

// CopyIn scatters length bytes from src into iov starting at offset
// (spec §4.2 copy_in).
func CopyIn(iov Iovec, offset int, src []byte, length int) error {
	if err := iov.checkBounds(offset, length); err != nil {
		return err
	}
	idx, base, err := iov.CountElem(offset)
	if err != nil {
		return err
	}
	written := 0
	for written < length && idx < len(iov) {
		seg := iov[idx].Base[base:]
		n := copy(seg, src[written:length])
		written += n
		idx++
		base = 0
	}
	return nil
}
