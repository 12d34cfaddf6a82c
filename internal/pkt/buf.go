package pkt

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a read or write would run past the end
// of the underlying byte slice.
var ErrShortBuffer = errors.New("pkt: short buffer")

// Buffer is a bounds-checked cursor over a fixed byte slice. All integer
// accessors are network byte order. The error is sticky: after the first
// out-of-bounds access every subsequent operation is a no-op and Err()
// reports the failure. No operation allocates.
type Buffer struct {
	data []byte
	off  int
	err  error
}

// NewBuffer wraps data with the cursor at offset 0.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Offset returns the current cursor position.
func (b *Buffer) Offset() int { return b.off }

// Remaining returns the number of bytes left after the cursor.
func (b *Buffer) Remaining() int { return len(b.data) - b.off }

// Err returns the sticky error, if any.
func (b *Buffer) Err() error { return b.err }

func (b *Buffer) check(n int) bool {
	if b.err != nil {
		return false
	}
	if b.off+n > len(b.data) {
		b.err = ErrShortBuffer
		return false
	}
	return true
}

func (b *Buffer) PutU8(v uint8) {
	if !b.check(1) {
		return
	}
	b.data[b.off] = v
	b.off++
}

func (b *Buffer) PutU16(v uint16) {
	if !b.check(2) {
		return
	}
	binary.BigEndian.PutUint16(b.data[b.off:], v)
	b.off += 2
}

func (b *Buffer) PutU32(v uint32) {
	if !b.check(4) {
		return
	}
	binary.BigEndian.PutUint32(b.data[b.off:], v)
	b.off += 4
}

func (b *Buffer) PutU64(v uint64) {
	if !b.check(8) {
		return
	}
	binary.BigEndian.PutUint64(b.data[b.off:], v)
	b.off += 8
}

func (b *Buffer) PutBytes(p []byte) {
	if !b.check(len(p)) {
		return
	}
	copy(b.data[b.off:], p)
	b.off += len(p)
}

func (b *Buffer) U8() uint8 {
	if !b.check(1) {
		return 0
	}
	v := b.data[b.off]
	b.off++
	return v
}

func (b *Buffer) U16() uint16 {
	if !b.check(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(b.data[b.off:])
	b.off += 2
	return v
}

func (b *Buffer) U32() uint32 {
	if !b.check(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(b.data[b.off:])
	b.off += 4
	return v
}

func (b *Buffer) U64() uint64 {
	if !b.check(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(b.data[b.off:])
	b.off += 8
	return v
}

// Bytes consumes and returns the next n bytes. The returned slice aliases
// the underlying buffer.
func (b *Buffer) Bytes(n int) []byte {
	if !b.check(n) {
		return nil
	}
	v := b.data[b.off : b.off+n]
	b.off += n
	return v
}

// PutU16At patches a big-endian u16 at an absolute offset without moving
// the cursor. Used to back-fill length and checksum fields.
func (b *Buffer) PutU16At(off int, v uint16) {
	if b.err != nil {
		return
	}
	if off+2 > len(b.data) {
		b.err = ErrShortBuffer
		return
	}
	binary.BigEndian.PutUint16(b.data[off:], v)
}

// Window returns the bytes between two absolute offsets.
func (b *Buffer) Window(from, to int) []byte {
	if b.err != nil {
		return nil
	}
	if from < 0 || to > len(b.data) || from > to {
		b.err = ErrShortBuffer
		return nil
	}
	return b.data[from:to]
}
