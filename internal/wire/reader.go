package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrShortRead reports a sequential read past the end of the buffer.
	ErrShortRead = errors.New("wire: short read")
	// ErrOutOfBounds reports an offset-addressed access outside the buffer.
	ErrOutOfBounds = errors.New("wire: out of bounds")
	// ErrExpectMismatch reports a field that did not hold the required value.
	ErrExpectMismatch = errors.New("wire: expect mismatch")
)

var le = binary.LittleEndian

// Reader decodes little-endian fields from a byte slice. The first failure
// is kept and turns every later call into a no-op returning zero values.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader returns a Reader positioned at the start of data. data is not
// copied and must not change while the reader is in use.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// take consumes n bytes and returns them without copying.
func (r *Reader) take(n int) ([]byte, bool) {
	if r.err != nil {
		return nil, false
	}
	if n < 0 || n > len(r.data)-r.pos {
		r.err = fmt.Errorf("%w: %d bytes wanted at offset %d, %d left", ErrShortRead, n, r.pos, len(r.data)-r.pos)
		return nil, false
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

// at returns data[off:off+n] without moving the cursor.
func (r *Reader) at(off, n int) ([]byte, bool) {
	if r.err != nil {
		return nil, false
	}
	if off < 0 || n < 0 || off > len(r.data) || n > len(r.data)-off {
		r.err = fmt.Errorf("%w: [%d, %d) outside %d-byte buffer", ErrOutOfBounds, off, off+n, len(r.data))
		return nil, false
	}
	return r.data[off : off+n], true
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() uint8 {
	if b, ok := r.take(1); ok {
		return b[0]
	}
	return 0
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() uint16 {
	if b, ok := r.take(2); ok {
		return le.Uint16(b)
	}
	return 0
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() uint32 {
	if b, ok := r.take(4); ok {
		return le.Uint32(b)
	}
	return 0
}

// ReadUint64 reads a little-endian uint64, e.g. a SessionId or FILETIME.
func (r *Reader) ReadUint64() uint64 {
	if b, ok := r.take(8); ok {
		return le.Uint64(b)
	}
	return 0
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if b, ok := r.take(n); ok {
		return append([]byte{}, b...)
	}
	return nil
}

// Skip advances past n bytes, typically reserved fields or padding.
func (r *Reader) Skip(n int) { r.take(n) }

// EnsureRemaining fails the reader unless n more bytes follow. Nothing is
// consumed.
func (r *Reader) EnsureRemaining(n int) {
	if _, ok := r.take(n); ok {
		r.pos -= n
	}
}

// Seek moves the cursor to an absolute offset; len(data) is allowed.
func (r *Reader) Seek(off int) {
	if _, ok := r.at(off, 0); ok {
		r.pos = off
	}
}

// ExpectUint16 reads a uint16 and fails the reader unless it equals want.
func (r *Reader) ExpectUint16(want uint16) {
	start := r.pos
	if got := r.ReadUint16(); r.err == nil && got != want {
		r.err = fmt.Errorf("%w: 0x%04X at offset %d, want 0x%04X", ErrExpectMismatch, got, start, want)
	}
}

// Uint16At reads a little-endian uint16 at an absolute offset without
// moving the cursor.
func (r *Reader) Uint16At(off int) uint16 {
	if b, ok := r.at(off, 2); ok {
		return le.Uint16(b)
	}
	return 0
}

// Uint32At reads a little-endian uint32 at an absolute offset without
// moving the cursor.
func (r *Reader) Uint32At(off int) uint32 {
	if b, ok := r.at(off, 4); ok {
		return le.Uint32(b)
	}
	return 0
}

// BytesAt returns a copy of n bytes at off. A zero-length read at the end
// of the buffer yields an empty, non-nil slice.
func (r *Reader) BytesAt(off, n int) []byte {
	if b, ok := r.at(off, n); ok {
		return append([]byte{}, b...)
	}
	return nil
}

// Err returns the first failure, or nil.
func (r *Reader) Err() error { return r.err }

// Position is the cursor offset from the start of the buffer.
func (r *Reader) Position() int { return r.pos }

// Remaining is the number of bytes after the cursor.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }
