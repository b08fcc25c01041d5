package wire

import "fmt"

// Writer appends little-endian fields to a growing buffer. Offset and length
// fields can be written as placeholders and patched once the payload is laid
// out. A failed patch is kept and stops further writes.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns an empty Writer with room for capacity bytes.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) ok() bool { return w.err == nil }

// WriteUint8 appends one byte.
func (w *Writer) WriteUint8(v uint8) {
	if w.ok() {
		w.buf = append(w.buf, v)
	}
}

// WriteUint16 appends a little-endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	if w.ok() {
		w.buf = le.AppendUint16(w.buf, v)
	}
}

// WriteUint32 appends a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	if w.ok() {
		w.buf = le.AppendUint32(w.buf, v)
	}
}

// WriteUint64 appends a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	if w.ok() {
		w.buf = le.AppendUint64(w.buf, v)
	}
}

// WriteBytes appends b as is.
func (w *Writer) WriteBytes(b []byte) {
	if w.ok() {
		w.buf = append(w.buf, b...)
	}
}

// WriteZeros appends n zero bytes, for reserved fields.
func (w *Writer) WriteZeros(n int) {
	if w.ok() && n > 0 {
		w.buf = append(w.buf, make([]byte, n)...)
	}
}

// Pad appends zeros up to the next multiple of align.
func (w *Writer) Pad(align int) {
	if align > 0 {
		w.WriteZeros((align - len(w.buf)%align) % align)
	}
}

// patch returns the n bytes at off for overwriting.
func (w *Writer) patch(off, n int) []byte {
	if !w.ok() {
		return nil
	}
	if off < 0 || off+n > len(w.buf) {
		w.err = fmt.Errorf("%w: patch [%d, %d) beyond %d written bytes", ErrOutOfBounds, off, off+n, len(w.buf))
		return nil
	}
	return w.buf[off : off+n]
}

// PutUint16At overwrites two already written bytes at off.
func (w *Writer) PutUint16At(off int, v uint16) {
	if b := w.patch(off, 2); b != nil {
		le.PutUint16(b, v)
	}
}

// PutUint32At overwrites four already written bytes at off, e.g. a
// buffer offset known only after the payload is laid out.
func (w *Writer) PutUint32At(off int, v uint32) {
	if b := w.patch(off, 4); b != nil {
		le.PutUint32(b, v)
	}
}

// Bytes returns the encoded buffer. It aliases the Writer's storage.
func (w *Writer) Bytes() []byte { return w.buf }

// Len is the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Err returns the first failed patch, or nil.
func (w *Writer) Err() error { return w.err }
