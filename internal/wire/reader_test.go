package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_Sequential(t *testing.T) {
	data := []byte{
		0x7F,
		0x01, 0x02,
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	}
	r := NewReader(data)

	assert.Equal(t, uint8(0x7F), r.ReadUint8())
	assert.Equal(t, uint16(0x0201), r.ReadUint16())
	assert.Equal(t, uint32(0x04030201), r.ReadUint32())
	assert.Equal(t, uint64(0x0807060504030201), r.ReadUint64())
	require.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
	assert.Equal(t, len(data), r.Position())
}

func TestReader_ShortReads(t *testing.T) {
	tests := map[string]struct {
		data []byte
		read func(*Reader)
	}{
		"uint16":           {[]byte{0x01}, func(r *Reader) { r.ReadUint16() }},
		"uint32":           {[]byte{0x01, 0x02}, func(r *Reader) { r.ReadUint32() }},
		"uint64":           {[]byte{1, 2, 3, 4}, func(r *Reader) { r.ReadUint64() }},
		"bytes":            {[]byte{0x01, 0x02}, func(r *Reader) { r.ReadBytes(5) }},
		"negative length":  {[]byte{0x01, 0x02}, func(r *Reader) { r.ReadBytes(-1) }},
		"skip":             {[]byte{0x01, 0x02}, func(r *Reader) { r.Skip(3) }},
		"ensure remaining": {nil, func(r *Reader) { r.EnsureRemaining(1) }},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewReader(tt.data)
			tt.read(r)
			assert.ErrorIs(t, r.Err(), ErrShortRead)
		})
	}
}

func TestReader_EnsureRemainingDoesNotConsume(t *testing.T) {
	r := NewReader([]byte{0x34, 0x12})
	r.EnsureRemaining(2)
	assert.Equal(t, uint16(0x1234), r.ReadUint16())
	assert.NoError(t, r.Err())
}

func TestReader_StickyError(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	r.ReadUint32()
	first := r.Err()
	require.Error(t, first)

	assert.Zero(t, r.ReadUint8())
	assert.Nil(t, r.ReadBytes(1))
	assert.Zero(t, r.Uint16At(0))
	assert.Same(t, first, r.Err())
}

func TestReader_ReadBytesCopies(t *testing.T) {
	data := []byte{0xAA, 0xBB}
	b := NewReader(data).ReadBytes(2)
	b[0] = 0
	assert.Equal(t, byte(0xAA), data[0])
}

func TestReader_RandomAccess(t *testing.T) {
	r := NewReader([]byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90})

	assert.Equal(t, uint16(0x3020), r.Uint16At(1))
	assert.Equal(t, uint32(0x80706050), r.Uint32At(4))
	assert.Equal(t, []byte{0x80, 0x90}, r.BytesAt(7, 2))
	end := r.BytesAt(9, 0)
	assert.NotNil(t, end)
	assert.Empty(t, end)
	assert.Zero(t, r.Position(), "random access moved the cursor")
	assert.NoError(t, r.Err())
}

func TestReader_OutOfBounds(t *testing.T) {
	tests := map[string]func(*Reader){
		"uint16 past end": func(r *Reader) { r.Uint16At(3) },
		"uint32 past end": func(r *Reader) { r.Uint32At(1) },
		"bytes past end":  func(r *Reader) { r.BytesAt(2, 3) },
		"negative offset": func(r *Reader) { r.BytesAt(-1, 1) },
		"huge length":     func(r *Reader) { r.BytesAt(1, int(^uint(0)>>1)) },
		"seek past end":   func(r *Reader) { r.Seek(5) },
	}
	for name, access := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewReader([]byte{1, 2, 3, 4})
			access(r)
			assert.ErrorIs(t, r.Err(), ErrOutOfBounds)
		})
	}
}

func TestReader_Seek(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	r.Seek(2)
	assert.Equal(t, uint16(0x0403), r.ReadUint16())
	r.Seek(4)
	assert.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
}

func TestReader_ExpectUint16(t *testing.T) {
	r := NewReader([]byte{0x40, 0x00})
	r.ExpectUint16(64)
	assert.NoError(t, r.Err())

	r = NewReader([]byte{0x41, 0x00})
	r.ExpectUint16(64)
	assert.ErrorIs(t, r.Err(), ErrExpectMismatch)

	r = NewReader([]byte{0x41})
	r.ExpectUint16(64)
	assert.ErrorIs(t, r.Err(), ErrShortRead)
}
