package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Integers(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint8(0xAB)
	w.WriteUint16(0x0311)
	w.WriteUint32(0xDEADBEEF)
	w.WriteUint64(0x0102030405060708)
	require.NoError(t, w.Err())

	assert.Equal(t, []byte{
		0xAB,
		0x11, 0x03,
		0xEF, 0xBE, 0xAD, 0xDE,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}, w.Bytes())
}

func TestWriter_Pad(t *testing.T) {
	tests := []struct {
		written, align, want int
	}{
		{8, 8, 8},
		{1, 8, 8},
		{7, 8, 8},
		{9, 8, 16},
		{5, 4, 8},
		{3, 0, 3},
		{0, 8, 0},
	}
	for _, tt := range tests {
		w := NewWriter(16)
		w.WriteZeros(tt.written)
		w.Pad(tt.align)
		assert.Equal(t, tt.want, w.Len(), "%d bytes padded to %d", tt.written, tt.align)
	}
}

func TestWriter_Patch(t *testing.T) {
	w := NewWriter(16)
	w.WriteUint16(0)
	w.WriteUint32(0)
	w.WriteBytes([]byte("payload"))
	w.PutUint16At(0, 7)
	w.PutUint32At(2, 6)
	require.NoError(t, w.Err())

	assert.Equal(t, append([]byte{7, 0, 6, 0, 0, 0}, "payload"...), w.Bytes())
}

func TestWriter_PatchOutOfBounds(t *testing.T) {
	w := NewWriter(4)
	w.WriteUint16(0)
	w.PutUint32At(0, 1)
	require.ErrorIs(t, w.Err(), ErrOutOfBounds)

	w.WriteUint8(0xFF)
	assert.Equal(t, 2, w.Len(), "writes after a failed patch must be dropped")
}

func TestWriter_ReadBack(t *testing.T) {
	w := NewWriter(32)
	w.WriteUint16(0xFE53)
	w.WriteUint64(42)
	w.WriteBytes([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	assert.Equal(t, uint16(0xFE53), r.ReadUint16())
	assert.Equal(t, uint64(42), r.ReadUint64())
	assert.Equal(t, []byte{1, 2, 3}, r.ReadBytes(3))
	assert.NoError(t, r.Err())
}
