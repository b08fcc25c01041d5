package header

import (
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/wire"
)

// Encode serializes the header to its 64-byte wire form.
func (h *SMB2Header) Encode() []byte {
	return h.AppendTo(wire.NewWriter(HeaderSize)).Bytes()
}

// AppendTo writes the header to w and returns w, so a response body can
// follow it in the same buffer.
func (h *SMB2Header) AppendTo(w *wire.Writer) *wire.Writer {
	w.WriteUint32(types.SMB2ProtocolID)
	w.WriteUint16(HeaderSize)
	w.WriteUint16(h.CreditCharge)
	w.WriteUint32(uint32(h.Status))
	w.WriteUint16(uint16(h.Command))
	w.WriteUint16(h.Credits)
	w.WriteUint32(uint32(h.Flags))
	w.WriteUint32(h.NextCommand)
	w.WriteUint64(h.MessageID)
	if h.Flags.IsAsync() {
		w.WriteUint64(h.AsyncID)
	} else {
		w.WriteUint32(h.Reserved)
		w.WriteUint32(h.TreeID)
	}
	w.WriteUint64(h.SessionID)
	w.WriteBytes(h.Signature[:])
	return w
}
