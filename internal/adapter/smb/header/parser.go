package header

import (
	"errors"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/wire"
)

var (
	// ErrInvalidProtocolID indicates the message doesn't start with 0xFE 'S' 'M' 'B'.
	ErrInvalidProtocolID = errors.New("invalid SMB2 protocol ID")

	// ErrMessageTooShort indicates fewer than 64 bytes were supplied.
	ErrMessageTooShort = errors.New("message too short for SMB2 header")

	// ErrInvalidHeaderSize indicates StructureSize is not 64.
	ErrInvalidHeaderSize = errors.New("invalid SMB2 header structure size")
)

// Parse decodes the header at the start of data.
func Parse(data []byte) (*SMB2Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrMessageTooShort
	}

	r := wire.NewReader(data[:HeaderSize])
	if r.ReadUint32() != types.SMB2ProtocolID {
		return nil, ErrInvalidProtocolID
	}
	if r.ReadUint16() != HeaderSize {
		return nil, ErrInvalidHeaderSize
	}

	h := &SMB2Header{
		CreditCharge: r.ReadUint16(),
		Status:       types.Status(r.ReadUint32()),
		Command:      types.Command(r.ReadUint16()),
		Credits:      r.ReadUint16(),
		Flags:        types.HeaderFlags(r.ReadUint32()),
		NextCommand:  r.ReadUint32(),
		MessageID:    r.ReadUint64(),
	}

	if h.Flags.IsAsync() {
		h.AsyncID = r.ReadUint64()
	} else {
		h.Reserved = r.ReadUint32()
		h.TreeID = r.ReadUint32()
	}
	h.SessionID = r.ReadUint64()
	copy(h.Signature[:], r.ReadBytes(16))

	return h, r.Err()
}

// IsSMB2Message reports whether data starts with the SMB2 protocol ID.
func IsSMB2Message(data []byte) bool {
	return len(data) >= 4 && wire.NewReader(data).ReadUint32() == types.SMB2ProtocolID
}

// IsSMB1Message reports whether data starts with the SMB1 protocol ID.
func IsSMB1Message(data []byte) bool {
	return len(data) >= 4 && wire.NewReader(data).ReadUint32() == types.SMB1ProtocolID
}
