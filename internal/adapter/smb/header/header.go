// Package header parses and encodes the 64-byte SMB2 message header.
//
// Layout ([MS-SMB2] 2.2.1, little-endian):
//
//	Offset Size Field
//	     0    4 ProtocolID      0xFE 'S' 'M' 'B'
//	     4    2 StructureSize   always 64
//	     6    2 CreditCharge
//	     8    4 Status          NT status in responses, ChannelSequence in requests
//	    12    2 Command
//	    14    2 Credits         CreditRequest / CreditResponse
//	    16    4 Flags
//	    20    4 NextCommand     offset of the next header in a compound chain
//	    24    8 MessageID
//	    32    4 Reserved        sync: ProcessID; async: low half of AsyncID
//	    36    4 TreeID          sync only; async: high half of AsyncID
//	    40    8 SessionID
//	    48   16 Signature
package header

import (
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

// HeaderSize is the fixed size of the SMB2 header.
const HeaderSize = 64

// SMB2Header is the common header of SMB2 requests and responses.
type SMB2Header struct {
	CreditCharge uint16
	Status       types.Status
	Command      types.Command
	Credits      uint16
	Flags        types.HeaderFlags
	NextCommand  uint32
	MessageID    uint64

	// Reserved and TreeID are only meaningful for synchronous messages;
	// AsyncID replaces both when FlagAsync is set.
	Reserved uint32
	TreeID   uint32
	AsyncID  uint64

	SessionID uint64
	Signature [16]byte
}

func (h *SMB2Header) IsResponse() bool { return h.Flags.IsResponse() }
func (h *SMB2Header) IsAsync() bool    { return h.Flags.IsAsync() }
func (h *SMB2Header) IsSigned() bool   { return h.Flags.IsSigned() }
func (h *SMB2Header) IsRelated() bool  { return h.Flags.IsRelated() }

// CommandName returns the string name of the command.
func (h *SMB2Header) CommandName() string {
	return h.Command.String()
}

// GrantCredits returns the CreditResponse for a request asking for requested
// credits. Every response grants at least one credit so that the client can
// always send its next request.
func GrantCredits(requested uint16) uint16 {
	return max(requested, 1)
}

// NewResponseHeader builds the header answering req: same command, message
// and session identifiers, FlagResponse set, credits granted per GrantCredits.
// The async and related flags of the request are carried over.
func NewResponseHeader(req *SMB2Header, status types.Status) *SMB2Header {
	return &SMB2Header{
		CreditCharge: req.CreditCharge,
		Status:       status,
		Command:      req.Command,
		Credits:      GrantCredits(req.Credits),
		Flags:        types.FlagResponse | (req.Flags & (types.FlagAsync | types.FlagRelated)),
		MessageID:    req.MessageID,
		Reserved:     req.Reserved,
		TreeID:       req.TreeID,
		AsyncID:      req.AsyncID,
		SessionID:    req.SessionID,
	}
}
