package handlers

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/wire"
)

// LogoffRequest represents an SMB2 LOGOFF request [MS-SMB2] 2.2.7.
//
// **Wire format (4 bytes):**
//
//	Offset  Size  Field          Description
//	0       2     StructureSize  Always 4
//	2       2     Reserved       Must be 0
type LogoffRequest struct {
	StructureSize uint16
}

// LogoffResponse represents an SMB2 LOGOFF response [MS-SMB2] 2.2.8.
type LogoffResponse struct {
	SMBResponseBase
}

// DecodeLogoffRequest parses an SMB2 LOGOFF request body.
func DecodeLogoffRequest(body []byte) (*LogoffRequest, error) {
	r := wire.NewReader(body)
	req := &LogoffRequest{StructureSize: r.ReadUint16()}
	r.Skip(2)
	if r.Err() != nil {
		return nil, fmt.Errorf("LOGOFF decode error: %w", r.Err())
	}
	return req, nil
}

// Encode serializes the LogoffResponse into its 4-byte wire format.
func (resp *LogoffResponse) Encode() ([]byte, error) {
	w := wire.NewWriter(4)
	w.WriteUint16(4)
	w.WriteUint16(0)
	return w.Bytes(), w.Err()
}

// Logoff handles SMB2 LOGOFF [MS-SMB2] 3.3.5.6. The dispatcher has already
// checked that the request names a live session; it is expired and removed
// from the session table.
func (h *Handler) Logoff(ctx *SMBHandlerContext, req *LogoffRequest) (*LogoffResponse, error) {
	logger.DebugCtx(ctx.Context, "LOGOFF",
		logger.SessionID(ctx.SessionID),
		logger.Username(ctx.Username))

	h.CleanupSession(ctx.Context, ctx.SessionID)

	return &LogoffResponse{SMBResponseBase: SMBResponseBase{Status: types.StatusSuccess}}, nil
}
