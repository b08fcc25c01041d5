package handlers

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/wire"
)

// echoStructureSize is the fixed StructureSize of both ECHO messages
// [MS-SMB2] 2.2.28 and 2.2.29.
const echoStructureSize = 4

// EchoRequest is an SMB2 ECHO request: StructureSize then two reserved bytes.
type EchoRequest struct {
	StructureSize uint16
}

// EchoResponse is an SMB2 ECHO response.
type EchoResponse struct {
	SMBResponseBase
}

// DecodeEchoRequest parses an ECHO body. A StructureSize other than 4 is
// rejected.
func DecodeEchoRequest(body []byte) (*EchoRequest, error) {
	r := wire.NewReader(body)
	req := &EchoRequest{StructureSize: r.ReadUint16()}
	r.Skip(2)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("ECHO decode error: %w", err)
	}
	if req.StructureSize != echoStructureSize {
		return nil, fmt.Errorf("ECHO: bad StructureSize %d", req.StructureSize)
	}
	return req, nil
}

// Encode writes the 4-byte response body.
func (resp *EchoResponse) Encode() ([]byte, error) {
	w := wire.NewWriter(echoStructureSize)
	w.WriteUint16(echoStructureSize)
	w.WriteUint16(0)
	return w.Bytes(), w.Err()
}

// Echo handles SMB2 ECHO [MS-SMB2] 3.3.5.17. It needs no session and changes
// nothing; clients use it as a keepalive.
func (h *Handler) Echo(ctx *SMBHandlerContext, _ *EchoRequest) (*EchoResponse, error) {
	logger.DebugCtx(ctx.Context, "ECHO", logger.SessionID(ctx.SessionID))
	return &EchoResponse{SMBResponseBase: SMBResponseBase{Status: types.StatusSuccess}}, nil
}
