package handlers

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/wire"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// sessionSetupRequestFixedSize is the fixed part of the request body.
const sessionSetupRequestFixedSize = 24

// sessionSetupResponseFixedSize is the fixed part of the response body; the
// security buffer follows at offset 72 from the start of the header.
const sessionSetupResponseFixedSize = 8

// ============================================================================
// Request and Response Structures
// ============================================================================

// SessionSetupRequest represents an SMB2 SESSION_SETUP request [MS-SMB2] 2.2.5.
//
// **Wire format (24 bytes + security buffer):**
//
//	Offset  Size  Field
//	0       2     StructureSize (25)
//	2       1     Flags
//	3       1     SecurityMode
//	4       4     Capabilities
//	8       4     Channel
//	12      2     SecurityBufferOffset (from header start)
//	14      2     SecurityBufferLength
//	16      8     PreviousSessionId
type SessionSetupRequest struct {
	Flags             uint8
	SecurityMode      uint8
	Capabilities      uint32
	PreviousSessionID uint64
	SecurityBuffer    []byte
}

// SessionSetupResponse represents an SMB2 SESSION_SETUP response [MS-SMB2] 2.2.6.
type SessionSetupResponse struct {
	SMBResponseBase
	SessionFlags   uint16
	SecurityBuffer []byte
}

// ============================================================================
// Encoding/Decoding Functions
// ============================================================================

// DecodeSessionSetupRequest parses a SESSION_SETUP request body. The
// security buffer must lie entirely inside the message, after the fixed
// part of the body.
func DecodeSessionSetupRequest(body []byte) (*SessionSetupRequest, error) {
	r := wire.NewReader(body)
	r.ExpectUint16(25)
	req := &SessionSetupRequest{}
	req.Flags = r.ReadUint8()
	req.SecurityMode = r.ReadUint8()
	req.Capabilities = r.ReadUint32()
	r.Skip(4) // Channel
	offset := int(r.ReadUint16())
	length := int(r.ReadUint16())
	req.PreviousSessionID = r.ReadUint64()
	if r.Err() != nil {
		return nil, fmt.Errorf("SESSION_SETUP decode error: %w", r.Err())
	}

	if length == 0 {
		return req, nil
	}
	start := offset - header.HeaderSize
	if start < sessionSetupRequestFixedSize {
		return nil, fmt.Errorf("SESSION_SETUP security buffer offset %d overlaps the fixed body", offset)
	}
	req.SecurityBuffer = r.BytesAt(start, length)
	if r.Err() != nil {
		return nil, fmt.Errorf("SESSION_SETUP security buffer (offset %d, length %d): %w", offset, length, r.Err())
	}
	return req, nil
}

// Encode serializes the response body.
func (resp *SessionSetupResponse) Encode() []byte {
	w := wire.NewWriter(sessionSetupResponseFixedSize + len(resp.SecurityBuffer) + 1)
	w.WriteUint16(9)
	w.WriteUint16(resp.SessionFlags)
	w.WriteUint16(header.HeaderSize + sessionSetupResponseFixedSize)
	w.WriteUint16(uint16(len(resp.SecurityBuffer)))
	w.WriteBytes(resp.SecurityBuffer)
	if len(resp.SecurityBuffer) == 0 {
		// StructureSize 9 counts one byte of the variable part.
		w.WriteUint8(0)
	}
	return w.Bytes()
}

// ============================================================================
// Protocol Handler
// ============================================================================

// SessionSetup handles the SMB2 SESSION_SETUP command [MS-SMB2] 3.3.5.5.
//
// A request with SessionId 0 starts a new authentication exchange in a
// fresh session. Later legs must name a session that is still in progress.
// Each leg hands the security buffer to the authenticator:
//
//   - MORE_PROCESSING_REQUIRED keeps the session in progress
//   - SUCCESS establishes it, as guest when the user was mapped to guest
//   - any other status removes the session
//
// The response header carries the session ID, which the dispatcher takes
// from HandlerResult.SessionID.
func (h *Handler) SessionSetup(ctx *SMBHandlerContext, body []byte) (*HandlerResult, error) {
	req, err := DecodeSessionSetupRequest(body)
	if err != nil {
		logger.DebugCtx(ctx.Context, "Malformed SESSION_SETUP request", logger.Err(err))
		return NewErrorResult(types.StatusInvalidParameter), nil
	}
	if req.Flags&types.SessionSetupFlagBinding != 0 {
		logger.DebugCtx(ctx.Context, "SESSION_SETUP binding request refused")
		return NewErrorResult(types.StatusRequestNotAccepted), nil
	}

	sess, status := h.sessionForSetup(ctx)
	if status != types.StatusSuccess {
		return NewErrorResult(status), nil
	}

	sess.Lock()
	if sess.State() != session.StateInProgress {
		// Lost a race with LOGOFF, the idle sweep or a concurrent final leg.
		sess.Unlock()
		return NewErrorResult(types.StatusUserSessionDeleted), nil
	}

	if ctx.dialect() == types.Dialect0311 {
		if ctx.SessionID == 0 {
			sess.InitPreauth(ctx.ConnCryptoState.GetPreauthHash())
		}
		sess.ExtendPreauth(ctx.RawMessage)
	}

	res := h.Authenticator.Accept(ctx.Context, sess, req.SecurityBuffer)
	resp := &SessionSetupResponse{
		SMBResponseBase: SMBResponseBase{Status: res.Status},
		SecurityBuffer:  res.Token,
	}

	switch {
	case res.Status == types.StatusMoreProcessingRequired:
		sess.Unlock()

	case res.Status == types.StatusSuccess && res.Identity != nil:
		if err := sess.Establish(*res.Identity); err != nil {
			sess.Unlock()
			logger.ErrorCtx(ctx.Context, "Failed to establish session", logger.SessionID(sess.ID), logger.Err(err))
			h.CleanupSession(ctx.Context, sess.ID)
			return &HandlerResult{Status: types.StatusInternalError, SessionID: sess.ID}, nil
		}
		sess.Unlock()
		h.SessionManager.MarkEstablished()
		if res.Identity.IsGuest {
			resp.SessionFlags = types.SessionFlagIsGuest
		}
		logger.InfoCtx(ctx.Context, "Session established",
			logger.SessionID(sess.ID),
			logger.Username(res.Identity.Username),
			logger.Domain(res.Identity.Domain),
			logger.Guest(res.Identity.IsGuest),
			logger.Mechanism(res.Mechanism))

	default:
		sess.Unlock()
		logger.InfoCtx(ctx.Context, "Authentication failed",
			logger.SessionID(sess.ID),
			logger.StatusMsg(res.Status.String()),
			logger.Mechanism(res.Mechanism),
			logger.Err(res.Err))
		h.CleanupSession(ctx.Context, sess.ID)
		if res.Status == types.StatusInvalidParameter {
			return &HandlerResult{Status: res.Status, SessionID: sess.ID}, nil
		}
	}

	metrics.SetActiveSessions(h.Metrics, h.SessionManager.Count())

	return &HandlerResult{
		Data:      resp.Encode(),
		Status:    res.Status,
		SessionID: sess.ID,
	}, nil
}

// sessionForSetup returns the session a SESSION_SETUP leg applies to,
// creating one for the first leg.
func (h *Handler) sessionForSetup(ctx *SMBHandlerContext) (*session.Session, types.Status) {
	if ctx.SessionID == 0 {
		sess := h.SessionManager.Create(ctx.ClientAddr)
		logger.DebugCtx(ctx.Context, "Session created", logger.SessionID(sess.ID))
		return sess, types.StatusSuccess
	}

	sess, ok := h.SessionManager.Get(ctx.SessionID)
	if !ok || sess.State() != session.StateInProgress {
		// Re-authentication of an established session is not supported.
		logger.DebugCtx(ctx.Context, "SESSION_SETUP for unknown or established session",
			logger.SessionID(ctx.SessionID))
		return nil, types.StatusUserSessionDeleted
	}
	if sess.ClientAddr != ctx.ClientAddr {
		return nil, types.StatusUserSessionDeleted
	}
	return sess, types.StatusSuccess
}
