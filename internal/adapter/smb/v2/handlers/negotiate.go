package handlers

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/wire"
)

// preauthSaltSize is the length of the salt sent in the preauth integrity
// context of a 3.1.1 NEGOTIATE response.
const preauthSaltSize = 32

// negotiateResponseFixedSize is the fixed part of the NEGOTIATE response
// body. The security buffer follows immediately, at offset 128 from the
// start of the SMB2 header.
const negotiateResponseFixedSize = 64

// ============================================================================
// Request and Response Structures
// ============================================================================

// NegotiateRequest represents an SMB2 NEGOTIATE request [MS-SMB2] 2.2.3.
//
// **Wire format (36 bytes + dialects + contexts):**
//
//	Offset  Size  Field
//	0       2     StructureSize (36)
//	2       2     DialectCount
//	4       2     SecurityMode
//	6       2     Reserved
//	8       4     Capabilities
//	12      16    ClientGuid
//	28      4     NegotiateContextOffset (3.1.1, from header start)
//	32      2     NegotiateContextCount  (3.1.1)
//	34      2     Reserved2
//	36      2*N   Dialects
type NegotiateRequest struct {
	SecurityMode uint16
	Capabilities uint32
	ClientGUID   [16]byte
	Dialects     []types.Dialect

	// Contexts is only populated when the client offered 3.1.1.
	Contexts []types.NegotiateContext

	contextOffset uint32
	contextCount  uint16
}

// Offers reports whether the client listed d.
func (r *NegotiateRequest) Offers(d types.Dialect) bool {
	for _, offered := range r.Dialects {
		if offered == d {
			return true
		}
	}
	return false
}

// NegotiateResponse represents an SMB2 NEGOTIATE response [MS-SMB2] 2.2.4.
type NegotiateResponse struct {
	SMBResponseBase

	SecurityMode    uint16
	DialectRevision types.Dialect
	ServerGUID      [16]byte
	Capabilities    uint32
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32
	SystemTime      types.Filetime
	ServerStartTime types.Filetime
	SecurityBuffer  []byte
	Contexts        []types.NegotiateContext
}

// ============================================================================
// Encoding/Decoding Functions
// ============================================================================

// DecodeNegotiateRequest parses a NEGOTIATE request body. Negotiate contexts
// are parsed only when 3.1.1 is among the offered dialects; their offset is
// relative to the start of the SMB2 header, which precedes body.
func DecodeNegotiateRequest(body []byte) (*NegotiateRequest, error) {
	r := wire.NewReader(body)
	r.ExpectUint16(36)
	dialectCount := int(r.ReadUint16())
	req := &NegotiateRequest{}
	req.SecurityMode = r.ReadUint16()
	r.Skip(2)
	req.Capabilities = r.ReadUint32()
	copy(req.ClientGUID[:], r.ReadBytes(16))
	req.contextOffset = r.ReadUint32()
	req.contextCount = r.ReadUint16()
	r.Skip(2)
	r.EnsureRemaining(dialectCount * 2)
	if r.Err() != nil {
		return nil, fmt.Errorf("NEGOTIATE decode error: %w", r.Err())
	}

	req.Dialects = make([]types.Dialect, dialectCount)
	for i := range req.Dialects {
		req.Dialects[i] = types.Dialect(r.ReadUint16())
	}

	if req.contextCount > 0 && req.Offers(types.Dialect0311) {
		start := int(req.contextOffset) - header.HeaderSize
		if start < r.Position() || start > len(body) {
			return nil, fmt.Errorf("NEGOTIATE context offset %d out of range", req.contextOffset)
		}
		contexts, err := types.ParseNegotiateContextList(body[start:], int(req.contextCount))
		if err != nil {
			return nil, err
		}
		req.Contexts = contexts
	}

	return req, nil
}

// Encode serializes the response body. Negotiate contexts, when present,
// start at the first 8-byte boundary after the security buffer.
func (resp *NegotiateResponse) Encode() []byte {
	w := wire.NewWriter(negotiateResponseFixedSize + len(resp.SecurityBuffer) + 128)
	w.WriteUint16(65)
	w.WriteUint16(resp.SecurityMode)
	w.WriteUint16(uint16(resp.DialectRevision))
	w.WriteUint16(uint16(len(resp.Contexts)))
	w.WriteBytes(resp.ServerGUID[:])
	w.WriteUint32(resp.Capabilities)
	w.WriteUint32(resp.MaxTransactSize)
	w.WriteUint32(resp.MaxReadSize)
	w.WriteUint32(resp.MaxWriteSize)
	w.WriteUint64(uint64(resp.SystemTime))
	w.WriteUint64(uint64(resp.ServerStartTime))
	w.WriteUint16(header.HeaderSize + negotiateResponseFixedSize)
	w.WriteUint16(uint16(len(resp.SecurityBuffer)))
	w.WriteUint32(0) // NegotiateContextOffset, patched below
	w.WriteBytes(resp.SecurityBuffer)

	if len(resp.Contexts) > 0 {
		// The header is 64 bytes, so body alignment equals message alignment.
		w.Pad(8)
		w.PutUint32At(60, uint32(header.HeaderSize+w.Len()))
		w.WriteBytes(types.EncodeNegotiateContextList(resp.Contexts))
	} else if len(resp.SecurityBuffer) == 0 {
		// StructureSize 65 counts one byte of the variable part.
		w.WriteUint8(0)
	}

	return w.Bytes()
}

// ============================================================================
// Protocol Handler
// ============================================================================

// Negotiate handles the SMB2 NEGOTIATE command [MS-SMB2] 3.3.5.4.
//
// The highest dialect both sides support, within the configured bounds, is
// selected. A client that offered the wildcard and would only get 2.0.2 is
// answered with 0x02FF so it issues a second NEGOTIATE. For 3.1.1 the
// preauth integrity context is mandatory and the request is folded into the
// connection's preauth hash; the response is folded in by the dispatcher
// once it has been encoded with its header.
//
// A NEGOTIATE received after a dialect was negotiated drops the connection
// without a response.
func (h *Handler) Negotiate(ctx *SMBHandlerContext, body []byte) (*HandlerResult, error) {
	state := ctx.ConnCryptoState
	if state != nil {
		if !state.BeginNegotiate() {
			logger.WarnCtx(ctx.Context, "NEGOTIATE after dialect was negotiated; disconnecting",
				logger.ClientAddr(ctx.ClientAddr))
			return NewDisconnectResult(), nil
		}
	}

	var responded types.Dialect
	defer func() {
		if state != nil {
			state.EndNegotiate(responded)
		}
	}()

	req, err := DecodeNegotiateRequest(body)
	if err != nil {
		logger.DebugCtx(ctx.Context, "Malformed NEGOTIATE request", logger.Err(err))
		return NewErrorResult(types.StatusInvalidParameter), nil
	}
	if len(req.Dialects) == 0 {
		return NewErrorResult(types.StatusInvalidParameter), nil
	}

	selected := h.selectDialect(req.Dialects)
	if selected == 0 {
		logger.DebugCtx(ctx.Context, "No common dialect",
			"offered", fmt.Sprint(req.Dialects))
		return NewErrorResult(types.StatusNotSupported), nil
	}

	resp := &NegotiateResponse{
		SMBResponseBase: SMBResponseBase{Status: types.StatusSuccess},
		SecurityMode:    h.SecurityMode(),
		DialectRevision: selected,
		ServerGUID:      h.ServerGUID,
		MaxTransactSize: h.MaxTransactSize,
		MaxReadSize:     h.MaxReadSize,
		MaxWriteSize:    h.MaxWriteSize,
		SystemTime:      types.NewFiletime(time.Now()),
		SecurityBuffer:  h.SecurityBuffer(),
	}
	if selected >= types.Dialect0210 {
		resp.Capabilities = types.CapLargeMTU
	}
	if selected <= types.Dialect0202 && req.Offers(types.DialectWildcard) {
		resp.DialectRevision = types.DialectWildcard
	}

	if selected == types.Dialect0311 {
		if status := h.negotiateContexts(ctx, req, resp); status != types.StatusSuccess {
			return NewErrorResult(status), nil
		}
	}

	if state != nil {
		state.SetClientGUID(req.ClientGUID)
	}
	responded = resp.DialectRevision

	logger.DebugCtx(ctx.Context, "NEGOTIATE complete",
		logger.Dialect(resp.DialectRevision),
		"contexts", len(resp.Contexts))

	return NewResult(types.StatusSuccess, resp.Encode()), nil
}

// selectDialect picks the highest supported dialect the client offered that
// lies within [MinDialect, MaxDialect]. The wildcard counts as an offer of
// 2.0.2.
func (h *Handler) selectDialect(offered []types.Dialect) types.Dialect {
	has := make(map[types.Dialect]bool, len(offered))
	for _, d := range offered {
		has[d] = true
	}
	if has[types.DialectWildcard] {
		has[types.Dialect0202] = true
	}

	for _, d := range types.SupportedDialects {
		if h.MinDialect != 0 && d < h.MinDialect {
			continue
		}
		if h.MaxDialect != 0 && d > h.MaxDialect {
			continue
		}
		if has[d] {
			return d
		}
	}
	return 0
}

// negotiateContexts handles the 3.1.1 negotiate contexts: it validates the
// preauth integrity capabilities, updates the connection state, folds the
// request into the preauth hash and fills the response contexts.
func (h *Handler) negotiateContexts(ctx *SMBHandlerContext, req *NegotiateRequest, resp *NegotiateResponse) types.Status {
	pctx, ok := types.FindContext(req.Contexts, types.NegCtxPreauthIntegrity)
	if !ok {
		logger.DebugCtx(ctx.Context, "3.1.1 NEGOTIATE without preauth integrity context")
		return types.StatusInvalidParameter
	}
	caps, err := types.DecodePreauthIntegrityCaps(pctx.Data)
	if err != nil {
		logger.DebugCtx(ctx.Context, "Malformed preauth integrity context", logger.Err(err))
		return types.StatusInvalidParameter
	}
	if !caps.Supports(types.HashAlgSHA512) {
		return types.StatusNoPreauthIntegrityHashOverlap
	}

	if ectx, ok := types.FindContext(req.Contexts, types.NegCtxEncryptionCaps); ok {
		if _, err := types.DecodeEncryptionCaps(ectx.Data); err != nil {
			logger.DebugCtx(ctx.Context, "Malformed encryption context", logger.Err(err))
			return types.StatusInvalidParameter
		}
	}

	salt := make([]byte, preauthSaltSize)
	if _, err := rand.Read(salt); err != nil {
		logger.ErrorCtx(ctx.Context, "Failed to generate preauth salt", logger.Err(err))
		return types.StatusInternalError
	}

	resp.Contexts = []types.NegotiateContext{
		{
			ContextType: types.NegCtxPreauthIntegrity,
			Data: types.PreauthIntegrityCaps{
				HashAlgorithms: []uint16{types.HashAlgSHA512},
				Salt:           salt,
			}.Encode(),
		},
		{
			// No common cipher: encryption is not offered.
			ContextType: types.NegCtxEncryptionCaps,
			Data:        types.EncryptionCaps{Ciphers: []uint16{types.CipherNone}}.Encode(),
		},
	}

	if state := ctx.ConnCryptoState; state != nil {
		state.SetPreauthIntegrityHashId(types.HashAlgSHA512)
		state.SetCipherId(types.CipherNone)
		state.UpdatePreauthHash(ctx.RawMessage)
	}
	return types.StatusSuccess
}
