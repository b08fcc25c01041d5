package smb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/internal/wire"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// ErrDisconnect is returned when a request requires the connection to be
// dropped without a response, e.g. a second NEGOTIATE.
var ErrDisconnect = errors.New("connection must be closed")

// SMB1 dialect strings that lead to an SMB2 upgrade [MS-SMB2] 3.3.5.3.1.
const (
	smb1DialectWildcard = "SMB 2.???"
	smb1Dialect0202     = "SMB 2.002"
)

// ProcessSingleRequest dispatches an SMB2 request to the appropriate handler
// and sends the response.
//
// It returns ErrDisconnect when the handler asked for the connection to be
// closed, and write errors from sending the response.
func ProcessSingleRequest(ctx context.Context, req *Request, connInfo *ConnInfo) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result := dispatch(ctx, req.Header, req.Message, req.Body, connInfo)
	if result.Disconnect {
		return ErrDisconnect
	}
	return SendResponse(req.Header, result, connInfo)
}

// dispatch runs one command and returns its result. It never fails: every
// problem is expressed as an NT status, or as a disconnect request.
func dispatch(ctx context.Context, reqHeader *header.SMB2Header, message, body []byte, connInfo *ConnInfo) *HandlerResult {
	start := time.Now()
	clientAddr := connInfo.ClientAddr()

	cmd, known := DispatchTable[reqHeader.Command]
	name := reqHeader.Command.String()
	if known {
		name = cmd.Name
	}

	lc := logger.NewLogContext(clientIP(clientAddr)).WithCommand(name, reqHeader.SessionID, reqHeader.MessageID)
	ctx, span := telemetry.StartSMBSpan(ctx, name, reqHeader.MessageID, reqHeader.SessionID,
		telemetry.ClientAddr(clientAddr))
	defer span.End()
	if telemetry.IsEnabled() {
		lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	}
	ctx = logger.WithContext(ctx, lc)

	result := runCommand(ctx, cmd, known, reqHeader, message, body, connInfo)

	span.SetAttributes(telemetry.SMBStatus(uint32(result.Status)))
	metrics.RecordRequest(connInfo.Metrics, name, result.Status.String(), time.Since(start))
	logger.DebugCtx(ctx, "SMB2 command complete",
		logger.StatusMsg(result.Status.String()),
		logger.DurationMs(lc.DurationMs()))

	if !result.Disconnect {
		TrackSessionLifecycle(reqHeader.Command, reqHeader.SessionID, result, connInfo.SessionTracker)
	}
	return result
}

func runCommand(
	ctx context.Context,
	cmd *Command,
	known bool,
	reqHeader *header.SMB2Header,
	message, body []byte,
	connInfo *ConnInfo,
) *HandlerResult {
	// [MS-SMB2] 3.3.5.2: nothing but NEGOTIATE is accepted before a dialect
	// has been negotiated.
	if reqHeader.Command != types.CommandNegotiate && connInfo.CryptoState != nil && !connInfo.CryptoState.Negotiated() {
		logger.WarnCtx(ctx, "Request before NEGOTIATE; disconnecting")
		return handlers.NewDisconnectResult()
	}

	if !known {
		logger.DebugCtx(ctx, "Unsupported SMB2 command")
		return handlers.NewErrorResult(types.StatusNotSupported)
	}

	handlerCtx := handlers.NewSMBHandlerContext(ctx, connInfo.ClientAddr(),
		reqHeader.SessionID, reqHeader.TreeID, reqHeader.MessageID)
	handlerCtx.RawMessage = message
	if connInfo.CryptoState != nil {
		handlerCtx.ConnCryptoState = connInfo.CryptoState
	}

	if cmd.NeedsSession {
		sess, ok := connInfo.Handler.GetSession(reqHeader.SessionID)
		if !ok || sess.State() != session.StateValid {
			return handlers.NewErrorResult(types.StatusUserSessionDeleted)
		}
		sess.Touch(time.Now())
		handlerCtx.IsGuest = sess.IsGuest()
		handlerCtx.Username = sess.Username()
		if lc := logger.FromContext(ctx); lc != nil {
			handlerCtx.Context = logger.WithContext(ctx, lc.WithUser(handlerCtx.Username))
		}
	}

	result, err := cmd.Handler(connInfo.Handler, handlerCtx, body)
	if err != nil {
		logger.ErrorCtx(ctx, "Handler error", logger.Err(err))
		telemetry.RecordError(ctx, err)
		return handlers.NewErrorResult(types.StatusInternalError)
	}
	return result
}

// SendResponse encodes the response to reqHeader, runs the after-hooks on the
// complete message and writes it.
func SendResponse(reqHeader *header.SMB2Header, result *HandlerResult, connInfo *ConnInfo) error {
	respHeader := header.NewResponseHeader(reqHeader, result.Status)

	// SESSION_SETUP assigns the session ID.
	if result.SessionID != 0 {
		respHeader.SessionID = result.SessionID
	}

	// Error responses must include a valid error body per MS-SMB2.
	body := result.Data
	if body == nil {
		body = MakeErrorBody()
	}

	return SendMessage(respHeader, body, connInfo)
}

// SendErrorResponse sends an SMB2 error response.
func SendErrorResponse(reqHeader *header.SMB2Header, status types.Status, connInfo *ConnInfo) error {
	return SendMessage(header.NewResponseHeader(reqHeader, status), MakeErrorBody(), connInfo)
}

// SendMessage sends an SMB2 message with NetBIOS framing. Responses are
// never signed.
func SendMessage(hdr *header.SMB2Header, body []byte, connInfo *ConnInfo) error {
	w := wire.NewWriter(header.HeaderSize + len(body))
	hdr.AppendTo(w)
	w.WriteBytes(body)
	smbPayload := w.Bytes()

	// Hooks see the final bytes before the client can react to them.
	RunAfterHooks(connInfo, hdr.Command, smbPayload)

	if err := WriteNetBIOSFrame(connInfo.Conn, connInfo.WriteMu, connInfo.WriteTimeout, smbPayload); err != nil {
		return err
	}

	logger.Debug("Sent SMB2 response",
		logger.Command(hdr.Command.String()),
		logger.StatusMsg(hdr.Status.String()),
		logger.MessageID(hdr.MessageID),
		logger.Credits(hdr.Credits),
		logger.Size(len(smbPayload)))

	return nil
}

// ============================================================================
// SMB1 Upgrade
// ============================================================================

// ParseSMB1NegotiateDialects returns the dialect strings of an SMB1
// SMB_COM_NEGOTIATE request [MS-CIFS] 2.2.4.52.1.
//
// Layout after the 32-byte SMB1 header: WordCount (1, must be 0),
// ByteCount (2), then dialects each encoded as 0x02 followed by a
// NUL-terminated OEM string.
func ParseSMB1NegotiateDialects(message []byte) ([]string, error) {
	r := wire.NewReader(message)
	if r.ReadUint32() != types.SMB1ProtocolID {
		return nil, fmt.Errorf("not an SMB1 message")
	}
	if cmd := r.ReadUint8(); cmd != types.SMB1CommandNegotiate {
		return nil, fmt.Errorf("unexpected SMB1 command 0x%02x", cmd)
	}
	r.Seek(32)
	r.Skip(int(r.ReadUint8()) * 2)
	byteCount := int(r.ReadUint16())
	data := r.ReadBytes(byteCount)
	if r.Err() != nil {
		return nil, fmt.Errorf("SMB1 NEGOTIATE: %w", r.Err())
	}

	var dialects []string
	for len(data) > 0 {
		if data[0] != 0x02 {
			return nil, fmt.Errorf("SMB1 NEGOTIATE: bad dialect buffer format 0x%02x", data[0])
		}
		end := bytes.IndexByte(data[1:], 0)
		if end < 0 {
			return nil, fmt.Errorf("SMB1 NEGOTIATE: unterminated dialect string")
		}
		dialects = append(dialects, string(data[1:1+end]))
		data = data[2+end:]
	}
	return dialects, nil
}

// HandleSMB1Negotiate answers a legacy SMB1 NEGOTIATE with an SMB2 NEGOTIATE
// response, which tells the client to continue in SMB2.
//
// Clients offering "SMB 2.???" get the wildcard dialect 0x02FF and send an
// SMB2 NEGOTIATE next; clients offering only "SMB 2.002" get 2.0.2 directly.
// Anything else is an error and the connection is closed.
func HandleSMB1Negotiate(connInfo *ConnInfo, message []byte) error {
	dialects, err := ParseSMB1NegotiateDialects(message)
	if err != nil {
		return err
	}

	var dialect types.Dialect
	switch {
	case contains(dialects, smb1DialectWildcard):
		dialect = types.DialectWildcard
	case contains(dialects, smb1Dialect0202):
		dialect = types.Dialect0202
	default:
		logger.Warn("SMB1 client without SMB2 dialects",
			logger.ClientAddr(connInfo.ClientAddr()),
			"dialects", fmt.Sprint(dialects))
		return fmt.Errorf("SMB1 client offered no SMB2 dialect")
	}

	state := connInfo.CryptoState
	if state != nil {
		if !state.BeginNegotiate() {
			return ErrDisconnect
		}
		defer state.EndNegotiate(dialect)
	}

	h := connInfo.Handler
	resp := &handlers.NegotiateResponse{
		SecurityMode:    h.SecurityMode(),
		DialectRevision: dialect,
		ServerGUID:      h.ServerGUID,
		MaxTransactSize: h.MaxTransactSize,
		MaxReadSize:     h.MaxReadSize,
		MaxWriteSize:    h.MaxWriteSize,
		SystemTime:      types.NewFiletime(time.Now()),
		SecurityBuffer:  h.SecurityBuffer(),
	}
	if dialect == types.DialectWildcard {
		resp.Capabilities = types.CapLargeMTU
	}

	respHeader := &header.SMB2Header{
		Command: types.CommandNegotiate,
		Status:  types.StatusSuccess,
		Credits: 1,
		Flags:   types.FlagResponse,
	}

	logger.Debug("SMB1 NEGOTIATE upgraded to SMB2",
		logger.ClientAddr(connInfo.ClientAddr()),
		logger.Dialect(dialect))

	return SendRawMessage(connInfo.Conn, connInfo.WriteMu, connInfo.WriteTimeout, respHeader.Encode(), resp.Encode())
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// TrackSessionLifecycle tracks session creation/deletion for connection cleanup.
// This ensures proper cleanup when connections close ungracefully.
func TrackSessionLifecycle(command types.Command, reqSessionID uint64, result *HandlerResult, tracker SessionTracker) {
	if tracker == nil {
		return
	}

	switch command {
	case types.CommandSessionSetup:
		if result.SessionID == 0 {
			return
		}
		// In-progress sessions are tracked too so an abandoned exchange is
		// cleaned up with the connection.
		if result.Status == types.StatusSuccess || result.Status == types.StatusMoreProcessingRequired {
			tracker.TrackSession(result.SessionID)
		} else {
			tracker.UntrackSession(result.SessionID)
		}
	case types.CommandLogoff:
		// The handler has already removed the session.
		if result.Status == types.StatusSuccess && reqSessionID != 0 {
			tracker.UntrackSession(reqSessionID)
		}
	}
}

// MakeErrorBody creates the SMB2 ERROR response body [MS-SMB2] 2.2.2:
// StructureSize (2) + ErrorContextCount (1) + Reserved (1) + ByteCount (4)
// + one byte of ErrorData.
func MakeErrorBody() []byte {
	w := wire.NewWriter(9)
	w.WriteUint16(9) // StructureSize
	w.WriteUint8(0)  // ErrorContextCount
	w.WriteUint8(0)  // Reserved
	w.WriteUint32(0) // ByteCount
	w.WriteUint8(0)  // ErrorData
	return w.Bytes()
}

// clientIP strips the port from a host:port address.
func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
