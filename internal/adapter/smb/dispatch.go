// Package smb implements SMB2 request processing for a single connection:
// NetBIOS framing, the SMB1 upgrade, command dispatch, compound chains and
// response encoding.
package smb

import (
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/internal/logger"
)

type HandlerResult = handlers.HandlerResult

// CommandHandler runs one decoded command body against the connection's
// handler.
type CommandHandler func(h *handlers.Handler, ctx *handlers.SMBHandlerContext, body []byte) (*HandlerResult, error)

// Command describes one supported SMB2 command. NeedsSession commands are
// refused with USER_SESSION_DELETED unless the header names a valid
// session.
type Command struct {
	Name         string
	Handler      CommandHandler
	NeedsSession bool
}

// DispatchTable maps SMB2 command codes to handlers. Commands missing from
// the table are answered with STATUS_NOT_SUPPORTED.
var DispatchTable = map[types.Command]*Command{
	types.CommandNegotiate: {
		Name:    "NEGOTIATE",
		Handler: (*handlers.Handler).Negotiate,
	},
	types.CommandSessionSetup: {
		Name:    "SESSION_SETUP",
		Handler: (*handlers.Handler).SessionSetup,
	},
	types.CommandLogoff: {
		Name:         "LOGOFF",
		Handler:      fixedLayout(handlers.DecodeLogoffRequest, (*handlers.Handler).Logoff),
		NeedsSession: true,
	},
	types.CommandEcho: {
		Name:    "ECHO",
		Handler: fixedLayout(handlers.DecodeEchoRequest, (*handlers.Handler).Echo),
	},
}

type smbResponse interface {
	Encode() ([]byte, error)
	GetStatus() types.Status
}

// fixedLayout adapts a decode/handle pair for commands whose request and
// response bodies have a fixed shape.
//
// An undecodable body and an error status both produce an error result
// without body, so the caller sends the standard error body. Handler and
// encoder failures are returned and end up as STATUS_INTERNAL_ERROR.
func fixedLayout[Req any, Resp smbResponse](
	decode func([]byte) (Req, error),
	handle func(*handlers.Handler, *handlers.SMBHandlerContext, Req) (Resp, error),
) CommandHandler {
	return func(h *handlers.Handler, ctx *handlers.SMBHandlerContext, body []byte) (*HandlerResult, error) {
		req, err := decode(body)
		if err != nil {
			logger.DebugCtx(ctx.Context, "Malformed SMB2 request body", logger.Err(err))
			return handlers.NewErrorResult(types.StatusInvalidParameter), nil
		}

		resp, err := handle(h, ctx, req)
		if err != nil {
			return nil, err
		}
		if status := resp.GetStatus(); status.IsError() {
			return handlers.NewErrorResult(status), nil
		}

		encoded, err := resp.Encode()
		if err != nil {
			return nil, err
		}
		return handlers.NewResult(resp.GetStatus(), encoded), nil
	}
}
