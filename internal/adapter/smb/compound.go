package smb

import (
	"context"
	"fmt"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/internal/logger"
)

// ProcessCompoundRequest processes all commands in a compound request sequentially.
// Related operations inherit the SessionId of the previous command.
// req.Remaining contains the commands after the first one.
//
// Each command gets its own response frame. Processing stops at the first
// malformed command; ErrDisconnect is returned when a command requires the
// connection to be dropped.
func ProcessCompoundRequest(ctx context.Context, req *Request, connInfo *ConnInfo) error {
	logger.Debug("Processing compound request - first command",
		logger.Command(req.Header.Command.String()),
		logger.MessageID(req.Header.MessageID))

	result := dispatch(ctx, req.Header, req.Message, req.Body, connInfo)
	if result.Disconnect {
		return ErrDisconnect
	}
	if err := SendResponse(req.Header, result, connInfo); err != nil {
		return err
	}

	lastSessionID := inheritedSessionID(req.Header, result)
	lastStatus := result.Status

	remaining := req.Remaining
	for len(remaining) >= header.HeaderSize {
		hdr, message, body, next, err := ParseCompoundCommand(remaining)
		if err != nil {
			logger.Debug("Error parsing compound command", logger.Err(err))
			return nil
		}
		remaining = next

		if hdr.IsRelated() {
			if hdr.SessionID == 0 || hdr.SessionID == ^uint64(0) {
				hdr.SessionID = lastSessionID
			}
			// [MS-SMB2] 3.3.5.2.7.2: a related command after a failed one
			// fails with the same status.
			if lastStatus.IsError() {
				if err := SendErrorResponse(hdr, lastStatus, connInfo); err != nil {
					return err
				}
				continue
			}
		}

		logger.Debug("Processing compound request - command",
			logger.Command(hdr.Command.String()),
			logger.MessageID(hdr.MessageID),
			"is_related", hdr.IsRelated())

		result := dispatch(ctx, hdr, message, body, connInfo)
		if result.Disconnect {
			return ErrDisconnect
		}
		if err := SendResponse(hdr, result, connInfo); err != nil {
			return err
		}

		lastSessionID = inheritedSessionID(hdr, result)
		lastStatus = result.Status
	}
	return nil
}

// inheritedSessionID is the SessionId a following related command uses.
func inheritedSessionID(hdr *header.SMB2Header, result *handlers.HandlerResult) uint64 {
	if result.SessionID != 0 {
		return result.SessionID
	}
	return hdr.SessionID
}

// ParseCompoundCommand parses the next command from compound data.
// It returns the header, the command's own bytes (header and body), its
// body and the data following it.
func ParseCompoundCommand(data []byte) (hdr *header.SMB2Header, message, body, remaining []byte, err error) {
	if len(data) < header.HeaderSize {
		return nil, nil, nil, nil, fmt.Errorf("compound data too small: %d bytes", len(data))
	}

	hdr, err = header.Parse(data)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("parse compound SMB2 header: %w", err)
	}
	if hdr.Command == types.CommandNegotiate {
		return nil, nil, nil, nil, fmt.Errorf("NEGOTIATE inside a compound chain")
	}

	message, remaining = splitCompound(data, hdr)
	body = message[header.HeaderSize:]

	logger.Debug("SMB2 compound request",
		logger.Command(hdr.Command.String()),
		logger.MessageID(hdr.MessageID),
		logger.SessionID(hdr.SessionID),
		"next_command", hdr.NextCommand,
		"flags", fmt.Sprintf("0x%x", uint32(hdr.Flags)))

	return hdr, message, body, remaining, nil
}
