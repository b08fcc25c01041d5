// Package handlers provides the SMB2 command handlers: NEGOTIATE,
// SESSION_SETUP, LOGOFF and ECHO.
package handlers

import (
	"context"

	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

// CryptoState is the negotiation state a connection keeps across commands.
// The smb package implements it; handlers only see this view.
type CryptoState interface {
	// BeginNegotiate claims the connection for one NEGOTIATE. It fails after
	// a concrete dialect was chosen or while another NEGOTIATE is running.
	BeginNegotiate() bool
	// EndNegotiate records the dialect that was sent, 0 on failure.
	EndNegotiate(d types.Dialect)
	GetDialect() types.Dialect

	SetClientGUID(guid [16]byte)
	GetClientGUID() [16]byte
	SetCipherId(id uint16)
	SetPreauthIntegrityHashId(id uint16)

	// UpdatePreauthHash folds a NEGOTIATE message into the connection hash.
	UpdatePreauthHash(message []byte)
	GetPreauthHash() session.PreauthHash
}

// SMBHandlerContext is the per-request state handed to every handler.
type SMBHandlerContext struct {
	Context    context.Context
	ClientAddr string
	// SessionID is the request header value, 0 before SESSION_SETUP.
	SessionID uint64
	TreeID    uint32
	MessageID uint64

	// IsGuest and Username are filled by the dispatcher for commands bound
	// to a session.
	IsGuest  bool
	Username string

	// RawMessage is the full request including the header.
	RawMessage []byte

	// ConnCryptoState may be nil in tests that skip dialect handling.
	ConnCryptoState CryptoState
}

func NewSMBHandlerContext(ctx context.Context, clientAddr string, sessionID uint64, treeID uint32, messageID uint64) *SMBHandlerContext {
	return &SMBHandlerContext{
		Context:    ctx,
		ClientAddr: clientAddr,
		SessionID:  sessionID,
		TreeID:     treeID,
		MessageID:  messageID,
	}
}

func (c *SMBHandlerContext) dialect() types.Dialect {
	if c.ConnCryptoState == nil {
		return 0
	}
	return c.ConnCryptoState.GetDialect()
}
