package handlers

import "github.com/marmos91/dittosmb/internal/adapter/smb/types"

// SMBResponseBase is embedded by fixed-layout response structs so the
// dispatcher can read their status generically.
type SMBResponseBase struct {
	Status types.Status
}

func (b SMBResponseBase) GetStatus() types.Status { return b.Status }

// HandlerResult is what a command handler hands back to the dispatcher.
type HandlerResult struct {
	// Data is the response body after the 64-byte header. A nil body on a
	// failure status becomes the 9-byte ERROR response.
	Data   []byte
	Status types.Status
	// SessionID, when non-zero, replaces the header SessionId. SESSION_SETUP
	// sets it for a newly allocated session.
	SessionID uint64
	// Disconnect drops the connection without sending anything.
	Disconnect bool
}

func NewResult(status types.Status, data []byte) *HandlerResult {
	return &HandlerResult{Status: status, Data: data}
}

func NewErrorResult(status types.Status) *HandlerResult {
	return &HandlerResult{Status: status}
}

func NewDisconnectResult() *HandlerResult {
	return &HandlerResult{Disconnect: true}
}
