package smb

import (
	"encoding/binary"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/logger"
)

// DispatchHook is called after a handler produced a response for a command,
// once the response has been encoded with its header and before it is
// written. It receives the complete response message.
//
// Hooks serve cross-cutting concerns that need the raw wire bytes, such as
// the SMB 3.1.1 preauth integrity hash chain.
type DispatchHook func(connInfo *ConnInfo, command types.Command, rawMessage []byte)

// afterHooks maps a command to the hooks run on its responses, in order.
var afterHooks = map[types.Command][]DispatchHook{}

func init() {
	// [MS-SMB2] 3.3.5.4, 3.3.5.5: the chain covers NEGOTIATE and every
	// SESSION_SETUP exchanged before the session is established. Requests
	// are folded in by the handlers.
	RegisterAfterHook(types.CommandNegotiate, preauthNegotiateHook)
	RegisterAfterHook(types.CommandSessionSetup, preauthSessionSetupHook)
}

// RegisterAfterHook appends a hook to run after handler execution for the given command.
func RegisterAfterHook(cmd types.Command, hook DispatchHook) {
	afterHooks[cmd] = append(afterHooks[cmd], hook)
}

// RunAfterHooks runs all after-hooks registered for the given command.
func RunAfterHooks(connInfo *ConnInfo, cmd types.Command, rawMessage []byte) {
	for _, hook := range afterHooks[cmd] {
		hook(connInfo, cmd, rawMessage)
	}
}

func responseStatus(rawMessage []byte) types.Status {
	return types.Status(binary.LittleEndian.Uint32(rawMessage[8:12]))
}

// preauthNegotiateHook folds a successful 3.1.1 NEGOTIATE response into the
// connection hash.
func preauthNegotiateHook(connInfo *ConnInfo, _ types.Command, rawMessage []byte) {
	if connInfo.CryptoState == nil || len(rawMessage) < header.HeaderSize {
		return
	}
	if connInfo.CryptoState.GetDialect() != types.Dialect0311 || responseStatus(rawMessage) != types.StatusSuccess {
		return
	}
	connInfo.CryptoState.UpdatePreauthHash(rawMessage)
	logger.Debug("Preauth hash updated with NEGOTIATE response", logger.Size(len(rawMessage)))
}

// preauthSessionSetupHook folds a MORE_PROCESSING_REQUIRED SESSION_SETUP
// response into the hash of its session. The final response is not part of
// the chain.
func preauthSessionSetupHook(connInfo *ConnInfo, _ types.Command, rawMessage []byte) {
	if connInfo.CryptoState == nil || len(rawMessage) < header.HeaderSize {
		return
	}
	if connInfo.CryptoState.GetDialect() != types.Dialect0311 || responseStatus(rawMessage) != types.StatusMoreProcessingRequired {
		return
	}

	sessionID := binary.LittleEndian.Uint64(rawMessage[40:48])
	sess, ok := connInfo.SessionManager.Get(sessionID)
	if !ok {
		return
	}
	sess.Lock()
	sess.ExtendPreauth(rawMessage)
	sess.Unlock()
}
