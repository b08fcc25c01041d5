package smb

import (
	"sync"

	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

// ConnectionCryptoState holds the per-connection negotiation state and the
// SMB 3.1.1 preauth integrity hash chain [MS-SMB2] 3.2.5.2:
//
//	H(i) = SHA-512(H(i-1) || Message(i))
//
// where H(0) is 64 bytes of zeros and each Message(i) is a complete
// NEGOTIATE request or response. Sessions copy H(2) at their first
// SESSION_SETUP and continue the chain on their own.
//
// Requests of one connection run concurrently, so every field is guarded
// by mu.
type ConnectionCryptoState struct {
	mu sync.RWMutex

	// dialect is the DialectRevision sent in the last successful NEGOTIATE
	// response. 0 until then; 0x02FF after a wildcard response.
	dialect     types.Dialect
	negotiating bool

	cipherID               uint16
	preauthIntegrityHashID uint16
	clientGUID             [16]byte

	preauthHash session.PreauthHash
}

// NewConnectionCryptoState creates the state of a fresh connection.
func NewConnectionCryptoState() *ConnectionCryptoState {
	return &ConnectionCryptoState{}
}

// BeginNegotiate reports whether a NEGOTIATE may run now. Only one runs at a
// time, and none once a real dialect has been negotiated.
func (cs *ConnectionCryptoState) BeginNegotiate() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.negotiating || cs.negotiatedLocked() {
		return false
	}
	cs.negotiating = true
	return true
}

// EndNegotiate finishes the NEGOTIATE started by BeginNegotiate. d is the
// dialect sent to the client, or 0 when the NEGOTIATE failed.
func (cs *ConnectionCryptoState) EndNegotiate(d types.Dialect) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.negotiating = false
	if d != 0 {
		cs.dialect = d
	}
}

// Negotiated reports whether a dialect other than the wildcard was agreed.
// Commands other than NEGOTIATE are refused until then.
func (cs *ConnectionCryptoState) Negotiated() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.negotiatedLocked()
}

func (cs *ConnectionCryptoState) negotiatedLocked() bool {
	return cs.dialect != 0 && cs.dialect != types.DialectWildcard
}

// GetDialect returns the negotiated dialect.
func (cs *ConnectionCryptoState) GetDialect() types.Dialect {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.dialect
}

// SetClientGUID records the client's GUID from the NEGOTIATE request.
func (cs *ConnectionCryptoState) SetClientGUID(guid [16]byte) {
	cs.mu.Lock()
	cs.clientGUID = guid
	cs.mu.Unlock()
}

// GetClientGUID returns the client's GUID.
func (cs *ConnectionCryptoState) GetClientGUID() [16]byte {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.clientGUID
}

// SetCipherId records the selected encryption cipher.
func (cs *ConnectionCryptoState) SetCipherId(id uint16) {
	cs.mu.Lock()
	cs.cipherID = id
	cs.mu.Unlock()
}

// SetPreauthIntegrityHashId records the selected hash algorithm.
func (cs *ConnectionCryptoState) SetPreauthIntegrityHashId(id uint16) {
	cs.mu.Lock()
	cs.preauthIntegrityHashID = id
	cs.mu.Unlock()
}

// UpdatePreauthHash folds a complete NEGOTIATE message into the chain.
func (cs *ConnectionCryptoState) UpdatePreauthHash(message []byte) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.preauthHash = cs.preauthHash.Extend(message)
}

// GetPreauthHash returns the current connection preauth hash.
func (cs *ConnectionCryptoState) GetPreauthHash() session.PreauthHash {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.preauthHash
}
