// Package session holds the SMB2 session table.
//
// A session is created by the first SESSION_SETUP of an authentication
// exchange and owns the NTLM state machine for that exchange. It becomes
// Valid once authentication succeeds and Expired on LOGOFF, on connection
// close or when the idle sweep removes it.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittosmb/internal/auth/ntlm"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateInProgress State = iota
	StateValid
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in-progress"
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session is one SMB2 session.
//
// Identity fields are written once, by Establish, while the caller holds the
// session lock. The NTLM state machine and the preauth hash are only touched
// by SESSION_SETUP processing of this session, serialized by Lock/Unlock.
type Session struct {
	ID         uint64
	ClientAddr string
	CreatedAt  time.Time

	// NTLM drives the authentication exchange. RawNTLM is set when the
	// client sent bare NTLMSSP tokens instead of SPNEGO, in which case the
	// server answers in kind.
	NTLM    *ntlm.Session
	RawNTLM bool

	mu           sync.Mutex
	state        atomic.Int32
	lastActivity atomic.Int64

	username    string
	domain      string
	workstation string
	isGuest     bool
	isNull      bool
	sessionKey  []byte
	preauth     PreauthHash
}

func newSession(id uint64, clientAddr string, now time.Time) *Session {
	s := &Session{
		ID:         id,
		ClientAddr: clientAddr,
		CreatedAt:  now,
	}
	s.state.Store(int32(StateInProgress))
	s.lastActivity.Store(now.UnixNano())
	return s
}

// Lock serializes SESSION_SETUP processing for the session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the lock taken by Lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Identity describes the authenticated principal of an established session.
type Identity struct {
	Username    string
	Domain      string
	Workstation string
	IsGuest     bool
	IsNull      bool
	SessionKey  []byte
}

// Establish moves an in-progress session to Valid. The NTLM state machine is
// dropped since it has no further use once the exchange is complete.
// It must be called with the session lock held.
func (s *Session) Establish(id Identity) error {
	if !s.state.CompareAndSwap(int32(StateInProgress), int32(StateValid)) {
		return fmt.Errorf("session 0x%x: cannot establish in state %s", s.ID, s.State())
	}
	s.username = id.Username
	s.domain = id.Domain
	s.workstation = id.Workstation
	s.isGuest = id.IsGuest
	s.isNull = id.IsNull
	s.sessionKey = append([]byte(nil), id.SessionKey...)
	s.NTLM = nil
	s.Touch(time.Now())
	return nil
}

// Expire marks the session Expired and wipes the session key.
func (s *Session) Expire() {
	s.state.Store(int32(StateExpired))
	s.mu.Lock()
	clear(s.sessionKey)
	s.sessionKey = nil
	s.NTLM = nil
	s.mu.Unlock()
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// LastActivity returns the time of the most recent request on the session.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// SessionKey returns a copy of the exported NTLM session key. It is nil for
// guest and anonymous sessions and before the session is established.
func (s *Session) SessionKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionKey == nil {
		return nil
	}
	return append([]byte(nil), s.sessionKey...)
}

// InitPreauth seeds the session preauth hash from the connection hash.
// Must be called with the session lock held.
func (s *Session) InitPreauth(connHash PreauthHash) {
	s.preauth = connHash
}

// ExtendPreauth folds message into the session preauth hash.
// Must be called with the session lock held.
func (s *Session) ExtendPreauth(message []byte) {
	s.preauth = s.preauth.Extend(message)
}

// Preauth returns the session preauth hash.
func (s *Session) Preauth() PreauthHash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preauth
}

// Info is a read-only snapshot of a session, used for listings.
type Info struct {
	ID           uint64    `json:"id"`
	State        string    `json:"state"`
	Username     string    `json:"username,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	Workstation  string    `json:"workstation,omitempty"`
	Guest        bool      `json:"guest"`
	Anonymous    bool      `json:"anonymous"`
	ClientAddr   string    `json:"client_addr"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.ID,
		State:        s.State().String(),
		Username:     s.username,
		Domain:       s.domain,
		Workstation:  s.workstation,
		Guest:        s.isGuest,
		Anonymous:    s.isNull,
		ClientAddr:   s.ClientAddr,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity(),
	}
}

// Username returns the authenticated user name, or "" before establishment.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// IsGuest reports whether the session was established as guest.
func (s *Session) IsGuest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isGuest
}
