package ntlm

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle position of an NTLM Session.
type State int

const (
	// StateInitial: no message received yet.
	StateInitial State = iota

	// StateAwaitingAuthentication: CHALLENGE sent, waiting for AUTHENTICATE.
	StateAwaitingAuthentication

	// StateAuthenticated: handshake completed successfully. Terminal.
	StateAuthenticated

	// StateFailed: the handshake was abandoned after an error. Terminal.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateAwaitingAuthentication:
		return "AwaitingAuthentication"
	case StateAuthenticated:
		return "Authenticated"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ServerConfig carries the names the server announces in CHALLENGE messages.
type ServerConfig struct {
	// TargetName is the TargetName field of the CHALLENGE message.
	TargetName string

	NetBIOSComputerName string
	NetBIOSDomainName   string
	DNSComputerName     string
	DNSDomainName       string

	// Now supplies the MsvAvTimestamp clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultServerName is used for every unset ServerConfig name.
const DefaultServerName = "localhost"

func (c ServerConfig) withDefaults() ServerConfig {
	for _, s := range []*string{
		&c.TargetName,
		&c.NetBIOSComputerName,
		&c.NetBIOSDomainName,
		&c.DNSComputerName,
		&c.DNSDomainName,
	} {
		if *s == "" {
			*s = DefaultServerName
		}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Session is the server side of one NTLM handshake.
//
// It moves Initial -> AwaitingAuthentication (Negotiate) -> Authenticated
// (Authenticate). Any failure leaves it Failed. A Session is not safe for
// concurrent use; the owning SMB session serializes access.
type Session struct {
	cfg   ServerConfig
	state State

	negotiate    *NegotiateMessage
	challenge    *ChallengeMessage
	authenticate *AuthenticateMessage

	exportedSessionKey []byte
}

// NewSession returns a Session in StateInitial.
func NewSession(cfg ServerConfig) *Session {
	return &Session{cfg: cfg.withDefaults()}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Negotiate consumes a NEGOTIATE message and returns the CHALLENGE to send.
//
// The challenge grants (client flags & WantedFlags) | ALWAYS_SIGN |
// REQUEST_TARGET, and its target info lists the configured NetBIOS and DNS
// names plus a timestamp.
func (s *Session) Negotiate(msg []byte) ([]byte, error) {
	if s.state != StateInitial {
		return nil, fmt.Errorf("%w: Negotiate in state %s", ErrIllegalState, s.state)
	}

	neg, err := ParseNegotiate(msg)
	if err != nil {
		s.state = StateFailed
		return nil, fmt.Errorf("%w: expected NEGOTIATE_MESSAGE: %w", ErrInvalidArgument, err)
	}

	targetInfo := AVPairs{
		StringPair(AvNbComputerName, s.cfg.NetBIOSComputerName),
		StringPair(AvNbDomainName, s.cfg.NetBIOSDomainName),
		StringPair(AvDNSComputerName, s.cfg.DNSComputerName),
		StringPair(AvDNSDomainName, s.cfg.DNSDomainName),
		TimestampPair(FileTime(s.cfg.Now())),
		EOLPair(),
	}
	flags := neg.Flags&WantedFlags | FlagAlwaysSign | FlagRequestTarget

	chal, err := CreateChallenge(s.cfg.TargetName, targetInfo, flags)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	s.negotiate = neg
	s.challenge = chal
	s.state = StateAwaitingAuthentication
	return chal.Bytes(), nil
}

// Authenticate validates an AUTHENTICATE message against a plaintext password.
func (s *Session) Authenticate(msg []byte, user, password, domain string) error {
	if err := s.checkAwaiting(); err != nil {
		return err
	}
	return s.finish(msg, NTOWFv2(password, user, domain))
}

// AuthenticateHash validates an AUTHENTICATE message against a stored NT hash.
func (s *Session) AuthenticateHash(msg []byte, user string, ntHash []byte, domain string) error {
	if err := s.checkAwaiting(); err != nil {
		return err
	}
	key, err := NTOWFv2FromHash(ntHash, user, domain)
	if err != nil {
		s.state = StateFailed
		return err
	}
	return s.finish(msg, key)
}

func (s *Session) checkAwaiting() error {
	if s.state != StateAwaitingAuthentication {
		return fmt.Errorf("%w: Authenticate in state %s", ErrIllegalState, s.state)
	}
	return nil
}

func (s *Session) finish(msg []byte, respKeyNT []byte) error {
	auth, err := ParseAuthenticate(msg)
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("%w: expected AUTHENTICATE_MESSAGE: %w", ErrInvalidArgument, err)
	}
	s.authenticate = auth

	key, err := s.verify(auth, respKeyNT)
	if err != nil {
		s.state = StateFailed
		return err
	}

	s.exportedSessionKey = key
	s.state = StateAuthenticated
	return nil
}

func (s *Session) verify(auth *AuthenticateMessage, respKeyNT []byte) ([]byte, error) {
	sessionBaseKey, err := verifyResponse(auth, respKeyNT, s.challenge.ServerChallenge[:])
	if err != nil {
		return nil, err
	}

	key, err := exportedSessionKey(s.challenge.Flags, sessionBaseKey, auth.EncryptedRandomSessionKey)
	if err != nil {
		return nil, err
	}

	if err := verifyMIC(key, s.negotiate, s.challenge, auth); err != nil {
		return nil, err
	}
	return key, nil
}

// ServerChallenge returns the 8-byte server nonce, or nil before Negotiate.
func (s *Session) ServerChallenge() []byte {
	if s.challenge == nil {
		return nil
	}
	return append([]byte(nil), s.challenge.ServerChallenge[:]...)
}

// ChallengeMessage returns the CHALLENGE sent to the client, or nil.
func (s *Session) ChallengeMessage() *ChallengeMessage {
	return s.challenge
}

// NegotiateFlags returns the flags granted in the CHALLENGE message.
func (s *Session) NegotiateFlags() NegotiateFlag {
	if s.challenge == nil {
		return 0
	}
	return s.challenge.Flags
}

// AuthenticateMessage returns the last AUTHENTICATE message received, or nil.
func (s *Session) AuthenticateMessage() *AuthenticateMessage {
	return s.authenticate
}

// ExportedSessionKey returns the exported session key once Authenticated.
func (s *Session) ExportedSessionKey() ([]byte, error) {
	if s.state != StateAuthenticated {
		return nil, fmt.Errorf("%w: no session key in state %s", ErrIllegalState, s.state)
	}
	return append([]byte(nil), s.exportedSessionKey...), nil
}

// AuthenticationStatus maps an error from Negotiate/Authenticate to the NT
// status to report to the client.
func AuthenticationStatus(err error) uint32 {
	if err == nil {
		return StatusSuccess
	}
	var authErr *AuthenticationFailedError
	if errors.As(err, &authErr) {
		return authErr.Status
	}
	if errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrMalformedMessage) {
		return StatusInvalidParameter
	}
	return StatusLogonFailure
}
