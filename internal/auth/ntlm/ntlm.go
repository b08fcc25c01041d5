// Package ntlm implements the server side of NTLMv2 authentication.
//
// NTLM (NT LAN Manager) is a challenge-response authentication protocol
// defined in [MS-NLMP]. This package provides:
//   - NTLM message detection, parsing and building (Negotiate, Challenge, Authenticate)
//   - AV_PAIR (TargetInfo) encoding
//   - NTLMv2 response computation and validation, key exchange and MIC checks
//   - A per-logon Session state machine driving the three-message handshake
//
// NTLMv1 is not supported: clients sending a v1 response are rejected with
// STATUS_NOT_SUPPORTED.
package ntlm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MessageType is the type field following the NTLMSSP signature.
type MessageType uint32

const (
	Negotiate    MessageType = 1
	Challenge    MessageType = 2
	Authenticate MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case Negotiate:
		return "NEGOTIATE"
	case Challenge:
		return "CHALLENGE"
	case Authenticate:
		return "AUTHENTICATE"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// Signature opens every NTLM message.
var Signature = []byte("NTLMSSP\x00")

// headerSize covers the signature and the message type.
const headerSize = 12

// NegotiateFlag is the NEGOTIATE_* bit set of [MS-NLMP] 2.2.2.5. The
// letters are the bit names used there.
type NegotiateFlag uint32

const (
	FlagUnicode             NegotiateFlag = 1 << 0  // A
	FlagOEM                 NegotiateFlag = 1 << 1  // B
	FlagRequestTarget       NegotiateFlag = 1 << 2  // C
	FlagSign                NegotiateFlag = 1 << 4  // D
	FlagSeal                NegotiateFlag = 1 << 5  // E
	FlagDatagram            NegotiateFlag = 1 << 6  // F
	FlagLMKey               NegotiateFlag = 1 << 7  // G, never granted
	FlagNTLM                NegotiateFlag = 1 << 9  // I
	FlagAnonymous           NegotiateFlag = 1 << 11 // K
	FlagDomainSupplied      NegotiateFlag = 1 << 12 // L
	FlagWorkstationSupplied NegotiateFlag = 1 << 13 // M
	FlagAlwaysSign          NegotiateFlag = 1 << 15 // O
	FlagTargetTypeDomain    NegotiateFlag = 1 << 16 // P
	FlagTargetTypeServer    NegotiateFlag = 1 << 17 // Q
	FlagExtendedSecurity    NegotiateFlag = 1 << 19 // S
	FlagIdentify            NegotiateFlag = 1 << 20 // T
	FlagTargetInfo          NegotiateFlag = 1 << 23 // W
	FlagVersion             NegotiateFlag = 1 << 25 // Y
	Flag128                 NegotiateFlag = 1 << 29 // Z
	FlagKeyExch             NegotiateFlag = 1 << 30 // AA
	Flag56                  NegotiateFlag = 1 << 31 // AB
)

// WantedFlags is the set of client flags the server is willing to grant.
// Anything else the client offers is dropped from the CHALLENGE flags.
const WantedFlags = FlagKeyExch | Flag128 | FlagVersion | FlagTargetInfo |
	FlagExtendedSecurity | FlagAlwaysSign | FlagSign | FlagSeal |
	FlagRequestTarget | FlagUnicode

// Has reports whether all bits of flag are set.
func (f NegotiateFlag) Has(flag NegotiateFlag) bool {
	return f&flag == flag
}

// NT statuses carried by authentication outcomes.
const (
	StatusSuccess                = uint32(0x00000000)
	StatusMoreProcessingRequired = uint32(0xC0000016)
	StatusLogonFailure           = uint32(0xC000006D)
	StatusNotSupported           = uint32(0xC00000BB)
	StatusInvalidParameter       = uint32(0xC000000D)
)

// Error is a constant error value.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrMalformedMessage covers truncation, a wrong signature or type and
	// payload descriptors pointing outside the message.
	ErrMalformedMessage Error = "ntlm: malformed message"
	// ErrInvalidArgument covers unusable caller input, e.g. an empty HMAC
	// key or target info without EOL.
	ErrInvalidArgument Error = "ntlm: invalid argument"
	ErrIllegalState    Error = "ntlm: illegal session state"
)

// AuthenticationFailedError reports a rejected logon together with the NT
// status that should be returned to the client.
type AuthenticationFailedError struct {
	Reason string
	Status uint32
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("ntlm: authentication failed: %s (status 0x%08X)", e.Reason, e.Status)
}

func authFailed(status uint32, reason string) error {
	return &AuthenticationFailedError{Reason: reason, Status: status}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// IsValid reports whether buf is long enough for a header and starts with
// the NTLMSSP signature.
func IsValid(buf []byte) bool {
	return len(buf) >= headerSize && bytes.HasPrefix(buf, Signature)
}

// GetMessageType returns the type field of buf, or 0 when buf is shorter
// than a header.
func GetMessageType(buf []byte) MessageType {
	if len(buf) < headerSize {
		return 0
	}
	return MessageType(binary.LittleEndian.Uint32(buf[8:12]))
}

// checkHeader validates signature, type and minimum size.
func checkHeader(buf []byte, want MessageType, minSize int) error {
	if len(buf) < minSize {
		return malformed("%s message of %d bytes, need at least %d", want, len(buf), minSize)
	}
	if !IsValid(buf) {
		return malformed("missing NTLMSSP signature")
	}
	if got := GetMessageType(buf); got != want {
		return malformed("expected %s message, got %s", want, got)
	}
	return nil
}
