package ntlm

import (
	"github.com/marmos91/dittosmb/internal/wire"
)

// NTLM Type 3 (AUTHENTICATE) message offsets
// [MS-NLMP] Section 2.2.1.3
const (
	authLmResponseOffset      = 12 // 8 bytes: LmChallengeResponseFields
	authNtResponseOffset      = 20 // 8 bytes: NtChallengeResponseFields
	authDomainNameOffset      = 28 // 8 bytes: DomainNameFields
	authUserNameOffset        = 36 // 8 bytes: UserNameFields
	authWorkstationOffset     = 44 // 8 bytes: WorkstationFields
	authEncryptedKeyOffset    = 52 // 8 bytes: EncryptedRandomSessionKeyFields
	authNegotiateFlagsOffset  = 60 // 4 bytes: NegotiateFlags
	authVersionOffset         = 64 // 8 bytes: Version (optional)
	authMICOffset             = 72 // 16 bytes: MIC (optional)
	authBaseSize              = 64 // Minimum size without Version and MIC
	authVersionSize           = 72
	authMICEnd                = 88
	micSize                   = 16
	ntProofStrSize            = 16
	ntlmv2ClientHeaderSize    = 28 // RespType..Reserved3 of NTLMv2_CLIENT_CHALLENGE
	minNTLMv2ResponseSize     = 24 // anything shorter is an NTLMv1 response
	encryptedSessionKeyLength = 16
)

// AuthenticateMessage contains parsed fields from an NTLM Type 3 message.
type AuthenticateMessage struct {
	// Raw is a private copy of the message bytes.
	Raw []byte

	// LmChallengeResponse is the LMv2 response (or empty / a single zero byte).
	LmChallengeResponse []byte

	// NtChallengeResponse is NTProofStr followed by the client's NTLMv2 blob.
	NtChallengeResponse []byte

	Domain      string
	Username    string
	Workstation string

	// EncryptedRandomSessionKey is only read when FlagKeyExch is set.
	EncryptedRandomSessionKey []byte

	Flags   NegotiateFlag
	Version *Version

	// MIC is nil when the client did not reserve room for it.
	MIC []byte
}

// ParseAuthenticate parses an NTLM Type 3 (AUTHENTICATE) message.
//
// Version and MIC are optional header extensions. Their presence is inferred
// from where the payload starts: the lowest offset of any non-empty payload
// field is the end of the fixed header, so a MIC exists only when the payload
// begins at or after offset 88.
func ParseAuthenticate(buf []byte) (*AuthenticateMessage, error) {
	if err := checkHeader(buf, Authenticate, authBaseSize); err != nil {
		return nil, err
	}

	r := wire.NewReader(buf)
	lm := readField(r, authLmResponseOffset)
	nt := readField(r, authNtResponseOffset)
	domain := readField(r, authDomainNameOffset)
	user := readField(r, authUserNameOffset)
	workstation := readField(r, authWorkstationOffset)
	key := readField(r, authEncryptedKeyOffset)

	msg := &AuthenticateMessage{
		Raw:   append([]byte(nil), buf...),
		Flags: NegotiateFlag(r.Uint32At(authNegotiateFlagsOffset)),
	}

	var err error
	if msg.LmChallengeResponse, err = lm.extract(buf, "LmChallengeResponse"); err != nil {
		return nil, err
	}
	if msg.NtChallengeResponse, err = nt.extract(buf, "NtChallengeResponse"); err != nil {
		return nil, err
	}
	if msg.Domain, err = extractString(buf, domain, "DomainName", msg.Flags); err != nil {
		return nil, err
	}
	if msg.Username, err = extractString(buf, user, "UserName", msg.Flags); err != nil {
		return nil, err
	}
	if msg.Workstation, err = extractString(buf, workstation, "Workstation", msg.Flags); err != nil {
		return nil, err
	}

	descriptors := []field{lm, nt, domain, user, workstation}
	if msg.Flags.Has(FlagKeyExch) {
		if msg.EncryptedRandomSessionKey, err = key.extract(buf, "EncryptedRandomSessionKey"); err != nil {
			return nil, err
		}
		descriptors = append(descriptors, key)
	}

	start := payloadStart(len(buf), descriptors...)
	if msg.Flags.Has(FlagVersion) && start >= authVersionSize {
		msg.Version = readVersion(r, authVersionOffset)
	}
	if start >= authMICEnd {
		msg.MIC = r.BytesAt(authMICOffset, micSize)
	}
	if err := r.Err(); err != nil {
		return nil, malformed("authenticate: %v", err)
	}
	return msg, nil
}

func extractString(buf []byte, f field, name string, flags NegotiateFlag) (string, error) {
	b, err := f.extract(buf, name)
	if err != nil {
		return "", err
	}
	return decodeString(b, flags)
}

// payloadStart returns the lowest offset of any non-empty descriptor, or
// size when all are empty.
func payloadStart(size int, fields ...field) int {
	start := size
	for _, f := range fields {
		if f.Len > 0 && int(f.Offset) < start {
			start = int(f.Offset)
		}
	}
	return start
}

// IsAnonymous reports whether this is an anonymous logon attempt: no user
// name, no NT response and an absent or single-zero-byte LM response.
func (m *AuthenticateMessage) IsAnonymous() bool {
	if m.Username != "" || len(m.NtChallengeResponse) != 0 {
		return false
	}
	lm := m.LmChallengeResponse
	return len(lm) == 0 || (len(lm) == 1 && lm[0] == 0)
}

// NTProofStr returns the first 16 bytes of the NT response.
func (m *AuthenticateMessage) NTProofStr() []byte {
	if len(m.NtChallengeResponse) < ntProofStrSize {
		return nil
	}
	return m.NtChallengeResponse[:ntProofStrSize]
}

// ClientBlob returns the NTLMv2_CLIENT_CHALLENGE that follows NTProofStr.
func (m *AuthenticateMessage) ClientBlob() []byte {
	if len(m.NtChallengeResponse) < ntProofStrSize {
		return nil
	}
	return m.NtChallengeResponse[ntProofStrSize:]
}

// ClientAVPairs parses the AV_PAIR list embedded in the client's NTLMv2 blob.
func (m *AuthenticateMessage) ClientAVPairs() (AVPairs, error) {
	blob := m.ClientBlob()
	if len(blob) < ntlmv2ClientHeaderSize {
		return nil, malformed("NTLMv2 client challenge of %d bytes", len(blob))
	}
	return ParseAVPairs(blob[ntlmv2ClientHeaderSize:])
}

// BytesWithZeroedMIC returns a copy of the message with the MIC field cleared,
// the form over which the MIC is computed.
func (m *AuthenticateMessage) BytesWithZeroedMIC() []byte {
	out := append([]byte(nil), m.Raw...)
	if m.MIC != nil {
		clear(out[authMICOffset:authMICEnd])
	}
	return out
}

// Bytes returns the message as received.
func (m *AuthenticateMessage) Bytes() []byte {
	return m.Raw
}
