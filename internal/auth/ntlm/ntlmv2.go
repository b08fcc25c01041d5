package ntlm

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"strings"
)

// NTOWFv2 derives the NTLMv2 response key from a plaintext password:
// HMAC_MD5(MD4(UTF16LE(password)), UTF16LE(UPPER(user) + domain)).
// [MS-NLMP] Section 3.3.2
func NTOWFv2(password, user, domain string) []byte {
	hash := NTHash(password)
	key, _ := NTOWFv2FromHash(hash[:], user, domain)
	return key
}

// LMOWFv2 is identical to NTOWFv2.
func LMOWFv2(password, user, domain string) []byte {
	return NTOWFv2(password, user, domain)
}

// NTOWFv2FromHash derives the NTLMv2 response key from a stored NT hash
// (MD4 of the UTF-16LE password), so plaintext passwords need not be kept.
func NTOWFv2FromHash(ntHash []byte, user, domain string) ([]byte, error) {
	if len(ntHash) != 16 {
		return nil, fmt.Errorf("%w: NT hash must be 16 bytes, got %d", ErrInvalidArgument, len(ntHash))
	}
	return HMACMD5(ntHash, EncodeUTF16LE(strings.ToUpper(user)+domain))
}

// Response holds the results of an NTLMv2 response computation.
type Response struct {
	NTProofStr     []byte
	NTResponse     []byte
	LMResponse     []byte
	SessionBaseKey []byte
}

// ComputeResponse computes the NTLMv2 LM and NT responses and the session
// base key as a client would, from response keys, both challenges, a
// FILETIME timestamp and the target info bytes.
// [MS-NLMP] Section 3.3.2
func ComputeResponse(respKeyNT, respKeyLM, serverChallenge, clientChallenge []byte, timestamp uint64, targetInfo []byte) (*Response, error) {
	if len(serverChallenge) != ServerChallengeSize || len(clientChallenge) != 8 {
		return nil, fmt.Errorf("%w: challenges must be 8 bytes", ErrInvalidArgument)
	}

	temp := make([]byte, 0, ntlmv2ClientHeaderSize+len(targetInfo)+4)
	temp = append(temp, 0x01, 0x01) // RespType, HiRespType
	temp = append(temp, make([]byte, 6)...)
	temp = binary.LittleEndian.AppendUint64(temp, timestamp)
	temp = append(temp, clientChallenge...)
	temp = append(temp, make([]byte, 4)...)
	temp = append(temp, targetInfo...)
	temp = append(temp, make([]byte, 4)...)

	resp, err := responseFromBlob(respKeyNT, serverChallenge, temp)
	if err != nil {
		return nil, err
	}

	lm, err := HMACMD5(respKeyLM, serverChallenge, clientChallenge)
	if err != nil {
		return nil, err
	}
	resp.LMResponse = append(lm, clientChallenge...)
	return resp, nil
}

// responseFromBlob computes NTProofStr, the NT response and the session base
// key for a given NTLMv2 client blob.
func responseFromBlob(respKeyNT, serverChallenge, blob []byte) (*Response, error) {
	proof, err := HMACMD5(respKeyNT, serverChallenge, blob)
	if err != nil {
		return nil, err
	}
	sessionBaseKey, err := HMACMD5(respKeyNT, proof)
	if err != nil {
		return nil, err
	}
	nt := make([]byte, 0, len(proof)+len(blob))
	nt = append(nt, proof...)
	nt = append(nt, blob...)
	return &Response{NTProofStr: proof, NTResponse: nt, SessionBaseKey: sessionBaseKey}, nil
}

// verifyResponse checks an AUTHENTICATE message's NTLMv2 response against the
// response key and returns the session base key.
//
// Checks run in this order: anonymous logon (LOGON_FAILURE), NTLMv1-sized
// response (NOT_SUPPORTED), NTProofStr mismatch (LOGON_FAILURE). The proof
// is recomputed over the client's own blob.
func verifyResponse(auth *AuthenticateMessage, respKeyNT []byte, serverChallenge []byte) ([]byte, error) {
	if auth.IsAnonymous() {
		return nil, authFailed(StatusLogonFailure, "anonymous authentication disabled")
	}
	if len(auth.NtChallengeResponse) < minNTLMv2ResponseSize {
		return nil, authFailed(StatusNotSupported, "only NTLMv2 is supported")
	}

	expected, err := responseFromBlob(respKeyNT, serverChallenge, auth.ClientBlob())
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(expected.NTProofStr, auth.NTProofStr()) != 1 {
		return nil, authFailed(StatusLogonFailure, "invalid challenge response")
	}
	return expected.SessionBaseKey, nil
}

// exportedSessionKey derives the exported session key. With NTLMv2 the
// key exchange key is the session base key; when KEY_EXCH and SIGN or SEAL
// were negotiated the client's random session key is unwrapped with it.
// [MS-NLMP] Section 3.2.5.1.2
func exportedSessionKey(flags NegotiateFlag, keyExchangeKey, encryptedRandomSessionKey []byte) ([]byte, error) {
	if flags.Has(FlagKeyExch) && (flags.Has(FlagSign) || flags.Has(FlagSeal)) {
		if len(encryptedRandomSessionKey) != encryptedSessionKeyLength {
			return nil, authFailed(StatusLogonFailure,
				fmt.Sprintf("encrypted random session key of %d bytes", len(encryptedRandomSessionKey)))
		}
		return RC4(keyExchangeKey, encryptedRandomSessionKey)
	}
	return append([]byte(nil), keyExchangeKey...), nil
}

// ComputeMIC returns HMAC_MD5(exportedSessionKey, negotiate || challenge ||
// authenticate), with the authenticate message's MIC field zeroed.
func ComputeMIC(exportedSessionKey []byte, neg *NegotiateMessage, chal *ChallengeMessage, auth *AuthenticateMessage) ([]byte, error) {
	return HMACMD5(exportedSessionKey, neg.Bytes(), chal.Bytes(), auth.BytesWithZeroedMIC())
}

// verifyMIC enforces the MIC when the client declared it in MsvAvFlags.
func verifyMIC(exportedSessionKey []byte, neg *NegotiateMessage, chal *ChallengeMessage, auth *AuthenticateMessage) error {
	pairs, err := auth.ClientAVPairs()
	if err != nil {
		return authFailed(StatusLogonFailure, "unreadable NTLMv2 client challenge")
	}
	if pairs.Flags()&AvFlagMICPresent == 0 {
		return nil
	}
	if auth.MIC == nil {
		return authFailed(StatusLogonFailure, "MIC announced but missing")
	}

	mic, err := ComputeMIC(exportedSessionKey, neg, chal, auth)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(mic, auth.MIC) != 1 {
		return authFailed(StatusLogonFailure, "message integrity check failed")
	}
	return nil
}
