package ntlm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// One-way Function Tests ([MS-NLMP] 4.2.4.1.1)
// =============================================================================

func TestNTOWFv2(t *testing.T) {
	expected := decodeB64(t, "DIaKQDv9epOjAB7yLvAuPw==")

	assert.Equal(t, expected, NTOWFv2("Password", "User", "Domain"))
	assert.Equal(t, expected, LMOWFv2("Password", "User", "Domain"))

	// User name is upper-cased, domain is not
	assert.Equal(t, expected, NTOWFv2("Password", "user", "Domain"))
	assert.NotEqual(t, expected, NTOWFv2("Password", "User", "DOMAIN"))
}

func TestNTOWFv2FromHash(t *testing.T) {
	hash := NTHash("Password")
	key, err := NTOWFv2FromHash(hash[:], "User", "Domain")
	require.NoError(t, err)
	assert.Equal(t, NTOWFv2("Password", "User", "Domain"), key)

	_, err = NTOWFv2FromHash(hash[:8], "User", "Domain")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// =============================================================================
// ComputeResponse Tests ([MS-NLMP] 4.2.4.2)
// =============================================================================

func nlmpTargetInfo(t *testing.T) []byte {
	t.Helper()
	chal, err := ParseChallenge(decodeB64(t, nlmpChallenge))
	require.NoError(t, err)
	return chal.TargetInfo.Bytes()
}

func TestComputeResponseNLMP(t *testing.T) {
	key := NTOWFv2("Password", "User", "Domain")
	serverChallenge := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	clientChallenge := bytes.Repeat([]byte{0xaa}, 8)

	resp, err := ComputeResponse(key, key, serverChallenge, clientChallenge, 0, nlmpTargetInfo(t))
	require.NoError(t, err)

	assert.Equal(t, decodeB64(t, "hsNQl6yc7BAlVHZKV8zMGaqqqqqqqqqq"), resp.LMResponse)
	assert.Equal(t, decodeB64(t, "aM0KuFHlHJaqvJJ76+9qHA=="), resp.NTProofStr)
	assert.Equal(t, decodeB64(t, "jeQMytvBSoLxXLCtDelcow=="), resp.SessionBaseKey)

	auth, err := ParseAuthenticate(decodeB64(t, nlmpAuthenticate))
	require.NoError(t, err)
	assert.Equal(t, auth.NtChallengeResponse, resp.NTResponse)
	assert.Equal(t, auth.LmChallengeResponse, resp.LMResponse)
}

func TestComputeResponseRejectsBadChallenges(t *testing.T) {
	key := NTOWFv2("p", "u", "d")
	_, err := ComputeResponse(key, key, []byte{1, 2, 3}, make([]byte, 8), 0, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = ComputeResponse(key, key, make([]byte, 8), make([]byte, 7), 0, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// =============================================================================
// Verification Tests
// =============================================================================

func TestVerifyResponseNLMP(t *testing.T) {
	auth, err := ParseAuthenticate(decodeB64(t, nlmpAuthenticate))
	require.NoError(t, err)
	serverChallenge := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

	sbk, err := verifyResponse(auth, NTOWFv2("Password", "User", "Domain"), serverChallenge)
	require.NoError(t, err)
	assert.Equal(t, decodeB64(t, "jeQMytvBSoLxXLCtDelcow=="), sbk)

	// [MS-NLMP] 4.2.4.2.3: the random session key is 0x55 repeated
	exported, err := exportedSessionKey(auth.Flags, sbk, auth.EncryptedRandomSessionKey)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x55}, 16), exported)
}

func TestVerifyResponseFailures(t *testing.T) {
	serverChallenge := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	key := NTOWFv2("Password", "User", "Domain")

	tests := []struct {
		name   string
		auth   func(t *testing.T) *AuthenticateMessage
		key    []byte
		status uint32
	}{
		{
			name: "WrongPassword",
			auth: func(t *testing.T) *AuthenticateMessage {
				m, err := ParseAuthenticate(decodeB64(t, nlmpAuthenticate))
				require.NoError(t, err)
				return m
			},
			key:    NTOWFv2("password", "User", "Domain"),
			status: StatusLogonFailure,
		},
		{
			name: "TamperedBlob",
			auth: func(t *testing.T) *AuthenticateMessage {
				m, err := ParseAuthenticate(decodeB64(t, nlmpAuthenticate))
				require.NoError(t, err)
				m.NtChallengeResponse[40] ^= 0xFF
				return m
			},
			key:    key,
			status: StatusLogonFailure,
		},
		{
			name: "NTLMv1Response",
			auth: func(t *testing.T) *AuthenticateMessage {
				return &AuthenticateMessage{Username: "User", NtChallengeResponse: make([]byte, 23)}
			},
			key:    key,
			status: StatusNotSupported,
		},
		{
			name: "Anonymous",
			auth: func(t *testing.T) *AuthenticateMessage {
				return &AuthenticateMessage{LmChallengeResponse: []byte{0}}
			},
			key:    key,
			status: StatusLogonFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifyResponse(tt.auth(t), tt.key, serverChallenge)

			var authErr *AuthenticationFailedError
			require.True(t, errors.As(err, &authErr), "expected AuthenticationFailedError, got %v", err)
			assert.Equal(t, tt.status, authErr.Status)
		})
	}
}

func TestExportedSessionKeyWithoutKeyExch(t *testing.T) {
	base := bytes.Repeat([]byte{0x11}, 16)

	// KEY_EXCH without SIGN/SEAL keeps the key exchange key
	key, err := exportedSessionKey(FlagKeyExch, base, bytes.Repeat([]byte{0x22}, 16))
	require.NoError(t, err)
	assert.Equal(t, base, key)

	key, err = exportedSessionKey(FlagSign|FlagSeal, base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, key)

	_, err = exportedSessionKey(FlagKeyExch|FlagSign, base, []byte{1, 2, 3})
	var authErr *AuthenticationFailedError
	assert.True(t, errors.As(err, &authErr))
}
