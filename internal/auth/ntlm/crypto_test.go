package ntlm

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MD4 Tests (RFC 1320 Appendix A.5)
// =============================================================================

func TestMD4(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "31d6cfe0d16ae931b73c59d7e0c089c0"},
		{"a", "bde52cb31de33e46245e05fbdbd6fb24"},
		{"abc", "a448017aaf21d8525fc10ae87aa6729d"},
		{"message digest", "d9130a8164549fe818874806e1c7014b"},
		{"abcdefghijklmnopqrstuvwxyz", "d79e1c308aa5bbcdeea8ed63df412da9"},
		{"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789", "043f8582f241db351ce627e153e7f0e4"},
		{strings.Repeat("1234567890", 8), "e33b4ddc9c38f2199c3e7b164fcc0536"},
	}

	for _, tt := range tests {
		sum := MD4([]byte(tt.input))
		if got := hex.EncodeToString(sum[:]); got != tt.expected {
			t.Errorf("MD4(%q) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}

// =============================================================================
// HMAC-MD5 / RC4 Tests
// =============================================================================

func TestHMACMD5(t *testing.T) {
	// RFC 2104 test case 2
	mac, err := HMACMD5([]byte("Jefe"), []byte("what do ya want "), []byte("for nothing?"))
	require.NoError(t, err)
	assert.Equal(t, "750c783e6ab0b503eaa86e310a5db738", hex.EncodeToString(mac))
}

func TestHMACMD5EmptyKey(t *testing.T) {
	_, err := HMACMD5(nil, []byte("data"))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRC4(t *testing.T) {
	// RFC 6229-style well-known vector: key "Key", plaintext "Plaintext"
	out, err := RC4([]byte("Key"), []byte("Plaintext"))
	require.NoError(t, err)
	assert.Equal(t, "bbf316e8d940af0ad3", hex.EncodeToString(out))

	back, err := RC4([]byte("Key"), out)
	require.NoError(t, err)
	assert.Equal(t, "Plaintext", string(back))
}

func TestRC4EmptyKey(t *testing.T) {
	_, err := RC4(nil, []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// =============================================================================
// UTF-16LE Tests
// =============================================================================

func TestUTF16LE(t *testing.T) {
	enc := EncodeUTF16LE("Domain")
	assert.Equal(t, "44006f006d00610069006e00", hex.EncodeToString(enc))

	dec, err := DecodeUTF16LE(enc)
	require.NoError(t, err)
	assert.Equal(t, "Domain", dec)

	// Non-BMP rune round-trips through a surrogate pair
	enc = EncodeUTF16LE("\U0001F600")
	assert.Len(t, enc, 4)
	dec, err = DecodeUTF16LE(enc)
	require.NoError(t, err)
	assert.Equal(t, "\U0001F600", dec)

	_, err = DecodeUTF16LE([]byte{0x41})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestNTHash(t *testing.T) {
	// NT hash of "Password" from [MS-NLMP] 4.2.2.1.2
	sum := NTHash("Password")
	assert.Equal(t, "a4f49c406510bdcab6824ee7c30fd852", hex.EncodeToString(sum[:]))
}

func TestFileTime(t *testing.T) {
	assert.Equal(t, uint64(fileTimeEpochDelta), FileTime(time.Unix(0, 0)))
	assert.Equal(t, uint64(fileTimeEpochDelta+10_000_000), FileTime(time.Unix(1, 0)))
}
