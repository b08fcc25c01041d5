package ntlm

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rc4"
	"fmt"
	"time"

	"golang.org/x/crypto/md4"
	"golang.org/x/text/encoding/unicode"
)

// utf16le is the string encoding of NTLM names and passwords when
// FlagUnicode is negotiated.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// MD4 returns the MD4 digest of data.
func MD4(data []byte) [16]byte {
	var sum [16]byte
	h := md4.New()
	h.Write(data)
	copy(sum[:], h.Sum(nil))
	return sum
}

// HMACMD5 returns HMAC-MD5 over the concatenation of data.
// An empty key is rejected with ErrInvalidArgument.
func HMACMD5(key []byte, data ...[]byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty HMAC key", ErrInvalidArgument)
	}
	mac := hmac.New(md5.New, key)
	for _, d := range data {
		mac.Write(d)
	}
	return mac.Sum(nil), nil
}

// RC4 encrypts (or decrypts) data with key. Only used to unwrap the
// client's encrypted random session key.
func RC4(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: rc4: %v", ErrInvalidArgument, err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// NTHash returns MD4(UTF16LE(password)), the NT one-way function of a password.
func NTHash(password string) [16]byte {
	return MD4(EncodeUTF16LE(password))
}

// EncodeUTF16LE encodes s as UTF-16LE without a byte order mark.
// Invalid UTF-8 sequences are replaced with U+FFFD.
func EncodeUTF16LE(s string) []byte {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return b
}

// DecodeUTF16LE decodes UTF-16LE bytes. Odd-length input is malformed.
func DecodeUTF16LE(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", malformed("odd-length UTF-16 string (%d bytes)", len(b))
	}
	s, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", malformed("utf-16 decode: %v", err)
	}
	return string(s), nil
}

// decodeString decodes a payload string in the charset chosen by flags.
func decodeString(b []byte, flags NegotiateFlag) (string, error) {
	if flags.Has(FlagUnicode) {
		return DecodeUTF16LE(b)
	}
	// OEM code page: treat as ASCII/Latin-1
	return string(b), nil
}

// fileTimeEpochDelta is the number of 100ns intervals between 1601-01-01
// and 1970-01-01.
const fileTimeEpochDelta = 116444736000000000

// FileTime converts t to a Windows FILETIME (100ns intervals since 1601 UTC).
func FileTime(t time.Time) uint64 {
	return uint64(t.UnixNano()/100) + fileTimeEpochDelta
}
