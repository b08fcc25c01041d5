package session

import "crypto/sha512"

// PreauthHash is an SMB 3.1.1 preauth integrity hash value. The zero value
// is H(0).
//
// [MS-SMB2] 3.2.5.2: H(i) = SHA-512(H(i-1) || Message(i)), where each
// message is a complete NEGOTIATE or SESSION_SETUP request or response.
type PreauthHash [sha512.Size]byte

// Extend returns SHA-512(h || message).
func (h PreauthHash) Extend(message []byte) PreauthHash {
	d := sha512.New()
	d.Write(h[:])
	d.Write(message)

	var next PreauthHash
	copy(next[:], d.Sum(nil))
	return next
}
