package ntlm

import (
	"crypto/rand"
	"fmt"

	"github.com/marmos91/dittosmb/internal/wire"
)

// NTLM Type 2 (CHALLENGE) message offsets
// [MS-NLMP] Section 2.2.1.2
const (
	challengeTargetNameOffset = 12 // 8 bytes: TargetNameFields
	challengeFlagsOffset      = 20 // 4 bytes: NegotiateFlags
	challengeServerChalOffset = 24 // 8 bytes: ServerChallenge
	challengeReservedOffset   = 32 // 8 bytes: Reserved (must be zero)
	challengeTargetInfoOffset = 40 // 8 bytes: TargetInfoFields
	challengeVersionOffset    = 48 // 8 bytes: Version
	challengeMinSize          = 48
	challengeBaseSize         = 56 // fixed header including Version
)

// ServerChallengeSize is the length of the server's nonce.
const ServerChallengeSize = 8

// ChallengeMessage is an NTLM Type 2 message, either built by the server or parsed.
type ChallengeMessage struct {
	Raw []byte

	TargetName      string
	Flags           NegotiateFlag
	ServerChallenge [ServerChallengeSize]byte
	TargetInfo      AVPairs
	Version         *Version
}

// CreateChallenge builds a CHALLENGE message with a fresh random server
// challenge. targetInfo must end with AvEOL.
//
// The message layout is:
//
//	Offset  Size  Field              Value/Description
//	------  ----  ----------------   ----------------------------------
//	0       8     Signature          "NTLMSSP\0"
//	8       4     MessageType        2 (CHALLENGE)
//	12      8     TargetNameFields   UTF-16LE target name in payload
//	20      4     NegotiateFlags     flags as given
//	24      8     ServerChallenge    random nonce
//	32      8     Reserved           zero
//	40      8     TargetInfoFields   AV_PAIR list in payload
//	48      8     Version            DefaultVersion
//	56      var   Payload            TargetName, then TargetInfo
func CreateChallenge(targetName string, targetInfo AVPairs, flags NegotiateFlag) (*ChallengeMessage, error) {
	var nonce [ServerChallengeSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("ntlm: generate server challenge: %w", err)
	}
	return buildChallenge(targetName, targetInfo, flags, nonce)
}

func buildChallenge(targetName string, targetInfo AVPairs, flags NegotiateFlag, nonce [ServerChallengeSize]byte) (*ChallengeMessage, error) {
	if !targetInfo.HasEOL() {
		return nil, fmt.Errorf("%w: target info must end with MsvAvEOL", ErrInvalidArgument)
	}

	name := EncodeUTF16LE(targetName)
	info := targetInfo.Bytes()
	nameOffset := challengeBaseSize
	infoOffset := nameOffset + len(name)

	w := wire.NewWriter(infoOffset + len(info))
	w.WriteBytes(Signature)
	w.WriteUint32(uint32(Challenge))
	writeField(w, len(name), nameOffset)
	w.WriteUint32(uint32(flags))
	w.WriteBytes(nonce[:])
	w.WriteZeros(8)
	writeField(w, len(info), infoOffset)
	DefaultVersion.write(w)
	w.WriteBytes(name)
	w.WriteBytes(info)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("ntlm: build challenge: %w", err)
	}

	version := DefaultVersion
	return &ChallengeMessage{
		Raw:             w.Bytes(),
		TargetName:      targetName,
		Flags:           flags,
		ServerChallenge: nonce,
		TargetInfo:      targetInfo,
		Version:         &version,
	}, nil
}

// ParseChallenge parses an NTLM Type 2 (CHALLENGE) message.
func ParseChallenge(buf []byte) (*ChallengeMessage, error) {
	if err := checkHeader(buf, Challenge, challengeMinSize); err != nil {
		return nil, err
	}

	r := wire.NewReader(buf)
	msg := &ChallengeMessage{
		Raw:   append([]byte(nil), buf...),
		Flags: NegotiateFlag(r.Uint32At(challengeFlagsOffset)),
	}
	copy(msg.ServerChallenge[:], r.BytesAt(challengeServerChalOffset, ServerChallengeSize))

	name, err := readField(r, challengeTargetNameOffset).extract(buf, "TargetName")
	if err != nil {
		return nil, err
	}
	if msg.TargetName, err = decodeString(name, msg.Flags); err != nil {
		return nil, err
	}

	info, err := readField(r, challengeTargetInfoOffset).extract(buf, "TargetInfo")
	if err != nil {
		return nil, err
	}
	if len(info) > 0 {
		if msg.TargetInfo, err = ParseAVPairs(info); err != nil {
			return nil, err
		}
	}

	if msg.Flags.Has(FlagVersion) && len(buf) >= challengeBaseSize {
		msg.Version = readVersion(r, challengeVersionOffset)
	}
	if err := r.Err(); err != nil {
		return nil, malformed("challenge: %v", err)
	}
	return msg, nil
}

// Bytes returns the encoded message.
func (m *ChallengeMessage) Bytes() []byte {
	return m.Raw
}
