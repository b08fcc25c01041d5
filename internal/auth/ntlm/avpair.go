package ntlm

import (
	"encoding/binary"

	"github.com/marmos91/dittosmb/internal/wire"
)

// =============================================================================
// AV_PAIR Constants (TargetInfo Structure)
// =============================================================================

// AvID represents AV_PAIR attribute IDs for the TargetInfo field.
// Each AV_PAIR has: AvId (2 bytes) + AvLen (2 bytes) + Value (AvLen bytes)
// [MS-NLMP] Section 2.2.2.1
type AvID uint16

const (
	// AvEOL marks end of AV_PAIR list. Every TargetInfo MUST end with it.
	AvEOL AvID = 0x0000

	// AvNbComputerName contains the server's NetBIOS name.
	AvNbComputerName AvID = 0x0001

	// AvNbDomainName contains the NetBIOS domain name.
	AvNbDomainName AvID = 0x0002

	// AvDNSComputerName contains the server's FQDN.
	AvDNSComputerName AvID = 0x0003

	// AvDNSDomainName contains the DNS domain name.
	AvDNSDomainName AvID = 0x0004

	// AvDNSTreeName contains the forest DNS name.
	AvDNSTreeName AvID = 0x0005

	// AvFlags carries a 32-bit MsvAvFlags value.
	AvFlags AvID = 0x0006

	// AvTimestamp carries a FILETIME of the server's clock.
	AvTimestamp AvID = 0x0007

	// AvSingleHost carries a Single_Host_Data structure.
	AvSingleHost AvID = 0x0008

	// AvTargetName carries the SPN of the target server.
	AvTargetName AvID = 0x0009

	// AvChannelBindings carries the MD5 of gss_channel_bindings_struct.
	AvChannelBindings AvID = 0x000A
)

// MsvAvFlags bits.
const (
	AvFlagConstrained  uint32 = 0x00000001
	AvFlagMICPresent   uint32 = 0x00000002
	AvFlagUntrustedSPN uint32 = 0x00000004
)

const avPairHeaderSize = 4

// AVPair is a single attribute-value pair.
type AVPair struct {
	ID    AvID
	Value []byte
}

// AVPairs is an ordered AV_PAIR list. A well-formed list ends with AvEOL.
type AVPairs []AVPair

// StringPair builds an AV_PAIR whose value is s encoded as UTF-16LE.
func StringPair(id AvID, s string) AVPair {
	return AVPair{ID: id, Value: EncodeUTF16LE(s)}
}

// TimestampPair builds an MsvAvTimestamp pair.
func TimestampPair(fileTime uint64) AVPair {
	v := make([]byte, 8)
	binary.LittleEndian.PutUint64(v, fileTime)
	return AVPair{ID: AvTimestamp, Value: v}
}

// EOLPair builds the list terminator.
func EOLPair() AVPair {
	return AVPair{ID: AvEOL}
}

// ParseAVPairs decodes an AV_PAIR list, stopping after the first AvEOL.
// The terminator is included in the result. A list that runs out of bytes
// before its terminator is malformed.
func ParseAVPairs(b []byte) (AVPairs, error) {
	r := wire.NewReader(b)
	var pairs AVPairs
	for {
		if r.Remaining() < avPairHeaderSize {
			return nil, malformed("AV_PAIR list truncated at offset %d", r.Position())
		}
		id := AvID(r.ReadUint16())
		n := r.ReadUint16()
		value := r.ReadBytes(int(n))
		if err := r.Err(); err != nil {
			return nil, malformed("AV_PAIR 0x%04X: %v", uint16(id), err)
		}
		pairs = append(pairs, AVPair{ID: id, Value: value})
		if id == AvEOL {
			return pairs, nil
		}
	}
}

// Bytes encodes the list as-is. No terminator is added.
func (p AVPairs) Bytes() []byte {
	size := 0
	for _, pair := range p {
		size += avPairHeaderSize + len(pair.Value)
	}
	w := wire.NewWriter(size)
	for _, pair := range p {
		w.WriteUint16(uint16(pair.ID))
		w.WriteUint16(uint16(len(pair.Value)))
		w.WriteBytes(pair.Value)
	}
	return w.Bytes()
}

// HasEOL reports whether the list ends with the AvEOL terminator.
func (p AVPairs) HasEOL() bool {
	return len(p) > 0 && p[len(p)-1].ID == AvEOL
}

// Get returns the value of the first pair with the given ID.
func (p AVPairs) Get(id AvID) ([]byte, bool) {
	for _, pair := range p {
		if pair.ID == id {
			return pair.Value, true
		}
	}
	return nil, false
}

// GetString returns a UTF-16LE pair value decoded, or "" if absent.
func (p AVPairs) GetString(id AvID) string {
	v, ok := p.Get(id)
	if !ok {
		return ""
	}
	s, err := DecodeUTF16LE(v)
	if err != nil {
		return ""
	}
	return s
}

// Flags returns the MsvAvFlags value, or 0 when the pair is absent or short.
func (p AVPairs) Flags() uint32 {
	v, ok := p.Get(AvFlags)
	if !ok || len(v) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(v)
}

// Timestamp returns the MsvAvTimestamp FILETIME if present.
func (p AVPairs) Timestamp() (uint64, bool) {
	v, ok := p.Get(AvTimestamp)
	if !ok || len(v) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(v), true
}
