package ntlm

import (
	"github.com/marmos91/dittosmb/internal/wire"
)

// NTLM Type 1 (NEGOTIATE) message offsets
// [MS-NLMP] Section 2.2.1.1
const (
	negFlagsOffset       = 12 // 4 bytes: NegotiateFlags
	negDomainOffset      = 16 // 8 bytes: DomainNameFields
	negWorkstationOffset = 24 // 8 bytes: WorkstationFields
	negVersionOffset     = 32 // 8 bytes: Version (optional)
	negotiateMinSize     = 32
	negotiateVersionSize = 40
)

// NegotiateMessage is a parsed NTLM Type 1 message.
type NegotiateMessage struct {
	// Raw is a private copy of the message bytes, needed for the MIC.
	Raw []byte

	Flags       NegotiateFlag
	Domain      string
	Workstation string

	// Version is set when FlagVersion is present and the header carries it.
	Version *Version
}

// ParseNegotiate parses an NTLM Type 1 (NEGOTIATE) message.
// Domain and workstation names are OEM strings.
func ParseNegotiate(buf []byte) (*NegotiateMessage, error) {
	if err := checkHeader(buf, Negotiate, negotiateMinSize); err != nil {
		return nil, err
	}

	r := wire.NewReader(buf)
	msg := &NegotiateMessage{
		Raw:   append([]byte(nil), buf...),
		Flags: NegotiateFlag(r.Uint32At(negFlagsOffset)),
	}

	domain, err := readField(r, negDomainOffset).extract(buf, "DomainName")
	if err != nil {
		return nil, err
	}
	workstation, err := readField(r, negWorkstationOffset).extract(buf, "Workstation")
	if err != nil {
		return nil, err
	}
	msg.Domain = string(domain)
	msg.Workstation = string(workstation)

	if msg.Flags.Has(FlagVersion) && len(buf) >= negotiateVersionSize {
		msg.Version = readVersion(r, negVersionOffset)
	}
	if err := r.Err(); err != nil {
		return nil, malformed("negotiate: %v", err)
	}
	return msg, nil
}

// Bytes returns the message as received.
func (m *NegotiateMessage) Bytes() []byte {
	return m.Raw
}
