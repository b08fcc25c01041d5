package spnego

import (
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"

	"github.com/marmos91/dittosmb/internal/asn1/ber"
)

// NegTokenInit is the initiator's first token, or the server's NegTokenInit2
// advertisement in the SMB2 NEGOTIATE response.
//
//	NegTokenInit ::= SEQUENCE {
//	    mechTypes       [0] MechTypeList,
//	    reqFlags        [1] ContextFlags  OPTIONAL,
//	    mechToken       [2] OCTET STRING  OPTIONAL,
//	    mechListMIC     [3] OCTET STRING  OPTIONAL,
//	}
type NegTokenInit struct {
	MechTypes []asn1.ObjectIdentifier
	MechToken []byte

	node *ber.Node
}

// NewNegTokenInit2 builds the server's NTLM-only NegTokenInit2 with the
// Windows negHints. A non-empty mechToken is placed in field [2].
// [MS-SPNG] Section 2.2.1
func NewNegTokenInit2(mechToken []byte) *NegTokenInit {
	fields := []*ber.Node{
		ber.Constructed(ber.ContextTag(0),
			ber.Constructed(ber.TagSequence, oidNode(OIDNTLMSSP)),
		),
	}
	if len(mechToken) > 0 {
		fields = append(fields, ber.Constructed(ber.ContextTag(2),
			ber.Primitive(ber.TagOctetString, mechToken),
		))
	}
	fields = append(fields, ber.Constructed(ber.ContextTag(3),
		ber.Constructed(ber.TagSequence,
			ber.Constructed(ber.ContextTag(0),
				ber.Primitive(ber.TagGeneralString, []byte(negHintName)),
			),
		),
	))

	// Only the first token of a negotiation carries the GSS-API framing.
	node := ber.Constructed(ber.TagApplication0,
		oidNode(OIDSPNEGO),
		ber.Constructed(tagNegTokenInit, ber.Constructed(ber.TagSequence, fields...)),
	)

	return &NegTokenInit{
		MechTypes: []asn1.ObjectIdentifier{OIDNTLMSSP},
		MechToken: append([]byte(nil), mechToken...),
		node:      node,
	}
}

// Wrap returns the encoded NegTokenInit2 advertising NTLM.
func Wrap(mechToken []byte) []byte {
	return NewNegTokenInit2(mechToken).Bytes()
}

func parseNegTokenInit(n *ber.Node) (*NegTokenInit, error) {
	seq, err := sequenceOf(n)
	if err != nil {
		return nil, err
	}

	tok := &NegTokenInit{node: n}
	if mechTypes := seq.Find(ber.ContextTag(0)); mechTypes != nil {
		list := mechTypes.Find(ber.TagSequence)
		if list == nil {
			return nil, fmt.Errorf("%w: mechTypes is not a SEQUENCE", ErrInvalidToken)
		}
		for _, child := range list.Children {
			oid, err := parseOID(child)
			if err != nil {
				return nil, err
			}
			tok.MechTypes = append(tok.MechTypes, oid)
		}
	}

	if tok.MechToken, err = octetString(seq, 2); err != nil {
		return nil, err
	}
	return tok, nil
}

// Node returns the BER tree of the token.
func (t *NegTokenInit) Node() *ber.Node { return t.node }

// Token returns the mechToken, or nil.
func (t *NegTokenInit) Token() []byte { return t.MechToken }

// Bytes returns the BER encoding of the token.
func (t *NegTokenInit) Bytes() []byte { return ber.Serialize(t.node) }

// HasMech reports whether the initiator offers a specific mechanism.
func (t *NegTokenInit) HasMech(oid asn1.ObjectIdentifier) bool {
	for _, mech := range t.MechTypes {
		if mech.Equal(oid) {
			return true
		}
	}
	return false
}

// HasNTLM returns true if the token offers NTLM authentication.
func (t *NegTokenInit) HasNTLM() bool {
	return t.HasMech(OIDNTLMSSP)
}

// HasKerberos returns true if the token offers Kerberos authentication.
func (t *NegTokenInit) HasKerberos() bool {
	return t.HasMech(OIDKerberosV5) || t.HasMech(OIDMSKerberosV5)
}

// PreferredMech returns the initiator's first mechanism, or nil.
func (t *NegTokenInit) PreferredMech() asn1.ObjectIdentifier {
	if len(t.MechTypes) == 0 {
		return nil
	}
	return t.MechTypes[0]
}
