package spnego

import (
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"

	"github.com/marmos91/dittosmb/internal/asn1/ber"
)

// NegTokenResp carries every token after the first in either direction.
//
//	NegTokenResp ::= SEQUENCE {
//	    negState       [0] ENUMERATED  OPTIONAL,
//	    supportedMech  [1] MechType    OPTIONAL,
//	    responseToken  [2] OCTET STRING OPTIONAL,
//	    mechListMIC    [3] OCTET STRING OPTIONAL,
//	}
type NegTokenResp struct {
	NegState      NegState
	SupportedMech asn1.ObjectIdentifier
	ResponseToken []byte
	MechListMIC   []byte

	node *ber.Node
}

// NewNegTokenResp builds a NegTokenResp. Zero-valued fields are omitted;
// pass NegStateNone to omit negState.
func NewNegTokenResp(state NegState, mech asn1.ObjectIdentifier, responseToken, mechListMIC []byte) *NegTokenResp {
	var fields []*ber.Node
	if state != NegStateNone {
		fields = append(fields, ber.Constructed(ber.ContextTag(0),
			ber.Primitive(ber.TagEnumerated, []byte{byte(state)}),
		))
	}
	if len(mech) > 0 {
		fields = append(fields, ber.Constructed(ber.ContextTag(1), oidNode(mech)))
	}
	if len(responseToken) > 0 {
		fields = append(fields, ber.Constructed(ber.ContextTag(2),
			ber.Primitive(ber.TagOctetString, responseToken),
		))
	}
	if len(mechListMIC) > 0 {
		fields = append(fields, ber.Constructed(ber.ContextTag(3),
			ber.Primitive(ber.TagOctetString, mechListMIC),
		))
	}

	return &NegTokenResp{
		NegState:      state,
		SupportedMech: mech,
		ResponseToken: append([]byte(nil), responseToken...),
		MechListMIC:   append([]byte(nil), mechListMIC...),
		node:          ber.Constructed(tagNegTokenResp, ber.Constructed(ber.TagSequence, fields...)),
	}
}

// AcceptIncomplete answers a NEGOTIATE with the NTLM CHALLENGE:
// negState accept-incomplete, supportedMech NTLMSSP, responseToken.
func AcceptIncomplete(responseToken []byte) *NegTokenResp {
	return NewNegTokenResp(NegStateAcceptIncomplete, OIDNTLMSSP, responseToken, nil)
}

// AcceptCompleted reports a successful logon. responseToken may be nil.
func AcceptCompleted(responseToken []byte) *NegTokenResp {
	return NewNegTokenResp(NegStateAcceptCompleted, nil, responseToken, nil)
}

// Reject reports a failed logon.
func Reject() *NegTokenResp {
	return NewNegTokenResp(NegStateReject, nil, nil, nil)
}

func parseNegTokenResp(n *ber.Node) (*NegTokenResp, error) {
	seq, err := sequenceOf(n)
	if err != nil {
		return nil, err
	}

	tok := &NegTokenResp{NegState: NegStateNone, node: n}

	if state := seq.Find(ber.ContextTag(0)); state != nil {
		enum := state.Find(ber.TagEnumerated)
		if enum == nil || len(enum.Content) != 1 {
			return nil, fmt.Errorf("%w: negState is not a one-byte ENUMERATED", ErrInvalidToken)
		}
		tok.NegState = NegState(enum.Content[0])
	}

	if mech := seq.Find(ber.ContextTag(1)); mech != nil {
		oid := mech.Child(0)
		if oid == nil {
			return nil, fmt.Errorf("%w: empty supportedMech", ErrInvalidToken)
		}
		if tok.SupportedMech, err = parseOID(oid); err != nil {
			return nil, err
		}
	}

	if tok.ResponseToken, err = octetString(seq, 2); err != nil {
		return nil, err
	}
	if tok.MechListMIC, err = octetString(seq, 3); err != nil {
		return nil, err
	}
	return tok, nil
}

// Node returns the BER tree of the token.
func (t *NegTokenResp) Node() *ber.Node { return t.node }

// Token returns the responseToken, or nil.
func (t *NegTokenResp) Token() []byte { return t.ResponseToken }

// Bytes returns the BER encoding of the token.
func (t *NegTokenResp) Bytes() []byte { return ber.Serialize(t.node) }
