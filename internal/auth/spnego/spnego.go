// Package spnego implements the SPNEGO (RFC 4178) negotiation tokens used
// in SMB SESSION_SETUP security buffers.
//
// Tokens are built and parsed on top of the generic BER codec in
// internal/asn1/ber rather than through struct reflection: Windows servers
// send a NegTokenInit2 (MS-SPNG) whose negHints field does not fit the
// RFC 4178 NegTokenInit schema, and clients may send either the GSS-API
// framed form (APPLICATION 0 + SPNEGO OID) or a bare NegotiationToken.
//
//	NegotiationToken ::= CHOICE {
//	    negTokenInit    [0] NegTokenInit,
//	    negTokenResp    [1] NegTokenResp
//	}
package spnego

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/gssapi"

	"github.com/marmos91/dittosmb/internal/asn1/ber"
)

// Well-known mechanism OIDs used in SPNEGO negotiation.
var (
	// OIDSPNEGO is the SPNEGO mechanism OID (1.3.6.1.5.5.2).
	// Identifies the outer GSS-API wrapper.
	OIDSPNEGO = gssapi.OIDSPNEGO.OID()

	// OIDKerberosV5 is the standard Kerberos 5 OID (1.2.840.113554.1.2.2).
	OIDKerberosV5 = gssapi.OIDKRB5.OID()

	// OIDMSKerberosV5 is Microsoft's legacy Kerberos 5 OID (1.2.840.48018.1.2.2).
	OIDMSKerberosV5 = gssapi.OIDMSLegacyKRB5.OID()

	// OIDNTLMSSP is the NTLM Security Support Provider OID (1.3.6.1.4.1.311.2.2.10).
	OIDNTLMSSP = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 2, 10}
)

// negHintName is the hintName Windows places in NegTokenInit2.
const negHintName = "not_defined_in_RFC4178@please_ignore"

// NegState represents the state of SPNEGO negotiation.
// [RFC 4178] Section 4.2.2
type NegState int

const (
	// NegStateNone marks a NegTokenResp without a negState field.
	NegStateNone NegState = -1

	// NegStateAcceptCompleted indicates successful authentication.
	NegStateAcceptCompleted NegState = 0

	// NegStateAcceptIncomplete indicates more tokens are needed.
	NegStateAcceptIncomplete NegState = 1

	// NegStateReject indicates authentication was rejected.
	NegStateReject NegState = 2

	// NegStateRequestMIC indicates a MIC is required.
	NegStateRequestMIC NegState = 3
)

func (s NegState) String() string {
	switch s {
	case NegStateNone:
		return "none"
	case NegStateAcceptCompleted:
		return "accept-completed"
	case NegStateAcceptIncomplete:
		return "accept-incomplete"
	case NegStateReject:
		return "reject"
	case NegStateRequestMIC:
		return "request-mic"
	default:
		return fmt.Sprintf("NegState(%d)", int(s))
	}
}

// ErrInvalidToken is returned when a token parses as BER but does not have
// the shape of a NegotiationToken.
var ErrInvalidToken = errors.New("spnego: invalid token format")

// Context tags of the NegotiationToken choice.
var (
	tagNegTokenInit = ber.ContextTag(0)
	tagNegTokenResp = ber.ContextTag(1)
)

// Token is a parsed or built NegotiationToken: *NegTokenInit or *NegTokenResp.
type Token interface {
	// Node returns the BER tree of the token.
	Node() *ber.Node

	// Token returns the mechanism payload: mechToken for NegTokenInit,
	// responseToken for NegTokenResp. Nil if absent.
	Token() []byte

	// Bytes returns the BER encoding of the token.
	Bytes() []byte
}

// =============================================================================
// Parsing
// =============================================================================

// Unwrap parses a security buffer into a NegTokenInit or NegTokenResp.
//
// The GSS-API framing (APPLICATION 0 + SPNEGO OID) is stripped when
// present. BER errors are returned wrapped; anything that is not [0] or [1]
// after stripping yields ErrInvalidToken.
func Unwrap(b []byte) (Token, error) {
	node, err := ber.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("spnego: %w", err)
	}

	inner := stripFraming(node)
	// Each branch returns a plain nil on error: a nil *NegTokenInit inside
	// a Token would compare non-nil.
	switch {
	case inner.Tag.Is(tagNegTokenInit):
		t, err := parseNegTokenInit(inner)
		if err != nil {
			return nil, err
		}
		return t, nil
	case inner.Tag.Is(tagNegTokenResp):
		t, err := parseNegTokenResp(inner)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: unexpected tag %x", ErrInvalidToken, []byte(inner.Tag))
	}
}

// stripFraming removes the GSS-API InitialContextToken header if the node
// is APPLICATION 0 carrying the SPNEGO OID; otherwise node is returned as is.
// [RFC 2743] Section 3.1
func stripFraming(node *ber.Node) *ber.Node {
	if !node.Tag.Is(ber.TagApplication0) {
		return node
	}
	oid := node.Child(0)
	if oid == nil || !oid.Tag.Is(ber.TagOID) || !bytes.Equal(oid.Content, oidNode(OIDSPNEGO).Content) {
		return node
	}
	if inner := node.Child(1); inner != nil {
		return inner
	}
	return node
}

// sequenceOf returns the SEQUENCE inside a NegotiationToken choice.
func sequenceOf(n *ber.Node) (*ber.Node, error) {
	seq := n.Find(ber.TagSequence)
	if seq == nil {
		return nil, fmt.Errorf("%w: missing SEQUENCE in %s", ErrInvalidToken, n)
	}
	return seq, nil
}

// octetString returns the OCTET STRING content inside a context-tagged field.
func octetString(seq *ber.Node, field int) ([]byte, error) {
	wrapper := seq.Find(ber.ContextTag(byte(field)))
	if wrapper == nil {
		return nil, nil
	}
	oct := wrapper.Find(ber.TagOctetString)
	if oct == nil {
		return nil, fmt.Errorf("%w: field [%d] is not an OCTET STRING", ErrInvalidToken, field)
	}
	return oct.Content, nil
}

// =============================================================================
// OID helpers
// =============================================================================

// oidNode encodes an OID as a primitive BER node.
func oidNode(oid asn1.ObjectIdentifier) *ber.Node {
	der, err := asn1.Marshal(oid)
	if err != nil {
		// Only reachable for OIDs with fewer than two arcs.
		panic(fmt.Sprintf("spnego: marshal OID %v: %v", oid, err))
	}
	node, err := ber.ParseAll(der)
	if err != nil {
		panic(fmt.Sprintf("spnego: reparse OID %v: %v", oid, err))
	}
	return node
}

// parseOID decodes a primitive OID node.
func parseOID(n *ber.Node) (asn1.ObjectIdentifier, error) {
	if !n.Tag.Is(ber.TagOID) {
		return nil, fmt.Errorf("%w: expected OID, got tag %x", ErrInvalidToken, []byte(n.Tag))
	}
	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(ber.Serialize(n), &oid); err != nil {
		return nil, fmt.Errorf("%w: bad OID: %v", ErrInvalidToken, err)
	}
	return oid, nil
}
