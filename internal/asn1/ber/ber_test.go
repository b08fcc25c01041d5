package ber

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	asn1ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// negTokenInit2 is a Windows-style SPNEGO NegTokenInit2 advertising several
// mechanisms and the not_defined_in_RFC4178@please_ignore hint.
const negTokenInit2 = "YH4GBisGAQUFAqB0MHKgRDBCBgkqhkiC9xIBAgIGCSqGSIb3EgECAgYGKoVwKw4DBgYrBgEFBQ4GCisGAQQBgjcCAgoGBisFAQUCBwYGKwYBBQIFoyowKKAmGyRub3RfZGVmaW5lZF9pbl9SRkM0MTc4QHBsZWFzZV9pZ25vcmU="

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}

// =============================================================================
// Known Vectors
// =============================================================================

func TestParseNegTokenInit2RoundTrip(t *testing.T) {
	data := mustDecode(t, negTokenInit2)
	require.Equal(t, byte(0x60), data[0])
	require.Equal(t, byte(0x7E), data[1])

	node, err := ParseAll(data)
	require.NoError(t, err)

	assert.True(t, node.Tag.Is(TagApplication0))
	require.Len(t, node.Children, 2)

	oid := node.Child(0)
	assert.True(t, oid.Tag.Is(TagOID))
	assert.Equal(t, []byte{0x2B, 0x06, 0x01, 0x05, 0x05, 0x02}, oid.Content)

	negInit := node.Child(1)
	assert.True(t, negInit.Tag.Is(ContextTag(0)))
	seq := negInit.Find(TagSequence)
	require.NotNil(t, seq)

	mechTypes := seq.Find(ContextTag(0)).Find(TagSequence)
	require.NotNil(t, mechTypes)
	assert.Len(t, mechTypes.Children, 7)

	hints := seq.Find(ContextTag(3))
	require.NotNil(t, hints)
	hint := hints.Child(0).Child(0).Child(0)
	require.NotNil(t, hint)
	assert.True(t, hint.Tag.Is(TagGeneralString))
	assert.Equal(t, "not_defined_in_RFC4178@please_ignore", string(hint.Content))

	assert.Equal(t, data, Serialize(node))
	assert.Equal(t, len(data), node.EncodedLen())
}

// =============================================================================
// Identifier Tests
// =============================================================================

func TestParseMultiByteTag(t *testing.T) {
	// [APPLICATION 31] primitive uses the high-tag-number form: 0x5F 0x1F.
	data := []byte{0x5F, 0x1F, 0x02, 0xAA, 0xBB}
	node, err := ParseAll(data)
	require.NoError(t, err)
	assert.Equal(t, Tag{0x5F, 0x1F}, node.Tag)
	assert.Equal(t, []byte{0xAA, 0xBB}, node.Content)
	assert.Equal(t, data, Serialize(node))

	// Tag number 200 needs two subsequent octets: 0x81 0x48.
	data = []byte{0x9F, 0x81, 0x48, 0x01, 0x00}
	node, err = ParseAll(data)
	require.NoError(t, err)
	assert.Equal(t, Tag{0x9F, 0x81, 0x48}, node.Tag)
	assert.Equal(t, data, Serialize(node))
}

func TestParseIdentifierErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"TruncatedMultiByte", []byte{0x1F, 0x81}},
		{"TooLongMultiByte", []byte{0x1F, 0x81, 0x81, 0x81, 0x81, 0x81, 0x81, 0x81, 0x81, 0x81, 0x01, 0x00}},
		{"MissingLength", []byte{0x04}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			assert.ErrorIs(t, err, ErrMalformedEncoding)
		})
	}
}

// =============================================================================
// Length Tests
// =============================================================================

func TestParseLongFormLength(t *testing.T) {
	content := bytes.Repeat([]byte{0x42}, 300)
	data := append([]byte{0x04, 0x82, 0x01, 0x2C}, content...)

	node, err := ParseAll(data)
	require.NoError(t, err)
	assert.Equal(t, content, node.Content)
	assert.Equal(t, data, Serialize(node))
}

func TestParseNonMinimalLengthIsCanonicalized(t *testing.T) {
	// Length 3 encoded in long form with a leading zero octet.
	data := []byte{0x04, 0x82, 0x00, 0x03, 0x01, 0x02, 0x03}
	node, err := ParseAll(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x03, 0x01, 0x02, 0x03}, Serialize(node))
}

func TestParseLengthErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected error
	}{
		{"Indefinite", []byte{0x30, 0x80, 0x00, 0x00}, ErrUnsupportedEncoding},
		{"TooManyLengthOctets", []byte{0x04, 0x89, 0, 0, 0, 0, 0, 0, 0, 0, 1}, ErrMalformedEncoding},
		{"ReservedLengthOctet", []byte{0x04, 0xFF}, ErrMalformedEncoding},
		{"TruncatedLengthOctets", []byte{0x04, 0x82, 0x01}, ErrMalformedEncoding},
		{"SignBitOverflow", []byte{0x04, 0x88, 0x80, 0, 0, 0, 0, 0, 0, 0}, ErrLengthOverflow},
		{"ContentTruncated", []byte{0x04, 0x05, 0x01, 0x02}, ErrMalformedEncoding},
		{"LongContentTruncated", []byte{0x04, 0x84, 0x7F, 0xFF, 0xFF, 0xFF, 0x00}, ErrMalformedEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestLengthOverflowIsMalformed(t *testing.T) {
	assert.True(t, errors.Is(ErrLengthOverflow, ErrMalformedEncoding))
	assert.False(t, errors.Is(ErrUnsupportedEncoding, ErrMalformedEncoding))
}

func TestSerializeLengthBoundaries(t *testing.T) {
	tests := []struct {
		length int
		prefix []byte
	}{
		{0, []byte{0x04, 0x00}},
		{0x7F, []byte{0x04, 0x7F}},
		{0x80, []byte{0x04, 0x81, 0x80}},
		{0xFF, []byte{0x04, 0x81, 0xFF}},
		{0x100, []byte{0x04, 0x82, 0x01, 0x00}},
		{0x10000, []byte{0x04, 0x83, 0x01, 0x00, 0x00}},
	}

	for _, tt := range tests {
		node := Primitive(TagOctetString, make([]byte, tt.length))
		out := Serialize(node)
		if !bytes.HasPrefix(out, tt.prefix) {
			t.Errorf("length %d: got prefix % x, expected % x", tt.length, out[:len(tt.prefix)], tt.prefix)
		}
		if len(out) != node.EncodedLen() {
			t.Errorf("length %d: EncodedLen %d, serialized %d", tt.length, node.EncodedLen(), len(out))
		}
	}
}

// =============================================================================
// Constructed Tests
// =============================================================================

func TestParseChildOverrunsParent(t *testing.T) {
	// SEQUENCE of length 3 containing an OCTET STRING claiming 4 bytes.
	data := []byte{0x30, 0x03, 0x04, 0x04, 0x01, 0x02, 0x03}
	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestParseEmptyConstructed(t *testing.T) {
	node, err := ParseAll([]byte{0x30, 0x00})
	require.NoError(t, err)
	assert.True(t, node.IsConstructed())
	assert.Empty(t, node.Children)
}

func TestParseTrailingBytes(t *testing.T) {
	data := []byte{0x04, 0x01, 0xAA, 0xFF}

	node, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, node.Content)

	_, err = ParseAll(data)
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestParseDepthLimit(t *testing.T) {
	depth := maxDepth + 2
	node := Constructed(TagSequence)
	for i := 0; i < depth; i++ {
		node = Constructed(TagSequence, node)
	}
	_, err := Parse(Serialize(node))
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestBuilders(t *testing.T) {
	t.Run("ConstructedBitForced", func(t *testing.T) {
		n := Constructed(0x10, Primitive(TagOctetString, []byte{1}))
		assert.Equal(t, Tag{0x30}, n.Tag)
		assert.True(t, n.IsConstructed())
	})

	t.Run("PrimitiveBitCleared", func(t *testing.T) {
		n := Primitive(0x24, []byte{1})
		assert.Equal(t, Tag{0x04}, n.Tag)
		assert.False(t, n.IsConstructed())
	})

	t.Run("PrimitiveCopiesData", func(t *testing.T) {
		data := []byte{1, 2, 3}
		n := Primitive(TagOctetString, data)
		data[0] = 9
		assert.Equal(t, []byte{1, 2, 3}, n.Content)
	})

	t.Run("ContextTag", func(t *testing.T) {
		assert.Equal(t, byte(0xA0), ContextTag(0))
		assert.Equal(t, byte(0xA3), ContextTag(3))
	})

	t.Run("ChildAndFind", func(t *testing.T) {
		n := Constructed(TagSequence,
			Constructed(ContextTag(0)),
			Constructed(ContextTag(2), Primitive(TagOctetString, []byte("x"))),
		)
		assert.Nil(t, n.Child(-1))
		assert.Nil(t, n.Child(2))
		assert.NotNil(t, n.Find(ContextTag(2)))
		assert.Nil(t, n.Find(ContextTag(1)))
		assert.Nil(t, (*Node)(nil).Find(TagSequence))
	})
}

// =============================================================================
// Round-trip Property
// =============================================================================

func TestRoundTripBuiltTrees(t *testing.T) {
	trees := []*Node{
		Primitive(TagOctetString, nil),
		Primitive(TagEnumerated, []byte{0x01}),
		Constructed(TagSequence),
		Constructed(TagApplication0,
			Primitive(TagOID, []byte{0x2B, 0x06, 0x01, 0x05, 0x05, 0x02}),
			Constructed(ContextTag(0),
				Constructed(TagSequence,
					Constructed(ContextTag(2), Primitive(TagOctetString, bytes.Repeat([]byte{0x55}, 1000))),
				),
			),
		),
		NewPrimitive(Tag{0x5F, 0x81, 0x00}, []byte("high tag")),
		NewConstructed(Tag{0x7F, 0x22}, Primitive(TagGeneralString, []byte("x"))),
	}

	for i, tree := range trees {
		encoded := Serialize(tree)
		parsed, err := ParseAll(encoded)
		if err != nil {
			t.Errorf("tree %d: parse failed: %v", i, err)
			continue
		}
		if !parsed.Equal(tree) {
			t.Errorf("tree %d: round trip mismatch: %s != %s", i, parsed, tree)
		}
		if !bytes.Equal(Serialize(parsed), encoded) {
			t.Errorf("tree %d: re-serialization differs", i)
		}
	}
}

// =============================================================================
// Cross-check with go-asn1-ber
// =============================================================================

func TestSerializeMatchesGoASN1BER(t *testing.T) {
	payload := bytes.Repeat([]byte{0xA5}, 200)

	ref := asn1ber.NewSequence("outer")
	ref.AppendChild(asn1ber.NewString(asn1ber.ClassUniversal, asn1ber.TypePrimitive, asn1ber.TagOctetString, string(payload), "payload"))
	ref.AppendChild(asn1ber.NewString(asn1ber.ClassUniversal, asn1ber.TypePrimitive, asn1ber.TagGeneralString, "hint", "hint"))

	ours := Constructed(TagSequence,
		Primitive(TagOctetString, payload),
		Primitive(TagGeneralString, []byte("hint")),
	)

	assert.Equal(t, ref.Bytes(), Serialize(ours))
}

func TestGoASN1BERDecodesOurEncoding(t *testing.T) {
	ours := Constructed(ContextTag(1),
		Constructed(TagSequence,
			Constructed(ContextTag(0), Primitive(TagEnumerated, []byte{0x01})),
			Constructed(ContextTag(2), Primitive(TagOctetString, []byte("token"))),
		),
	)

	pkt, err := asn1ber.DecodePacketErr(Serialize(ours))
	require.NoError(t, err)
	assert.Equal(t, asn1ber.ClassContext, pkt.ClassType)
	assert.Equal(t, asn1ber.TypeConstructed, pkt.TagType)
	assert.Equal(t, asn1ber.Tag(1), pkt.Tag)
	require.Len(t, pkt.Children, 1)
	require.Len(t, pkt.Children[0].Children, 2)
}

func TestParseGoASN1BEREncoding(t *testing.T) {
	ref := asn1ber.Encode(asn1ber.ClassApplication, asn1ber.TypeConstructed, 0, nil, "app")
	ref.AppendChild(asn1ber.NewString(asn1ber.ClassUniversal, asn1ber.TypePrimitive, asn1ber.TagOctetString, "abc", "s"))

	node, err := ParseAll(ref.Bytes())
	require.NoError(t, err)
	assert.True(t, node.Tag.Is(TagApplication0))
	require.Len(t, node.Children, 1)
	assert.Equal(t, []byte("abc"), node.Children[0].Content)
}
