// Package ber implements a minimal BER (X.690 Basic Encoding Rules) codec.
//
// The codec works on generic tagged nodes rather than Go struct reflection:
// a Node is either primitive (raw content bytes) or constructed (an ordered
// list of child nodes). This is the shape needed by SPNEGO, where context
// tags ([0], [1], ...) wrap sequences whose layout is easier to walk than to
// describe with struct tags.
//
// Parsing accepts single- and multi-byte identifiers and short- or long-form
// lengths (up to 8 length octets). Indefinite lengths are rejected with
// ErrUnsupportedEncoding. Serialization always emits the minimal length form,
// so parse followed by serialize is byte-identical only for inputs that were
// already minimally encoded.
package ber

import (
	"errors"
	"fmt"
	"math"
)

// Parsing errors.
var (
	// ErrMalformedEncoding indicates structurally invalid BER: truncated input,
	// a child overrunning its parent, or an identifier/length that cannot be decoded.
	ErrMalformedEncoding = errors.New("ber: malformed encoding")

	// ErrUnsupportedEncoding indicates valid BER that this codec does not handle
	// (indefinite-length form).
	ErrUnsupportedEncoding = errors.New("ber: unsupported encoding")

	// ErrLengthOverflow indicates a long-form length that does not fit a signed
	// 64-bit integer. It is a class of ErrMalformedEncoding.
	ErrLengthOverflow = fmt.Errorf("%w: length overflow", ErrMalformedEncoding)
)

const (
	// constructedBit marks an identifier octet as constructed.
	constructedBit = 0x20

	// highTagNumber in the low 5 bits introduces a multi-byte identifier.
	highTagNumber = 0x1F

	// maxTagOctets bounds the subsequent identifier octets of a multi-byte tag.
	maxTagOctets = 8

	// maxLengthOctets bounds the long-form length octets.
	maxLengthOctets = 8

	// maxDepth bounds constructed nesting.
	maxDepth = 64
)

// Universal and SPNEGO-relevant identifier octets.
const (
	TagEnumerated    byte = 0x0A
	TagOctetString   byte = 0x04
	TagOID           byte = 0x06
	TagGeneralString byte = 0x1B
	TagSequence      byte = 0x30
	TagApplication0  byte = 0x60
)

// ContextTag returns the identifier octet of the constructed context-specific tag [n].
func ContextTag(n byte) byte {
	return 0xA0 | (n & highTagNumber)
}

// Tag holds the identifier octets of a node. Most tags are a single byte;
// high tag numbers use the multi-byte form.
type Tag []byte

// Constructed reports whether the identifier has the constructed bit set.
func (t Tag) Constructed() bool {
	return len(t) > 0 && t[0]&constructedBit != 0
}

// Is reports whether the tag is exactly the single identifier octet b.
func (t Tag) Is(b byte) bool {
	return len(t) == 1 && t[0] == b
}

// Node is a BER element. Exactly one of Content (primitive) or Children
// (constructed) is meaningful, as indicated by Tag.Constructed.
type Node struct {
	Tag      Tag
	Content  []byte
	Children []*Node
}

// Primitive builds a primitive node with a single-octet tag. The constructed
// bit is cleared if present.
func Primitive(tag byte, data []byte) *Node {
	return NewPrimitive(Tag{tag &^ constructedBit}, data)
}

// Constructed builds a constructed node with a single-octet tag. The
// constructed bit is set if absent.
func Constructed(tag byte, children ...*Node) *Node {
	return NewConstructed(Tag{tag | constructedBit}, children...)
}

// NewPrimitive builds a primitive node with an arbitrary (possibly multi-byte) tag.
func NewPrimitive(tag Tag, data []byte) *Node {
	content := make([]byte, len(data))
	copy(content, data)
	return &Node{Tag: cloneTag(tag), Content: content}
}

// NewConstructed builds a constructed node with an arbitrary (possibly multi-byte) tag.
func NewConstructed(tag Tag, children ...*Node) *Node {
	kids := make([]*Node, len(children))
	copy(kids, children)
	return &Node{Tag: cloneTag(tag), Children: kids}
}

func cloneTag(t Tag) Tag {
	c := make(Tag, len(t))
	copy(c, t)
	return c
}

// IsConstructed reports whether the node carries children.
func (n *Node) IsConstructed() bool {
	return n.Tag.Constructed()
}

// Child returns the i-th child, or nil if out of range or the node is primitive.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Find returns the first child whose tag is the single identifier octet tag,
// or nil if there is none.
func (n *Node) Find(tag byte) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Tag.Is(tag) {
			return c
		}
	}
	return nil
}

// ContentLen returns the length of the node's content octets as serialized.
func (n *Node) ContentLen() int {
	if !n.IsConstructed() {
		return len(n.Content)
	}
	total := 0
	for _, c := range n.Children {
		total += c.EncodedLen()
	}
	return total
}

// EncodedLen returns the total serialized size: identifier, length and content.
func (n *Node) EncodedLen() int {
	l := n.ContentLen()
	return len(n.Tag) + lengthOctets(l) + l
}

// Equal reports whether two trees have the same tags and contents.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if string(n.Tag) != string(o.Tag) {
		return false
	}
	if !n.IsConstructed() {
		return string(n.Content) == string(o.Content)
	}
	if len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// String renders the tree for debugging.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if !n.IsConstructed() {
		return fmt.Sprintf("%x[%d]", []byte(n.Tag), len(n.Content))
	}
	s := fmt.Sprintf("%x{", []byte(n.Tag))
	for i, c := range n.Children {
		if i > 0 {
			s += " "
		}
		s += c.String()
	}
	return s + "}"
}

// ============================================================================
// Parsing
// ============================================================================

// Parse decodes the first BER element in data. Bytes after the element are ignored.
func Parse(data []byte) (*Node, error) {
	n, _, err := parseNode(data, 0)
	return n, err
}

// ParseAll decodes a single BER element and fails if trailing bytes remain.
func ParseAll(data []byte) (*Node, error) {
	n, consumed, err := parseNode(data, 0)
	if err != nil {
		return nil, err
	}
	if consumed != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedEncoding, len(data)-consumed)
	}
	return n, nil
}

// parseNode decodes one element at the start of data and returns it with
// the number of bytes consumed.
func parseNode(data []byte, depth int) (*Node, int, error) {
	if depth > maxDepth {
		return nil, 0, fmt.Errorf("%w: nesting deeper than %d", ErrMalformedEncoding, maxDepth)
	}

	tagLen, err := identifierLen(data)
	if err != nil {
		return nil, 0, err
	}
	tag := cloneTag(data[:tagLen])

	length, lenLen, err := decodeLength(data[tagLen:])
	if err != nil {
		return nil, 0, err
	}

	start := tagLen + lenLen
	if length > len(data)-start {
		return nil, 0, fmt.Errorf("%w: content of %d bytes at offset %d exceeds %d available",
			ErrMalformedEncoding, length, start, len(data)-start)
	}
	content := data[start : start+length]

	n := &Node{Tag: tag}
	if tag.Constructed() {
		n.Children = []*Node{}
		for off := 0; off < len(content); {
			child, used, err := parseNode(content[off:], depth+1)
			if err != nil {
				return nil, 0, err
			}
			n.Children = append(n.Children, child)
			off += used
		}
	} else {
		n.Content = make([]byte, length)
		copy(n.Content, content)
	}

	return n, start + length, nil
}

// identifierLen returns the number of identifier octets at the start of data.
func identifierLen(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: missing identifier", ErrMalformedEncoding)
	}
	if data[0]&highTagNumber != highTagNumber {
		return 1, nil
	}
	for i := 1; i <= maxTagOctets; i++ {
		if i >= len(data) {
			return 0, fmt.Errorf("%w: truncated multi-byte identifier", ErrMalformedEncoding)
		}
		if data[i]&0x80 == 0 {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: identifier longer than %d octets", ErrMalformedEncoding, maxTagOctets+1)
}

// decodeLength decodes the length octets at the start of data and returns
// the content length and the number of length octets.
func decodeLength(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: missing length", ErrMalformedEncoding)
	}
	first := data[0]
	if first < 0x80 {
		return int(first), 1, nil
	}
	if first == 0x80 {
		return 0, 0, fmt.Errorf("%w: indefinite length", ErrUnsupportedEncoding)
	}

	count := int(first & 0x7F)
	if count > maxLengthOctets {
		return 0, 0, fmt.Errorf("%w: %d length octets", ErrMalformedEncoding, count)
	}
	if 1+count > len(data) {
		return 0, 0, fmt.Errorf("%w: truncated length", ErrMalformedEncoding)
	}

	var v uint64
	for _, b := range data[1 : 1+count] {
		v = v<<8 | uint64(b)
	}
	if v > math.MaxInt64 {
		return 0, 0, ErrLengthOverflow
	}
	if v > uint64(math.MaxInt) {
		return 0, 0, ErrLengthOverflow
	}
	return int(v), 1 + count, nil
}

// ============================================================================
// Serialization
// ============================================================================

// Serialize encodes a node tree with minimal length octets.
func Serialize(n *Node) []byte {
	return AppendNode(make([]byte, 0, n.EncodedLen()), n)
}

// AppendNode appends the encoding of n to dst.
func AppendNode(dst []byte, n *Node) []byte {
	dst = append(dst, n.Tag...)
	dst = appendLength(dst, n.ContentLen())
	if !n.IsConstructed() {
		return append(dst, n.Content...)
	}
	for _, c := range n.Children {
		dst = AppendNode(dst, c)
	}
	return dst
}

// lengthOctets returns the number of octets needed to encode length l.
func lengthOctets(l int) int {
	if l < 0x80 {
		return 1
	}
	n := 1
	for v := uint64(l); v > 0; v >>= 8 {
		n++
	}
	return n
}

func appendLength(dst []byte, l int) []byte {
	if l < 0x80 {
		return append(dst, byte(l))
	}
	count := lengthOctets(l) - 1
	dst = append(dst, 0x80|byte(count))
	for i := count - 1; i >= 0; i-- {
		dst = append(dst, byte(uint64(l)>>(8*i)))
	}
	return dst
}
