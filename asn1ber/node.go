// Package asn1ber is a schema-driven ASN.1 codec.
//
// Decoding happens in two passes: Decode turns BER (or DER) bytes into an
// untyped Node tree that remembers the exact byte span of every element, and
// Map projects that tree onto a declarative Schema. Encode produces canonical
// DER from a Value and a Schema.
//
// Signed sub-structures must be verified against Value.Raw (the bytes as
// received), never against a re-encoding.
package asn1ber

import "fmt"

// Class is the ASN.1 tag class.
type Class uint8

const (
	ClassUniversal   Class = 0
	ClassApplication Class = 1
	ClassContext     Class = 2
	ClassPrivate     Class = 3
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "UNIVERSAL"
	case ClassApplication:
		return "APPLICATION"
	case ClassContext:
		return "CONTEXT"
	case ClassPrivate:
		return "PRIVATE"
	default:
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
}

// Universal tag numbers used by the codec.
const (
	TagEOC             = 0
	TagBoolean         = 1
	TagInteger         = 2
	TagBitString       = 3
	TagOctetString     = 4
	TagNull            = 5
	TagOID             = 6
	TagEnumerated      = 10
	TagUTF8String      = 12
	TagSequence        = 16
	TagSet             = 17
	TagNumericString   = 18
	TagPrintableString = 19
	TagT61String       = 20
	TagIA5String       = 22
	TagUTCTime         = 23
	TagGeneralizedTime = 24
	TagVisibleString   = 26
	TagUniversalString = 28
	TagBMPString       = 30
)

// Node is one decoded tag-length-value element.
type Node struct {
	Class       Class
	Tag         int
	Constructed bool
	// Indefinite is set when the element used the BER indefinite-length form.
	Indefinite bool

	// Raw is the complete element (header, content and, for indefinite
	// lengths, the end-of-contents marker) exactly as it appeared in the input.
	Raw []byte
	// Content is the content octets without the header or end-of-contents marker.
	Content []byte
	// Offset is the position of Raw within the buffer given to Decode.
	Offset int

	Children []*Node
}

// Is reports whether n carries the given class and tag number.
func (n *Node) Is(class Class, tag int) bool {
	return n != nil && n.Class == class && n.Tag == tag
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	form := "primitive"
	if n.Constructed {
		form = "constructed"
	}
	return fmt.Sprintf("[%s %d] %s len=%d", n.Class, n.Tag, form, len(n.Content))
}

// Walk calls fn for n and every descendant in depth-first pre-order,
// stopping early when fn returns false.
func (n *Node) Walk(fn func(depth int, n *Node) bool) {
	n.walk(0, fn)
}

func (n *Node) walk(depth int, fn func(int, *Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(depth, n) {
		return false
	}
	for _, c := range n.Children {
		if !c.walk(depth+1, fn) {
			return false
		}
	}
	return true
}
