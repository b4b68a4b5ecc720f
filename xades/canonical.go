package xades

// Canonicalizer turns a serialized XML fragment into the exact bytes that get
// digested. XML C14N itself is supplied by the caller.
type Canonicalizer interface {
	Canonicalize(fragment []byte) ([]byte, error)
}

// CanonicalizerFunc adapts a function to Canonicalizer.
type CanonicalizerFunc func(fragment []byte) ([]byte, error)

func (f CanonicalizerFunc) Canonicalize(fragment []byte) ([]byte, error) { return f(fragment) }

// Serialized treats the fragment as already canonical. The fragments this
// package marshals carry no comments, no whitespace between elements and a
// fixed attribute order, so their serialization is stable.
var Serialized Canonicalizer = CanonicalizerFunc(func(b []byte) ([]byte, error) {
	return append([]byte(nil), b...), nil
})

// C14N11 is the method URI recorded in SignedInfo.
const C14N11 = "http://www.w3.org/2006/12/xml-c14n11"
