// Package xades computes the digests a XAdES-style container signature
// commits to: one per data file and one over the canonical SignedProperties
// fragment, all referenced from SignedInfo, whose digest is the challenge an
// external signer signs.
package xades

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/multiformats/go-multihash"
)

// Digest method URIs (RFC 6931, XMLDSig 1.1).
const (
	SHA256   = "http://www.w3.org/2001/04/xmlenc#sha256"
	SHA512   = "http://www.w3.org/2001/04/xmlenc#sha512"
	SHA3_256 = "http://www.w3.org/2007/05/xmldsig-more#sha3-256"
)

var ErrUnsupportedDigest = errors.New("xades: unsupported digest method")

var digestCodes = map[string]uint64{
	SHA256:   multihash.SHA2_256,
	SHA512:   multihash.SHA2_512,
	SHA3_256: multihash.SHA3_256,
}

// Digest hashes data with the digest method named by URI.
func Digest(method string, data []byte) ([]byte, error) {
	mh, err := Multihash(method, data)
	if err != nil {
		return nil, err
	}
	dec, err := multihash.Decode(mh)
	if err != nil {
		return nil, err
	}
	return dec.Digest, nil
}

// Multihash is Digest in self-describing multihash form, the key format of
// the evidence archive.
func Multihash(method string, data []byte) (multihash.Multihash, error) {
	code, ok := digestCodes[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDigest, method)
	}
	return multihash.Sum(data, code, -1)
}

// VerifyDigest recomputes the digest of data and compares it in constant time.
func VerifyDigest(method string, data, want []byte) (bool, error) {
	got, err := Digest(method, data)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
