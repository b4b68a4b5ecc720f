package x509cert

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/cloudflare/circl/sign/ed448"
)

// Verify checks signature over signedData with the certificate's public key,
// using the signature algorithm named by algorithmOID (dotted form).
//
// A signature that does not verify yields (false, nil). Errors are reserved
// for unsupported algorithms and keys that cannot serve the algorithm.
func (c *Certificate) Verify(signedData, signature []byte, algorithmOID string) (bool, error) {
	alg, err := LookupAlgorithm(algorithmOID)
	if err != nil {
		return false, err
	}
	digest, err := alg.Digest(signedData)
	if err != nil {
		return false, err
	}
	return c.verify(alg, digest, signature)
}

// VerifyDigest is Verify for callers that already hold the digest, such as a
// signing challenge. For schemes without a separate digest step (Ed25519,
// Ed448, Dilithium3) digest is verified as the signed message.
func (c *Certificate) VerifyDigest(digest, signature []byte, algorithmOID string) (bool, error) {
	alg, err := LookupAlgorithm(algorithmOID)
	if err != nil {
		return false, err
	}
	if alg.Hash != 0 && len(digest) != alg.Hash.Size() {
		return false, fmt.Errorf("x509cert: digest length %d does not match %s", len(digest), alg.Name)
	}
	return c.verify(alg, digest, signature)
}

// DefaultAlgorithm returns the signature algorithm this certificate's key
// would normally produce for a SHA-256 based challenge.
func (c *Certificate) DefaultAlgorithm() (Algorithm, error) {
	switch c.publicKey.(type) {
	case *rsa.PublicKey:
		return LookupAlgorithm(OIDSHA256WithRSA.String())
	case *ecdsa.PublicKey:
		return LookupAlgorithm(OIDECDSAWithSHA256.String())
	case ed25519.PublicKey:
		return LookupAlgorithm(OIDEd25519.String())
	case ed448.PublicKey:
		return LookupAlgorithm(OIDEd448.String())
	case *mode3.PublicKey:
		return LookupAlgorithm(OIDDilithium3.String())
	}
	if c.keyErr != nil {
		return Algorithm{}, c.keyErr
	}
	return Algorithm{}, ErrKeyFormat
}

func (c *Certificate) verify(alg Algorithm, digest, signature []byte) (bool, error) {
	if c.publicKey == nil {
		if c.keyErr != nil {
			return false, c.keyErr
		}
		return false, ErrKeyFormat
	}
	switch alg.Scheme {
	case SchemeRSAPKCS1v15:
		pub, ok := c.publicKey.(*rsa.PublicKey)
		if !ok {
			return false, keyMismatch(alg, c.publicKey)
		}
		return rsa.VerifyPKCS1v15(pub, alg.Hash, digest, signature) == nil, nil
	case SchemeECDSA:
		pub, ok := c.publicKey.(*ecdsa.PublicKey)
		if !ok {
			return false, keyMismatch(alg, c.publicKey)
		}
		return ecdsa.VerifyASN1(pub, digest, signature), nil
	case SchemeEd25519:
		pub, ok := c.publicKey.(ed25519.PublicKey)
		if !ok {
			return false, keyMismatch(alg, c.publicKey)
		}
		return ed25519.Verify(pub, digest, signature), nil
	case SchemeEd448:
		pub, ok := c.publicKey.(ed448.PublicKey)
		if !ok {
			return false, keyMismatch(alg, c.publicKey)
		}
		return ed448.Verify(pub, digest, signature, ""), nil
	case SchemeDilithium3:
		pub, ok := c.publicKey.(*mode3.PublicKey)
		if !ok {
			return false, keyMismatch(alg, c.publicKey)
		}
		if len(signature) != mode3.SignatureSize {
			return false, nil
		}
		return mode3.Verify(pub, digest, signature), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg.Name)
	}
}

func keyMismatch(alg Algorithm, key any) error {
	return fmt.Errorf("%w: %s cannot be verified with a %T", ErrKeyFormat, alg.Name, key)
}
