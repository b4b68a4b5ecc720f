package x509cert

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/sha3"

	"xdao.co/digidoc/asn1ber"
)

// Scheme is the public-key signature primitive of an algorithm.
type Scheme uint8

const (
	SchemeRSAPKCS1v15 Scheme = iota + 1
	SchemeECDSA
	SchemeEd25519
	SchemeEd448
	SchemeDilithium3
)

// Algorithm pairs a signature OID with the digest it is computed over.
// Hash is zero for schemes that sign the message itself.
type Algorithm struct {
	OID    asn1.ObjectIdentifier
	Name   string
	Hash   crypto.Hash
	Scheme Scheme
}

// Object identifiers for public keys and signature algorithms.
var (
	OIDPublicKeyRSA        = asn1ber.MustOID("1.2.840.113549.1.1.1")
	OIDPublicKeyECDSA      = asn1ber.MustOID("1.2.840.10045.2.1")
	OIDPublicKeyEd25519    = asn1ber.MustOID("1.3.101.112")
	OIDPublicKeyEd448      = asn1ber.MustOID("1.3.101.113")
	OIDPublicKeyDilithium3 = asn1ber.MustOID("1.3.6.1.4.1.2.267.7.6.5")

	OIDSHA1WithRSA     = asn1ber.MustOID("1.2.840.113549.1.1.5")
	OIDSHA256WithRSA   = asn1ber.MustOID("1.2.840.113549.1.1.11")
	OIDSHA384WithRSA   = asn1ber.MustOID("1.2.840.113549.1.1.12")
	OIDSHA512WithRSA   = asn1ber.MustOID("1.2.840.113549.1.1.13")
	OIDECDSAWithSHA1   = asn1ber.MustOID("1.2.840.10045.4.1")
	OIDECDSAWithSHA256 = asn1ber.MustOID("1.2.840.10045.4.3.2")
	OIDECDSAWithSHA384 = asn1ber.MustOID("1.2.840.10045.4.3.3")
	OIDECDSAWithSHA512 = asn1ber.MustOID("1.2.840.10045.4.3.4")
	OIDECDSAWithSHA3   = asn1ber.MustOID("2.16.840.1.101.3.4.3.10")
	OIDEd25519         = OIDPublicKeyEd25519
	OIDEd448           = OIDPublicKeyEd448
	OIDDilithium3      = OIDPublicKeyDilithium3

	OIDCommonName = asn1ber.MustOID("2.5.4.3")
)

var algorithms = []Algorithm{
	{OID: OIDSHA1WithRSA, Name: "sha1WithRSAEncryption", Hash: crypto.SHA1, Scheme: SchemeRSAPKCS1v15},
	{OID: OIDSHA256WithRSA, Name: "sha256WithRSAEncryption", Hash: crypto.SHA256, Scheme: SchemeRSAPKCS1v15},
	{OID: OIDSHA384WithRSA, Name: "sha384WithRSAEncryption", Hash: crypto.SHA384, Scheme: SchemeRSAPKCS1v15},
	{OID: OIDSHA512WithRSA, Name: "sha512WithRSAEncryption", Hash: crypto.SHA512, Scheme: SchemeRSAPKCS1v15},
	{OID: OIDECDSAWithSHA1, Name: "ecdsa-with-SHA1", Hash: crypto.SHA1, Scheme: SchemeECDSA},
	{OID: OIDECDSAWithSHA256, Name: "ecdsa-with-SHA256", Hash: crypto.SHA256, Scheme: SchemeECDSA},
	{OID: OIDECDSAWithSHA384, Name: "ecdsa-with-SHA384", Hash: crypto.SHA384, Scheme: SchemeECDSA},
	{OID: OIDECDSAWithSHA512, Name: "ecdsa-with-SHA512", Hash: crypto.SHA512, Scheme: SchemeECDSA},
	{OID: OIDECDSAWithSHA3, Name: "id-ecdsa-with-sha3-256", Hash: crypto.SHA3_256, Scheme: SchemeECDSA},
	{OID: OIDEd25519, Name: "Ed25519", Scheme: SchemeEd25519},
	{OID: OIDEd448, Name: "Ed448", Scheme: SchemeEd448},
	{OID: OIDDilithium3, Name: "Dilithium3", Scheme: SchemeDilithium3},
}

// Names resolves every supported algorithm and key OID to a display name.
var Names = func() *asn1ber.Registry {
	r := asn1ber.NewRegistry(map[string]string{
		OIDPublicKeyRSA.String():   "rsaEncryption",
		OIDPublicKeyECDSA.String(): "id-ecPublicKey",
	})
	for _, a := range algorithms {
		r.MustRegister(a.OID.String(), a.Name)
	}
	return r
}()

// LookupAlgorithm resolves a dotted signature algorithm OID.
func LookupAlgorithm(oid string) (Algorithm, error) {
	for _, a := range algorithms {
		if a.OID.String() == oid {
			return a, nil
		}
	}
	return Algorithm{}, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, oid)
}

// Digest hashes message with the algorithm's digest. Schemes that sign the
// message directly return it unchanged.
func (a Algorithm) Digest(message []byte) ([]byte, error) {
	switch a.Hash {
	case 0:
		return message, nil
	case crypto.SHA1:
		s := sha1.Sum(message)
		return s[:], nil
	case crypto.SHA256:
		s := sha256.Sum256(message)
		return s[:], nil
	case crypto.SHA384:
		s := sha512.Sum384(message)
		return s[:], nil
	case crypto.SHA512:
		s := sha512.Sum512(message)
		return s[:], nil
	case crypto.SHA3_256:
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("%w: digest %v", ErrUnsupportedAlgorithm, a.Hash)
	}
}
