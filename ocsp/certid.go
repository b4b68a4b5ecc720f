package ocsp

import (
	"bytes"
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"fmt"
	"math/big"

	"xdao.co/digidoc/asn1ber"
	"xdao.co/digidoc/x509cert"
)

// CertID identifies a certificate by issuer hashes and serial number.
type CertID struct {
	HashAlgorithm  asn1.ObjectIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// NewCertID computes the CertID of subject as issued by issuer. hash is
// usually crypto.SHA1, which every responder understands.
func NewCertID(issuer, subject *x509cert.Certificate, hash crypto.Hash) (CertID, error) {
	oid, sum, err := hasher(hash)
	if err != nil {
		return CertID{}, err
	}
	if issuer == nil || subject == nil {
		return CertID{}, fmt.Errorf("ocsp: issuer and subject certificates are required")
	}
	return CertID{
		HashAlgorithm:  oid,
		IssuerNameHash: sum(issuer.Subject.Raw),
		IssuerKeyHash:  sum(issuer.SubjectPublicKey()),
		SerialNumber:   subject.SerialNumber,
	}, nil
}

// Equal compares all four components.
func (id CertID) Equal(other CertID) bool {
	return id.HashAlgorithm.Equal(other.HashAlgorithm) &&
		bytes.Equal(id.IssuerNameHash, other.IssuerNameHash) &&
		bytes.Equal(id.IssuerKeyHash, other.IssuerKeyHash) &&
		id.SerialNumber != nil && other.SerialNumber != nil &&
		id.SerialNumber.Cmp(other.SerialNumber) == 0
}

// Value returns id as an asn1ber value for CertIDSchema.
func (id CertID) Value() *asn1ber.Value {
	return asn1ber.NewStruct(map[string]*asn1ber.Value{
		"hashAlgorithm": asn1ber.NewStruct(map[string]*asn1ber.Value{
			"algorithm":  asn1ber.NewOID(id.HashAlgorithm),
			"parameters": asn1ber.NewRaw([]byte{asn1ber.TagNull, 0}),
		}),
		"issuerNameHash": asn1ber.NewOctets(id.IssuerNameHash),
		"issuerKeyHash":  asn1ber.NewOctets(id.IssuerKeyHash),
		"serialNumber":   asn1ber.NewBigInt(id.SerialNumber),
	})
}

func certIDFromValue(v *asn1ber.Value) CertID {
	return CertID{
		HashAlgorithm:  v.Path("hashAlgorithm", "algorithm").OID,
		IssuerNameHash: v.Field("issuerNameHash").Bytes,
		IssuerKeyHash:  v.Field("issuerKeyHash").Bytes,
		SerialNumber:   v.Field("serialNumber").Int,
	}
}

func hasher(h crypto.Hash) (asn1.ObjectIdentifier, func([]byte) []byte, error) {
	switch h {
	case crypto.SHA1:
		return OIDSHA1, func(b []byte) []byte { s := sha1.Sum(b); return s[:] }, nil
	case crypto.SHA256:
		return OIDSHA256, func(b []byte) []byte { s := sha256.Sum256(b); return s[:] }, nil
	case crypto.SHA384:
		return OIDSHA384, func(b []byte) []byte { s := sha512.Sum384(b); return s[:] }, nil
	case crypto.SHA512:
		return OIDSHA512, func(b []byte) []byte { s := sha512.Sum512(b); return s[:] }, nil
	default:
		return nil, nil, fmt.Errorf("%w: CertID hash %v", x509cert.ErrUnsupportedAlgorithm, h)
	}
}
