// Package x509cert parses X.509 certificates through the asn1ber codec and
// verifies signatures made with their public keys.
package x509cert

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/cloudflare/circl/sign/ed448"

	"xdao.co/digidoc/asn1ber"
	"xdao.co/digidoc/encoding/b64"
)

// Certificate is a parsed, read-only X.509 certificate.
type Certificate struct {
	raw    []byte
	tbsRaw []byte

	SerialNumber       *big.Int
	Issuer             Name
	Subject            Name
	NotBefore          time.Time
	NotAfter           time.Time
	SignatureAlgorithm asn1.ObjectIdentifier
	Signature          []byte
	PublicKeyAlgorithm asn1.ObjectIdentifier
	Extensions         []Extension

	spkiRaw   []byte
	keyBits   []byte
	publicKey any
	keyErr    error
}

// Extension is one certificate extension.
type Extension struct {
	ID       asn1.ObjectIdentifier
	Critical bool
	Value    []byte
}

// Name is a distinguished name together with its encoded form.
type Name struct {
	Raw        []byte
	Attributes []Attribute
}

// Attribute is one AttributeTypeAndValue of a distinguished name.
type Attribute struct {
	Type  asn1.ObjectIdentifier
	Value string
}

// CommonName returns the last CN attribute, or "".
func (n Name) CommonName() string {
	cn := ""
	for _, a := range n.Attributes {
		if a.Type.Equal(OIDCommonName) {
			cn = a.Value
		}
	}
	return cn
}

var attributeShortNames = map[string]string{
	"2.5.4.3":              "CN",
	"2.5.4.4":              "SN",
	"2.5.4.5":              "serialNumber",
	"2.5.4.6":              "C",
	"2.5.4.7":              "L",
	"2.5.4.8":              "ST",
	"2.5.4.10":             "O",
	"2.5.4.11":             "OU",
	"2.5.4.42":             "GN",
	"1.2.840.113549.1.9.1": "emailAddress",
}

// String renders the name as comma separated TYPE=value pairs in encoding order.
func (n Name) String() string {
	parts := make([]string, 0, len(n.Attributes))
	for _, a := range n.Attributes {
		t, ok := attributeShortNames[a.Type.String()]
		if !ok {
			t = a.Type.String()
		}
		parts = append(parts, t+"="+a.Value)
	}
	return strings.Join(parts, ", ")
}

// Parse parses a DER (or BER) encoded certificate.
func Parse(der []byte) (*Certificate, error) {
	v, err := asn1ber.Unmarshal(der, CertificateSchema)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	tbs := v.Field("tbsCertificate")
	c := &Certificate{
		raw:                v.Raw,
		tbsRaw:             tbs.Raw,
		SerialNumber:       tbs.Field("serialNumber").Int,
		SignatureAlgorithm: v.Path("signatureAlgorithm", "algorithm").OID,
		Signature:          v.Field("signatureValue").Bits.RightAlign(),
	}
	c.Issuer = NameFromValue(tbs.Field("issuer"))
	c.Subject = NameFromValue(tbs.Field("subject"))
	c.NotBefore = choiceTime(tbs.Path("validity", "notBefore"))
	c.NotAfter = choiceTime(tbs.Path("validity", "notAfter"))

	spki := tbs.Field("subjectPublicKeyInfo")
	c.spkiRaw = spki.Raw
	c.PublicKeyAlgorithm = spki.Path("algorithm", "algorithm").OID
	c.keyBits = spki.Field("subjectPublicKey").Bits.RightAlign()
	c.publicKey, c.keyErr = parsePublicKey(c.spkiRaw, c.PublicKeyAlgorithm, c.keyBits)

	if exts := tbs.Field("extensions"); exts != nil {
		for _, e := range exts.Items {
			c.Extensions = append(c.Extensions, Extension{
				ID:       e.Field("extnID").OID,
				Critical: e.Field("critical").Bool,
				Value:    e.Field("extnValue").Bytes,
			})
		}
	}
	return c, nil
}

// ParsePEM parses the first CERTIFICATE block of a PEM document.
func ParsePEM(data []byte) (*Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("%w: no CERTIFICATE PEM block", ErrParse)
		}
		if block.Type == "CERTIFICATE" {
			return Parse(block.Bytes)
		}
	}
}

// FromPEMWithoutWrappers parses the base64 body of a PEM certificate whose
// BEGIN/END lines were stripped, as signing tokens commonly hand it over.
func FromPEMWithoutWrappers(body string) (*Certificate, error) {
	der, err := b64.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return Parse(der)
}

// Raw returns the certificate's DER bytes.
func (c *Certificate) Raw() []byte { return c.raw }

// RawTBSCertificate returns the signed portion exactly as encoded.
func (c *Certificate) RawTBSCertificate() []byte { return c.tbsRaw }

// RawSubjectPublicKeyInfo returns the encoded SubjectPublicKeyInfo.
func (c *Certificate) RawSubjectPublicKeyInfo() []byte { return c.spkiRaw }

// SubjectPublicKey returns the contents of the subjectPublicKey BIT STRING.
func (c *Certificate) SubjectPublicKey() []byte { return c.keyBits }

// PublicKey returns the parsed key: *rsa.PublicKey, *ecdsa.PublicKey,
// ed25519.PublicKey, ed448.PublicKey or *mode3.PublicKey. It is nil when the
// key algorithm is not supported.
func (c *Certificate) PublicKey() any { return c.publicKey }

// PEM returns the certificate as a PEM block.
func (c *Certificate) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.raw})
}

// IssuerCommonName returns the CN of the issuer name.
func (c *Certificate) IssuerCommonName() string { return c.Issuer.CommonName() }

// SubjectCommonName returns the CN of the subject name.
func (c *Certificate) SubjectCommonName() string { return c.Subject.CommonName() }

// ValidAt reports whether t falls inside the validity window.
func (c *Certificate) ValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

// Equal reports whether both certificates have identical encodings.
func (c *Certificate) Equal(other *Certificate) bool {
	return c != nil && other != nil && bytes.Equal(c.raw, other.raw)
}

// HasSigned reports whether child's signature verifies under c's public key.
func (c *Certificate) HasSigned(child *Certificate) (bool, error) {
	if child == nil {
		return false, nil
	}
	return c.Verify(child.tbsRaw, child.Signature, child.SignatureAlgorithm.String())
}

// SerialHex returns the serial number as upper-case hex.
func (c *Certificate) SerialHex() string {
	if c.SerialNumber == nil {
		return ""
	}
	return strings.ToUpper(hex.EncodeToString(c.SerialNumber.Bytes()))
}

// NameFromValue converts a value mapped with NameSchema. Attribute values
// that are not character strings are rendered as "#" followed by their hex DER.
func NameFromValue(v *asn1ber.Value) Name {
	n := Name{Raw: v.Raw}
	for _, rdn := range v.Items {
		for _, atv := range rdn.Items {
			a := Attribute{Type: atv.Field("type").OID}
			raw := atv.Field("value").Node
			s, err := asn1ber.Map(raw, asn1ber.String(0))
			if err == nil {
				a.Value = s.String
			} else {
				a.Value = "#" + hex.EncodeToString(raw.Raw)
			}
			n.Attributes = append(n.Attributes, a)
		}
	}
	return n
}

func choiceTime(v *asn1ber.Value) time.Time {
	if v == nil || v.Choice == nil {
		return time.Time{}
	}
	return v.Choice.Value.Time
}

func parsePublicKey(spki []byte, alg asn1.ObjectIdentifier, key []byte) (any, error) {
	switch {
	case alg.Equal(OIDPublicKeyEd448):
		if len(key) != ed448.PublicKeySize {
			return nil, fmt.Errorf("%w: ed448 key length %d", ErrKeyFormat, len(key))
		}
		return ed448.PublicKey(key), nil
	case alg.Equal(OIDPublicKeyDilithium3):
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(key); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
		}
		return &pk, nil
	}
	pub, err := x509.ParsePKIXPublicKey(spki)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	return pub, nil
}
