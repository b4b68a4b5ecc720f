package xades

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"time"

	"xdao.co/digidoc/encoding/b64"
	"xdao.co/digidoc/x509cert"
)

const (
	NamespaceDSig  = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES = "http://uri.etsi.org/01903/v1.3.2#"

	// SignedPropertiesType marks the SignedInfo reference to SignedProperties.
	SignedPropertiesType = "http://uri.etsi.org/01903#SignedProperties"
)

var (
	ErrMissingFile         = errors.New("xades: referenced data file is missing")
	ErrUnreferencedFile    = errors.New("xades: data file is not covered by the signature")
	ErrDigestMismatch      = errors.New("xades: digest mismatch")
	ErrSignatureInvalid    = errors.New("xades: signature value does not verify")
	ErrCertificateMismatch = errors.New("xades: signing certificate does not match its reference")
	ErrUnsigned            = errors.New("xades: signature has no value")
)

var signatureMethods = map[string]string{
	x509cert.OIDSHA256WithRSA.String():   "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256",
	x509cert.OIDECDSAWithSHA256.String(): "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256",
	x509cert.OIDEd25519.String():         "http://www.w3.org/2021/04/xmldsig-more#eddsa-ed25519",
	x509cert.OIDEd448.String():           "http://www.w3.org/2021/04/xmldsig-more#eddsa-ed448",
}

// SignatureMethod returns the XMLDSig URI for a dotted signature algorithm
// OID. Algorithms without a registered URI use the urn:oid form.
func SignatureMethod(oid string) string {
	if uri, ok := signatureMethods[oid]; ok {
		return uri
	}
	return "urn:oid:" + oid
}

// AlgorithmOID is the inverse of SignatureMethod.
func AlgorithmOID(uri string) (string, error) {
	for oid, u := range signatureMethods {
		if u == uri {
			return oid, nil
		}
	}
	if len(uri) > len("urn:oid:") && uri[:len("urn:oid:")] == "urn:oid:" {
		return uri[len("urn:oid:"):], nil
	}
	return "", fmt.Errorf("%w: %q", x509cert.ErrUnsupportedAlgorithm, uri)
}

type Method struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type Reference struct {
	ID           string `xml:"Id,attr,omitempty"`
	Type         string `xml:"Type,attr,omitempty"`
	URI          string `xml:"URI,attr"`
	DigestMethod Method `xml:"DigestMethod"`
	DigestValue  string `xml:"DigestValue"`
}

type SignedInfo struct {
	XMLName                xml.Name    `xml:"http://www.w3.org/2000/09/xmldsig# SignedInfo"`
	CanonicalizationMethod Method      `xml:"CanonicalizationMethod"`
	SignatureMethod        Method      `xml:"SignatureMethod"`
	References             []Reference `xml:"Reference"`
}

type CertRef struct {
	DigestMethod Method `xml:"CertDigest>DigestMethod"`
	DigestValue  string `xml:"CertDigest>DigestValue"`
	IssuerName   string `xml:"IssuerSerial>X509IssuerName"`
	SerialNumber string `xml:"IssuerSerial>X509SerialNumber"`
}

type DataObjectFormat struct {
	ObjectReference string `xml:"ObjectReference,attr"`
	MimeType        string `xml:"MimeType"`
}

type SignedProperties struct {
	XMLName            xml.Name           `xml:"http://uri.etsi.org/01903/v1.3.2# SignedProperties"`
	ID                 string             `xml:"Id,attr"`
	SigningTime        string             `xml:"SignedSignatureProperties>SigningTime"`
	SigningCertificate CertRef            `xml:"SignedSignatureProperties>SigningCertificate>Cert"`
	DataObjectFormats  []DataObjectFormat `xml:"SignedDataObjectProperties>DataObjectFormat"`
}

type QualifyingProperties struct {
	Target           string `xml:"Target,attr"`
	SignedProperties SignedProperties
	OCSPValues       []string `xml:"UnsignedProperties>UnsignedSignatureProperties>RevocationValues>OCSPValues>EncapsulatedOCSPValue,omitempty"`
}

// Signature is one ds:Signature element of a container.
type Signature struct {
	XMLName        xml.Name `xml:"http://www.w3.org/2000/09/xmldsig# Signature"`
	ID             string   `xml:"Id,attr"`
	SignedInfo     SignedInfo
	SignatureValue string               `xml:"SignatureValue"`
	Certificate    string               `xml:"KeyInfo>X509Data>X509Certificate"`
	Qualifying     QualifyingProperties `xml:"Object>QualifyingProperties"`
}

// DataFile is a document covered by a signature.
type DataFile struct {
	Name     string
	MimeType string
	Content  []byte
}

// Params describe a signature to be prepared.
type Params struct {
	ID          string
	Certificate *x509cert.Certificate
	Files       []DataFile
	SigningTime time.Time
	// DigestMethod is used for file and SignedProperties references;
	// it defaults to SHA256.
	DigestMethod  string
	Canonicalizer Canonicalizer
}

// New builds an unsigned signature committing to p.Files and to a
// SignedProperties fragment naming the signing certificate.
func New(p Params) (*Signature, error) {
	if p.ID == "" || p.Certificate == nil {
		return nil, errors.New("xades: signature id and certificate are required")
	}
	method := p.DigestMethod
	if method == "" {
		method = SHA256
	}
	canon := p.Canonicalizer
	if canon == nil {
		canon = Serialized
	}
	alg, err := p.Certificate.DefaultAlgorithm()
	if err != nil {
		return nil, err
	}
	certDigest, err := Digest(method, p.Certificate.Raw())
	if err != nil {
		return nil, err
	}

	s := &Signature{
		ID: p.ID,
		SignedInfo: SignedInfo{
			CanonicalizationMethod: Method{Algorithm: C14N11},
			SignatureMethod:        Method{Algorithm: SignatureMethod(alg.OID.String())},
		},
		Certificate: b64.EncodeToString(p.Certificate.Raw()),
		Qualifying: QualifyingProperties{
			Target: "#" + p.ID,
			SignedProperties: SignedProperties{
				ID:          p.ID + "-SignedProperties",
				SigningTime: p.SigningTime.UTC().Format(time.RFC3339),
				SigningCertificate: CertRef{
					DigestMethod: Method{Algorithm: method},
					DigestValue:  base64.StdEncoding.EncodeToString(certDigest),
					IssuerName:   p.Certificate.Issuer.String(),
					SerialNumber: p.Certificate.SerialNumber.String(),
				},
			},
		},
	}
	for i, f := range p.Files {
		d, err := Digest(method, f.Content)
		if err != nil {
			return nil, err
		}
		refID := fmt.Sprintf("%s-RefId%d", p.ID, i)
		s.SignedInfo.References = append(s.SignedInfo.References, Reference{
			ID:           refID,
			URI:          url.PathEscape(f.Name),
			DigestMethod: Method{Algorithm: method},
			DigestValue:  base64.StdEncoding.EncodeToString(d),
		})
		s.Qualifying.SignedProperties.DataObjectFormats = append(s.Qualifying.SignedProperties.DataObjectFormats,
			DataObjectFormat{ObjectReference: "#" + refID, MimeType: f.MimeType})
	}
	propsDigest, err := s.propertiesDigest(canon, method)
	if err != nil {
		return nil, err
	}
	s.SignedInfo.References = append(s.SignedInfo.References, Reference{
		Type:         SignedPropertiesType,
		URI:          "#" + s.Qualifying.SignedProperties.ID,
		DigestMethod: Method{Algorithm: method},
		DigestValue:  base64.StdEncoding.EncodeToString(propsDigest),
	})
	return s, nil
}

func (s *Signature) propertiesDigest(c Canonicalizer, method string) ([]byte, error) {
	frag, err := xml.Marshal(s.Qualifying.SignedProperties)
	if err != nil {
		return nil, err
	}
	canonical, err := c.Canonicalize(frag)
	if err != nil {
		return nil, err
	}
	return Digest(method, canonical)
}

// Challenge returns the SHA-256 digest of the canonical SignedInfo, the
// value handed to the external signer.
func (s *Signature) Challenge(c Canonicalizer) ([]byte, error) {
	if c == nil {
		c = Serialized
	}
	frag, err := xml.Marshal(s.SignedInfo)
	if err != nil {
		return nil, err
	}
	canonical, err := c.Canonicalize(frag)
	if err != nil {
		return nil, err
	}
	return Digest(SHA256, canonical)
}

// SetValue records the externally produced signature value.
func (s *Signature) SetValue(value []byte) {
	s.SignatureValue = base64.StdEncoding.EncodeToString(value)
}

// Value returns the decoded signature value.
func (s *Signature) Value() ([]byte, error) {
	if s.SignatureValue == "" {
		return nil, ErrUnsigned
	}
	return base64.StdEncoding.DecodeString(s.SignatureValue)
}

// AddOCSP embeds a DER OCSP response as revocation evidence.
func (s *Signature) AddOCSP(der []byte) {
	s.Qualifying.OCSPValues = append(s.Qualifying.OCSPValues, base64.StdEncoding.EncodeToString(der))
}

// OCSPResponses returns the embedded OCSP responses.
func (s *Signature) OCSPResponses() ([][]byte, error) {
	out := make([][]byte, 0, len(s.Qualifying.OCSPValues))
	for _, v := range s.Qualifying.OCSPValues {
		der, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("xades: ocsp value: %w", err)
		}
		out = append(out, der)
	}
	return out, nil
}

// SigningCertificate parses the embedded certificate.
func (s *Signature) SigningCertificate() (*x509cert.Certificate, error) {
	return x509cert.FromPEMWithoutWrappers(s.Certificate)
}

// VerifyValue checks a candidate signature value against the challenge
// without recording it.
func (s *Signature) VerifyValue(c Canonicalizer, value []byte) (bool, error) {
	cert, err := s.SigningCertificate()
	if err != nil {
		return false, err
	}
	challenge, err := s.Challenge(c)
	if err != nil {
		return false, err
	}
	oid, err := AlgorithmOID(s.SignedInfo.SignatureMethod.Algorithm)
	if err != nil {
		return false, err
	}
	return cert.VerifyDigest(challenge, value, oid)
}

// Verify checks every reference against files (keyed by name), the
// SignedProperties digest, the signing certificate reference and the
// signature value.
func (s *Signature) Verify(c Canonicalizer, files map[string][]byte) error {
	if c == nil {
		c = Serialized
	}
	covered := make(map[string]bool, len(files))
	for _, ref := range s.SignedInfo.References {
		want, err := base64.StdEncoding.DecodeString(ref.DigestValue)
		if err != nil {
			return fmt.Errorf("xades: reference %q: %w", ref.URI, err)
		}
		if ref.Type == SignedPropertiesType {
			got, err := s.propertiesDigest(c, ref.DigestMethod.Algorithm)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, want) {
				return fmt.Errorf("%w: SignedProperties", ErrDigestMismatch)
			}
			continue
		}
		name, err := url.PathUnescape(ref.URI)
		if err != nil {
			return fmt.Errorf("xades: reference %q: %w", ref.URI, err)
		}
		content, ok := files[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingFile, name)
		}
		ok, err = VerifyDigest(ref.DigestMethod.Algorithm, content, want)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrDigestMismatch, name)
		}
		covered[name] = true
	}
	for name := range files {
		if !covered[name] {
			return fmt.Errorf("%w: %s", ErrUnreferencedFile, name)
		}
	}

	cert, err := s.SigningCertificate()
	if err != nil {
		return err
	}
	ref := s.Qualifying.SignedProperties.SigningCertificate
	want, err := base64.StdEncoding.DecodeString(ref.DigestValue)
	if err != nil {
		return fmt.Errorf("xades: certificate digest: %w", err)
	}
	if ok, err := VerifyDigest(ref.DigestMethod.Algorithm, cert.Raw(), want); err != nil {
		return err
	} else if !ok {
		return ErrCertificateMismatch
	}

	value, err := s.Value()
	if err != nil {
		return err
	}
	ok, err := s.VerifyValue(c, value)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureInvalid
	}
	return nil
}

// Marshal serializes the signature as a standalone XML document.
func (s *Signature) Marshal() ([]byte, error) {
	body, err := xml.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// Parse decodes a signature document written by Marshal.
func Parse(data []byte) (*Signature, error) {
	var s Signature
	if err := xml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("xades: %w", err)
	}
	if s.ID == "" {
		return nil, errors.New("xades: signature without Id")
	}
	return &s, nil
}
