// Package ocsp decodes and validates OCSP responses (RFC 6960) and builds
// the matching requests.
package ocsp

import (
	"bytes"
	"encoding/asn1"
	"fmt"
	"time"

	"xdao.co/digidoc/asn1ber"
	"xdao.co/digidoc/x509cert"
)

// ResponseStatus is the outer OCSPResponseStatus.
type ResponseStatus int

const (
	Successful       ResponseStatus = 0
	MalformedRequest ResponseStatus = 1
	InternalError    ResponseStatus = 2
	TryLater         ResponseStatus = 3
	SigRequired      ResponseStatus = 5
	Unauthorized     ResponseStatus = 6
)

func (s ResponseStatus) String() string {
	if name, ok := ResponseStatusSchema.Names[int64(s)]; ok {
		return name
	}
	return fmt.Sprintf("ResponseStatus(%d)", int(s))
}

// CertStatus is the per-certificate revocation status.
type CertStatus int

const (
	Good CertStatus = iota
	Revoked
	Unknown
)

func (s CertStatus) String() string {
	switch s {
	case Good:
		return "good"
	case Revoked:
		return "revoked"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("CertStatus(%d)", int(s))
	}
}

// SingleResponse is the status of one certificate.
type SingleResponse struct {
	CertID CertID
	Status CertStatus

	RevocationTime time.Time
	// RevocationReason is a CRLReason code, or -1 when absent.
	RevocationReason int
	ReasonName       string

	ThisUpdate time.Time
	// NextUpdate is zero when the responder did not set one.
	NextUpdate time.Time
	Extensions []x509cert.Extension
}

// ValidAt reports whether t lies within [ThisUpdate, NextUpdate]. A
// response without NextUpdate is valid from ThisUpdate on.
func (s SingleResponse) ValidAt(t time.Time) bool {
	if t.Before(s.ThisUpdate) {
		return false
	}
	return s.NextUpdate.IsZero() || !t.After(s.NextUpdate)
}

// ResponderID holds exactly one of ByName or ByKey.
type ResponderID struct {
	ByName *x509cert.Name
	ByKey  []byte
}

func (id ResponderID) String() string {
	if id.ByName != nil {
		return id.ByName.String()
	}
	return fmt.Sprintf("key:%x", id.ByKey)
}

// Response is a decoded, successful basic OCSP response.
type Response struct {
	raw    []byte
	status ResponseStatus

	tbsRaw []byte
	basic  *asn1ber.Value

	ProducedAt         time.Time
	ResponderID        ResponderID
	Responses          []SingleResponse
	Extensions         []x509cert.Extension
	SignatureAlgorithm asn1.ObjectIdentifier
	Signature          []byte
	certs              [][]byte
}

// Parse decodes an OCSPResponse. A non-successful responseStatus yields a
// *StatusError before responseBytes is looked at; a response type other than
// id-pkix-ocsp-basic yields ErrUnsupportedResponseType.
func Parse(der []byte) (*Response, error) {
	outer, err := asn1ber.Unmarshal(der, OCSPResponseSchema)
	if err != nil {
		return nil, err
	}
	code, ok := outer.Field("responseStatus").Int64()
	if !ok {
		return nil, fmt.Errorf("ocsp: responseStatus out of range")
	}
	if ResponseStatus(code) != Successful {
		return nil, &StatusError{Code: ResponseStatus(code)}
	}
	rb := outer.Field("responseBytes")
	if rb == nil {
		return nil, fmt.Errorf("ocsp: successful response without responseBytes")
	}
	if typ := rb.Field("responseType").OID; !typ.Equal(OIDBasicResponse) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedResponseType, typ)
	}
	basic, err := asn1ber.Unmarshal(rb.Field("response").Bytes, BasicOCSPResponseSchema)
	if err != nil {
		return nil, err
	}

	tbs := basic.Field("tbsResponseData")
	r := &Response{
		raw:                outer.Raw,
		status:             Successful,
		tbsRaw:             tbs.Raw,
		basic:              basic,
		ProducedAt:         tbs.Field("producedAt").Time,
		SignatureAlgorithm: basic.Path("signatureAlgorithm", "algorithm").OID,
		Signature:          basic.Field("signature").Bits.RightAlign(),
		Extensions:         extensions(tbs.Field("responseExtensions")),
	}

	rid := tbs.Field("responderID")
	switch rid.Variant() {
	case "byName":
		name := x509cert.NameFromValue(rid.Choice.Value)
		r.ResponderID.ByName = &name
	case "byKey":
		r.ResponderID.ByKey = rid.Choice.Value.Bytes
	}

	for _, item := range tbs.Field("responses").Items {
		r.Responses = append(r.Responses, singleFromValue(item))
	}
	if certs := basic.Field("certs"); certs != nil {
		for _, c := range certs.Items {
			r.certs = append(r.certs, c.Raw)
		}
	}
	return r, nil
}

// Status returns the responseStatus. Parse only returns successful responses.
func (r *Response) Status() ResponseStatus { return r.status }

// Raw returns the complete OCSPResponse as received.
func (r *Response) Raw() []byte { return r.raw }

// RawTBSResponseData returns the signed ResponseData exactly as received.
func (r *Response) RawTBSResponseData() []byte { return r.tbsRaw }

// IsSignedBy reports whether the response signature verifies under cert's
// public key. The signature is checked over the original tbsResponseData bytes.
// An unsupported signature algorithm or unusable key is an error.
func (r *Response) IsSignedBy(cert *x509cert.Certificate) (bool, error) {
	if cert == nil {
		return false, nil
	}
	return cert.Verify(r.tbsRaw, r.Signature, r.SignatureAlgorithm.String())
}

// Nonce returns the value of the nonce extension, if present. The value is
// the OCTET STRING inside extnValue when it carries one (RFC 8954), else the
// extnValue itself.
func (r *Response) Nonce() ([]byte, bool) {
	for _, e := range r.Extensions {
		if e.ID.Equal(OIDNonce) {
			if inner, ok := unwrapOctetString(e.Value); ok {
				return inner, true
			}
			return e.Value, true
		}
	}
	return nil, false
}

// IsNonceEqualTo reports whether the response carries a nonce extension equal
// to expected. Both the bare extnValue and its RFC 8954 OCTET STRING content
// are compared. A missing nonce is false, never an error.
func (r *Response) IsNonceEqualTo(expected []byte) bool {
	for _, e := range r.Extensions {
		if !e.ID.Equal(OIDNonce) {
			continue
		}
		if bytes.Equal(e.Value, expected) {
			return true
		}
		if inner, ok := unwrapOctetString(e.Value); ok && bytes.Equal(inner, expected) {
			return true
		}
		return false
	}
	return false
}

// RevocationStatus returns the entry for id. ErrCertIDNotFound means the
// responder said nothing about the certificate; callers must not treat that
// as good.
func (r *Response) RevocationStatus(id CertID) (SingleResponse, error) {
	for _, s := range r.Responses {
		if s.CertID.Equal(id) {
			return s, nil
		}
	}
	return SingleResponse{}, ErrCertIDNotFound
}

// Certificates parses the certificates embedded in the response.
func (r *Response) Certificates() ([]*x509cert.Certificate, error) {
	out := make([]*x509cert.Certificate, 0, len(r.certs))
	for _, der := range r.certs {
		c, err := x509cert.Parse(der)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func singleFromValue(v *asn1ber.Value) SingleResponse {
	s := SingleResponse{
		CertID:           certIDFromValue(v.Field("certID")),
		RevocationReason: -1,
		ThisUpdate:       v.Field("thisUpdate").Time,
		Extensions:       extensions(v.Field("singleExtensions")),
	}
	if next := v.Field("nextUpdate"); next != nil {
		s.NextUpdate = next.Time
	}
	status := v.Field("certStatus")
	switch status.Variant() {
	case "good":
		s.Status = Good
	case "revoked":
		s.Status = Revoked
		info := status.Choice.Value
		s.RevocationTime = info.Field("revocationTime").Time
		if reason := info.Field("revocationReason"); reason != nil {
			if n, ok := reason.Int64(); ok {
				s.RevocationReason = int(n)
			}
			s.ReasonName = reason.Name
		}
	default:
		s.Status = Unknown
	}
	return s
}

func extensions(v *asn1ber.Value) []x509cert.Extension {
	if v == nil {
		return nil
	}
	out := make([]x509cert.Extension, 0, len(v.Items))
	for _, e := range v.Items {
		out = append(out, x509cert.Extension{
			ID:       e.Field("extnID").OID,
			Critical: e.Field("critical").Bool,
			Value:    e.Field("extnValue").Bytes,
		})
	}
	return out
}

func unwrapOctetString(b []byte) ([]byte, bool) {
	n, err := asn1ber.DecodeDER(b)
	if err != nil || !n.Is(asn1ber.ClassUniversal, asn1ber.TagOctetString) || n.Constructed {
		return nil, false
	}
	return n.Content, true
}
