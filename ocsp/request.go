package ocsp

import (
	"crypto"
	"crypto/rand"
	"fmt"
	"io"

	"xdao.co/digidoc/asn1ber"
	"xdao.co/digidoc/x509cert"
)

// NonceSize is the nonce length used by NewNonce (RFC 8954 recommends 32 at most).
const NonceSize = 16

// NewNonce returns NonceSize random bytes from rnd, or crypto/rand when rnd is nil.
func NewNonce(rnd io.Reader) ([]byte, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	n := make([]byte, NonceSize)
	if _, err := io.ReadFull(rnd, n); err != nil {
		return nil, fmt.Errorf("ocsp: nonce: %w", err)
	}
	return n, nil
}

// Request is a decoded OCSPRequest.
type Request struct {
	CertIDs []CertID
	// Nonce is the content of the nonce extension, nil when absent.
	Nonce []byte
}

// NewRequest builds an unsigned DER OCSPRequest for ids. A non-nil nonce is
// sent as a requestExtension whose extnValue is an OCTET STRING.
func NewRequest(ids []CertID, nonce []byte) ([]byte, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("ocsp: request needs at least one CertID")
	}
	list := make([]*asn1ber.Value, 0, len(ids))
	for _, id := range ids {
		list = append(list, asn1ber.NewStruct(map[string]*asn1ber.Value{"reqCert": id.Value()}))
	}
	tbs := map[string]*asn1ber.Value{"requestList": asn1ber.NewList(list...)}
	if nonce != nil {
		wrapped := asn1ber.TLV(asn1ber.ClassUniversal, asn1ber.TagOctetString, false, nonce)
		tbs["requestExtensions"] = asn1ber.NewList(asn1ber.NewStruct(map[string]*asn1ber.Value{
			"extnID":    asn1ber.NewOID(OIDNonce),
			"extnValue": asn1ber.NewOctets(wrapped),
		}))
	}
	req := asn1ber.NewStruct(map[string]*asn1ber.Value{"tbsRequest": asn1ber.NewStruct(tbs)})
	return asn1ber.Encode(req, OCSPRequestSchema)
}

// CreateRequest is NewRequest for a single certificate, using SHA-1 CertID hashes.
func CreateRequest(issuer, subject *x509cert.Certificate, nonce []byte) ([]byte, CertID, error) {
	id, err := NewCertID(issuer, subject, crypto.SHA1)
	if err != nil {
		return nil, CertID{}, err
	}
	der, err := NewRequest([]CertID{id}, nonce)
	return der, id, err
}

// ParseRequest decodes an OCSPRequest.
func ParseRequest(der []byte) (*Request, error) {
	v, err := asn1ber.Unmarshal(der, OCSPRequestSchema)
	if err != nil {
		return nil, err
	}
	tbs := v.Field("tbsRequest")
	req := &Request{}
	for _, item := range tbs.Field("requestList").Items {
		req.CertIDs = append(req.CertIDs, certIDFromValue(item.Field("reqCert")))
	}
	for _, e := range extensions(tbs.Field("requestExtensions")) {
		if !e.ID.Equal(OIDNonce) {
			continue
		}
		if inner, ok := unwrapOctetString(e.Value); ok {
			req.Nonce = inner
		} else {
			req.Nonce = e.Value
		}
	}
	return req, nil
}
