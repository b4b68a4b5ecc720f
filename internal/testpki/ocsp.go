package testpki

import (
	"crypto"
	"crypto/rand"
	"crypto/sha1"
	"io"
	"net/http"
	"time"

	xocsp "golang.org/x/crypto/ocsp"

	"xdao.co/digidoc/asn1ber"
	"xdao.co/digidoc/ocsp"
	"xdao.co/digidoc/x509cert"
)

// ResponseOptions shapes a generated OCSP response.
type ResponseOptions struct {
	Status     ocsp.CertStatus
	RevokedAt  time.Time
	Reason     int
	ThisUpdate time.Time
	NextUpdate time.Time
	// Nonce is placed in responseExtensions wrapped in an OCTET STRING.
	Nonce []byte
	// Signer defaults to the PKI responder.
	Signer *Identity
	// ByKey selects a byKey ResponderID instead of byName.
	ByKey bool
	// CertID overrides the computed CertID, to simulate a response for
	// another certificate.
	CertID *ocsp.CertID
	// Corrupt flips a bit of the signature.
	Corrupt bool
}

// OCSP builds a signed basic OCSP response about subject.
func (p *PKI) OCSP(subject *Identity, opts ResponseOptions) []byte {
	p.t.Helper()
	signer := opts.Signer
	if signer == nil {
		signer = p.Responder
	}
	id := opts.CertID
	if id == nil {
		computed, err := ocsp.NewCertID(p.CA.Cert, subject.Cert, crypto.SHA1)
		if err != nil {
			p.t.Fatalf("testpki: cert id: %v", err)
		}
		id = &computed
	}
	now := time.Now().UTC().Truncate(time.Second)
	if opts.ThisUpdate.IsZero() {
		opts.ThisUpdate = now.Add(-time.Minute)
	}
	if opts.NextUpdate.IsZero() {
		opts.NextUpdate = now.Add(time.Hour)
	}

	var status *asn1ber.Value
	switch opts.Status {
	case ocsp.Good:
		status = asn1ber.NewChoice("good", asn1ber.NewNull())
	case ocsp.Revoked:
		info := map[string]*asn1ber.Value{"revocationTime": asn1ber.NewTime(opts.RevokedAt.UTC())}
		if opts.Reason > 0 {
			info["revocationReason"] = asn1ber.NewEnum(int64(opts.Reason))
		}
		status = asn1ber.NewChoice("revoked", asn1ber.NewStruct(info))
	default:
		status = asn1ber.NewChoice("unknown", asn1ber.NewNull())
	}

	var rid *asn1ber.Value
	if opts.ByKey {
		rid = asn1ber.NewChoice("byKey", asn1ber.NewOctets(keyHash(signer.Cert)))
	} else {
		name, err := asn1ber.Unmarshal(signer.Cert.Subject.Raw, x509cert.NameSchema)
		if err != nil {
			p.t.Fatalf("testpki: responder name: %v", err)
		}
		rid = asn1ber.NewChoice("byName", name)
	}

	data := map[string]*asn1ber.Value{
		"responderID": rid,
		"producedAt":  asn1ber.NewTime(now),
		"responses": asn1ber.NewList(asn1ber.NewStruct(map[string]*asn1ber.Value{
			"certID":     id.Value(),
			"certStatus": status,
			"thisUpdate": asn1ber.NewTime(opts.ThisUpdate.UTC()),
			"nextUpdate": asn1ber.NewTime(opts.NextUpdate.UTC()),
		})),
	}
	if opts.Nonce != nil {
		inner := asn1ber.TLV(asn1ber.ClassUniversal, asn1ber.TagOctetString, false, opts.Nonce)
		data["responseExtensions"] = asn1ber.NewList(asn1ber.NewStruct(map[string]*asn1ber.Value{
			"extnID":    asn1ber.NewOID(ocsp.OIDNonce),
			"extnValue": asn1ber.NewOctets(inner),
		}))
	}
	tbs := asn1ber.NewStruct(data)
	tbsDER, err := asn1ber.Encode(tbs, ocsp.ResponseDataSchema)
	if err != nil {
		p.t.Fatalf("testpki: encode response data: %v", err)
	}
	alg, err := signer.Cert.DefaultAlgorithm()
	if err != nil {
		p.t.Fatalf("testpki: responder algorithm: %v", err)
	}
	digest, err := alg.Digest(tbsDER)
	if err != nil {
		p.t.Fatalf("testpki: digest: %v", err)
	}
	sig, err := signer.SignDigest(digest)
	if err != nil {
		p.t.Fatalf("testpki: sign response: %v", err)
	}
	if opts.Corrupt {
		sig[len(sig)-1] ^= 0x01
	}

	basic, err := asn1ber.Encode(asn1ber.NewStruct(map[string]*asn1ber.Value{
		"tbsResponseData":    tbs,
		"signatureAlgorithm": asn1ber.NewStruct(map[string]*asn1ber.Value{"algorithm": asn1ber.NewOID(alg.OID)}),
		"signature":          asn1ber.NewBits(sig),
		"certs":              asn1ber.NewList(asn1ber.NewRaw(signer.DER)),
	}), ocsp.BasicOCSPResponseSchema)
	if err != nil {
		p.t.Fatalf("testpki: encode basic response: %v", err)
	}
	der, err := asn1ber.Encode(asn1ber.NewStruct(map[string]*asn1ber.Value{
		"responseStatus": asn1ber.NewEnum(0),
		"responseBytes": asn1ber.NewStruct(map[string]*asn1ber.Value{
			"responseType": asn1ber.NewOID(ocsp.OIDBasicResponse),
			"response":     asn1ber.NewOctets(basic),
		}),
	}), ocsp.OCSPResponseSchema)
	if err != nil {
		p.t.Fatalf("testpki: encode response: %v", err)
	}
	return der
}

// XCryptoOCSP builds the same kind of response with golang.org/x/crypto/ocsp,
// an encoder independent of asn1ber. It carries no nonce.
func (p *PKI) XCryptoOCSP(subject *Identity, status int) []byte {
	p.t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	tmpl := xocsp.Response{
		Status:       status,
		SerialNumber: subject.Cert.SerialNumber,
		ThisUpdate:   now.Add(-time.Minute),
		NextUpdate:   now.Add(time.Hour),
		Certificate:  p.Responder.X509,
		IssuerHash:   crypto.SHA1,
	}
	if status == xocsp.Revoked {
		tmpl.RevokedAt = now.Add(-time.Hour)
		tmpl.RevocationReason = xocsp.KeyCompromise
	}
	der, err := xocsp.CreateResponse(p.CA.X509, p.Responder.X509, tmpl, p.Responder.Signer())
	if err != nil {
		p.t.Fatalf("testpki: x/crypto/ocsp: %v", err)
	}
	return der
}

// StatusOnly encodes an OCSPResponse that carries just a responseStatus.
func StatusOnly(code ocsp.ResponseStatus) []byte {
	return asn1ber.TLV(asn1ber.ClassUniversal, asn1ber.TagSequence, true,
		asn1ber.TLV(asn1ber.ClassUniversal, asn1ber.TagEnumerated, false, []byte{byte(code)}))
}

// Handler serves OCSP over HTTP. It answers every request about a
// certificate it issued with status good, echoing the request nonce.
func (p *PKI) Handler(opts ResponseOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req, err := ocsp.ParseRequest(body)
		if err != nil || len(req.CertIDs) == 0 {
			w.Header().Set("Content-Type", "application/ocsp-response")
			_, _ = w.Write(StatusOnly(ocsp.MalformedRequest))
			return
		}
		subject, ok := p.Lookup(req.CertIDs[0].SerialNumber)
		if !ok {
			w.Header().Set("Content-Type", "application/ocsp-response")
			_, _ = w.Write(StatusOnly(ocsp.Unauthorized))
			return
		}
		o := opts
		if o.Nonce == nil {
			o.Nonce = req.Nonce
		}
		w.Header().Set("Content-Type", "application/ocsp-response")
		_, _ = w.Write(p.OCSP(subject, o))
	})
}

// Nonce returns fresh random nonce bytes.
func Nonce() []byte {
	b := make([]byte, ocsp.NonceSize)
	_, _ = rand.Read(b)
	return b
}

func keyHash(c *x509cert.Certificate) []byte {
	sum := sha1.Sum(c.SubjectPublicKey())
	return sum[:]
}
