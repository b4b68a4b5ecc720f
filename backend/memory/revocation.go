package memory

import (
	"bytes"
	"context"

	"xdao.co/digidoc/backend"
	"xdao.co/digidoc/ocsp"
	"xdao.co/digidoc/x509cert"
)

// RevocationChecker decides whether a signer certificate may be used. It
// returns the evidence to embed (a DER OCSP response), or a
// *backend.ProtocolError.
type RevocationChecker interface {
	CheckRevocation(ctx context.Context, cert *x509cert.Certificate) ([]byte, error)
}

// OCSPChecker checks certificates issued by one of Issuers with an OCSP
// responder.
type OCSPChecker struct {
	Responder *ocsp.Responder
	Issuers   []*x509cert.Certificate
}

func (c OCSPChecker) CheckRevocation(ctx context.Context, cert *x509cert.Certificate) ([]byte, error) {
	issuer, err := c.issuerOf(cert)
	if err != nil {
		return nil, err
	}
	res, err := c.Responder.Check(ctx, issuer, cert)
	if err != nil {
		return nil, backend.NewProtocolError(backend.CodeUnverifiableCert, err.Error())
	}
	switch res.Single.Status {
	case ocsp.Good:
		return res.Response.Raw(), nil
	case ocsp.Revoked:
		msg := "certificate is revoked"
		if res.Single.ReasonName != "" {
			msg += " (" + res.Single.ReasonName + ")"
		}
		return nil, backend.NewProtocolError(backend.CodeCertificateRevoked, msg)
	default:
		return nil, backend.NewProtocolError(backend.CodeUnverifiableCert, "responder does not know the certificate")
	}
}

func (c OCSPChecker) issuerOf(cert *x509cert.Certificate) (*x509cert.Certificate, error) {
	for _, issuer := range c.Issuers {
		if !bytes.Equal(issuer.Subject.Raw, cert.Issuer.Raw) {
			continue
		}
		if ok, err := issuer.HasSigned(cert); err == nil && ok {
			return issuer, nil
		}
	}
	return nil, backend.Errorf(backend.CodeUnverifiableCert, "no trusted issuer for %q", cert.IssuerCommonName())
}
