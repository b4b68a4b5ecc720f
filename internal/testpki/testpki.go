// Package testpki generates throwaway certificate hierarchies, OCSP responses
// and external-signer behaviour for tests.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/cloudflare/circl/sign/ed448"

	"xdao.co/digidoc/asn1ber"
	"xdao.co/digidoc/x509cert"
)

// KeyType selects the key algorithm of an issued identity.
type KeyType int

const (
	ECDSA KeyType = iota
	RSA
	Ed25519
	Ed448
	Dilithium3
)

func (k KeyType) String() string {
	switch k {
	case ECDSA:
		return "ecdsa-p256"
	case RSA:
		return "rsa-2048"
	case Ed25519:
		return "ed25519"
	case Ed448:
		return "ed448"
	case Dilithium3:
		return "dilithium3"
	default:
		return fmt.Sprintf("KeyType(%d)", int(k))
	}
}

// Identity is a certificate with its private key. It plays the external
// signer (smart card) in tests.
type Identity struct {
	Type KeyType
	DER  []byte
	Cert *x509cert.Certificate
	// X509 is set for identities the standard library can represent.
	X509 *x509.Certificate

	key any
}

// Signer returns the private key as a crypto.Signer, for RSA, ECDSA and Ed25519 identities.
func (id *Identity) Signer() crypto.Signer {
	s, _ := id.key.(crypto.Signer)
	return s
}

// SignDigest signs a SHA-256 digest the way a signing token would: RSA and
// ECDSA sign the digest, the pure schemes sign the digest bytes as message.
func (id *Identity) SignDigest(digest []byte) ([]byte, error) {
	switch k := id.key.(type) {
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest)
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, k, digest)
	case ed25519.PrivateKey:
		return ed25519.Sign(k, digest), nil
	case ed448.PrivateKey:
		return ed448.Sign(k, digest, ""), nil
	case *mode3.PrivateKey:
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(k, digest, sig)
		return sig, nil
	default:
		return nil, fmt.Errorf("testpki: unsupported key %T", id.key)
	}
}

// Algorithm returns the dotted signature algorithm OID matching SignDigest.
func (id *Identity) Algorithm() string {
	alg, err := id.Cert.DefaultAlgorithm()
	if err != nil {
		return ""
	}
	return alg.OID.String()
}

// PKI is a CA plus an OCSP responder certificate issued by it.
type PKI struct {
	t         testing.TB
	CA        *Identity
	Responder *Identity

	mu     sync.Mutex
	serial int64
	issued map[string]*Identity
}

// New creates a fresh ECDSA P-256 CA and responder.
func New(t testing.TB) *PKI {
	t.Helper()
	p := &PKI{t: t, serial: 1000, issued: make(map[string]*Identity)}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("testpki: ca key: %v", err)
	}
	tmpl := p.template("Test Root CA")
	tmpl.IsCA = true
	tmpl.BasicConstraintsValid = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	p.CA = p.create(tmpl, nil, &key.PublicKey, key, key, ECDSA)

	p.Responder = p.Issue("Test OCSP Responder", ECDSA)
	return p
}

// Issue creates a leaf certificate with a fresh key of type kt.
func (p *PKI) Issue(cn string, kt KeyType) *Identity {
	p.t.Helper()
	var id *Identity
	switch kt {
	case ECDSA:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			p.t.Fatalf("testpki: ecdsa key: %v", err)
		}
		id = p.create(p.leafTemplate(cn), p.CA, &key.PublicKey, key, nil, kt)
	case RSA:
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			p.t.Fatalf("testpki: rsa key: %v", err)
		}
		id = p.create(p.leafTemplate(cn), p.CA, &key.PublicKey, key, nil, kt)
	case Ed25519:
		pub, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			p.t.Fatalf("testpki: ed25519 key: %v", err)
		}
		id = p.create(p.leafTemplate(cn), p.CA, pub, key, nil, kt)
	case Ed448:
		pub, key, err := ed448.GenerateKey(rand.Reader)
		if err != nil {
			p.t.Fatalf("testpki: ed448 key: %v", err)
		}
		id = p.issueRaw(cn, x509cert.OIDPublicKeyEd448, pub, key, kt)
	case Dilithium3:
		pub, key, err := mode3.GenerateKey(rand.Reader)
		if err != nil {
			p.t.Fatalf("testpki: dilithium3 key: %v", err)
		}
		b, err := pub.MarshalBinary()
		if err != nil {
			p.t.Fatalf("testpki: dilithium3 key: %v", err)
		}
		id = p.issueRaw(cn, x509cert.OIDPublicKeyDilithium3, b, key, kt)
	default:
		p.t.Fatalf("testpki: unsupported key type %v", kt)
	}
	p.mu.Lock()
	p.issued[id.Cert.SerialNumber.String()] = id
	p.mu.Unlock()
	return id
}

// Lookup returns a previously issued identity by serial number.
func (p *PKI) Lookup(serial *big.Int) (*Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.issued[serial.String()]
	return id, ok
}

func (p *PKI) nextSerial() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.serial++
	return p.serial
}

func (p *PKI) template(cn string) *x509.Certificate {
	now := time.Now().Truncate(time.Second)
	return &x509.Certificate{
		SerialNumber: big.NewInt(p.nextSerial()),
		Subject: pkix.Name{
			Country:      []string{"EE"},
			Organization: []string{"Digidoc Test"},
			CommonName:   cn,
		},
		NotBefore: now.Add(-time.Hour),
		NotAfter:  now.Add(24 * time.Hour),
	}
}

func (p *PKI) leafTemplate(cn string) *x509.Certificate {
	tmpl := p.template(cn)
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment
	return tmpl
}

// create signs tmpl with the parent's key, or self-signs with selfKey.
func (p *PKI) create(tmpl *x509.Certificate, parent *Identity, pub any, key any, selfKey crypto.Signer, kt KeyType) *Identity {
	p.t.Helper()
	parentCert, signer := tmpl, selfKey
	if parent != nil {
		parentCert, signer = parent.X509, parent.Signer()
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parentCert, pub, signer)
	if err != nil {
		p.t.Fatalf("testpki: create certificate: %v", err)
	}
	std, err := x509.ParseCertificate(der)
	if err != nil {
		p.t.Fatalf("testpki: parse certificate: %v", err)
	}
	cert, err := x509cert.Parse(der)
	if err != nil {
		p.t.Fatalf("testpki: x509cert.Parse: %v", err)
	}
	return &Identity{Type: kt, DER: der, Cert: cert, X509: std, key: key}
}

// issueRaw assembles a certificate for keys the standard library cannot
// encode, using the asn1ber encoder, and signs it with the CA key.
func (p *PKI) issueRaw(cn string, keyOID asn1.ObjectIdentifier, pub []byte, key any, kt KeyType) *Identity {
	p.t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	issuer, err := asn1ber.Unmarshal(p.CA.Cert.Subject.Raw, x509cert.NameSchema)
	if err != nil {
		p.t.Fatalf("testpki: issuer name: %v", err)
	}
	algo := asn1ber.NewStruct(map[string]*asn1ber.Value{"algorithm": asn1ber.NewOID(x509cert.OIDECDSAWithSHA256)})
	tbs := asn1ber.NewStruct(map[string]*asn1ber.Value{
		"version":      asn1ber.NewInt(2),
		"serialNumber": asn1ber.NewInt(p.nextSerial()),
		"signature":    algo,
		"issuer":       issuer,
		"validity": asn1ber.NewStruct(map[string]*asn1ber.Value{
			"notBefore": asn1ber.NewChoice("utcTime", asn1ber.NewTime(now.Add(-time.Hour))),
			"notAfter":  asn1ber.NewChoice("utcTime", asn1ber.NewTime(now.Add(24*time.Hour))),
		}),
		"subject": NameValue(cn),
		"subjectPublicKeyInfo": asn1ber.NewStruct(map[string]*asn1ber.Value{
			"algorithm":        asn1ber.NewStruct(map[string]*asn1ber.Value{"algorithm": asn1ber.NewOID(keyOID)}),
			"subjectPublicKey": asn1ber.NewBits(pub),
		}),
	})
	tbsDER, err := asn1ber.Encode(tbs, x509cert.TBSCertificateSchema)
	if err != nil {
		p.t.Fatalf("testpki: encode tbs: %v", err)
	}
	digest := sha256.Sum256(tbsDER)
	sig, err := p.CA.SignDigest(digest[:])
	if err != nil {
		p.t.Fatalf("testpki: sign tbs: %v", err)
	}
	der, err := asn1ber.Encode(asn1ber.NewStruct(map[string]*asn1ber.Value{
		"tbsCertificate":     tbs,
		"signatureAlgorithm": algo,
		"signatureValue":     asn1ber.NewBits(sig),
	}), x509cert.CertificateSchema)
	if err != nil {
		p.t.Fatalf("testpki: encode certificate: %v", err)
	}
	cert, err := x509cert.Parse(der)
	if err != nil {
		p.t.Fatalf("testpki: x509cert.Parse: %v", err)
	}
	return &Identity{Type: kt, DER: der, Cert: cert, key: key}
}

// NameValue builds a Name holding a single UTF8String common name.
func NameValue(cn string) *asn1ber.Value {
	atv := asn1ber.NewStruct(map[string]*asn1ber.Value{
		"type":  asn1ber.NewOID(x509cert.OIDCommonName),
		"value": asn1ber.NewRaw(asn1ber.TLV(asn1ber.ClassUniversal, asn1ber.TagUTF8String, false, []byte(cn))),
	})
	return asn1ber.NewList(asn1ber.NewList(atv))
}
