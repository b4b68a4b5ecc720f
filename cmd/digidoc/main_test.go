package main

import (
	"bytes"
	"encoding/hex"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"

	"xdao.co/digidoc/backend/grpcbackend"
	"xdao.co/digidoc/backend/memory"
	"xdao.co/digidoc/digidoc"
	"xdao.co/digidoc/encoding/b64"
	"xdao.co/digidoc/internal/testpki"
	"xdao.co/digidoc/ocsp"
	"xdao.co/digidoc/x509cert"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestRun_Usage(t *testing.T) {
	if code, _, _ := runCLI(t); code != 2 {
		t.Fatalf("no args: code = %d, want 2", code)
	}
	if code, out, _ := runCLI(t, "help"); code != 0 || !strings.Contains(out, "digidoc container create") {
		t.Fatalf("help: code = %d, out = %q", code, out)
	}
	if code, _, errOut := runCLI(t, "bogus"); code != 2 || !strings.Contains(errOut, "unknown command") {
		t.Fatalf("bogus: code = %d, err = %q", code, errOut)
	}
}

func TestB64_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0x00, 0xff, 0x10}, 40)
	code, encoded, errOut := runCLI(t, "b64", "encode", writeTemp(t, "in.bin", payload))
	if code != 0 {
		t.Fatalf("encode: code = %d, err = %q", code, errOut)
	}
	if !b64.Wrapped(encoded) {
		t.Fatalf("encoded output is not wrapped: %q", encoded)
	}

	old := stdin
	stdin = strings.NewReader(encoded)
	defer func() { stdin = old }()
	code, decoded, errOut := runCLI(t, "b64", "decode", "-")
	if code != 0 {
		t.Fatalf("decode: code = %d, err = %q", code, errOut)
	}
	if decoded != string(payload) {
		t.Fatalf("decoded payload differs")
	}

	if code, _, _ := runCLI(t, "b64", "decode", writeTemp(t, "bad.txt", []byte("*&^"))); code != 1 {
		t.Fatalf("decode garbage: code = %d, want 1", code)
	}
}

func TestCertInspect(t *testing.T) {
	pki := testpki.New(t)
	alice := pki.Issue("Alice", testpki.Ed25519)

	code, out, errOut := runCLI(t, "cert", "inspect", writeTemp(t, "alice.pem", alice.Cert.PEM()))
	if code != 0 {
		t.Fatalf("code = %d, err = %q", code, errOut)
	}
	for _, want := range []string{
		"Subject: C=EE, O=Digidoc Test, CN=Alice",
		"Issuer: C=EE, O=Digidoc Test, CN=Test Root CA",
		"Serial: " + alice.Cert.SerialHex(),
		"Signs with: Ed25519",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output lacks %q:\n%s", want, out)
		}
	}

	body := b64.EncodeToString(alice.DER)
	code, out, _ = runCLI(t, "cert", "inspect", "--body", writeTemp(t, "alice.txt", []byte(body)))
	if code != 0 || !strings.Contains(out, "CN=Alice") {
		t.Fatalf("--body: code = %d, out = %q", code, out)
	}

	if code, _, _ := runCLI(t, "cert", "inspect", writeTemp(t, "junk", []byte("junk"))); code != 1 {
		t.Fatalf("junk: code = %d, want 1", code)
	}
}

func TestOCSPInspect(t *testing.T) {
	pki := testpki.New(t)
	alice := pki.Issue("Alice", testpki.ECDSA)
	nonce := testpki.Nonce()
	der := pki.OCSP(alice, testpki.ResponseOptions{Nonce: nonce})
	responder := writeTemp(t, "responder.pem", pki.Responder.Cert.PEM())

	code, out, errOut := runCLI(t, "ocsp", "inspect", "--signer", responder, writeTemp(t, "resp.der", der))
	if code != 0 {
		t.Fatalf("code = %d, err = %q", code, errOut)
	}
	for _, want := range []string{
		"Status: successful",
		"Nonce: " + strings.ToUpper(hex.EncodeToString(nonce)),
		": good",
		"Signed by Test OCSP Responder: true",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output lacks %q:\n%s", want, out)
		}
	}

	wrongSigner := writeTemp(t, "ca.pem", pki.CA.Cert.PEM())
	if code, _, _ := runCLI(t, "ocsp", "inspect", "--signer", wrongSigner, writeTemp(t, "resp.der", der)); code != 1 {
		t.Fatalf("wrong signer: code = %d, want 1", code)
	}

	code, out, _ = runCLI(t, "ocsp", "inspect", writeTemp(t, "status.der", testpki.StatusOnly(ocsp.TryLater)))
	if code != 1 || !strings.Contains(out, "Status: "+ocsp.TryLater.String()) {
		t.Fatalf("status-only: code = %d, out = %q", code, out)
	}
}

func TestOCSPRequest(t *testing.T) {
	pki := testpki.New(t)
	alice := pki.Issue("Alice", testpki.ECDSA)
	issuer := writeTemp(t, "ca.der", pki.CA.DER)
	cert := writeTemp(t, "alice.der", alice.DER)

	code, out, errOut := runCLI(t, "ocsp", "request", "--issuer", issuer, "--cert", cert, "--nonce-hex", "00112233445566778899aabbccddeeff")
	if code != 0 {
		t.Fatalf("code = %d, err = %q", code, errOut)
	}
	req, err := ocsp.ParseRequest([]byte(out))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if hex.EncodeToString(req.Nonce) != "00112233445566778899aabbccddeeff" {
		t.Fatalf("nonce = %x", req.Nonce)
	}
	if len(req.CertIDs) != 1 || req.CertIDs[0].SerialNumber.Cmp(alice.Cert.SerialNumber) != 0 {
		t.Fatalf("CertIDs = %+v", req.CertIDs)
	}
}

func TestOCSPCheck(t *testing.T) {
	pki := testpki.New(t)
	alice := pki.Issue("Alice", testpki.ECDSA)
	srv := httptest.NewServer(pki.Handler(testpki.ResponseOptions{}))
	defer srv.Close()

	args := []string{
		"ocsp", "check",
		"--issuer", writeTemp(t, "ca.der", pki.CA.DER),
		"--cert", writeTemp(t, "alice.der", alice.DER),
		"--url", srv.URL,
		"--responder-cert", writeTemp(t, "responder.der", pki.Responder.DER),
	}
	code, out, errOut := runCLI(t, args...)
	if code != 0 {
		t.Fatalf("code = %d, err = %q", code, errOut)
	}
	if !strings.Contains(out, ": good") {
		t.Fatalf("output lacks good status:\n%s", out)
	}

	if code, _, _ := runCLI(t, "ocsp", "check", "--issuer", "x", "--cert", "y"); code != 2 {
		t.Fatalf("without responder: code = %d, want 2", code)
	}
}

func startBackend(t *testing.T) string {
	t.Helper()
	return startService(t, memory.New())
}

func startService(t *testing.T, svc *memory.Service) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv := grpc.NewServer()
	grpcbackend.RegisterBackendServer(srv, &grpcbackend.Server{Backend: svc})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestContainer_CreateFinalizeFetch(t *testing.T) {
	pki := testpki.New(t)
	alice := pki.Issue("Alice", testpki.ECDSA)
	target := startBackend(t)
	dir := t.TempDir()
	state := filepath.Join(dir, "state.json")
	doc := filepath.Join(dir, "signed.asice")

	code, out, errOut := runCLI(t, "container", "create",
		"--target", target,
		"--state", state,
		"--cert", writeTemp(t, "alice.pem", alice.Cert.PEM()),
		"--cert-id", "alice-card",
		writeTemp(t, "contract.txt", []byte("we agree")),
	)
	if code != 0 {
		t.Fatalf("create: code = %d, err = %q", code, errOut)
	}
	fields := strings.Fields(out)
	if len(fields) != 2 || fields[0] != "S0" {
		t.Fatalf("create output = %q, want \"S0 <challenge>\"", out)
	}
	challenge, err := hex.DecodeString(fields[1])
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	value, err := alice.SignDigest(challenge)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}

	code, out, errOut = runCLI(t, "container", "finalize",
		"--target", target,
		"--state", state,
		"--solution-hex", hex.EncodeToString(value),
		"--out", doc,
	)
	if code != 0 {
		t.Fatalf("finalize: code = %d, out = %q, err = %q", code, out, errOut)
	}
	if strings.TrimSpace(out) != "sealed S0" {
		t.Fatalf("finalize output = %q", out)
	}
	signed, err := os.ReadFile(doc)
	if err != nil || !bytes.Contains(signed, []byte(memory.MimeTypeASiCE)) {
		t.Fatalf("signed document missing or malformed: %v", err)
	}

	refetched := filepath.Join(dir, "again.asice")
	code, _, errOut = runCLI(t, "container", "fetch", "--target", target, "--state", state, "--out", refetched, "--close")
	if code != 0 {
		t.Fatalf("fetch: code = %d, err = %q", code, errOut)
	}
	// The session is gone; the saved state remembers it was closed.
	if code, _, _ := runCLI(t, "container", "fetch", "--target", target, "--state", state, "--out", refetched); code != 1 {
		t.Fatalf("fetch after close: code = %d, want 1", code)
	}
}

func TestContainer_FinalizeRejectsWrongKey(t *testing.T) {
	pki := testpki.New(t)
	alice := pki.Issue("Alice", testpki.ECDSA)
	mallory := pki.Issue("Mallory", testpki.ECDSA)
	target := startBackend(t)
	state := filepath.Join(t.TempDir(), "state.json")

	code, out, errOut := runCLI(t, "container", "create",
		"--target", target,
		"--state", state,
		"--cert", writeTemp(t, "alice.der", alice.DER),
		writeTemp(t, "a.txt", []byte("hello")),
	)
	if code != 0 {
		t.Fatalf("create: code = %d, err = %q", code, errOut)
	}
	challenge, err := hex.DecodeString(strings.Fields(out)[1])
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	value, err := mallory.SignDigest(challenge)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	code, out, _ = runCLI(t, "container", "finalize", "--target", target, "--state", state, "--solution-hex", hex.EncodeToString(value))
	if code != 1 || !strings.HasPrefix(out, "rejected S0 "+memory.StatusInvalid) {
		t.Fatalf("finalize: code = %d, out = %q", code, out)
	}
}

func TestToken_Commands(t *testing.T) {
	dir := t.TempDir()
	seed := strings.Repeat("07", 32)

	code, out, errOut := runCLI(t, "token", "init", "--dir", dir, "--name", "alice", "--seed-hex", seed)
	if code != 0 {
		t.Fatalf("init: code = %d, err = %q", code, errOut)
	}
	if !strings.HasPrefix(out, "alice ") {
		t.Fatalf("init output = %q", out)
	}
	if code, _, _ := runCLI(t, "token", "init", "--dir", dir, "--name", "alice"); code != 1 {
		t.Fatalf("init over existing token: code = %d, want 1", code)
	}
	if code, _, errOut := runCLI(t, "token", "derive", "--dir", dir, "--from", "alice", "--role", "signer"); code != 0 {
		t.Fatalf("derive: code = %d, err = %q", code, errOut)
	}

	code, out, _ = runCLI(t, "token", "list", "--dir", dir)
	if code != 0 {
		t.Fatalf("list: code = %d", code)
	}
	if diff := cmp.Diff([]string{"alice", "alice-signer"}, strings.Fields(out)); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}

	code, out, _ = runCLI(t, "token", "cert", "--dir", dir, "--name", "alice")
	if code != 0 {
		t.Fatalf("cert: code = %d", code)
	}
	cert, err := x509cert.ParsePEM([]byte(out))
	if err != nil {
		t.Fatalf("token cert: %v", err)
	}

	challenge := bytes.Repeat([]byte{0xab}, 32)
	code, out, _ = runCLI(t, "token", "sign", "--dir", dir, "--name", "alice", "--challenge-hex", hex.EncodeToString(challenge))
	if code != 0 {
		t.Fatalf("sign: code = %d", code)
	}
	sig, err := hex.DecodeString(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("signature: %v", err)
	}
	ok, err := cert.VerifyDigest(challenge, sig, x509cert.OIDEd25519.String())
	if err != nil || !ok {
		t.Fatalf("VerifyDigest = %v, %v", ok, err)
	}

	if code, _, _ := runCLI(t, "token", "sign", "--dir", dir, "--name", "alice"); code != 2 {
		t.Fatalf("sign without challenge: code = %d, want 2", code)
	}
	if code, _, _ := runCLI(t, "token", "nope"); code != 2 {
		t.Fatalf("unknown subcommand: code = %d, want 2", code)
	}
}

func TestContainer_SignWithToken(t *testing.T) {
	target := startBackend(t)
	tokens := t.TempDir()
	if code, _, errOut := runCLI(t, "token", "init", "--dir", tokens, "--name", "carol"); code != 0 {
		t.Fatalf("token init: code = %d, err = %q", code, errOut)
	}
	state := filepath.Join(t.TempDir(), "state.json")

	code, out, errOut := runCLI(t, "container", "create",
		"--target", target,
		"--state", state,
		"--token", "carol",
		"--token-dir", tokens,
		writeTemp(t, "memo.txt", []byte("minutes")),
	)
	if code != 0 {
		t.Fatalf("create: code = %d, err = %q", code, errOut)
	}
	if !strings.HasPrefix(out, "S0 ") {
		t.Fatalf("create output = %q", out)
	}

	code, out, errOut = runCLI(t, "container", "finalize",
		"--target", target,
		"--state", state,
		"--token", "carol",
		"--token-dir", tokens,
	)
	if code != 0 {
		t.Fatalf("finalize: code = %d, out = %q, err = %q", code, out, errOut)
	}
	if strings.TrimSpace(out) != "sealed S0" {
		t.Fatalf("finalize output = %q", out)
	}

	if code, _, _ := runCLI(t, "container", "finalize", "--state", state, "--token", "carol", "--solution-hex", "00"); code != 2 {
		t.Fatalf("finalize with two solution sources: code = %d, want 2", code)
	}
}

func TestContainer_CreateKeepsStateWhenPrepareFails(t *testing.T) {
	pki := testpki.New(t)
	alice := pki.Issue("Alice", testpki.ECDSA)

	// The service clock starts past the certificate's validity, so prepare
	// fails after the file was pushed.
	var skew atomic.Int64
	skew.Store(int64(72 * time.Hour))
	svc := memory.New()
	svc.Now = func() time.Time { return time.Now().Add(time.Duration(skew.Load())) }
	target := startService(t, svc)
	state := filepath.Join(t.TempDir(), "state.json")

	code, out, errOut := runCLI(t, "container", "create",
		"--target", target,
		"--state", state,
		"--cert", writeTemp(t, "alice.pem", alice.Cert.PEM()),
		writeTemp(t, "contract.txt", []byte("we agree")),
	)
	if code != 1 || out != "" {
		t.Fatalf("create: code = %d, out = %q, want 1 and no challenge", code, out)
	}
	if !strings.Contains(errOut, "1 file(s) pushed") {
		t.Fatalf("create stderr = %q", errOut)
	}
	saved, err := loadState(state)
	if err != nil {
		t.Fatalf("state was not kept: %v", err)
	}
	if sigs := saved.Signatures(); len(sigs) != 1 || sigs[0].State() != digidoc.Created {
		t.Fatalf("saved signatures = %+v", sigs)
	}
	if svc.Sessions() != 1 {
		t.Fatalf("service sessions = %d, want 1", svc.Sessions())
	}

	skew.Store(0)
	code, out, errOut = runCLI(t, "container", "update", "--target", target, "--state", state)
	if code != 0 {
		t.Fatalf("update: code = %d, err = %q", code, errOut)
	}
	if !strings.HasPrefix(out, "S0 ") {
		t.Fatalf("update output = %q", out)
	}
	// The file was tracked by the failed create and is not pushed twice.
	if !strings.Contains(errOut, "0 file(s) pushed, 1 challenge(s) issued") {
		t.Fatalf("update stderr = %q", errOut)
	}

	doc := filepath.Join(t.TempDir(), "doc.asice")
	if code, _, errOut := runCLI(t, "container", "fetch", "--target", target, "--state", state, "--out", doc, "--close"); code != 0 {
		t.Fatalf("fetch --close: code = %d, err = %q", code, errOut)
	}
	if svc.Sessions() != 0 {
		t.Fatalf("service sessions after close = %d", svc.Sessions())
	}
}
