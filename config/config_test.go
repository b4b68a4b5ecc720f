package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"xdao.co/digidoc/internal/testpki"
	"xdao.co/digidoc/storage"
	"xdao.co/digidoc/storage/localfs"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "digidoc.json", `{
		"backend": {"target": "sign.example:443", "timeout": "30s", "max_msg_bytes": 8388608},
		"archive": {"dir": "/tmp/archive"},
		"auto_merge": true
	}`)
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := Config{
		Backend: BackendConfig{
			Target:      "sign.example:443",
			DialTimeout: Duration(DefaultDialTimeout),
			Timeout:     Duration(30 * time.Second),
			MaxMsgBytes: 8 << 20,
		},
		Archive:   ArchiveConfig{Dir: "/tmp/archive"},
		AutoMerge: true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "syntax", body: `{`, want: "config:"},
		{name: "numeric duration", body: `{"backend": {"timeout": 5}}`, want: "duration must be a string"},
		{name: "bad duration", body: `{"backend": {"timeout": "soon"}}`, want: "invalid duration"},
		{name: "negative timeout", body: `{"backend": {"timeout": "-1s"}}`, want: "must not be negative"},
		{name: "ocsp url scheme", body: `{"ocsp": {"url": "ftp://x", "responder_cert": "r.pem"}}`, want: "invalid ocsp.url"},
		{name: "ocsp without cert", body: `{"ocsp": {"url": "http://ocsp.example"}}`, want: "responder_cert is required"},
		{name: "cert without url", body: `{"ocsp": {"responder_cert": "r.pem"}}`, want: "without ocsp.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, dir, tt.name+".json", tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
	if _, err := LoadFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{OCSP: OCSPConfig{URL: "http://ocsp.example"}}.WithDefaults()
	if cfg.Backend.Target != DefaultTarget {
		t.Fatalf("Target = %q", cfg.Backend.Target)
	}
	if time.Duration(cfg.OCSP.Timeout) != DefaultOCSPTimeout {
		t.Fatalf("OCSP timeout = %v", time.Duration(cfg.OCSP.Timeout))
	}
	if got := (Config{}).WithDefaults().OCSP.Timeout; got != 0 {
		t.Fatalf("OCSP timeout without url = %v, want 0", time.Duration(got))
	}
}

func TestOpenArchive(t *testing.T) {
	a, err := Config{}.OpenArchive()
	if err != nil || a != nil {
		t.Fatalf("OpenArchive without dir = %v, %v", a, err)
	}
	a, err = Config{Archive: ArchiveConfig{Dir: t.TempDir()}}.OpenArchive()
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	rec, err := a.Put(storage.KindDocument, "x", []byte("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := a.Get(rec)
	if err != nil || string(got) != "payload" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestOpenArchive_ReadDirs(t *testing.T) {
	old := t.TempDir()
	oldCAS, err := localfs.New(old)
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	id, err := oldCAS.Put([]byte("2025 evidence"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	cfg := Config{Archive: ArchiveConfig{Dir: t.TempDir(), ReadDirs: []string{old}}}
	a, err := cfg.OpenArchive()
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	got, err := a.Get(storage.Record{Kind: storage.KindDocument, CID: id.String()})
	if err != nil || string(got) != "2025 evidence" {
		t.Fatalf("Get from read dir = %q, %v", got, err)
	}
	rec, err := a.Put(storage.KindDocument, "new", []byte("fresh"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	fresh, _ := storage.ParseCID(rec.CID)
	if oldCAS.Has(fresh) {
		t.Fatalf("new evidence was written to a read-only dir")
	}

	cfg.Archive.ReadDirs = []string{filepath.Join(old, "missing")}
	if _, err := cfg.OpenArchive(); err == nil {
		t.Fatalf("expected error for a missing read dir")
	}
	if err := (Config{Backend: BackendConfig{Target: "x:1"}, Archive: ArchiveConfig{ReadDirs: []string{old}}}).Validate(); err == nil {
		t.Fatalf("expected Validate error for read_dirs without dir")
	}
}

func TestResponder(t *testing.T) {
	pki := testpki.New(t)
	dir := t.TempDir()
	pemPath := writeFile(t, dir, "responder.pem", string(pki.Responder.Cert.PEM()))
	derPath := writeFile(t, dir, "responder.der", string(pki.Responder.DER))

	for _, p := range []string{pemPath, derPath} {
		cfg := Config{OCSP: OCSPConfig{URL: "http://ocsp.example", ResponderCert: p, Skew: Duration(time.Minute)}}.WithDefaults()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		r, err := cfg.Responder(nil)
		if err != nil {
			t.Fatalf("Responder(%s): %v", filepath.Base(p), err)
		}
		if !r.Cert.Equal(pki.Responder.Cert) || r.Skew != time.Minute || r.URL != "http://ocsp.example" {
			t.Fatalf("responder = %+v", r)
		}
	}

	if r, err := (Config{}).Responder(nil); r != nil || err != nil {
		t.Fatalf("Responder without url = %v, %v", r, err)
	}
	bad := writeFile(t, dir, "bad.pem", "not a certificate")
	if _, err := LoadCertificate(bad); err == nil {
		t.Fatalf("expected error for garbage certificate")
	}
}
