// Package config loads the JSON configuration shared by the digidoc CLI and
// the backend daemon, and opens the components it describes.
//
// Example:
//
//	{
//	  "backend": {"target": "127.0.0.1:7778", "dial_timeout": "5s", "timeout": "30s"},
//	  "ocsp": {"url": "http://ocsp.example/", "responder_cert": "responder.pem", "timeout": "10s"},
//	  "archive": {"dir": "/var/lib/digidoc/archive", "read_dirs": ["/srv/digidoc/2025"]},
//	  "auto_merge": true
//	}
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"xdao.co/digidoc/backend/grpcbackend"
	"xdao.co/digidoc/ocsp"
	"xdao.co/digidoc/storage"
	"xdao.co/digidoc/storage/localfs"
	"xdao.co/digidoc/x509cert"
)

// Defaults applied by WithDefaults.
const (
	DefaultTarget      = "127.0.0.1:7778"
	DefaultDialTimeout = 5 * time.Second
	DefaultOCSPTimeout = 10 * time.Second
)

// Duration is a time.Duration written as a Go duration string ("1m30s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("config: duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Backend BackendConfig `json:"backend"`
	OCSP    OCSPConfig    `json:"ocsp"`
	Archive ArchiveConfig `json:"archive"`
	// AutoMerge lets Update merge restored containers implicitly.
	AutoMerge bool `json:"auto_merge,omitempty"`
}

type BackendConfig struct {
	// Target is the gRPC host:port of the signing service.
	Target      string   `json:"target,omitempty"`
	DialTimeout Duration `json:"dial_timeout,omitempty"`
	// Timeout applies per RPC when non-zero.
	Timeout     Duration `json:"timeout,omitempty"`
	MaxMsgBytes int      `json:"max_msg_bytes,omitempty"`
}

type OCSPConfig struct {
	URL string `json:"url,omitempty"`
	// ResponderCert is a path to the pinned responder certificate (PEM or DER).
	ResponderCert string   `json:"responder_cert,omitempty"`
	Timeout       Duration `json:"timeout,omitempty"`
	Skew          Duration `json:"skew,omitempty"`
}

type ArchiveConfig struct {
	// Dir holds a local content-addressed archive. Empty disables archiving.
	Dir string `json:"dir,omitempty"`
	// ReadDirs are older archives consulted, in order, when Dir lacks an
	// object. They are never written.
	ReadDirs []string `json:"read_dirs,omitempty"`
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("config: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Backend.Target == "" {
		c.Backend.Target = DefaultTarget
	}
	if c.Backend.DialTimeout == 0 {
		c.Backend.DialTimeout = Duration(DefaultDialTimeout)
	}
	if c.OCSP.URL != "" && c.OCSP.Timeout == 0 {
		c.OCSP.Timeout = Duration(DefaultOCSPTimeout)
	}
	return c
}

func (c Config) Validate() error {
	if c.Backend.Target == "" {
		return errors.New("config: backend.target is required")
	}
	if c.Backend.DialTimeout < 0 || c.Backend.Timeout < 0 {
		return errors.New("config: backend timeouts must not be negative")
	}
	if c.Backend.MaxMsgBytes < 0 {
		return fmt.Errorf("config: invalid backend.max_msg_bytes %d", c.Backend.MaxMsgBytes)
	}
	if len(c.Archive.ReadDirs) > 0 && c.Archive.Dir == "" {
		return errors.New("config: archive.read_dirs requires archive.dir")
	}
	if c.OCSP.URL == "" {
		if c.OCSP.ResponderCert != "" {
			return errors.New("config: ocsp.responder_cert set without ocsp.url")
		}
		return nil
	}
	u, err := url.Parse(c.OCSP.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: invalid ocsp.url %q", c.OCSP.URL)
	}
	if c.OCSP.ResponderCert == "" {
		return errors.New("config: ocsp.responder_cert is required with ocsp.url")
	}
	if c.OCSP.Timeout < 0 || c.OCSP.Skew < 0 {
		return errors.New("config: ocsp durations must not be negative")
	}
	return nil
}

// DialBackend connects to the configured signing service.
func (c Config) DialBackend() (*grpcbackend.Client, error) {
	client, err := grpcbackend.Dial(c.Backend.Target, grpcbackend.DialOptions{
		Timeout:     time.Duration(c.Backend.DialTimeout),
		MaxMsgBytes: c.Backend.MaxMsgBytes,
	})
	if err != nil {
		return nil, err
	}
	client.Timeout = time.Duration(c.Backend.Timeout)
	return client, nil
}

// OpenArchive returns nil when no archive directory is configured.
func (c Config) OpenArchive() (*storage.Archive, error) {
	if c.Archive.Dir == "" {
		return nil, nil
	}
	primary, err := localfs.New(c.Archive.Dir)
	if err != nil {
		return nil, err
	}
	if len(c.Archive.ReadDirs) == 0 {
		return storage.NewArchive(primary), nil
	}
	multi := storage.MultiCAS{Adapters: []storage.CAS{primary}}
	for _, dir := range c.Archive.ReadDirs {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("config: archive.read_dirs: %w", err)
		}
		cas, err := localfs.New(dir)
		if err != nil {
			return nil, err
		}
		multi.Adapters = append(multi.Adapters, cas)
	}
	return storage.NewArchive(multi), nil
}

// Responder returns the configured OCSP responder, or nil when none is set.
func (c Config) Responder(archive *storage.Archive) (*ocsp.Responder, error) {
	if c.OCSP.URL == "" {
		return nil, nil
	}
	cert, err := LoadCertificate(c.OCSP.ResponderCert)
	if err != nil {
		return nil, err
	}
	return &ocsp.Responder{
		URL:       c.OCSP.URL,
		Cert:      cert,
		Transport: ocsp.HTTPTransport{Client: &http.Client{Timeout: time.Duration(c.OCSP.Timeout)}},
		Archive:   archive,
		Skew:      time.Duration(c.OCSP.Skew),
	}, nil
}

// LoadCertificate reads a PEM or DER certificate file.
func LoadCertificate(path string) (*x509cert.Certificate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cert, err := x509cert.ParsePEM(b)
	if err != nil {
		cert, err = x509cert.Parse(b)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cert, nil
}
