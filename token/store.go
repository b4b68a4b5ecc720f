package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"xdao.co/digidoc/x509cert"
)

const (
	seedFile = "seed"
	certFile = "cert.der"
)

// DefaultValidity is the lifetime of certificates created by Init.
const DefaultValidity = 365 * 24 * time.Hour

var ErrExists = errors.New("token: already exists")

// Store keeps tokens under Dir, one directory per token.
type Store struct {
	Dir string
	// Now defaults to time.Now; it dates new certificates.
	Now func() time.Time
	// Validity defaults to DefaultValidity.
	Validity time.Duration
}

func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".digidoc", "tokens"), nil
}

func Open(dir string) (*Store, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	return &Store{Dir: dir}, nil
}

func CheckName(name string) error {
	if name == "" {
		return errors.New("token: name cannot be empty")
	}
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("token: invalid character %q in name", c)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("token: seed: %w", err)
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("token: expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

// Init creates token name from seed (random when nil) with a fresh
// self-signed certificate.
func (s *Store) Init(name string, seed []byte, overwrite bool) (*Token, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	if seed == nil {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, err
		}
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("token: expected seed length of %d bytes", ed25519.SeedSize)
	}
	key := ed25519.NewKeyFromSeed(seed)
	der, err := s.selfSign(name, key)
	if err != nil {
		return nil, err
	}
	cert, err := x509cert.Parse(der)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.Dir, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(dir, seedFile), []byte(hex.EncodeToString(seed)+"\n"), overwrite); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(dir, certFile), der, true); err != nil {
		return nil, err
	}
	return &Token{Name: name, Cert: cert, key: key}, nil
}

// Derive creates token name+"-"+role whose seed is derived from token from.
func (s *Store) Derive(from, role string, overwrite bool) (*Token, error) {
	root, err := s.loadSeed(from)
	if err != nil {
		return nil, err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return nil, err
	}
	return s.Init(from+"-"+role, seed, overwrite)
}

// Load reads token name.
func (s *Store) Load(name string) (*Token, error) {
	seed, err := s.loadSeed(name)
	if err != nil {
		return nil, err
	}
	der, err := os.ReadFile(filepath.Join(s.Dir, name, certFile))
	if err != nil {
		return nil, err
	}
	cert, err := x509cert.Parse(der)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", name, err)
	}
	key := ed25519.NewKeyFromSeed(seed)
	if !equalKey(cert, key) {
		return nil, fmt.Errorf("token %s: certificate does not match the key", name)
	}
	return &Token{Name: name, Cert: cert, key: key}, nil
}

// List returns token names in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Dir, e.Name(), seedFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) loadSeed(name string) ([]byte, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, name, seedFile))
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

func (s *Store) selfSign(name string, key ed25519.PrivateKey) ([]byte, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	validity := s.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 63))
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: name, Organization: []string{"Digidoc Software Token"}},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	pub := key.Public().(ed25519.PublicKey)
	return x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, key)
}

func equalKey(cert *x509cert.Certificate, key ed25519.PrivateKey) bool {
	pub, ok := cert.PublicKey().(ed25519.PublicKey)
	return ok && pub.Equal(key.Public())
}

func writeFile(path string, data []byte, overwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Close()
}
