package asn1ber

import (
	"encoding/asn1"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ParseOID parses dotted-decimal notation such as "1.3.6.1.5.5.7.48.1.1".
func ParseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("asn1ber: invalid OID %q", s)
	}
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("asn1ber: invalid OID %q", s)
		}
		oid[i] = n
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] > 39) {
		return nil, fmt.Errorf("asn1ber: invalid OID %q", s)
	}
	return oid, nil
}

// MustOID is ParseOID for package-level tables.
func MustOID(s string) asn1.ObjectIdentifier {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// Registry maps object identifiers to symbolic names. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	names map[string]string
	oids  map[string]asn1.ObjectIdentifier
}

// NewRegistry builds a registry from dotted OID -> name pairs.
func NewRegistry(entries map[string]string) *Registry {
	r := &Registry{
		names: make(map[string]string, len(entries)),
		oids:  make(map[string]asn1.ObjectIdentifier, len(entries)),
	}
	for dotted, name := range entries {
		r.MustRegister(dotted, name)
	}
	return r
}

// Register adds an entry. Re-registering the same pair is a no-op; a
// conflicting name or OID is an error.
func (r *Registry) Register(dotted, name string) error {
	oid, err := ParseOID(dotted)
	if err != nil {
		return err
	}
	key := oid.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.names[key]; ok && prev != name {
		return fmt.Errorf("asn1ber: OID %s already registered as %q", key, prev)
	}
	if prev, ok := r.oids[name]; ok && prev.String() != key {
		return fmt.Errorf("asn1ber: name %q already registered as %s", name, prev)
	}
	r.names[key] = name
	r.oids[name] = oid
	return nil
}

func (r *Registry) MustRegister(dotted, name string) {
	if err := r.Register(dotted, name); err != nil {
		panic(err)
	}
}

// Name returns the registered name of oid. Unknown OIDs yield an UnknownOID
// error wrapping ErrUnknownOID.
func (r *Registry) Name(oid asn1.ObjectIdentifier) (string, error) {
	r.mu.RLock()
	name, ok := r.names[oid.String()]
	r.mu.RUnlock()
	if !ok {
		return "", wrapError(UnknownOID, "ASN1-OID-001", "", "unregistered OID "+oid.String(), ErrUnknownOID)
	}
	return name, nil
}

// OID returns the identifier registered under name.
func (r *Registry) OID(name string) (asn1.ObjectIdentifier, error) {
	r.mu.RLock()
	oid, ok := r.oids[name]
	r.mu.RUnlock()
	if !ok {
		return nil, wrapError(UnknownOID, "ASN1-OID-002", "", "unregistered OID name "+strconv.Quote(name), ErrUnknownOID)
	}
	return oid, nil
}
