// Package storage keeps signing evidence (documents, OCSP responses,
// container snapshots) in content-addressed stores keyed by CID.
package storage

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be CIDv1, raw codec, sha2-256 of the bytes written.
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// CIDOf returns the CIDv1 (raw + sha2-256) of data.
func CIDOf(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// ParseCID decodes a CID string, rejecting undefined values.
func ParseCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, ErrInvalidCID
	}
	return id, nil
}

// verify checks that data hashes to id.
func verify(id cid.Cid, data []byte) error {
	got, err := CIDOf(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrCIDMismatch
	}
	return nil
}
