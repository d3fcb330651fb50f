// Package cidutil derives and checks the content addresses used for certificate documents.
package cidutil

import (
	"errors"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ErrEmpty is returned by Parse for blank input.
var ErrEmpty = errors.New("cidutil: empty content hash")

// DocumentCID returns the CIDv1 (raw codec, sha2-256) for document bytes.
// This is the content address written on-chain as certificateHash.
func DocumentCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// DocumentCIDString is DocumentCID rendered as a string; it returns "" on failure.
func DocumentCIDString(data []byte) string {
	id, err := DocumentCID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// Parse decodes a content hash as stored on-chain or in the record store.
// Surrounding whitespace and an "ipfs://" or "/ipfs/" prefix are tolerated.
func Parse(s string) (cid.Cid, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "ipfs://")
	s = strings.TrimPrefix(s, "/ipfs/")
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return cid.Undef, ErrEmpty
	}
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, ErrEmpty
	}
	return id, nil
}

// Verify reports whether data hashes to id using id's own multihash parameters,
// so CIDv0 and non-sha256 CIDs are checked with the right function.
func Verify(id cid.Cid, data []byte) bool {
	if !id.Defined() {
		return false
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}
