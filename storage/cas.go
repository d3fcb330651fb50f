// Package storage defines the content-addressed store that holds off-chain
// certificate documents, plus ordered-fallback and replicating combinators.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent and return the CID derived from the bytes (cidutil.DocumentCID).
// - Stored objects MUST be immutable.
// - Get MUST return bytes that hash to the requested CID, and ErrNotFound when the CID is absent.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
}

// Reader is the read-only subset of CAS, enough for public resolution.
type Reader interface {
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
}
