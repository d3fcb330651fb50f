package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"xdao.co/certanchor/cidutil"
)

// NamedCAS associates a CAS with a stable backend name used in errors.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// get reads id from backends in order. The first hit wins. A failure other
// than ErrNotFound is remembered and returned only when no later backend has
// the object.
func get(ctx context.Context, backends []NamedCAS, id cid.Cid) ([]byte, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	var firstErr error
	for _, b := range backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := b.CAS.Get(ctx, id)
		if err == nil {
			return data, nil
		}
		if !IsNotFound(err) && firstErr == nil {
			firstErr = &BackendError{Backend: b.Name, Err: err}
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrNotFound
}

func has(ctx context.Context, backends []NamedCAS, id cid.Cid) bool {
	for _, b := range backends {
		if b.CAS.Has(ctx, id) {
			return true
		}
	}
	return false
}

// Fallback reads from its backends in order and writes to the first one that
// accepts writes. Read-only backends (ErrReadOnly, such as an HTTP gateway)
// are skipped on Put.
type Fallback struct {
	Backends []NamedCAS
}

var _ CAS = Fallback{}

func (f Fallback) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	for _, b := range f.Backends {
		id, err := b.CAS.Put(ctx, data)
		if errors.Is(err, ErrReadOnly) {
			continue
		}
		if err != nil {
			return cid.Undef, &BackendError{Backend: b.Name, Err: err}
		}
		return id, nil
	}
	if len(f.Backends) == 0 {
		return cid.Undef, ErrNoBackends
	}
	return cid.Undef, ErrReadOnly
}

func (f Fallback) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return get(ctx, f.Backends, id)
}

func (f Fallback) Has(ctx context.Context, id cid.Cid) bool { return has(ctx, f.Backends, id) }

// Replicated writes every document to all writable backends concurrently, so a
// document is held everywhere before its CID is anchored. Each backend must
// report the CID derived locally from the bytes; otherwise Put fails with
// ErrCIDMismatch. Reads fall back in order like Fallback.
type Replicated struct {
	Backends []NamedCAS
}

var _ CAS = Replicated{}

// PutAll writes data everywhere and returns the CID together with the CID
// each writable backend reported.
func (r Replicated) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]cid.Cid, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, ErrNoBackends
	}
	want, err := cidutil.DocumentCID(data)
	if err != nil {
		return cid.Undef, nil, err
	}

	var mu sync.Mutex
	got := make(map[string]cid.Cid, len(r.Backends))
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range r.Backends {
		g.Go(func() error {
			id, err := b.CAS.Put(gctx, data)
			if errors.Is(err, ErrReadOnly) {
				return nil
			}
			if err == nil && !id.Equals(want) {
				err = ErrCIDMismatch
			}
			if err != nil {
				return &BackendError{Backend: b.Name, Err: err}
			}
			mu.Lock()
			got[b.Name] = id
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return cid.Undef, got, err
	}
	if len(got) == 0 {
		return cid.Undef, got, ErrReadOnly
	}
	return want, got, nil
}

func (r Replicated) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data)
	return id, err
}

func (r Replicated) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return get(ctx, r.Backends, id)
}

func (r Replicated) Has(ctx context.Context, id cid.Cid) bool { return has(ctx, r.Backends, id) }
