package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/certanchor/cidutil"
	"xdao.co/certanchor/storage"
	"xdao.co/certanchor/storage/memcas"
)

type failing struct{ err error }

func (f failing) Put(context.Context, []byte) (cid.Cid, error) { return cid.Undef, f.err }
func (f failing) Get(context.Context, cid.Cid) ([]byte, error) { return nil, f.err }
func (f failing) Has(context.Context, cid.Cid) bool            { return false }

// lying reports a fixed CID for every Put.
type lying struct{ id cid.Cid }

func (l lying) Put(context.Context, []byte) (cid.Cid, error) { return l.id, nil }
func (l lying) Get(context.Context, cid.Cid) ([]byte, error) { return nil, storage.ErrNotFound }
func (l lying) Has(context.Context, cid.Cid) bool            { return false }

func named(pairs ...any) []storage.NamedCAS {
	out := make([]storage.NamedCAS, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, storage.NamedCAS{Name: pairs[i].(string), CAS: pairs[i+1].(storage.CAS)})
	}
	return out
}

func TestFallback_ReadsInOrder(t *testing.T) {
	ctx := context.Background()
	primary, secondary := memcas.New(), memcas.New()
	id, err := secondary.Put(ctx, []byte("only in secondary"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	offline := errors.New("offline")
	f := storage.Fallback{Backends: named("down", failing{offline}, "a", primary, "b", secondary)}
	got, err := f.Get(ctx, id)
	if err != nil || string(got) != "only in secondary" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if !f.Has(ctx, id) {
		t.Fatalf("Has = false")
	}

	missing := storage.Fallback{Backends: named("a", primary)}
	if _, err := missing.Get(ctx, id); !storage.IsNotFound(err) {
		t.Fatalf("Get missing: %v", err)
	}

	broken := storage.Fallback{Backends: named("down", failing{offline}, "a", primary)}
	_, err = broken.Get(ctx, id)
	var be *storage.BackendError
	if !errors.Is(err, offline) || !errors.As(err, &be) || be.Backend != "down" {
		t.Fatalf("Get should surface the first non-NotFound error with its backend, got %v", err)
	}

	if _, err := (storage.Fallback{}).Get(ctx, id); !errors.Is(err, storage.ErrNoBackends) {
		t.Fatalf("empty Fallback: %v", err)
	}
}

func TestFallback_PutSkipsReadOnly(t *testing.T) {
	ctx := context.Background()
	mem := memcas.New()
	f := storage.Fallback{Backends: named("gateway", failing{storage.ErrReadOnly}, "mem", mem)}
	id, err := f.Put(ctx, []byte("doc"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !mem.Has(ctx, id) {
		t.Fatalf("write did not reach the first writable backend")
	}

	ro := storage.Fallback{Backends: named("gateway", failing{storage.ErrReadOnly})}
	if _, err := ro.Put(ctx, []byte("doc")); !errors.Is(err, storage.ErrReadOnly) {
		t.Fatalf("all read-only: got %v", err)
	}
}

func TestReplicated_WritesEverywhere(t *testing.T) {
	ctx := context.Background()
	a, b := memcas.New(), memcas.New()
	r := storage.Replicated{Backends: named("a", a, "b", b, "gateway", failing{storage.ErrReadOnly})}

	id, per, err := r.PutAll(ctx, []byte("doc"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if len(per) != 2 || per["a"] != id || per["b"] != id {
		t.Fatalf("per-backend cids: %v", per)
	}
	if !a.Has(ctx, id) || !b.Has(ctx, id) {
		t.Fatalf("not replicated")
	}

	down := errors.New("disk full")
	bad := storage.Replicated{Backends: named("a", a, "broken", failing{down})}
	if _, err := bad.Put(ctx, []byte("doc2")); !errors.Is(err, down) {
		t.Fatalf("Put with failing replica: got %v", err)
	}
}

func TestReplicated_RejectsForeignCID(t *testing.T) {
	other, _ := cidutil.DocumentCID([]byte("other"))
	r := storage.Replicated{Backends: named("a", memcas.New(), "liar", lying{other})}
	if _, err := r.Put(context.Background(), []byte("doc")); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("Put: got %v want ErrCIDMismatch", err)
	}
}
