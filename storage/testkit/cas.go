// Package testkit holds a conformance suite every storage.CAS backend must pass.
package testkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/cidutil"
	"xdao.co/certanchor/document"
	"xdao.co/certanchor/storage"
)

// NewCAS returns a fresh, empty store isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

type check struct {
	name string
	run  func(t *testing.T, ctx context.Context, cas storage.CAS)
}

var checks = []check{
	{"PutGetRoundTrip", putGetRoundTrip},
	{"PutIdempotent", putIdempotent},
	{"HasAndNotFound", hasAndNotFound},
	{"RejectUndefCID", rejectUndefCID},
	{"CancelledContext", cancelledContext},
	{"ConcurrentPuts", concurrentPuts},
	{"DocumentPublish", documentPublish},
}

// RunCASConformance runs every check against a new store from newCAS.
func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			c.run(t, context.Background(), newCAS(t))
		})
	}
}

func mustCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	id, err := cidutil.DocumentCID(data)
	if err != nil {
		t.Fatalf("DocumentCID failed: %v", err)
	}
	return id
}

func putGetRoundTrip(t *testing.T, ctx context.Context, cas storage.CAS) {
	want := []byte(`{"code":"CERT-001","holder":{"idCard":"079200001234"}}`)
	id, err := cas.Put(ctx, want)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if wantID := mustCID(t, want); id != wantID {
		t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
	}
	got, err := cas.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Get bytes mismatch")
	}
}

func putIdempotent(t *testing.T, ctx context.Context, cas storage.CAS) {
	b := []byte("same bytes")
	id1, err := cas.Put(ctx, b)
	if err != nil {
		t.Fatalf("Put(1) failed: %v", err)
	}
	id2, err := cas.Put(ctx, b)
	if err != nil {
		t.Fatalf("Put(2) failed: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
	}
}

func hasAndNotFound(t *testing.T, ctx context.Context, cas storage.CAS) {
	b := []byte("missing")
	id := mustCID(t, b)
	if cas.Has(ctx, id) {
		t.Fatalf("Has returned true for missing CID")
	}
	if _, err := cas.Get(ctx, id); !storage.IsNotFound(err) {
		t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
	}
	if _, err := cas.Put(ctx, b); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !cas.Has(ctx, id) {
		t.Fatalf("Has returned false after Put")
	}
}

func rejectUndefCID(t *testing.T, ctx context.Context, cas storage.CAS) {
	if cas.Has(ctx, cid.Undef) {
		t.Fatalf("Has should be false for undefined CID")
	}
	if _, err := cas.Get(ctx, cid.Undef); err == nil {
		t.Fatalf("Get should fail for undefined CID")
	}
}

func cancelledContext(t *testing.T, ctx context.Context, cas storage.CAS) {
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := cas.Put(cctx, []byte("late")); err == nil {
		t.Fatalf("Put should fail with a cancelled context")
	}
}

// concurrentPuts writes the same and distinct documents from several goroutines.
func concurrentPuts(t *testing.T, ctx context.Context, cas storage.CAS) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for _, b := range [][]byte{[]byte("shared"), []byte(fmt.Sprintf("doc-%d", i))} {
				id, err := cas.Put(gctx, b)
				if err != nil {
					return err
				}
				if !cidutil.Verify(id, b) {
					return errors.New("unexpected cid " + id.String())
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Put: %v", err)
	}
	if got, err := cas.Get(ctx, mustCID(t, []byte("shared"))); err != nil || string(got) != "shared" {
		t.Fatalf("Get shared = %q, %v", got, err)
	}
}

func documentPublish(t *testing.T, ctx context.Context, cas storage.CAS) {
	d := document.FromDraft(cert.Draft{
		Code:              "CERT-77",
		CertificateTypeID: "type-1",
		OrganizationID:    "org-1",
		AuthorProfile:     cert.AuthorProfile{Name: "Ada", IDCard: "ID-77", CountryCode: "VN"},
	})
	id, err := document.Publish(ctx, cas, d)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	raw, err := cas.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got, err := document.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Code != "CERT-77" || got.Holder.IDCard != "ID-77" {
		t.Fatalf("decoded document = %+v", got)
	}
}
