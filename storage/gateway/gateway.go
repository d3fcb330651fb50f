// Package gateway reads certificate documents from an IPFS trustless HTTP gateway.
//
// The gateway is untrusted: every block is re-hashed and must match the
// requested CID. The backend is read-only.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/certanchor/cidutil"
	"xdao.co/certanchor/storage"
)

const rawBlockType = "application/vnd.ipld.raw"

// DefaultMaxBytes bounds the size of a fetched document.
const DefaultMaxBytes = 4 << 20

type Options struct {
	// BaseURL is the gateway root, e.g. "https://ipfs.io".
	BaseURL string
	// Client defaults to an http.Client with a 30s timeout.
	Client *http.Client
	// MaxBytes defaults to DefaultMaxBytes.
	MaxBytes int64
}

type CAS struct {
	base     string
	client   *http.Client
	maxBytes int64
}

var _ storage.CAS = (*CAS)(nil)

func New(opts Options) (*CAS, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway: base url is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	max := opts.MaxBytes
	if max <= 0 {
		max = DefaultMaxBytes
	}
	return &CAS{base: base, client: client, maxBytes: max}, nil
}

func (c *CAS) Put(context.Context, []byte) (cid.Cid, error) {
	return cid.Undef, storage.ErrReadOnly
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	resp, err := c.do(ctx, http.MethodGet, id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, storage.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("gateway: GET %s: http %d", id, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("gateway: read %s: %w", id, err)
	}
	if int64(len(b)) > c.maxBytes {
		return nil, fmt.Errorf("gateway: %s exceeds %d bytes", id, c.maxBytes)
	}
	if !cidutil.Verify(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	resp, err := c.do(ctx, http.MethodHead, id)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func (c *CAS) do(ctx context.Context, method string, id cid.Cid) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/ipfs/"+id.String()+"?format=raw", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", rawBlockType)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, id, err)
	}
	return resp, nil
}
