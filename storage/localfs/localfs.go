// Package localfs stores certificate documents in a local directory keyed by CID.
package localfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/certanchor/cidutil"
	"xdao.co/certanchor/storage"
)

// CAS keeps one read-only file per document under root/<shard>/<cid>.
//
// Files are staged in a temporary file and hard-linked into place, so a
// reader never sees a partial document and an existing CID is never
// replaced. A file whose bytes no longer hash to its CID is ErrCIDMismatch.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New opens (creating if needed) a store rooted at root.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: %w", err)
	}
	return &CAS{root: root}, nil
}

func (c *CAS) Root() string { return c.root }

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.DocumentCID(data)
	if err != nil {
		return cid.Undef, err
	}

	final := c.blockPath(id)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cid.Undef, err
	}
	tmp, err := stage(dir, data)
	if err != nil {
		return cid.Undef, err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, final); err != nil {
		if !os.IsExist(err) {
			return cid.Undef, err
		}
		existing, rerr := c.Get(ctx, id)
		if rerr != nil || !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
	}
	return id, nil
}

// stage writes data to a synced, read-only temporary file in dir.
func stage(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(name, 0o444)
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.blockPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !cidutil.Verify(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(_ context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	fi, err := os.Stat(c.blockPath(id))
	return err == nil && fi.Mode().IsRegular()
}

// blockPath shards on the last two characters of the CID string; the leading
// characters of a CIDv1 are its multibase and codec prefix and barely vary.
func (c *CAS) blockPath(id cid.Cid) string {
	s := id.String()
	shard := "_"
	if len(s) >= 2 {
		shard = s[len(s)-2:]
	}
	return filepath.Join(c.root, shard, s)
}
