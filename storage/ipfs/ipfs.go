// Package ipfs stores certificate documents as raw blocks in a local Kubo repository.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/certanchor/cidutil"
	"xdao.co/certanchor/storage"
)

// CAS drives the Kubo "ipfs" CLI against a local repository.
//
// Blocks are written with explicit CIDv1 raw sha2-256 parameters, so the CID
// Kubo reports must equal cidutil.DocumentCID; any disagreement is
// ErrCIDMismatch.
type CAS struct {
	bin string
	env []string
	pin bool
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin defaults to "ipfs" on PATH.
	Bin string
	// Env replaces the command environment (e.g. to set IPFS_PATH). Nil
	// inherits the process environment.
	Env []string
	// Pin keeps written documents out of repo garbage collection.
	Pin bool
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env, pin: opts.Pin}
}

// CommandError is a failed ipfs invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ipfs %s: %s", strings.Join(e.Args, " "), e.Stderr)
	}
	return fmt.Sprintf("ipfs %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// notFound reports whether Kubo said the block is absent.
func (e *CommandError) notFound() bool {
	msg := strings.ToLower(e.Stderr)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	want, err := cidutil.DocumentCID(data)
	if err != nil {
		return cid.Undef, err
	}
	if c.Has(ctx, want) {
		return want, nil
	}

	out, err := c.kubo(ctx, data, "block", "put",
		"--quiet",
		"--cid-codec=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"--pin="+strconv.FormatBool(c.pin),
		"/dev/stdin",
	)
	if err != nil {
		return cid.Undef, err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output %q: %w", strings.TrimSpace(string(out)), err)
	}
	if !got.Equals(want) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return want, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := c.kubo(ctx, nil, "block", "get", id.String())
	if err != nil {
		var ce *CommandError
		if errors.As(err, &ce) && ce.notFound() {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Verify(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.kubo(ctx, nil, "block", "stat", id.String())
	return err == nil
}

func (c *CAS) kubo(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Env = c.env
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
}
