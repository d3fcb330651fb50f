package ipfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"xdao.co/certanchor/cidutil"
	"xdao.co/certanchor/storage"
)

// fakeKubo writes a shell script standing in for the ipfs binary. The script
// sees the subcommand as "$2" (put, get or stat).
func fakeKubo(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ipfs")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake: %v", err)
	}
	return path
}

func TestIPFS_PutChecksReportedCID(t *testing.T) {
	data := []byte(`{"code":"CERT-9"}`)
	want := cidutil.DocumentCIDString(data)

	script := `case "$2" in
stat) exit 1 ;;
put) cat >/dev/null; echo ` + want + ` ;;
esac
`
	cas := New(Options{Bin: fakeKubo(t, script)})
	id, err := cas.Put(context.Background(), data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if id.String() != want {
		t.Fatalf("Put cid=%s want %s", id, want)
	}

	other := cidutil.DocumentCIDString([]byte("other"))
	cas = New(Options{Bin: fakeKubo(t, strings.ReplaceAll(script, want, other))})
	if _, err := cas.Put(context.Background(), data); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("Put with wrong reported cid: got %v want ErrCIDMismatch", err)
	}
}

func TestIPFS_PutSkipsExistingBlock(t *testing.T) {
	data := []byte(`{"code":"CERT-10"}`)
	marker := filepath.Join(t.TempDir(), "put-called")
	script := `case "$2" in
stat) exit 0 ;;
put) touch ` + marker + ` ;;
esac
`
	cas := New(Options{Bin: fakeKubo(t, script), Pin: true})
	if _, err := cas.Put(context.Background(), data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Fatalf("block put ran for a block the repo already has")
	}
}

func TestIPFS_GetNotFound(t *testing.T) {
	id, _ := cidutil.DocumentCID([]byte("absent"))
	cas := New(Options{Bin: fakeKubo(t, "echo 'Error: block was not found locally (offline)' >&2\nexit 1\n")})
	if _, err := cas.Get(context.Background(), id); !storage.IsNotFound(err) {
		t.Fatalf("Get: got %v want ErrNotFound", err)
	}
	if cas.Has(context.Background(), id) {
		t.Fatalf("Has should be false when block stat fails")
	}
}

func TestIPFS_OtherFailuresKeepStderr(t *testing.T) {
	id, _ := cidutil.DocumentCID([]byte("x"))
	cas := New(Options{Bin: fakeKubo(t, "echo 'Error: repo is locked' >&2\nexit 1\n")})
	_, err := cas.Get(context.Background(), id)
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Stderr != "Error: repo is locked" {
		t.Fatalf("Get: got %v want CommandError with stderr", err)
	}
}

func TestIPFS_GetVerifiesBytes(t *testing.T) {
	id, _ := cidutil.DocumentCID([]byte("expected"))
	cas := New(Options{Bin: fakeKubo(t, "printf tampered\n")})
	if _, err := cas.Get(context.Background(), id); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("Get: got %v want ErrCIDMismatch", err)
	}
}
