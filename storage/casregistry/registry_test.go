package casregistry

import (
	"context"
	"flag"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/certanchor/storage"
)

// stubCAS records the settings it was opened with.
type stubCAS struct{ settings Settings }

func (stubCAS) Put(context.Context, []byte) (cid.Cid, error) { return cid.Undef, storage.ErrReadOnly }
func (stubCAS) Get(context.Context, cid.Cid) ([]byte, error) { return nil, storage.ErrNotFound }
func (stubCAS) Has(context.Context, cid.Cid) bool            { return false }

func stubOpen(s Settings) (storage.CAS, func() error, error) {
	return stubCAS{settings: s}, nil, nil
}

func TestRegisterValidation(t *testing.T) {
	if err := Register(Backend{Open: stubOpen, Usage: UsageCLI}); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if err := Register(Backend{Name: "t-nousage", Open: stubOpen}); err == nil {
		t.Fatalf("expected error for missing usage")
	}
	if err := Register(Backend{Name: "t-dupopt", Open: stubOpen, Usage: UsageCLI, Options: []Option{{Key: "a"}, {Key: "a"}}}); err == nil {
		t.Fatalf("expected error for duplicate option")
	}
	if err := Register(Backend{Name: "t-daemon", Open: stubOpen, Usage: UsageDaemon}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(Backend{Name: "t-daemon", Open: stubOpen, Usage: UsageDaemon}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestOpenRespectsUsage(t *testing.T) {
	MustRegister(Backend{Name: "t-cli-only", Open: stubOpen, Usage: UsageCLI})

	if _, _, err := Open("t-cli-only", UsageDaemon, nil); err == nil {
		t.Fatalf("cli-only backend opened in a daemon")
	}
	if _, _, err := Open("t-cli-only", UsageCLI, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := Open("t-missing", UsageCLI, nil); err == nil {
		t.Fatalf("unknown backend opened")
	}
	for _, n := range Names(UsageDaemon) {
		if n == "t-cli-only" {
			t.Fatalf("Names(UsageDaemon) lists a cli-only backend")
		}
	}
}

func TestOpenAppliesDefaultsAndRejectsUnknownKeys(t *testing.T) {
	MustRegister(Backend{
		Name:    "t-opts",
		Usage:   UsageCLI,
		Options: []Option{{Key: "dir"}, {Key: "mode", Default: "fast"}},
		Open:    stubOpen,
	})

	cas, _, err := Open("t-opts", UsageCLI, Settings{"dir": "/tmp/x"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got := cas.(stubCAS).settings
	if got.Get("dir") != "/tmp/x" || got.Get("mode") != "fast" {
		t.Fatalf("settings = %v", got)
	}
	if _, _, err := Open("t-opts", UsageCLI, Settings{"dri": "/tmp/x"}); err == nil {
		t.Fatalf("misspelled option accepted")
	}
}

func TestBindFlags(t *testing.T) {
	MustRegister(Backend{
		Name:    "t-flags",
		Usage:   UsageCLI,
		Options: []Option{{Key: "target"}, {Key: "timeout", Default: "5s"}},
		Open:    stubOpen,
	})

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := BindFlags(fs, UsageCLI)
	if err := fs.Parse([]string{"--t-flags-target", "host:1"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cas, _, err := f.Open("t-flags")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s := cas.(stubCAS).settings
	if s.Get("target") != "host:1" {
		t.Fatalf("target = %q", s.Get("target"))
	}
	if d, err := s.Duration("timeout"); err != nil || d.String() != "5s" {
		t.Fatalf("timeout = %v, %v", d, err)
	}
}

func TestSettingsParsing(t *testing.T) {
	s := Settings{"n": " 42 ", "bad": "x"}
	if n, err := s.Int("n"); err != nil || n != 42 {
		t.Fatalf("Int = %d, %v", n, err)
	}
	if _, err := s.Int("bad"); err == nil {
		t.Fatalf("expected parse error")
	}
	if n, err := s.Int("absent"); err != nil || n != 0 {
		t.Fatalf("absent Int = %d, %v", n, err)
	}
}
