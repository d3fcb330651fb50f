package casconfig

import (
	"context"
	"os"
	"reflect"
	"testing"

	"xdao.co/certanchor/storage"
	"xdao.co/certanchor/storage/casregistry"
	_ "xdao.co/certanchor/storage/localfs"
	_ "xdao.co/certanchor/storage/memcas"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"empty", Config{}, false},
		{"default", Default(), true},
		{"missing name", Config{Backends: []BackendConfig{{}}}, false},
		{"duplicate id", Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory"}}}, false},
		{"aliased", Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory", ID: "second"}}}, true},
		{"bad policy", Config{WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}}, false},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); (err == nil) != tc.ok {
			t.Fatalf("%s: Validate() = %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestParseBackends(t *testing.T) {
	got, err := ParseBackends(" localfs:dir=/var/docs ; gateway@public:url=https://ipfs.io,timeout=5s;memory")
	if err != nil {
		t.Fatalf("ParseBackends: %v", err)
	}
	want := []BackendConfig{
		{Name: "localfs", Config: map[string]string{"dir": "/var/docs"}},
		{Name: "gateway", ID: "public", Config: map[string]string{"url": "https://ipfs.io", "timeout": "5s"}},
		{Name: "memory"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseBackends =\n%+v\nwant\n%+v", got, want)
	}
	if _, err := ParseBackends("localfs:dir"); err == nil {
		t.Fatalf("option without '=' accepted")
	}
	if _, err := ParseBackends(" ; "); err == nil {
		t.Fatalf("empty list accepted")
	}
}

func TestOpen_WriteAllReplicates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{
		WritePolicy: WriteAll,
		Backends: []BackendConfig{
			{Name: "memory"},
			{Name: "localfs", Config: map[string]string{"dir": dir}},
		},
	}
	cas, closeFn, err := cfg.Open(casregistry.UsageDaemon, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()

	if _, ok := cas.(storage.Replicated); !ok {
		t.Fatalf("write_policy=all opened %T", cas)
	}
	id, err := cas.Put(ctx, []byte(`{"code":"C-1"}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("localfs backend not written: %v", err)
	}
	if !cas.Has(ctx, id) {
		t.Fatalf("Has = false after Put")
	}
}

func TestOpen_PreferredBackendFirst(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Backends: []BackendConfig{
		{Name: "memory"},
		{Name: "localfs", Config: map[string]string{"dir": dir}},
	}}
	cas, _, err := cfg.Open(casregistry.UsageCLI, "localfs")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := cas.(storage.Fallback); !ok {
		t.Fatalf("default policy opened %T", cas)
	}
	if _, err := cas.Put(context.Background(), []byte("doc")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) == 0 {
		t.Fatalf("preferred backend did not receive the write")
	}
	if _, _, err := cfg.Open(casregistry.UsageCLI, "nope"); err == nil {
		t.Fatalf("unknown preferred backend should fail")
	}
}

func TestOpen_RejectsUnknownOption(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{Name: "localfs", Config: map[string]string{"directory": t.TempDir()}}}}
	if _, _, err := cfg.Open(casregistry.UsageDaemon, ""); err == nil {
		t.Fatalf("misspelled localfs option accepted")
	}
}
