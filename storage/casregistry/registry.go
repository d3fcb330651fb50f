// Package casregistry lets document-store backends register themselves so that
// binaries and config files can select them by name.
//
// A backend declares its settings once as Options. BindFlags exposes each one
// as --<backend>-<key> on a flag.FlagSet, and casconfig passes the same keys
// from JSON, so a flag and a config entry can never drift apart.
package casregistry

import (
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"xdao.co/certanchor/storage"
)

// Option is one backend setting.
type Option struct {
	Key     string
	Default string
	Help    string
}

// Settings carries option values keyed by Option.Key.
type Settings map[string]string

func (s Settings) Get(key string) string { return strings.TrimSpace(s[key]) }

// Duration parses key as a time.Duration; an empty value is zero.
func (s Settings) Duration(key string) (time.Duration, error) {
	v := s.Get(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Int parses key as a decimal integer; an empty value is zero.
func (s Settings) Int(key string) (int, error) {
	v := s.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// Backend is a build-time plugin that can open a storage.CAS implementation.
//
// Backends register themselves in init() and are linked into a binary by a
// (usually blank) import of the backend package.
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Options     []Option

	// Open constructs the CAS. Every declared option is present in s, holding
	// its default when unset. The returned close function may be nil.
	Open func(s Settings) (storage.CAS, func() error, error)
}

func (b Backend) option(key string) (Option, bool) {
	for _, o := range b.Options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

// FlagName is the command-line flag for option key of this backend.
func (b Backend) FlagName(key string) string { return b.Name + "-" + key }

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}
	seen := map[string]bool{}
	for _, o := range b.Options {
		if o.Key == "" || seen[o.Key] {
			return fmt.Errorf("casregistry: backend %q has an empty or duplicate option %q", b.Name, o.Key)
		}
		seen[o.Key] = true
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend with s. Keys not declared by the backend are
// rejected; missing keys take their defaults.
func Open(name string, usage Usage, s Settings) (storage.CAS, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	full := make(Settings, len(b.Options))
	for _, o := range b.Options {
		full[o.Key] = o.Default
	}
	for k, v := range s {
		if _, ok := b.option(k); !ok {
			return nil, nil, fmt.Errorf("backend %q has no option %q", name, k)
		}
		if v != "" {
			full[k] = v
		}
	}
	return b.Open(full)
}

func lookup(name string, usage Usage) (Backend, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return Backend{}, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return Backend{}, fmt.Errorf("backend %q not supported in this binary", name)
	}
	return b, nil
}

// Flags holds backend option values bound to a flag.FlagSet.
type Flags struct {
	usage  Usage
	values map[string]map[string]*string
}

// BindFlags registers --<backend>-<key> on fs for every backend matching
// usage, so a single Parse accepts the options of whichever backend is chosen.
func BindFlags(fs *flag.FlagSet, usage Usage) *Flags {
	f := &Flags{usage: usage, values: map[string]map[string]*string{}}
	for _, b := range List(usage) {
		vals := make(map[string]*string, len(b.Options))
		for _, o := range b.Options {
			help := o.Help
			if help == "" {
				help = o.Key
			}
			vals[o.Key] = fs.String(b.FlagName(o.Key), o.Default, fmt.Sprintf("%s (for --backend=%s)", help, b.Name))
		}
		f.values[b.Name] = vals
	}
	return f
}

// Open opens the named backend from the parsed flag values.
func (f *Flags) Open(name string) (storage.CAS, func() error, error) {
	s := Settings{}
	for k, v := range f.values[name] {
		s[k] = *v
	}
	return Open(name, f.usage, s)
}
