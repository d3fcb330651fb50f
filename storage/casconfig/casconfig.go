// Package casconfig selects and combines document-store backends from JSON
// config or a compact environment string.
package casconfig

import (
	"errors"
	"fmt"
	"strings"

	"xdao.co/certanchor/storage"
	"xdao.co/certanchor/storage/casregistry"
)

// WritePolicy decides how a multi-backend store handles Put.
type WritePolicy string

const (
	// WriteFirst writes to the first writable backend (storage.Fallback).
	WriteFirst WritePolicy = "first"
	// WriteAll writes to every writable backend (storage.Replicated).
	WriteAll WritePolicy = "all"
)

// Config lists the backends to open. Backend packages must still be linked
// into the binary with blank imports.
//
//	{
//	  "write_policy": "all",
//	  "backends": [
//	    {"name":"localfs", "config":{"dir":"/var/lib/certanchor/docs"}},
//	    {"name":"grpc", "id":"replica", "config":{"target":"docs.internal:7777"}},
//	    {"name":"gateway", "config":{"url":"https://ipfs.io"}}
//	  ]
//	}
//
// Config keys are the backend's casregistry options (localfs: dir; ipfs: bin,
// path, pin; grpc: target, timeout, max-msg-bytes; gateway: url, timeout).
type Config struct {
	WritePolicy WritePolicy     `json:"write_policy,omitempty"`
	Backends    []BackendConfig `json:"backends"`
}

// Default is a single in-memory backend.
func Default() Config {
	return Config{Backends: []BackendConfig{{Name: "memory"}}}
}

type BackendConfig struct {
	Name string `json:"name"`
	// ID distinguishes two backends of the same kind; it defaults to Name.
	ID     string            `json:"id,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// ParseBackends reads the compact form used by the CAS_BACKENDS environment
// variable: entries separated by ';', each "name[@id][:key=value,...]".
//
//	localfs:dir=/var/docs;gateway@public:url=https://ipfs.io
func ParseBackends(s string) ([]BackendConfig, error) {
	var out []BackendConfig
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		head, opts, _ := strings.Cut(entry, ":")
		name, id, _ := strings.Cut(head, "@")
		b := BackendConfig{Name: strings.TrimSpace(name), ID: strings.TrimSpace(id)}
		for _, kv := range strings.Split(opts, ",") {
			if strings.TrimSpace(kv) == "" {
				continue
			}
			k, v, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("casconfig: backend %q: option %q is not key=value", b.Name, kv)
			}
			if b.Config == nil {
				b.Config = map[string]string{}
			}
			b.Config[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("casconfig: no backends in %q", s)
	}
	return out, nil
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("casconfig: backend name is required")
		}
		if seen[b.id()] {
			return fmt.Errorf("casconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = true
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// ordered returns the backends with preferred (a name or id) moved to the front.
func (c Config) ordered(preferred string) ([]BackendConfig, error) {
	out := append([]BackendConfig(nil), c.Backends...)
	if preferred == "" {
		return out, nil
	}
	for i, b := range out {
		if b.Name == preferred || b.ID == preferred {
			copy(out[1:i+1], out[:i])
			out[0] = b
			return out, nil
		}
	}
	return nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferred)
}

// closers closes in reverse opening order and reports the first failure.
type closers []func() error

func (cs closers) Close() error {
	var firstErr error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open opens every backend and combines them per WritePolicy. A single backend
// is returned as is. When preferred names a backend it is moved first, which
// makes it the write target under WriteFirst.
func (c Config) Open(usage casregistry.Usage, preferred string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	ordered, err := c.ordered(preferred)
	if err != nil {
		return nil, nil, err
	}

	named := make([]storage.NamedCAS, 0, len(ordered))
	var cs closers
	for _, b := range ordered {
		cas, closeFn, err := casregistry.Open(b.Name, usage, b.Config)
		if err != nil {
			_ = cs.Close()
			return nil, nil, fmt.Errorf("casconfig: %s: %w", b.id(), err)
		}
		named = append(named, storage.NamedCAS{Name: b.id(), CAS: cas})
		if closeFn != nil {
			cs = append(cs, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].CAS, cs.Close, nil
	}
	if c.WritePolicy == WriteAll {
		return storage.Replicated{Backends: named}, cs.Close, nil
	}
	return storage.Fallback{Backends: named}, cs.Close, nil
}
