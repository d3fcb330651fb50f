package gateway

import (
	"net/http"

	"xdao.co/certanchor/storage"
	"xdao.co/certanchor/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "gateway",
		Description: "IPFS trustless HTTP gateway (read-only)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Key: "url", Help: "Gateway base URL"},
			{Key: "timeout", Default: "30s", Help: "Per-request timeout"},
		},
		Open: func(s casregistry.Settings) (storage.CAS, func() error, error) {
			timeout, err := s.Duration("timeout")
			if err != nil {
				return nil, nil, err
			}
			opts := Options{BaseURL: s.Get("url")}
			if timeout > 0 {
				opts.Client = &http.Client{Timeout: timeout}
			}
			cas, err := New(opts)
			if err != nil {
				return nil, nil, err
			}
			return cas, nil, nil
		},
	})
}
