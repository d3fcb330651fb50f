package grpccas

import (
	"fmt"

	"xdao.co/certanchor/storage"
	"xdao.co/certanchor/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "Remote document store (talks to certanchor-casgrpcd)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Key: "target", Help: "gRPC target host:port"},
			{Key: "timeout", Help: "Per-RPC timeout"},
			{Key: "max-msg-bytes", Help: "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults"},
		},
		Open: open,
	})
}

func open(s casregistry.Settings) (storage.CAS, func() error, error) {
	target := s.Get("target")
	if target == "" {
		return nil, nil, fmt.Errorf("grpc: missing target")
	}
	var opts DialOptions
	var err error
	if opts.Timeout, err = s.Duration("timeout"); err != nil {
		return nil, nil, fmt.Errorf("grpc: %w", err)
	}
	if opts.MaxMsgBytes, err = s.Int("max-msg-bytes"); err != nil {
		return nil, nil, fmt.Errorf("grpc: %w", err)
	}
	client, err := Dial(target, opts)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}
