package localfs

import (
	"xdao.co/certanchor/storage"
	"xdao.co/certanchor/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem document store (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options:     []casregistry.Option{{Key: "dir", Help: "Document store directory"}},
		Open: func(s casregistry.Settings) (storage.CAS, func() error, error) {
			cas, err := New(s.Get("dir"))
			if err != nil {
				return nil, nil, err
			}
			return cas, nil, nil
		},
	})
}
