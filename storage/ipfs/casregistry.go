package ipfs

import (
	"os"

	"xdao.co/certanchor/storage"
	"xdao.co/certanchor/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repository via the ipfs CLI",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Key: "bin", Default: "ipfs", Help: "Path to the ipfs binary"},
			{Key: "path", Help: "IPFS_PATH for the Kubo repo"},
			{Key: "pin", Default: "true", Help: "Pin documents after put"},
		},
		Open: func(s casregistry.Settings) (storage.CAS, func() error, error) {
			opts := Options{Bin: s.Get("bin"), Pin: s.Get("pin") != "false"}
			if repo := s.Get("path"); repo != "" {
				opts.Env = append(os.Environ(), "IPFS_PATH="+repo)
			}
			return New(opts), nil, nil
		},
	})
}
