package memory

import (
	"flag"

	"xdao.co/acttoken/storage"
	"xdao.co/acttoken/storage/registry"
)

func init() {
	registry.MustRegister(registry.Plugin{
		Name:          "memory",
		Description:   "In-memory store (process-local, lost on restart)",
		Usage:         registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {},
		Open: func() (storage.Backend, func() error, error) {
			s := New()
			return s, s.Close, nil
		},
	})
}
