package badgerstore

import (
	"flag"
	"fmt"

	"xdao.co/acttoken/storage"
	"xdao.co/acttoken/storage/registry"
)

var (
	flagDir  string
	flagSync bool
)

func init() {
	registry.MustRegister(registry.Plugin{
		Name:        "badger",
		Description: "Embedded BadgerDB store (directory)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "badger-dir", "", "Badger directory (for --backend=badger)")
			fs.BoolVar(&flagSync, "badger-sync", false, "fsync Badger writes")
		},
		Open: func() (storage.Backend, func() error, error) {
			if flagDir == "" {
				return nil, nil, fmt.Errorf("missing --badger-dir")
			}
			s, err := Open(Config{Path: flagDir, SyncWrites: flagSync})
			if err != nil {
				return nil, nil, err
			}
			return s, s.Close, nil
		},
	})
}
