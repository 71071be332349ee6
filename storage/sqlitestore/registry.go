package sqlitestore

import (
	"flag"
	"fmt"

	"xdao.co/acttoken/storage"
	"xdao.co/acttoken/storage/registry"
)

var flagPath string

func init() {
	registry.MustRegister(registry.Plugin{
		Name:        "sqlite",
		Description: "SQLite store (database file)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagPath, "sqlite-path", "", "SQLite database file (for --backend=sqlite)")
		},
		Open: func() (storage.Backend, func() error, error) {
			if flagPath == "" {
				return nil, nil, fmt.Errorf("missing --sqlite-path")
			}
			s, err := Open(Config{Path: flagPath})
			if err != nil {
				return nil, nil, err
			}
			return s, s.Close, nil
		},
	})
}
