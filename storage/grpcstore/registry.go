package grpcstore

import (
	"flag"
	"fmt"
	"time"

	"xdao.co/acttoken/storage"
	"xdao.co/acttoken/storage/registry"
)

var (
	flagTarget  string
	flagTimeout time.Duration
)

func init() {
	registry.MustRegister(registry.Plugin{
		Name:        "grpc",
		Description: "Remote store over gRPC (host:port)",
		Usage:       registry.UsageCLI,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagTarget, "grpc-target", "", "Store service address (for --backend=grpc)")
			fs.DurationVar(&flagTimeout, "grpc-timeout", 5*time.Second, "per-RPC timeout")
		},
		Open: func() (storage.Backend, func() error, error) {
			if flagTarget == "" {
				return nil, nil, fmt.Errorf("missing --grpc-target")
			}
			c, err := Dial(flagTarget, DialOptions{Timeout: flagTimeout})
			if err != nil {
				return nil, nil, err
			}
			return c, c.Close, nil
		},
	})
}
