// Package storeconfig opens the two storage tiers from a JSON config
// file, with environment-variable overrides.
//
// This provides config-driven runtime backend selection on top of the
// registry. Callers still need to link desired backend plugins via
// blank imports.
//
// Example:
//
//	{
//	  "short_term": {
//	    "backends": [{"name": "memory"}]
//	  },
//	  "persistent": {
//	    "backends": [
//	      {"name": "badger", "config": {"badger-dir": "/var/lib/acttoken"}},
//	      {"name": "grpc", "config": {"grpc-target": "store.internal:7707"}}
//	    ]
//	  }
//	}
//
// A tier with multiple backends reads through them in order
// (storage.Fallback); writes go to the first. Config values are
// backend-specific and mirror the backend's CLI flag names.
package storeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"xdao.co/acttoken/storage"
	"xdao.co/acttoken/storage/registry"
)

// Config describes the backends of both storage tiers.
type Config struct {
	ShortTerm  Tier `json:"short_term"`
	Persistent Tier `json:"persistent"`
}

// Tier is an ordered list of backends serving one tier.
type Tier struct {
	Backends []Backend `json:"backends"`
}

// Backend names a registry plugin and its flag-style configuration.
type Backend struct {
	Name   string            `json:"name"`
	Config map[string]string `json:"config,omitempty"`
}

// envOverrides are applied on top of the loaded file. A backend-name
// override replaces the whole tier with that single backend (its flags
// must then come from the CLI or process flags).
type envOverrides struct {
	ConfigPath        string `env:"ACTTOKEN_STORE_CONFIG"`
	ShortTermBackend  string `env:"ACTTOKEN_SHORT_TERM_BACKEND"`
	PersistentBackend string `env:"ACTTOKEN_PERSISTENT_BACKEND"`
}

// LoadFile reads and validates a config file.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("storeconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("storeconfig: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// FromEnv builds a Config from the environment: the file named by
// ACTTOKEN_STORE_CONFIG (when set), then per-tier backend overrides.
func FromEnv() (Config, error) {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return Config{}, fmt.Errorf("storeconfig: env: %w", err)
	}

	var cfg Config
	if ov.ConfigPath != "" {
		loaded, err := LoadFile(ov.ConfigPath)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if ov.ShortTermBackend != "" {
		cfg.ShortTerm = Tier{Backends: []Backend{{Name: ov.ShortTermBackend}}}
	}
	if ov.PersistentBackend != "" {
		cfg.Persistent = Tier{Backends: []Backend{{Name: ov.PersistentBackend}}}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := c.ShortTerm.validate("short_term"); err != nil {
		return err
	}
	return c.Persistent.validate("persistent")
}

func (t Tier) validate(name string) error {
	if len(t.Backends) == 0 {
		return fmt.Errorf("storeconfig: tier %q needs at least one backend", name)
	}
	for _, b := range t.Backends {
		if b.Name == "" {
			return fmt.Errorf("storeconfig: tier %q has a backend without a name", name)
		}
	}
	return nil
}

// Open opens both tiers. The returned close function releases every
// opened backend in reverse order.
func (c Config) Open(usage registry.Usage) (shortTerm, persistent storage.Backend, closeAll func() error, err error) {
	if err := c.Validate(); err != nil {
		return nil, nil, nil, err
	}

	var closers []func() error
	closeFn := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	shortTerm, err = c.ShortTerm.open(usage, &closers)
	if err != nil {
		_ = closeFn()
		return nil, nil, nil, err
	}
	persistent, err = c.Persistent.open(usage, &closers)
	if err != nil {
		_ = closeFn()
		return nil, nil, nil, err
	}
	return shortTerm, persistent, closeFn, nil
}

func (t Tier) open(usage registry.Usage, closers *[]func() error) (storage.Backend, error) {
	backends := make([]storage.Backend, 0, len(t.Backends))
	for _, b := range t.Backends {
		backend, closeFn, err := registry.OpenWithConfig(b.Name, usage, b.Config)
		if err != nil {
			return nil, err
		}
		backends = append(backends, backend)
		if closeFn != nil {
			*closers = append(*closers, closeFn)
		}
	}
	if len(backends) == 1 {
		return backends[0], nil
	}
	return storage.Fallback{Backends: backends}, nil
}
