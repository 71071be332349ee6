// Package registry is a build-time plugin registry for storage
// backends.
//
// In Go, "plugins" are linked at build time: a backend registers itself
// via init(), and is enabled in a binary by importing the backend
// package (often as a blank import).
package registry

import (
	"flag"
	"fmt"
	"sort"
	"sync"

	"xdao.co/acttoken/storage"
)

// Plugin describes a backend that can be opened by name.
//
// Backends typically register themselves in init():
//
//	registry.MustRegister(registry.Plugin{ ... })
//
// The binary must import the backend package for registration to occur.
type Plugin struct {
	Name        string
	Description string
	Usage       Usage

	// RegisterFlags adds backend-specific flags to fs. The flag
	// variables are shared across flag sets, so values set on any set
	// are visible to Open.
	RegisterFlags func(fs *flag.FlagSet)

	// Open constructs the backend using values parsed into flags
	// registered by RegisterFlags. It returns an optional close
	// function.
	Open func() (storage.Backend, func() error, error)
}

var (
	mu      sync.RWMutex
	plugins = map[string]Plugin{}
)

// Register registers a backend plugin.
func Register(p Plugin) error {
	if p.Name == "" {
		return fmt.Errorf("registry: backend name is required")
	}
	if p.RegisterFlags == nil {
		return fmt.Errorf("registry: backend %q missing RegisterFlags", p.Name)
	}
	if p.Open == nil {
		return fmt.Errorf("registry: backend %q missing Open", p.Name)
	}
	if p.Usage == 0 {
		return fmt.Errorf("registry: backend %q missing Usage", p.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := plugins[p.Name]; exists {
		return fmt.Errorf("registry: backend %q already registered", p.Name)
	}
	plugins[p.Name] = p
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(p Plugin) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// List returns plugins matching usage, sorted by name.
func List(usage Usage) []Plugin {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Plugin, 0, len(plugins))
	for _, p := range plugins {
		if p.Usage.allows(usage) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns plugin names matching usage, sorted.
func Names(usage Usage) []string {
	ps := List(usage)
	n := make([]string, 0, len(ps))
	for _, p := range ps {
		n = append(n, p.Name)
	}
	return n
}

// RegisterFlags registers flags for all plugins matching usage.
//
// This enables single-pass flag parsing (Go's flag package rejects
// unknown flags).
func RegisterFlags(fs *flag.FlagSet, usage Usage) {
	for _, p := range List(usage) {
		p.RegisterFlags(fs)
	}
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage) (storage.Backend, func() error, error) {
	mu.RLock()
	p, ok := plugins[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
	if !p.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("backend %q not supported in this binary", name)
	}
	return p.Open()
}

// OpenWithConfig opens the named backend with flag values supplied as a
// map, keyed by flag name. This is the config-file path into the same
// plugin machinery the CLI flags use.
func OpenWithConfig(name string, usage Usage, config map[string]string) (storage.Backend, func() error, error) {
	mu.RLock()
	p, ok := plugins[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
	if !p.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("backend %q not supported in this binary", name)
	}

	fs := flag.NewFlagSet("registry:"+name, flag.ContinueOnError)
	p.RegisterFlags(fs)
	for k, v := range config {
		if err := fs.Set(k, v); err != nil {
			return nil, nil, fmt.Errorf("backend %q: config key %q: %w", name, k, err)
		}
	}
	return p.Open()
}
