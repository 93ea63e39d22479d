package config

import (
	"fmt"
	"sync/atomic"
)

// Holder keeps the active Config and swaps it atomically on Reload.
type Holder struct {
	cur  atomic.Pointer[Config]
	path string
}

// NewHolder returns a Holder serving cfg, reloading from path.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cur.Store(cfg)
	return h
}

// Get returns the active Config. Callers must not mutate it.
func (h *Holder) Get() *Config {
	return h.cur.Load()
}

// Reload re-reads defaults < YAML < ENV. On failure the active Config is
// kept and the error returned.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return fmt.Errorf("reload %s: %w", h.path, err)
	}
	h.cur.Store(cfg)
	return nil
}
