package config

import "sync"

// Holder provides thread-safe access to a mutable *Resolved. The serve
// command reads through a shared Holder so SIGHUP reload updates config in
// exactly one place.
type Holder struct {
	mu  sync.RWMutex
	cfg *Resolved
}

// NewHolder creates a Holder with the initial resolved config.
func NewHolder(cfg *Resolved) *Holder {
	return &Holder{cfg: cfg}
}

// Config returns the current config snapshot. Callers must not mutate it.
func (h *Holder) Config() *Resolved {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Update replaces the config.
func (h *Holder) Update(cfg *Resolved) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}
