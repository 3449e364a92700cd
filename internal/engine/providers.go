package engine

import (
	"fmt"
	"sync"
)

var (
	providersMu sync.RWMutex
	providers   = map[string]Dialer{}
)

// RegisterProvider binds a named protocol engine implementation. Providers
// register at program init; the configured name selects one at startup.
func RegisterProvider(name string, d Dialer) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = d
}

// Provider resolves a registered dialer by name.
func Provider(name string) (Dialer, bool) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	d, ok := providers[name]
	return d, ok
}

// ResolveProvider resolves a registered dialer or fails with the known names.
func ResolveProvider(name string) (Dialer, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	if d, ok := providers[name]; ok {
		return d, nil
	}
	known := make([]string, 0, len(providers))
	for k := range providers {
		known = append(known, k)
	}
	return nil, fmt.Errorf("engine: unknown provider %q (registered: %v)", name, known)
}
