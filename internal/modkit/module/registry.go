package module

import "sync"

// Process wide port registry. Filled during bootstrap in main, read by
// whichever module needs a sibling's ports after construction. Single
// writer at boot, many readers after
var (
	regMu sync.RWMutex
	reg   map[string]any
)

// Register publishes a module's port set under its name.
// Registering a name twice replaces the earlier set
func Register(name string, set any) {
	regMu.Lock()
	defer regMu.Unlock()
	if reg == nil {
		reg = make(map[string]any)
	}
	reg[name] = set
}

// PortsAs looks up name and asserts its port set to T
func PortsAs[T any](name string) (T, bool) {
	regMu.RLock()
	set, ok := reg[name]
	regMu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := set.(T)
	return t, ok
}

// Reset drops everything registered; tests only
func Reset() {
	regMu.Lock()
	reg = nil
	regMu.Unlock()
}
