// Package plugin implements the probe's process-plugin framework:
// registration, per-worker cloning, the extension-id table, and the
// ordered invocation of the flow-lifecycle callbacks a PacketPlugin
// exposes.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/otusprobe/flowprobe/internal/core"
)

// Factory builds a fresh, unconfigured plugin instance. Configuration
// injection happens later via Init.
type Factory func() core.PacketPlugin

type registryImpl struct {
	mu      sync.RWMutex
	order   []string
	factory map[string]Factory
	extID   map[string]int
}

var global = &registryImpl{
	factory: make(map[string]Factory),
	extID:   make(map[string]int),
}

// Register adds a plugin factory under name, assigning it the next
// free extension id in registration order. Panics on an empty name, a
// nil factory, or a duplicate name: registration happens from package
// init(), so any of these indicate a build-time bug, not a condition
// callers should recover from.
func Register(name string, factory Factory) {
	if name == "" {
		panic("plugin: name cannot be empty")
	}
	if factory == nil {
		panic("plugin: factory cannot be nil")
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if _, exists := global.factory[name]; exists {
		panic(fmt.Sprintf("plugin: %q already registered", name))
	}
	global.factory[name] = factory
	global.extID[name] = len(global.order)
	global.order = append(global.order, name)
}

// ExtensionID returns the stable extension id assigned to name at
// registration time.
func ExtensionID(name string) (int, error) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	id, ok := global.extID[name]
	if !ok {
		return 0, fmt.Errorf("plugin %q: %w", name, core.ErrPluginNotFound)
	}
	return id, nil
}

// GetFactory returns the factory registered under name.
func GetFactory(name string) (Factory, error) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	factory, ok := global.factory[name]
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", name, core.ErrPluginNotFound)
	}
	return factory, nil
}

// Order returns every registered plugin name in registration order,
// which is also flow-lifecycle callback invocation order.
func Order() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	out := make([]string, len(global.order))
	copy(out, global.order)
	return out
}

// List returns every registered plugin name, sorted.
func List() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	names := make([]string, 0, len(global.factory))
	for name := range global.factory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.order = nil
	global.factory = make(map[string]Factory)
	global.extID = make(map[string]int)
}
