package muesli

import (
	"sync"
)

// factoryKey identifies the configuration a factory describes types under.
type factoryKey struct {
	attrs  *AttributeRegistry
	naming string
}

var (
	factories   = make(map[factoryKey]*DescriptorFactory)
	factoriesMu sync.RWMutex
)

// useFactory returns the shared factory for an attribute registry and naming
// convention, building it on first use. A custom member policy gets a
// private factory: policies are functions and cannot be compared.
func useFactory(attrs *AttributeRegistry, naming NamingConvention, policy MemberPolicy) *DescriptorFactory {
	if attrs == nil {
		attrs = DefaultAttributes()
	}
	if naming == nil {
		naming = DefaultNaming
	}
	if policy != nil {
		return NewDescriptorFactory(attrs, naming, policy)
	}

	key := factoryKey{attrs: attrs, naming: naming.Name()}

	// Fast path: read-lock cache check
	factoriesMu.RLock()
	if cached, ok := factories[key]; ok {
		factoriesMu.RUnlock()
		return cached
	}
	factoriesMu.RUnlock()

	// Slow path: build and cache with write-lock
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	// Double-check pattern
	if cached, ok := factories[key]; ok {
		return cached
	}

	f := NewDescriptorFactory(attrs, naming, nil)
	factories[key] = f
	return f
}

// Reset clears the shared descriptor factories.
// This is primarily useful for test isolation.
func Reset() {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories = make(map[factoryKey]*DescriptorFactory)
}
