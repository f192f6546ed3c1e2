package muesli

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// DescriptorFactory builds and caches one TypeDescriptor per Go type.
//
// DescriptorFactory is safe for concurrent use: concurrent lookups of a type
// not yet described share a single build.
type DescriptorFactory struct {
	attrs  *AttributeRegistry
	naming NamingConvention
	policy MemberPolicy

	mu    sync.RWMutex
	cache map[reflect.Type]*TypeDescriptor
	group singleflight.Group

	hits   atomic.Int64
	builds atomic.Int64
}

// FactoryStats reports cache activity of a DescriptorFactory.
type FactoryStats struct {
	Hits   int64
	Builds int64
}

// NewDescriptorFactory returns an empty factory. A nil attrs uses
// DefaultAttributes; a nil naming keeps Go names.
func NewDescriptorFactory(attrs *AttributeRegistry, naming NamingConvention, policy MemberPolicy) *DescriptorFactory {
	if attrs == nil {
		attrs = DefaultAttributes()
	}
	if naming == nil {
		naming = DefaultNaming
	}
	return &DescriptorFactory{
		attrs:  attrs,
		naming: naming,
		policy: policy,
		cache:  make(map[reflect.Type]*TypeDescriptor),
	}
}

// Find returns the initialized descriptor of t.
func (f *DescriptorFactory) Find(t reflect.Type) (*TypeDescriptor, error) {
	d, _, err := f.find(t)
	return d, err
}

// Stats returns the cache counters.
func (f *DescriptorFactory) Stats() FactoryStats {
	return FactoryStats{Hits: f.hits.Load(), Builds: f.builds.Load()}
}

// find returns the descriptor of t and whether this call built it.
func (f *DescriptorFactory) find(t reflect.Type) (*TypeDescriptor, bool, error) {
	if t == nil {
		return nil, false, errors.Wrap(ErrUnresolvedType, "nil type")
	}

	// Fast path: read-lock cache check
	f.mu.RLock()
	d, ok := f.cache[t]
	f.mu.RUnlock()
	if ok {
		f.hits.Inc()
		return d, false, d.Initialize()
	}

	// Slow path: one build per type, failures are not cached
	built := false
	v, err, _ := f.group.Do(fmt.Sprintf("%p", t), func() (any, error) {
		f.mu.RLock()
		d, ok := f.cache[t]
		f.mu.RUnlock()
		if ok {
			return d, nil
		}

		start := time.Now()
		d, err := f.build(t)
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.cache[t] = d
		f.mu.Unlock()

		built = true
		f.builds.Inc()
		emitDescriptorBuilt(context.Background(), t.String(), d.category.String(), time.Since(start))
		return d, nil
	})
	if err != nil {
		return nil, false, err
	}

	d = v.(*TypeDescriptor)
	return d, built, d.Initialize()
}
