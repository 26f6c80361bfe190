package live

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/inventory-gateway/internal/bus"
	"github.com/nerrad567/inventory-gateway/internal/store"
)

// Resource is one named entry of the registry. Every operation reports
// failures by returning an error; the dispatcher turns it into an error
// frame for the resource.
type Resource interface {
	Name() string
	Query(ctx context.Context, s *Session, f Frame) error
	All(ctx context.Context, s *Session, f Frame) error
	Get(ctx context.Context, s *Session, f Frame) error
	Watch(ctx context.Context, s *Session, f Frame) error
	Stop(ctx context.Context, s *Session, f Frame) error
}

// Store is the document store as seen by collection resources.
// It is satisfied by *store.Store.
type Store interface {
	Find(ctx context.Context, collection string, q store.Query) ([]store.Record, error)
	FindOne(ctx context.Context, collection string, q store.Query) (store.Record, error)
	FindSince(ctx context.Context, collection string, q store.Query, since time.Time) ([]store.Record, error)
	Observe(collection string, q store.Query, fn func(store.Change)) (store.Handle, error)
}

// Bus is the pub/sub bus as seen by bus resources.
// It is satisfied by *bus.Bus.
type Bus interface {
	Subscribe(exchange, pattern string, fn func(bus.Message)) (*bus.Subscription, error)
}

// Registry maps resource names to resources. It is immutable once built and
// safe to share between goroutines.
type Registry struct {
	resources map[string]Resource
	names     []string
}

// NewRegistry builds a registry. Names must be non-empty and unique.
func NewRegistry(resources ...Resource) (*Registry, error) {
	r := &Registry{resources: make(map[string]Resource, len(resources))}
	for _, res := range resources {
		name := res.Name()
		if name == "" {
			return nil, errors.New("registering resource: empty name")
		}
		if _, dup := r.resources[name]; dup {
			return nil, fmt.Errorf("registering resource %q: duplicate name", name)
		}
		r.resources[name] = res
		r.names = append(r.names, name)
	}
	slices.Sort(r.names)
	return r, nil
}

// Lookup returns the resource registered under name.
func (r *Registry) Lookup(name string) (Resource, bool) {
	res, ok := r.resources[name]
	return res, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Collections returns the distinct store collections served by the registry.
func (r *Registry) Collections() []string {
	var out []string
	for _, name := range r.names {
		c, ok := r.resources[name].(*CollectionResource)
		if !ok || slices.Contains(out, c.spec.Collection) {
			continue
		}
		out = append(out, c.spec.Collection)
	}
	slices.Sort(out)
	return out
}
