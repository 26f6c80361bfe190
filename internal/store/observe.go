package store

import (
	"sync/atomic"
)

type observer struct {
	id         uint64
	collection string
	query      Query
	fn         func(Change)
	disposed   atomic.Bool
	store      *Store
}

// Dispose stops further deliveries. Safe to call repeatedly and from fn.
func (o *observer) Dispose() {
	if !o.disposed.CompareAndSwap(false, true) {
		return
	}
	o.store.removeObserver(o)
}

// Observe calls fn for every change in collection whose new or previous
// version matches q. fn runs synchronously inside the write that caused the
// change and must hand the event off without blocking.
func (s *Store) Observe(collection string, q Query, fn func(Change)) (Handle, error) {
	if err := checkArgs(collection, q); err != nil {
		return nil, err
	}

	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	s.nextID++
	o := &observer{id: s.nextID, collection: collection, query: q, fn: fn, store: s}
	if s.observers[collection] == nil {
		s.observers[collection] = make(map[uint64]*observer)
	}
	s.observers[collection][o.id] = o
	return o, nil
}

// ObserverCount returns the number of live observations on collection.
func (s *Store) ObserverCount(collection string) int {
	s.observersMu.RLock()
	defer s.observersMu.RUnlock()
	return len(s.observers[collection])
}

func (s *Store) removeObserver(o *observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	delete(s.observers[o.collection], o.id)
	if len(s.observers[o.collection]) == 0 {
		delete(s.observers, o.collection)
	}
}

// notify delivers a committed change. Called with writeMu held.
func (s *Store) notify(change Change) {
	s.observersMu.RLock()
	targets := make([]*observer, 0, len(s.observers[change.Collection]))
	for _, o := range s.observers[change.Collection] {
		targets = append(targets, o)
	}
	s.observersMu.RUnlock()

	if len(targets) == 0 {
		return
	}

	current := change.Record.Document()
	var previous map[string]any
	if change.Kind == Updated {
		previous = change.Previous.Document()
	}

	for _, o := range targets {
		if o.disposed.Load() {
			continue
		}
		if !Match(current, o.query) && (previous == nil || !Match(previous, o.query)) {
			continue
		}
		s.deliver(o, change)
	}
}

func (s *Store) deliver(o *observer, change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store observer panic recovered",
				"collection", change.Collection,
				"id", change.Record.ID,
				"panic", r,
			)
		}
	}()
	o.fn(change)
}
