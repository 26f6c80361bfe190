package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Disposer is an underlying feed subscription. Dispose must be idempotent
// and must not block.
type Disposer interface {
	Dispose()
}

// event is one translated feed notification waiting to be sent.
type event struct {
	key       string
	updatedAt time.Time
	// live events that restate a backfilled version are dropped; destroy
	// events are never dropped.
	dedupe bool
	frame  any
}

// backfillFunc returns the catch-up events for a watcher, oldest first.
type backfillFunc func(ctx context.Context) ([]event, error)

// Watcher owns one feed subscription for one session.
//
// Feed callbacks only append to an unbounded queue; the pump goroutine
// sends backfill first and then drains the queue in arrival order.
type Watcher struct {
	session  *Session
	resource string
	backfill backfillFunc

	mu     sync.Mutex
	handle Disposer
	queue  []event

	signal   chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
	disposed atomic.Bool
}

func newWatcher(s *Session, resource string) *Watcher {
	return &Watcher{
		session:  s,
		resource: resource,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Resource returns the name of the resource being watched.
func (w *Watcher) Resource() string { return w.resource }

// attach binds the feed subscription. A watcher disposed before attach
// releases the handle immediately.
func (w *Watcher) attach(h Disposer) {
	w.mu.Lock()
	w.handle = h
	w.mu.Unlock()
	if w.disposed.Load() {
		h.Dispose()
	}
}

// push queues an event from the feed callback without blocking.
func (w *Watcher) push(ev event) {
	if w.disposed.Load() {
		return
	}
	w.mu.Lock()
	w.queue = append(w.queue, ev)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *Watcher) take() []event {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := w.queue
	w.queue = nil
	return batch
}

// start launches the pump. Dispose cancels ctx for an in-flight backfill.
func (w *Watcher) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	if w.disposed.Load() {
		cancel()
		return
	}
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	defer w.stopContext()
	defer func() {
		if r := recover(); r != nil {
			w.session.hub.logger.Error("watcher panic recovered",
				"session_id", w.session.id,
				"resource", w.resource,
				"panic", r,
			)
			w.Dispose()
		}
	}()

	seen := w.replayBackfill(ctx)

	for {
		select {
		case <-w.done:
			return
		case <-w.signal:
		}

		for _, ev := range w.take() {
			if at, ok := seen[ev.key]; ok {
				if ev.dedupe && !ev.updatedAt.After(at) {
					continue
				}
				delete(seen, ev.key)
			}
			if !w.emit(ev) {
				return
			}
		}
	}
}

// replayBackfill sends the catch-up events and returns the version sent for
// each key, so live events queued meanwhile can be deduplicated.
func (w *Watcher) replayBackfill(ctx context.Context) map[string]time.Time {
	if w.backfill == nil {
		return nil
	}

	started := time.Now()
	events, err := w.backfill(ctx)
	if err != nil {
		w.session.hub.logger.Error("backfill failed",
			"session_id", w.session.id,
			"resource", w.resource,
			"error", err,
		)
		if !w.disposed.Load() {
			w.session.sendError(w.resource, err)
		}
		return nil
	}

	seen := make(map[string]time.Time, len(events))
	for _, ev := range events {
		if !w.emit(ev) {
			return nil
		}
		seen[ev.key] = ev.updatedAt
	}
	w.session.hub.telemetry.BackfillCompleted(w.resource, len(events), time.Since(started))
	return seen
}

// emit sends one frame unless the watcher has been disposed.
func (w *Watcher) emit(ev event) bool {
	if w.disposed.Load() {
		return false
	}
	return w.session.Send(ev.frame) == nil
}

// Dispose releases the feed subscription and stops the pump. It is
// idempotent, never blocks and is safe to call from a feed callback.
func (w *Watcher) Dispose() {
	if !w.disposed.CompareAndSwap(false, true) {
		return
	}
	close(w.done)

	w.mu.Lock()
	h, cancel := w.handle, w.cancel
	w.queue = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if h != nil {
		h.Dispose()
	}
}

func (w *Watcher) stopContext() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Disposed reports whether Dispose has been called.
func (w *Watcher) Disposed() bool { return w.disposed.Load() }
