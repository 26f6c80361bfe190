package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/inventory-gateway/internal/bus"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/config"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/database"
	"github.com/nerrad567/inventory-gateway/internal/store"
	"github.com/nerrad567/inventory-gateway/migrations"
)

var errTransportDown = errors.New("transport down")

// fakeTransport records decoded frames.
type fakeTransport struct {
	mu         sync.Mutex
	frames     []map[string]any
	failSend   error
	terminated int
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSend != nil {
		return t.failSend
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	t.frames = append(t.frames, m)
	return nil
}

func (t *fakeTransport) Terminate() error {
	t.mu.Lock()
	t.terminated++
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) fail(err error) {
	t.mu.Lock()
	t.failSend = err
	t.mu.Unlock()
}

func (t *fakeTransport) snapshot() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, len(t.frames))
	copy(out, t.frames)
	return out
}

func (t *fakeTransport) terminations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminated
}

// waitFrames polls until at least n frames arrived.
func waitFrames(t *testing.T, tr *fakeTransport, n int) []map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		frames := tr.snapshot()
		if len(frames) >= n {
			return frames
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames, got %d: %v", n, len(frames), frames)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// findFrame returns the first frame matching handler and id.
func findFrame(frames []map[string]any, handler string, id any) (map[string]any, bool) {
	want, _ := json.Marshal(id)
	for _, f := range frames {
		got, _ := json.Marshal(f["id"])
		if f["handler"] == handler && string(got) == string(want) {
			return f, true
		}
	}
	return nil, false
}

// testStore opens an in-memory database with the real migrations applied.
func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store.New(db.DB)
}

// countingStore counts bounded catch-up queries.
type countingStore struct {
	*store.Store
	mu        sync.Mutex
	sinceHits int
}

func (c *countingStore) FindSince(ctx context.Context, collection string, q store.Query, since time.Time) ([]store.Record, error) {
	c.mu.Lock()
	c.sinceHits++
	c.mu.Unlock()
	return c.Store.FindSince(ctx, collection, q, since)
}

func (c *countingStore) hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinceHits
}

// fixture wires a store, a local bus and the default registry.
type fixture struct {
	store      *countingStore
	bus        *bus.Bus
	hub        *Hub
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := &countingStore{Store: testStore(t)}
	b := bus.New(bus.NewLocalBroker(), "test/bus", 0)

	reg, err := BuildRegistry(nil, config.BusConfig{Resource: "mq", DefaultExchange: "on.events"}, st, b, nil)
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}

	hub := NewHub()
	t.Cleanup(hub.CloseAll)
	return &fixture{store: st, bus: b, hub: hub, dispatcher: NewDispatcher(reg)}
}

// connect accepts a session and consumes its session frame.
func (f *fixture) connect(t *testing.T, opts SessionOptions) (*Session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	s, err := f.hub.Accept(tr, opts)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	waitFrames(t, tr, 1)
	return s, tr
}

func (f *fixture) send(t *testing.T, s *Session, frame string) {
	t.Helper()
	f.dispatcher.Handle(context.Background(), s, []byte(frame))
}
