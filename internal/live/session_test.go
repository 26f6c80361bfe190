package live

import (
	"context"
	"errors"
	"testing"
)

func TestAcceptUniqueIDs(t *testing.T) {
	hub := NewHub()
	ids := []string{"dup", "dup", "dup", "fresh"}
	hub.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	s1, err := hub.Accept(&fakeTransport{}, SessionOptions{})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	s2, err := hub.Accept(&fakeTransport{}, SessionOptions{})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if s1.ID() != "dup" || s2.ID() != "fresh" {
		t.Errorf("ids = %q, %q", s1.ID(), s2.ID())
	}
	if hub.Count() != 2 {
		t.Errorf("Count() = %d, want 2", hub.Count())
	}
	if got, ok := hub.Session("fresh"); !ok || got != s2 {
		t.Error("Session(fresh) not found")
	}
}

func TestAcceptSendFailure(t *testing.T) {
	hub := NewHub()
	tr := &fakeTransport{failSend: errTransportDown}

	if _, err := hub.Accept(tr, SessionOptions{}); !errors.Is(err, ErrSendFailure) {
		t.Errorf("Accept() error = %v, want ErrSendFailure", err)
	}
	if hub.Count() != 0 {
		t.Errorf("Count() = %d, want 0", hub.Count())
	}
	if tr.terminations() != 1 {
		t.Errorf("terminations = %d, want 1", tr.terminations())
	}
}

func TestAddRemoveWatchers(t *testing.T) {
	hub := NewHub()
	s, err := hub.Accept(&fakeTransport{}, SessionOptions{})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	handles := make([]*countingHandle, 3)
	add := func(i int, p Params) {
		handles[i] = &countingHandle{}
		w := newWatcher(s, "nodes")
		w.attach(handles[i])
		if !s.AddWatcher(p, w) {
			t.Fatalf("AddWatcher(%v) = false", p)
		}
	}
	add(0, Params{"nodeId": "A"})
	add(1, Params{"nodeId": "A"})
	add(2, Params{"nodeId": "B"})

	if s.RemoveWatchers(Params{"nodeId": "C"}) {
		t.Error("RemoveWatchers() for an unknown hash = true")
	}
	if !s.RemoveWatchers(Params{"nodeId": "A"}) {
		t.Error("RemoveWatchers(A) = false")
	}
	if handles[0].n.Load() != 1 || handles[1].n.Load() != 1 || handles[2].n.Load() != 0 {
		t.Errorf("disposals = %d %d %d, want 1 1 0", handles[0].n.Load(), handles[1].n.Load(), handles[2].n.Load())
	}
	if s.RemoveWatchers(Params{"nodeId": "A"}) {
		t.Error("second RemoveWatchers(A) = true")
	}
	if s.WatcherCount() != 1 {
		t.Errorf("WatcherCount() = %d, want 1", s.WatcherCount())
	}
}

func TestAddWatcherAfterClose(t *testing.T) {
	hub := NewHub()
	s, err := hub.Accept(&fakeTransport{}, SessionOptions{})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	s.Close()

	h := &countingHandle{}
	w := newWatcher(s, "nodes")
	w.attach(h)
	if s.AddWatcher(Params{}, w) {
		t.Error("AddWatcher() on a closed session = true")
	}
	if h.n.Load() != 1 {
		t.Error("watcher added after close was not disposed")
	}
	if err := s.Send(newSessionFrame("x")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send() after close error = %v, want ErrSessionClosed", err)
	}
}

func TestWatchOnClosedSession(t *testing.T) {
	f := newFixture(t)
	s, _ := f.connect(t, SessionOptions{})
	s.Close()

	res, _ := f.dispatcher.Registry().Lookup("nodes")
	if err := res.Watch(context.Background(), s, Frame{Params: Params{}}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Watch() error = %v, want ErrSessionClosed", err)
	}
	if got := f.store.ObserverCount("nodes"); got != 0 {
		t.Errorf("ObserverCount() = %d, want 0", got)
	}
}

func TestCloseAll(t *testing.T) {
	hub := NewHub()
	for i := 0; i < 3; i++ {
		if _, err := hub.Accept(&fakeTransport{}, SessionOptions{}); err != nil {
			t.Fatalf("Accept() error = %v", err)
		}
	}
	hub.CloseAll()
	if hub.Count() != 0 {
		t.Errorf("Count() = %d, want 0", hub.Count())
	}
}
