package live

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Transport is one client channel. Send must be safe for concurrent use and
// must not block; Terminate closes the channel.
type Transport interface {
	Send(data []byte) error
	Terminate() error
}

// SessionOptions carries per-connection values taken from the upgrade request.
type SessionOptions struct {
	// DefaultResource is used when a frame omits its resource.
	DefaultResource string
	// LastSeen is the raw last-seen value from the X-Last-Updated header
	// or the lastUpdated query parameter.
	LastSeen string
}

// watcherGroup holds every watcher registered under one parameter hash.
type watcherGroup struct {
	hash     uint64
	watchers []*Watcher
}

// Session is one live client connection and the watchers it owns.
type Session struct {
	id        string
	hub       *Hub
	transport Transport
	opts      SessionOptions
	opened    time.Time

	sendMu sync.Mutex

	mu     sync.Mutex
	groups []watcherGroup
	closed bool
}

// ID returns the connection id announced in the session frame.
func (s *Session) ID() string { return s.id }

// DefaultResource returns the resource derived from the connection URL.
func (s *Session) DefaultResource() string { return s.opts.DefaultResource }

// LastSeen returns the raw last-seen value supplied at connect time.
func (s *Session) LastSeen() string { return s.opts.LastSeen }

// Send encodes frame and writes it to the transport. A failed send closes
// the session and is never retried.
func (s *Session) Send(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		s.hub.logger.Error("encoding frame failed", "session_id", s.id, "error", err)
		return fmt.Errorf("encoding frame: %w", err)
	}

	s.sendMu.Lock()
	if s.isClosed() {
		s.sendMu.Unlock()
		return ErrSessionClosed
	}
	err = s.transport.Send(data)
	s.sendMu.Unlock()

	if err != nil {
		s.hub.logger.Warn("send failed, closing session", "session_id", s.id, "error", err)
		s.Close()
		return fmt.Errorf("%w: %w", ErrSendFailure, err)
	}
	return nil
}

// sendSession (re)announces the connection id.
func (s *Session) sendSession() error {
	return s.Send(newSessionFrame(s.id))
}

// sendError reports err against resource. Send failures are already handled
// by Send, so the result is dropped.
func (s *Session) sendError(resource string, err error) {
	_ = s.Send(newErrorFrame(resource, err)) //nolint:errcheck // failure closes the session
}

// AddWatcher registers w under the hash of params. A closed session
// disposes w instead and returns false.
func (s *Session) AddWatcher(params Params, w *Watcher) bool {
	hash := params.Hash()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		w.Dispose()
		return false
	}
	for i := range s.groups {
		if s.groups[i].hash == hash {
			s.groups[i].watchers = append(s.groups[i].watchers, w)
			s.mu.Unlock()
			return true
		}
	}
	s.groups = append(s.groups, watcherGroup{hash: hash, watchers: []*Watcher{w}})
	s.mu.Unlock()
	return true
}

// RemoveWatchers disposes every watcher registered under the hash of params
// and reports whether any existed.
func (s *Session) RemoveWatchers(params Params) bool {
	hash := params.Hash()

	s.mu.Lock()
	var removed []*Watcher
	for i := range s.groups {
		if s.groups[i].hash == hash {
			removed = s.groups[i].watchers
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	for _, w := range removed {
		w.Dispose()
	}
	return len(removed) > 0
}

// WatcherCount returns the number of live watchers across all hashes.
func (s *Session) WatcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.groups {
		n += len(g.watchers)
	}
	return n
}

// Close disposes every watcher, leaves the hub and terminates the transport.
// It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	groups := s.groups
	s.groups = nil
	s.mu.Unlock()

	for _, g := range groups {
		for _, w := range g.watchers {
			w.Dispose()
		}
	}

	s.hub.remove(s)
	if err := s.transport.Terminate(); err != nil {
		s.hub.logger.Debug("terminating transport", "session_id", s.id, "error", err)
	}
	s.hub.telemetry.SessionClosed(s.id, time.Since(s.opened))
	s.hub.logger.Debug("session closed", "session_id", s.id)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
