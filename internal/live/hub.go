package live

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub is the session table of one server instance.
//
// All public methods are thread-safe.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	logger    Logger
	telemetry Telemetry
	newID     func() string
}

// NewHub creates an empty session table.
func NewHub() *Hub {
	return &Hub{
		sessions:  make(map[string]*Session),
		logger:    noopLogger{},
		telemetry: noopTelemetry{},
		newID:     uuid.NewString,
	}
}

// SetLogger sets the logger for the hub and its sessions.
func (h *Hub) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.logger = logger
}

// SetTelemetry sets the metrics sink. Nil disables telemetry.
func (h *Hub) SetTelemetry(t Telemetry) {
	if t == nil {
		t = noopTelemetry{}
	}
	h.telemetry = t
}

// Accept registers a new session for transport and sends its session frame,
// which is always the first frame the client receives.
func (h *Hub) Accept(transport Transport, opts SessionOptions) (*Session, error) {
	s := &Session{
		hub:       h,
		transport: transport,
		opts:      opts,
		opened:    time.Now(),
	}

	h.mu.Lock()
	for {
		s.id = h.newID()
		if _, taken := h.sessions[s.id]; !taken && s.id != "" {
			break
		}
	}
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.telemetry.SessionOpened(s.id)
	h.logger.Debug("session opened", "session_id", s.id, "resource", opts.DefaultResource)

	if err := s.sendSession(); err != nil {
		return nil, fmt.Errorf("announcing session: %w", err)
	}
	return s, nil
}

// Session returns the live session with id.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll closes every session. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[s.id] == s {
		delete(h.sessions, s.id)
	}
}
