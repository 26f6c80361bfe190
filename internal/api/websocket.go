package api

import (
	"context"
	"errors"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/inventory-gateway/internal/infrastructure/config"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/inventory-gateway/internal/live"
)

// WebSocket constants.
const (
	// HeaderLastUpdated carries the client's last-seen time on the upgrade request.
	HeaderLastUpdated = "X-Last-Updated"
	// QueryLastUpdated is the query parameter fallback for HeaderLastUpdated.
	QueryLastUpdated = "lastUpdated"

	// defaultSendBuffer applies when websocket.send_buffer is unset.
	defaultSendBuffer = 256
)

var (
	errTransportClosed = errors.New("websocket transport closed")
	errSendBufferFull  = errors.New("websocket send buffer full")
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsTransport adapts a gorilla connection to live.Transport. Outbound frames
// go through a bounded queue drained by writePump; a full queue fails the
// send, which closes the session.
type wsTransport struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn, buffer int) *wsTransport {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &wsTransport{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Send queues data without blocking.
func (t *wsTransport) Send(data []byte) error {
	select {
	case <-t.done:
		return errTransportClosed
	default:
	}

	select {
	case t.send <- data:
		return nil
	case <-t.done:
		return errTransportClosed
	default:
		return errSendBufferFull
	}
}

// Terminate stops writePump, which sends a close frame and closes the socket.
func (t *wsTransport) Terminate() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// handleWebSocket upgrades the connection and attaches it to the live layer.
// The final path segment becomes the session's default resource.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	opts := live.SessionOptions{
		DefaultResource: path.Base(r.URL.Path),
		LastSeen:        r.Header.Get(HeaderLastUpdated),
	}
	if opts.LastSeen == "" {
		opts.LastSeen = r.URL.Query().Get(QueryLastUpdated)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	t := newWSTransport(conn, s.wsCfg.SendBuffer)
	go t.writePump(s.wsCfg)

	session, err := s.hub.Accept(t, opts)
	if err != nil {
		s.logger.Warn("websocket session rejected", "error", err)
		t.Terminate() //nolint:errcheck // Terminate never fails
		return
	}

	logger := s.logger.With("session_id", session.ID())
	if claims := claimsFromContext(r.Context()); claims != nil {
		logger = logger.With("subject", claims.Subject)
	}
	logger.Debug("websocket session opened", "resource", opts.DefaultResource)

	go s.readPump(session, t, logger)
}

// readPump feeds inbound frames to the dispatcher, one at a time, until the
// connection fails. Any read error closes the session.
func (s *Server) readPump(session *live.Session, t *wsTransport, logger *logging.Logger) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	defer func() {
		cancel()
		session.Close()
	}()

	cfg := s.wsCfg
	if cfg.MaxMessageSize > 0 {
		t.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	if pingInterval > 0 {
		//nolint:errcheck // Best-effort deadline on connection setup
		t.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		t.conn.SetPongHandler(func(string) error {
			return t.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		})
	}

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "error", err)
			} else {
				logger.Debug("websocket closed", "error", err)
			}
			return
		}
		if pingInterval > 0 {
			// Any client message resets the read deadline.
			//nolint:errcheck // Best-effort deadline reset
			t.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		}
		s.dispatcher.Handle(ctx, session, message)
	}
}

// writePump writes queued frames and keepalive pings until Terminate.
func (t *wsTransport) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer t.conn.Close()

	for {
		select {
		case <-t.done:
			t.flush(writeWait)
			//nolint:errcheck // Best-effort close message
			t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case message := <-t.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				t.Terminate() //nolint:errcheck // Terminate never fails
				return
			}
		case <-tick:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.Terminate() //nolint:errcheck // Terminate never fails
				return
			}
		}
	}
}

// flush writes frames queued before Terminate, so an error frame sent just
// before a close still reaches the client.
func (t *wsTransport) flush(writeWait time.Duration) {
	for {
		select {
		case message := <-t.send:
			//nolint:errcheck // Best-effort deadline
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
