package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/inventory-gateway/internal/auth"
	"github.com/nerrad567/inventory-gateway/internal/bus"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/config"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/database"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/inventory-gateway/internal/live"
	"github.com/nerrad567/inventory-gateway/internal/store"
	"github.com/nerrad567/inventory-gateway/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// testEnv bundles a server with the store and bus behind it.
type testEnv struct {
	srv   *Server
	store *store.Store
	bus   *bus.Bus
}

// testServer creates a Server over an in-memory store, a local bus and the
// default resource table. An empty secret disables auth.
func testServer(t *testing.T, secret string) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	st := store.New(db.DB)
	b := bus.New(bus.NewLocalBroker(), "test/bus", 0)

	reg, err := live.BuildRegistry(nil, config.BusConfig{Resource: "mq", DefaultExchange: "on.events"}, st, b, log)
	if err != nil {
		t.Fatalf("BuildRegistry() error: %v", err)
	}
	hub := live.NewHub()
	hub.SetLogger(log)
	dispatcher := live.NewDispatcher(reg)
	dispatcher.SetLogger(log)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     64,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: secret, AccessTokenTTL: 15},
		},
		Logger:     log,
		Store:      st,
		Bus:        b,
		Hub:        hub,
		Dispatcher: dispatcher,
		DB:         db,
		MQTT:       nil, // local bus
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup

	return &testEnv{srv: srv, store: st, bus: b}
}

// do runs one request through the router.
func (e *testEnv) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	code, _ := decodeBody(t, rec)["code"].(string)
	return code
}

func testToken(t *testing.T, scopes ...auth.Scope) string {
	t.Helper()
	token, err := auth.GenerateToken("tester", testSecret, 15, scopes...)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	return token
}

// ─── Health, Metrics and Middleware ─────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t, "")

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	checks, _ := body["checks"].(map[string]any)
	if checks["store"] != "ok" || checks["bus"] != "local" {
		t.Errorf("checks = %v, want store ok and bus local", checks)
	}
}

func TestMetrics(t *testing.T) {
	env := testServer(t, "")

	rec := env.do(t, http.MethodGet, "/api/v1/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var m SystemMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding metrics: %v", err)
	}
	if m.Version != "test" {
		t.Errorf("Version = %q, want test", m.Version)
	}
	if m.WebSocket.Sessions != 0 {
		t.Errorf("Sessions = %d, want 0", m.WebSocket.Sessions)
	}
	if _, ok := m.Store.Observers["nodes"]; !ok {
		t.Errorf("Observers missing nodes: %v", m.Store.Observers)
	}
	if !m.Bus.Enabled || !m.Bus.Local {
		t.Errorf("Bus = %+v, want enabled local bus", m.Bus)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	env := testServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := testServer(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/collections/nodes", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := testServer(t, "")

	rec := env.do(t, http.MethodGet, "/api/v1/nothing-here", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// ─── Collections ────────────────────────────────────────────────────

func TestCollectionCRUD(t *testing.T) {
	env := testServer(t, "")

	rec := env.do(t, http.MethodPost, "/api/v1/collections/nodes", `{"name":"compute-1","type":"compute"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("created record has no id: %v", created)
	}
	if created["createdAt"] == nil || created["updatedAt"] == nil {
		t.Errorf("created record lacks timestamps: %v", created)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/collections/nodes/"+id, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["name"]; got != "compute-1" {
		t.Errorf("name = %v, want compute-1", got)
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/collections/nodes/"+id, `{"name":"compute-2","type":null}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody(t, rec)
	if updated["name"] != "compute-2" {
		t.Errorf("name = %v, want compute-2", updated["name"])
	}
	if _, ok := updated["type"]; ok {
		t.Errorf("type should be removed, got %v", updated["type"])
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/collections/nodes/"+id, "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/collections/nodes/"+id, "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	rec = env.do(t, http.MethodDelete, "/api/v1/collections/nodes/"+id, "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	rec = env.do(t, http.MethodPatch, "/api/v1/collections/nodes/"+id, `{"name":"x"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("update after delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListRecordsWithFilter(t *testing.T) {
	env := testServer(t, "")
	ctx := context.Background()

	for _, doc := range []map[string]any{
		{"name": "a", "type": "compute"},
		{"name": "b", "type": "switch"},
		{"name": "c", "type": "compute"},
	} {
		if _, err := env.store.Insert(ctx, "nodes", doc); err != nil {
			t.Fatalf("Insert() error: %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/collections/nodes", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["count"]; got != float64(3) {
		t.Errorf("count = %v, want 3", got)
	}

	q := url.QueryEscape(`{"type":"compute"}`)
	rec = env.do(t, http.MethodGet, "/api/v1/collections/nodes?q="+q, "", "")
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("filtered count = %v, want 2", body["count"])
	}
	items, _ := body["items"].([]any)
	for _, item := range items {
		if item.(map[string]any)["type"] != "compute" {
			t.Errorf("unexpected item %v", item)
		}
	}
}

func TestListRecordsRejectsBadFilter(t *testing.T) {
	env := testServer(t, "")

	tests := []struct {
		name string
		q    string
	}{
		{"not json", "{"},
		{"unknown operator", `{"type":{"$regex":"x"}}`},
		{"top-level operator", `{"$where":"1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/collections/nodes?q="+url.QueryEscape(tt.q), "", "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestEmptyCollectionListsNoItems(t *testing.T) {
	env := testServer(t, "")

	rec := env.do(t, http.MethodGet, "/api/v1/collections/skus", "", "")
	body := decodeBody(t, rec)
	items, ok := body["items"].([]any)
	if !ok || len(items) != 0 {
		t.Errorf("items = %v, want empty array", body["items"])
	}
}

func TestCreateRecordConflict(t *testing.T) {
	env := testServer(t, "")

	body := `{"id":"node-1","name":"a"}`
	if rec := env.do(t, http.MethodPost, "/api/v1/collections/nodes", body, ""); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/collections/nodes", body, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second create status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestCreateRecordInvalidBody(t *testing.T) {
	env := testServer(t, "")

	for _, body := range []string{"not json", "null", "[1,2]"} {
		rec := env.do(t, http.MethodPost, "/api/v1/collections/nodes", body, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestUnservedCollection(t *testing.T) {
	env := testServer(t, "")

	rec := env.do(t, http.MethodGet, "/api/v1/collections/widgets", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if code := errorCode(t, rec); code != ErrCodeUnknownResource {
		t.Errorf("code = %q, want %q", code, ErrCodeUnknownResource)
	}
}

// ─── Auth ───────────────────────────────────────────────────────────

func TestAuthRequired(t *testing.T) {
	env := testServer(t, testSecret)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/api/v1/health", "", "", http.StatusOK},
		{"list without token", http.MethodGet, "/api/v1/collections/nodes", "", "", http.StatusUnauthorized},
		{"list with garbage token", http.MethodGet, "/api/v1/collections/nodes", "", "garbage", http.StatusUnauthorized},
		{"list with read token", http.MethodGet, "/api/v1/collections/nodes", "", testToken(t, auth.ScopeRead), http.StatusOK},
		{"list with scopeless token", http.MethodGet, "/api/v1/collections/nodes", "", testToken(t), http.StatusOK},
		{"create with read token", http.MethodPost, "/api/v1/collections/nodes", `{"name":"a"}`, testToken(t, auth.ScopeRead), http.StatusForbidden},
		{"create with write token", http.MethodPost, "/api/v1/collections/nodes", `{"name":"a"}`, testToken(t, auth.ScopeWrite), http.StatusCreated},
		{"publish with read token", http.MethodPost, "/api/v1/exchanges/on.events/publish", `{"routingKey":"a"}`, testToken(t, auth.ScopeRead), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.target, tt.body, tt.token)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestAuthTokenFromQuery(t *testing.T) {
	env := testServer(t, testSecret)

	target := "/api/v1/collections/nodes?access_token=" + testToken(t, auth.ScopeRead)
	rec := env.do(t, http.MethodGet, target, "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// ─── Exchanges ──────────────────────────────────────────────────────

func TestPublish(t *testing.T) {
	env := testServer(t, "")

	got := make(chan bus.Message, 1)
	sub, err := env.bus.Subscribe("on.events", "node.#", func(msg bus.Message) { got <- msg })
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Dispose()

	rec := env.do(t, http.MethodPost, "/api/v1/exchanges/on.events/publish",
		`{"routingKey":"node.discovered","payload":{"id":"n1"}}`, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	select {
	case msg := <-got:
		if msg.RoutingKey != "node.discovered" {
			t.Errorf("RoutingKey = %q, want node.discovered", msg.RoutingKey)
		}
		data, _ := msg.Data().(map[string]any)
		if data["id"] != "n1" {
			t.Errorf("Data() = %v, want id n1", msg.Data())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestPublishValidation(t *testing.T) {
	env := testServer(t, "")

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"invalid json", "/api/v1/exchanges/on.events/publish", "{"},
		{"missing routing key", "/api/v1/exchanges/on.events/publish", `{"payload":1}`},
		{"reserved exchange", "/api/v1/exchanges/$sys/publish", `{"routingKey":"a"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.target, tt.body, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

// ─── WebSocket ──────────────────────────────────────────────────────

// dialWS opens a WebSocket against a live test server.
func dialWS(t *testing.T, ts *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial(%s) error: %v (status %d)", path, err, status)
	}
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // Test cleanup
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("WriteMessage() error: %v", err)
	}
}

func frameID(frame map[string]any) []any {
	id, _ := frame["id"].([]any)
	return id
}

func TestWebSocketSessionFirst(t *testing.T) {
	env := testServer(t, "")
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	conn := dialWS(t, ts, "/api/v1/ws", nil)
	frame := readFrame(t, conn)
	if frame["handler"] != "session" {
		t.Fatalf("first frame = %v, want session", frame)
	}
	if id, _ := frame["id"].(string); id == "" {
		t.Errorf("session frame has no id: %v", frame)
	}

	writeFrame(t, conn, `{"handler":"init"}`)
	again := readFrame(t, conn)
	if again["handler"] != "session" || again["id"] != frame["id"] {
		t.Errorf("init reply = %v, want the same session id", again)
	}
}

func TestWebSocketWatchSeesRESTWrites(t *testing.T) {
	env := testServer(t, "")
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	// The last path segment is the default resource.
	conn := dialWS(t, ts, "/api/v1/ws/nodes", nil)
	readFrame(t, conn)
	writeFrame(t, conn, `{"handler":"watch"}`)

	// Wait for the watch to register before writing.
	deadline := time.Now().Add(2 * time.Second)
	for env.store.ObserverCount("nodes") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watch never registered an observer")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/collections/nodes", `{"id":"n1","name":"compute-1"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	frame := readFrame(t, conn)
	if frame["handler"] != "item" || frame["resource"] != "nodes" {
		t.Fatalf("frame = %v, want item on nodes", frame)
	}
	if id := frameID(frame); len(id) != 2 || id[0] != "created" || id[1] != "n1" {
		t.Errorf("id = %v, want [created n1]", frame["id"])
	}

	env.do(t, http.MethodDelete, "/api/v1/collections/nodes/n1", "", "")
	frame = readFrame(t, conn)
	if frame["handler"] != "remove" || frame["id"] != "n1" {
		t.Errorf("frame = %v, want remove n1", frame)
	}

	writeFrame(t, conn, `{"handler":"stop"}`)
	deadline = time.Now().Add(2 * time.Second)
	for env.store.ObserverCount("nodes") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stop did not release the observer")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketBackfillFromHeader(t *testing.T) {
	env := testServer(t, "")
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.store.SetClock(func() time.Time { return base.Add(-time.Hour) })
	if _, err := env.store.Insert(ctx, "nodes", map[string]any{"id": "old"}); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	env.store.SetClock(func() time.Time { return base })
	if _, err := env.store.Insert(ctx, "nodes", map[string]any{"id": "recent"}); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	env.store.SetClock(time.Now)

	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	header := http.Header{}
	header.Set(HeaderLastUpdated, base.Add(-time.Minute).Format(time.RFC3339Nano))
	conn := dialWS(t, ts, "/api/v1/ws", header)
	readFrame(t, conn)

	writeFrame(t, conn, `{"handler":"watch","resource":"nodes"}`)
	frame := readFrame(t, conn)
	if id := frameID(frame); len(id) != 2 || id[0] != "created" || id[1] != "recent" {
		t.Fatalf("backfill frame = %v, want created recent", frame)
	}

	// A live write after backfill arrives next; the old record never does.
	if _, err := env.store.Insert(ctx, "nodes", map[string]any{"id": "live"}); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	frame = readFrame(t, conn)
	if id := frameID(frame); len(id) != 2 || id[1] != "live" {
		t.Errorf("frame = %v, want created live", frame)
	}
}

func TestWebSocketInvalidResource(t *testing.T) {
	env := testServer(t, "")
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	conn := dialWS(t, ts, "/api/v1/ws", nil)
	readFrame(t, conn)

	// The bare path leaves "ws" as the default resource.
	writeFrame(t, conn, `{"handler":"all"}`)
	frame := readFrame(t, conn)
	params, _ := frame["params"].(map[string]any)
	if frame["handler"] != "error" || params["code"] != "invalid_resource" || params["status"] != float64(404) {
		t.Errorf("frame = %v, want invalid_resource error", frame)
	}

	// The session survives the error.
	writeFrame(t, conn, `{"handler":"all","resource":"nodes"}`)
	frame = readFrame(t, conn)
	if frame["handler"] != "list" {
		t.Errorf("frame = %v, want list", frame)
	}
}

func TestWebSocketAuth(t *testing.T) {
	env := testServer(t, testSecret)
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws/nodes"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("Dial() without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake response = %v, want 401", resp)
	}

	conn := dialWS(t, ts, "/api/v1/ws/nodes?access_token="+testToken(t, auth.ScopeRead), nil)
	if frame := readFrame(t, conn); frame["handler"] != "session" {
		t.Errorf("first frame = %v, want session", frame)
	}
}

func TestWebSocketCloseReleasesWatches(t *testing.T) {
	env := testServer(t, "")
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	conn := dialWS(t, ts, "/api/v1/ws/nodes", nil)
	readFrame(t, conn)
	writeFrame(t, conn, `{"handler":"watch"}`)
	writeFrame(t, conn, `{"handler":"watch","resource":"mq"}`)

	deadline := time.Now().Add(2 * time.Second)
	for env.store.ObserverCount("nodes") == 0 || env.bus.FilterCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watches never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close() //nolint:errcheck // Closing to trigger cleanup

	deadline = time.Now().Add(2 * time.Second)
	for env.store.ObserverCount("nodes") != 0 || env.srv.hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("close left observers=%d sessions=%d",
				env.store.ObserverCount("nodes"), env.srv.hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	env.bus.Wait()
	if n := env.bus.FilterCount(); n != 0 {
		t.Errorf("FilterCount() = %d after close, want 0", n)
	}
}

// ─── Transport ──────────────────────────────────────────────────────

func TestWSTransportBufferFull(t *testing.T) {
	tr := newWSTransport(nil, 1)

	if err := tr.Send([]byte("a")); err != nil {
		t.Fatalf("first Send() error: %v", err)
	}
	if err := tr.Send([]byte("b")); !errors.Is(err, errSendBufferFull) {
		t.Errorf("second Send() error = %v, want %v", err, errSendBufferFull)
	}

	if err := tr.Terminate(); err != nil {
		t.Fatalf("Terminate() error: %v", err)
	}
	if err := tr.Terminate(); err != nil {
		t.Fatalf("second Terminate() error: %v", err)
	}
	if err := tr.Send([]byte("c")); !errors.Is(err, errTransportClosed) {
		t.Errorf("Send() after Terminate error = %v, want %v", err, errTransportClosed)
	}
}

func TestWSTransportDefaultBuffer(t *testing.T) {
	tr := newWSTransport(nil, 0)
	if cap(tr.send) != defaultSendBuffer {
		t.Errorf("cap = %d, want %d", cap(tr.send), defaultSendBuffer)
	}
}
