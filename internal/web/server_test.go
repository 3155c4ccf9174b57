package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/postview/internal/testutil"
	"github.com/Sternrassler/postview/pkg/client"
	"github.com/Sternrassler/postview/pkg/viewer"
)

// newTestServer serves posts from a mock upstream through the real client.
func newTestServer(t *testing.T, posts int, rdb *redis.Client) (*Server, *testutil.MockUpstream) {
	t.Helper()

	upstream := testutil.NewMockUpstream(testutil.GeneratePosts(posts))
	t.Cleanup(upstream.Close)

	cfg := client.DefaultConfig()
	cfg.Endpoint = upstream.PostsURL()
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	vc := viewer.DefaultConfig()
	vc.SkeletonDelay = 0
	vc.CloseDelay = 0

	return NewServer(DefaultConfig(), c, vc, rdb, zerolog.Nop()), upstream
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, 1, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", w.Body.String())
	}
}

func TestReadyEndpoint_WithoutRedis(t *testing.T) {
	s, _ := newTestServer(t, 1, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["redis"] != "disabled" {
		t.Errorf("redis = %q, want disabled", body["redis"])
	}
}

func TestReadyEndpoint_RedisUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer rdb.Close()

	s, _ := newTestServer(t, 1, rdb)
	s.config.ReadyTimeout = 200 * time.Millisecond

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, 1, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "postview_sessions_active") {
		t.Error("metrics should expose postview_sessions_active")
	}
}

func TestIndexPage(t *testing.T) {
	s, _ := newTestServer(t, 1, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, id := range []string{`id="list"`, `id="pagination"`, `id="error"`, `id="overlay"`, "/ws"} {
		if !strings.Contains(body, id) {
			t.Errorf("index page missing %s", id)
		}
	}
}

// dial opens a websocket session against server.
func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until pred matches.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(FrameMessage) bool) FrameMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg FrameMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if pred(msg) {
			return msg
		}
	}
}

func TestWebSocket_Session(t *testing.T) {
	s, _ := newTestServer(t, 15, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()
	defer s.Hub().CloseAll()

	conn := dial(t, server)

	loaded := readUntil(t, conn, func(m FrameMessage) bool { return m.View == "loaded" })
	if loaded.Session == "" {
		t.Error("frames should carry the session id")
	}
	if got := strings.Count(loaded.List, "<article"); got != 6 {
		t.Errorf("cards = %d, want 6", got)
	}
	if loaded.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", loaded.TotalPages)
	}

	if err := conn.WriteJSON(InboundMessage{Type: MsgPage, Page: "next"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	page2 := readUntil(t, conn, func(m FrameMessage) bool { return m.Page == 2 })
	if !page2.ScrollTop {
		t.Error("page change should scroll to top")
	}
	if !strings.Contains(page2.List, `data-record="7"`) {
		t.Error("page 2 should start with record 7")
	}

	conn.WriteJSON(InboundMessage{Type: MsgSelect, ID: 8})
	open := readUntil(t, conn, func(m FrameMessage) bool { return m.ScrollLocked })
	if !strings.Contains(open.Overlay, "Post #8") {
		t.Errorf("overlay = %q, want record 8", open.Overlay)
	}

	conn.WriteJSON(InboundMessage{Type: MsgKey, Key: "Escape"})
	closed := readUntil(t, conn, func(m FrameMessage) bool { return !m.ScrollLocked })
	if !strings.Contains(closed.Overlay, "hidden") {
		t.Errorf("overlay = %q, want hidden", closed.Overlay)
	}
}

func TestWebSocket_UpstreamFailure(t *testing.T) {
	s, upstream := newTestServer(t, 0, nil)
	upstream.SetResponse(testutil.PostsPath, testutil.NewServerErrorResponse())

	server := httptest.NewServer(s.Handler())
	defer server.Close()
	defer s.Hub().CloseAll()

	conn := dial(t, server)
	msg := readUntil(t, conn, func(m FrameMessage) bool { return m.View == "error" })

	if !strings.Contains(msg.Error, "HTTP 500") {
		t.Errorf("Error = %q, want HTTP 500", msg.Error)
	}
	if msg.Pagination != "" {
		t.Errorf("Pagination = %q, want empty", msg.Pagination)
	}
}

func TestHub_CloseAll(t *testing.T) {
	s, _ := newTestServer(t, 3, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dial(t, server)
	readUntil(t, conn, func(m FrameMessage) bool { return m.View == "loaded" })

	if s.Hub().Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Hub().Len())
	}

	done := make(chan struct{})
	go func() {
		s.Hub().CloseAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("CloseAll() did not return")
	}
	if s.Hub().Len() != 0 {
		t.Errorf("Len() after CloseAll = %d, want 0", s.Hub().Len())
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("read after CloseAll: %v, want normal closure", err)
		}
		break
	}
}

func TestHub_RefusesSessionsAfterCloseAll(t *testing.T) {
	s, _ := newTestServer(t, 3, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	s.Hub().CloseAll()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("Dial() after CloseAll succeeded, want refusal")
	}
	if resp == nil {
		t.Fatalf("Dial() error = %v, want an HTTP refusal", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if s.Hub().Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Hub().Len())
	}

	// A second CloseAll has nothing left to wait for
	done := make(chan struct{})
	go func() {
		s.Hub().CloseAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second CloseAll() did not return")
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s, _ := newTestServer(t, 1, nil)
	s.httpServer.Addr = "127.0.0.1:0"

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start() error = %v, want nil after Shutdown", err)
	}
}
