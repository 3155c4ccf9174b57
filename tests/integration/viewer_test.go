//go:build integration

package integration

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/postview/internal/testutil"
	"github.com/Sternrassler/postview/internal/web"
	"github.com/Sternrassler/postview/pkg/client"
	"github.com/Sternrassler/postview/pkg/render"
	"github.com/Sternrassler/postview/pkg/viewer"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// stack is a web server backed by a Redis-cached client and a mock upstream.
type stack struct {
	upstream *testutil.MockUpstream
	server   *web.Server
	http     *httptest.Server
}

func newStack(t *testing.T, rdb *redis.Client, posts int) *stack {
	t.Helper()

	upstream := testutil.NewMockUpstream(testutil.GeneratePosts(posts))

	cfg := client.DefaultConfig()
	cfg.Endpoint = upstream.PostsURL()
	cfg.Redis = rdb
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	vc := viewer.DefaultConfig()
	vc.SkeletonDelay = 0
	vc.CloseDelay = 20 * time.Millisecond

	srv := web.NewServer(web.DefaultConfig(), c, vc, rdb, zerolog.Nop())
	hs := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		hs.Close()
		srv.Hub().CloseAll()
		c.Close()
		upstream.Close()
	})
	return &stack{upstream: upstream, server: srv, http: hs}
}

func (s *stack) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, pred func(web.FrameMessage) bool) web.FrameMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg web.FrameMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if pred(msg) {
			return msg
		}
	}
}

func loaded(m web.FrameMessage) bool { return m.View == render.Loaded.String() }

func TestViewer_SessionsShareCache(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	s := newStack(t, rdb, 15)

	first := readUntil(t, s.dial(t), loaded)
	second := readUntil(t, s.dial(t), loaded)

	if first.Session == second.Session {
		t.Error("each connection should get its own session")
	}
	if first.List != second.List {
		t.Error("both sessions should render the same first page")
	}
	if got := s.upstream.GetRequestCount(); got != 2 {
		t.Errorf("upstream requests = %d, want 2", got)
	}
	if got := s.upstream.GetConditionalCount(); got != 1 {
		t.Errorf("conditional requests = %d, want 1 (second session revalidates)", got)
	}
}

func TestViewer_RefreshPicksUpChanges(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	s := newStack(t, rdb, 6)
	conn := s.dial(t)

	msg := readUntil(t, conn, loaded)
	if msg.Pagination != "" {
		t.Errorf("one page should draw no pagination, got %q", msg.Pagination)
	}

	s.upstream.SetPosts(testutil.GeneratePosts(13))
	conn.WriteJSON(web.InboundMessage{Type: web.MsgRefresh})

	msg = readUntil(t, conn, func(m web.FrameMessage) bool { return loaded(m) && m.TotalPages == 3 })
	if msg.Page != 1 {
		t.Errorf("Page after refresh = %d, want 1", msg.Page)
	}
	if !strings.Contains(msg.Pagination, `aria-current="page"`) {
		t.Error("pagination should mark the current page")
	}
}

func TestViewer_DetailCycleOverWebSocket(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	s := newStack(t, rdb, 9)
	conn := s.dial(t)
	readUntil(t, conn, loaded)

	conn.WriteJSON(web.InboundMessage{Type: web.MsgSelect, ID: 4})
	open := readUntil(t, conn, func(m web.FrameMessage) bool { return m.ScrollLocked })
	if !strings.Contains(open.Overlay, `data-phase="open"`) {
		t.Errorf("overlay = %q, want open phase", open.Overlay)
	}

	conn.WriteJSON(web.InboundMessage{Type: web.MsgClose, Trigger: "button"})
	closing := readUntil(t, conn, func(m web.FrameMessage) bool {
		return strings.Contains(m.Overlay, `data-phase="closing"`)
	})
	if !closing.ScrollLocked {
		t.Error("scroll should stay locked during the exit transition")
	}

	closed := readUntil(t, conn, func(m web.FrameMessage) bool { return !m.ScrollLocked })
	if !strings.Contains(closed.Overlay, `data-phase="closed"`) {
		t.Errorf("overlay = %q, want closed phase", closed.Overlay)
	}
}

func TestViewer_RateLimitedUpstream(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	s := newStack(t, rdb, 0)
	s.upstream.SetResponse(testutil.PostsPath, testutil.NewRateLimitResponse())

	conn := s.dial(t)
	msg := readUntil(t, conn, func(m web.FrameMessage) bool { return m.View == render.Failed.String() })
	if !strings.Contains(msg.Error, "HTTP 429") {
		t.Errorf("Error = %q, want HTTP 429", msg.Error)
	}

	conn.WriteJSON(web.InboundMessage{Type: web.MsgRefresh})
	msg = readUntil(t, conn, func(m web.FrameMessage) bool { return m.View == render.Failed.String() })
	if got := s.upstream.GetRequestCount(); got != 1 {
		t.Errorf("upstream requests = %d, want 1 (second fetch blocked locally)", got)
	}
	if msg.List != "" {
		t.Errorf("List = %q, want empty on failure", msg.List)
	}
}
