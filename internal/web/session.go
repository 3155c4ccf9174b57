package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/postview/pkg/client"
	"github.com/Sternrassler/postview/pkg/logging"
	"github.com/Sternrassler/postview/pkg/viewer"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "postview_sessions_active",
		Help: "Open viewer websocket sessions",
	})

	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postview_frames_sent_total",
		Help: "Frames written to viewer websocket sessions",
	})
)

// Hub runs one viewer controller per websocket connection.
type Hub struct {
	upgrader websocket.Upgrader
	fetcher  client.Fetcher
	config   viewer.Config
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closing  bool
	wg       sync.WaitGroup
}

// NewHub creates a hub that serves sessions backed by fetcher.
func NewHub(fetcher client.Fetcher, cfg viewer.Config, logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		fetcher:  fetcher,
		config:   cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// session is one connected page.
type session struct {
	id     string
	conn   *websocket.Conn
	ctrl   *viewer.Controller
	cancel context.CancelFunc
	logger zerolog.Logger

	// latest holds at most one pending frame; newer frames replace it
	latest chan FrameMessage
}

// Present implements viewer.Surface. Frames are full replacements, so a
// slow client only ever gets the newest one.
func (s *session) Present(f viewer.Frame) {
	msg := NewFrameMessage(s.id, f)
	for {
		select {
		case s.latest <- msg:
			return
		default:
		}
		select {
		case old := <-s.latest:
			msg.ScrollTop = msg.ScrollTop || old.ScrollTop
		default:
		}
	}
}

// ServeHTTP upgrades the connection and starts a viewer session.
//
// The session outlives the upgrade request, so it runs on its own context.
// Once CloseAll has started, new upgrades are refused.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isClosing() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		conn:   conn,
		cancel: cancel,
		latest: make(chan FrameMessage, 1),
	}
	s.logger = logging.WithSession(h.logger, s.id)

	ctrl, err := viewer.New(h.fetcher, s, h.config, logging.WithSession(logging.NewLogger("viewer"), s.id))
	if err != nil {
		cancel()
		conn.Close()
		h.logger.Error().Err(err).Msg("Failed to create viewer")
		return
	}
	s.ctrl = ctrl

	// Registration and wg.Add happen under mu so CloseAll either sees the
	// session or this upgrade sees closing.
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		cancel()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.sessions[s.id] = s
	h.wg.Add(3)
	h.mu.Unlock()
	sessionsActive.Inc()

	s.logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("Session opened")

	go func() {
		defer h.wg.Done()
		ctrl.Run(ctx)
	}()
	go func() {
		defer h.wg.Done()
		h.writePump(ctx, s)
	}()
	go func() {
		defer h.wg.Done()
		h.readPump(ctx, s)
	}()
}

// readPump forwards inbound messages to the controller until the client
// goes away.
func (h *Hub) readPump(ctx context.Context, s *session) {
	defer h.remove(s)

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg InboundMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		ev, err := msg.Event()
		if err != nil {
			s.logger.Debug().Err(err).Msg("Ignoring inbound message")
			continue
		}
		if !s.ctrl.Send(ev) || ctx.Err() != nil {
			return
		}
	}
}

// writePump writes frames and keepalive pings. It owns closing the
// connection so the close frame goes out first.
func (h *Hub) writePump(ctx context.Context, s *session) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
			s.conn.WriteMessage(websocket.CloseMessage, msg)
			return
		case msg := <-s.latest:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to write frame")
				s.cancel()
				return
			}
			framesSent.Inc()
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (h *Hub) remove(s *session) {
	s.cancel()

	h.mu.Lock()
	_, ok := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()

	if ok {
		sessionsActive.Dec()
		s.logger.Info().Msg("Session closed")
	}
	<-s.ctrl.Done()
}

// Len returns the number of open sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// CloseAll ends every session and waits for their goroutines. Upgrades
// arriving afterwards are refused.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closing = true
	for _, s := range h.sessions {
		s.cancel()
		// Unblock readPump
		s.conn.SetReadDeadline(time.Now())
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info().Msg("All sessions closed")
}
