package livefeed

import (
	"net/http"
	"sync"
	"time"

	"camcast/internal/core/domain"
	"camcast/internal/core/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// ClientMetrics counts connected feed consumers. Satisfied by the
// prometheus collector; nil disables reporting.
type ClientMetrics interface {
	RecordLiveFeedClientConnected()
	RecordLiveFeedClientDisconnected()
}

// snapshotMessage is one push to a feed consumer: the complete current
// set of live broadcasts. Consumers replace their previous list
// wholesale on every message.
type snapshotMessage struct {
	Type       string                      `json:"type"`
	Broadcasts []services.BroadcastSummary `json:"broadcasts"`
	Timestamp  int64                       `json:"timestamp"`
}

// FeedServer pushes live broadcast snapshots to websocket consumers.
// Every consumer sees every change as a whole-list replacement; there
// is no per-row patching on the wire.
type FeedServer struct {
	mirror  *services.Mirror
	metrics ClientMetrics

	mu      sync.Mutex
	clients int

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

func NewFeedServer(mirror *services.Mirror, metrics ClientMetrics, logger *zap.SugaredLogger) *FeedServer {
	return &FeedServer{
		mirror:       mirror,
		metrics:      metrics,
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *FeedServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *FeedServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
}

// SetWriteTimeout sets write timeout for WebSocket connections
func (s *FeedServer) SetWriteTimeout(timeout time.Duration) {
	s.writeTimeout = timeout
}

// ClientCount reports the number of connected consumers.
func (s *FeedServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

// HandleWebSocket upgrades the request and streams snapshots until the
// consumer disconnects. viewer is the authenticated identity when
// present; it only affects the "mine" flag on rows.
func (s *FeedServer) HandleWebSocket(w http.ResponseWriter, r *http.Request, viewer domain.UserID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.mirror.Subscribe()
	defer cancel()

	s.clientConnected(viewer)
	defer s.clientDisconnected(viewer)

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	// Reader goroutine only watches for the close handshake; consumers
	// never send application messages.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				// Mirror torn down; the server is shutting down.
				return
			}
			if err := s.writeSnapshot(conn, snapshot, viewer); err != nil {
				s.logger.Debugw("feed write failed", "error", err)
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debugw("feed consumer read error", "error", err)
			}
			return
		}
	}
}

func (s *FeedServer) writeSnapshot(conn *websocket.Conn, snapshot domain.LiveSnapshot, viewer domain.UserID) error {
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteJSON(snapshotMessage{
		Type:       "broadcasts",
		Broadcasts: services.SummarizeLive(snapshot, viewer),
		Timestamp:  time.Now().Unix(),
	})
}

func (s *FeedServer) clientConnected(viewer domain.UserID) {
	s.mu.Lock()
	s.clients++
	count := s.clients
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordLiveFeedClientConnected()
	}
	s.logger.Infow("live feed consumer connected", "viewer", viewer, "clients", count)
}

func (s *FeedServer) clientDisconnected(viewer domain.UserID) {
	s.mu.Lock()
	s.clients--
	count := s.clients
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordLiveFeedClientDisconnected()
	}
	s.logger.Infow("live feed consumer disconnected", "viewer", viewer, "clients", count)
}
