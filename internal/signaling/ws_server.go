package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beamdrop/signal-relay/internal/config"
	"github.com/beamdrop/signal-relay/internal/metrics"
	"github.com/beamdrop/signal-relay/internal/origin"
	"github.com/beamdrop/signal-relay/internal/ratelimit"
)

const wsWriteWait = 1 * time.Second

// WebSocketServer owns the signaling endpoint used by browser clients.
//
// Each connection gets an opaque identity, a greeting carrying it, and
// per-connection limits on message size and rate. Inbound frames are
// handed to the Coordinator; the disconnect notification fires exactly
// once when the read loop exits.
type WebSocketServer struct {
	log     *slog.Logger
	cfg     config.Config
	hub     *Hub
	coord   *Coordinator
	metrics *metrics.Metrics

	upgrader websocket.Upgrader
}

func NewWebSocketServer(cfg config.Config, logger *slog.Logger, hub *Hub, coord *Coordinator, m *metrics.Metrics) *WebSocketServer {
	s := &WebSocketServer{
		log:     logger,
		cfg:     cfg,
		hub:     hub,
		coord:   coord,
		metrics: m,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

// checkOrigin applies the same policy as the browser-facing HTTP
// endpoints: no Origin header passes (non-browser clients), otherwise
// the origin must be allowlisted or same-host.
func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return true
	}
	normalized, originHost, ok := origin.Normalize(header)
	if !ok {
		return false
	}
	if !origin.Allowed(normalized, originHost, r.Host, s.cfg.AllowedOrigins) {
		s.log.Warn("websocket origin rejected", "origin", normalized)
		return false
	}
	return true
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	connID := uuid.NewString()
	s.hub.Register(connID, ws)
	defer func() {
		s.coord.HandleDisconnect(connID)
		s.hub.Unregister(connID)
	}()

	s.log.Debug("client connected", "conn_id", connID, "remote_addr", r.RemoteAddr)
	s.hub.Send(connID, EventConnected, connectedPayload{SocketID: connID})

	ws.SetReadLimit(s.cfg.MaxSignalingMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(ws, done)

	limiter := ratelimit.NewTokenBucket(nil,
		int64(s.cfg.MaxSignalingMessagesPerSecond),
		int64(s.cfg.MaxSignalingMessagesPerSecond))

	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			s.log.Debug("client disconnected", "conn_id", connID, "err", err)
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))

		if msgType != websocket.TextMessage {
			writeClose(ws, websocket.CloseUnsupportedData, "expected text message")
			return
		}
		if !limiter.Allow(1) {
			s.metrics.Inc(metrics.MessagesRateLimited)
			s.log.Warn("rate limit exceeded", "conn_id", connID)
			writeClose(ws, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
			s.log.Debug("malformed frame", "conn_id", connID)
			continue
		}
		s.coord.Dispatch(connID, env.Event, env.Data)
	}
}

// pingLoop keeps intermediaries from dropping idle connections. Writes
// go through WriteControl, which is safe alongside the hub's data
// writes.
func (s *WebSocketServer) pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			if err != nil {
				return
			}
		}
	}
}

func writeClose(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
