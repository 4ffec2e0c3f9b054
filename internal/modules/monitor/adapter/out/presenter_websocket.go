package out

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"appguard/internal/modules/monitor/domain"
)

const (
	overlayWriteWait  = 5 * time.Second
	overlayPongWait   = time.Minute
	overlayPingEvery  = overlayPongWait * 9 / 10
	overlaySendBuffer = 8
	overlayReadLimit  = 512
)

// OverlayHub streams alerts to overlay clients connected on /alerts. It is
// both an http.Handler and a presentation channel; presenting with no client
// connected fails so the dispatcher falls back.
type OverlayHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*overlayClient]struct{}
}

type overlayClient struct {
	conn *websocket.Conn
	send chan domain.Alert
}

func NewOverlayHub(logger *slog.Logger) *OverlayHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverlayHub{
		upgrader: websocket.Upgrader{CheckOrigin: isOverlayOriginAllowed},
		logger:   logger.With("component", "overlay_hub"),
		clients:  map[*overlayClient]struct{}{},
	}
}

func (h *OverlayHub) Name() string {
	return "websocket"
}

func (h *OverlayHub) Supports(domain.PayloadKind) bool {
	return true
}

func (h *OverlayHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *OverlayHub) Present(_ context.Context, alert domain.Alert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return fmt.Errorf("%w: no overlay client connected", domain.ErrPresentationFailure)
	}
	delivered := 0
	for c := range h.clients {
		select {
		case c.send <- alert:
			delivered++
		default:
			h.logger.Warn("overlay client is not keeping up, alert skipped", "remote", c.conn.RemoteAddr().String())
		}
	}
	if delivered == 0 {
		return fmt.Errorf("%w: every overlay client is backed up", domain.ErrPresentationFailure)
	}
	return nil
}

func (h *OverlayHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("overlay upgrade failed", "error", err)
		return
	}
	c := &overlayClient{conn: conn, send: make(chan domain.Alert, overlaySendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("overlay client connected", "remote", conn.RemoteAddr().String())

	done := make(chan struct{})
	go h.writeLoop(c, done)
	h.readLoop(c)
	close(done)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = conn.Close()
	h.logger.Info("overlay client disconnected", "remote", conn.RemoteAddr().String())
}

// readLoop only watches for close frames and pongs.
func (h *OverlayHub) readLoop(c *overlayClient) {
	c.conn.SetReadLimit(overlayReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(overlayPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(overlayPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *OverlayHub) writeLoop(c *overlayClient, done <-chan struct{}) {
	ping := time.NewTicker(overlayPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case alert := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(overlayWriteWait))
			if err := c.conn.WriteJSON(alert); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(overlayWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func isOverlayOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}
