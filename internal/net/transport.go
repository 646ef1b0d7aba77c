// Package net mirrors a host's canvas to read-only viewers on the local
// network: a websocket change feed, a PNG snapshot endpoint, and mDNS
// discovery.
package net

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"CanvasBoard/internal/applog"
	"CanvasBoard/internal/state"
	"CanvasBoard/internal/surface"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Capturer flattens the host surface for the snapshot endpoint.
type Capturer interface {
	Capture(ctx context.Context) (image.Image, error)
}

type peer struct {
	conn *websocket.Conn
	send chan state.Change
	addr string
}

// Hub is run by the host. Every connected viewer first receives a sync of
// the whole model, then each change as it is committed.
type Hub struct {
	model    *state.Model
	capturer Capturer
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	peers  map[*peer]struct{}
	closed bool

	cancelSub func()
}

// NewHub returns a hub broadcasting m. capturer may be nil, which disables
// the snapshot endpoint.
func NewHub(m *state.Model, capturer Capturer) *Hub {
	h := &Hub{
		model:    m,
		capturer: capturer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		peers: make(map[*peer]struct{}),
	}
	h.cancelSub = m.Subscribe(h.broadcast)
	return h
}

func (h *Hub) log() *slog.Logger {
	return applog.WithComponent("mirror")
}

// Handler serves /ws and /snapshot.png.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/snapshot.png", h.serveSnapshot)
	return mux
}

// Peers returns the number of connected viewers.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log().Warn("websocket upgrade failed", slog.String("remote", r.RemoteAddr), slog.Any("err", err))
		return
	}
	p := &peer{conn: conn, send: make(chan state.Change, sendBuffer), addr: r.RemoteAddr}

	// The sync and the registration happen under one lock so no change
	// falls between them.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	p.send <- h.model.Snapshot()
	h.peers[p] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	h.log().Info("viewer connected", slog.String("remote", p.addr), slog.Int("peers", n))

	go h.writeLoop(p)
	h.readLoop(p)
}

// readLoop drains control frames until the viewer goes away.
func (h *Hub) readLoop(p *peer) {
	defer h.remove(p)
	p.conn.SetReadLimit(512)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log().Warn("viewer read failed", slog.String("remote", p.addr), slog.Any("err", err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()
	for {
		select {
		case c, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteJSON(c); err != nil {
				h.log().Warn("viewer write failed", slog.String("remote", p.addr), slog.Any("err", err))
				go h.remove(p)
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				go h.remove(p)
				return
			}
		}
	}
}

func (h *Hub) broadcast(c state.Change) {
	var slow []*peer
	h.mu.RLock()
	for p := range h.peers {
		select {
		case p.send <- c:
		default:
			slow = append(slow, p)
		}
	}
	h.mu.RUnlock()
	for _, p := range slow {
		h.log().Warn("dropping slow viewer", slog.String("remote", p.addr))
		h.remove(p)
	}
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	if ok {
		delete(h.peers, p)
		close(p.send)
	}
	n := len(h.peers)
	h.mu.Unlock()
	if ok {
		h.log().Info("viewer disconnected", slog.String("remote", p.addr), slog.Int("peers", n))
	}
}

func (h *Hub) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.capturer == nil {
		http.NotFound(w, r)
		return
	}
	img, err := h.capturer.Capture(r.Context())
	switch {
	case errors.Is(err, surface.ErrCaptureInProgress):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		h.log().Warn("snapshot request failed", slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		h.log().Warn("snapshot encode failed", slog.Any("err", err))
	}
}

// Serve listens on addr until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		h.log().Info("mirror listening", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return fmt.Errorf("mirror server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mirror shutdown: %w", err)
	}
	return nil
}

// Close stops broadcasting and disconnects every viewer.
func (h *Hub) Close() {
	h.cancelSub()
	h.mu.Lock()
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		h.remove(p)
	}
}
