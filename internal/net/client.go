package net

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"CanvasBoard/internal/applog"
	"CanvasBoard/internal/state"
)

// LinkScheme prefixes share links handed to viewers.
const LinkScheme = "canvasboard://"

var ErrBadLink = errors.New("net: malformed share link")

// ShareLink formats the link a viewer opens to follow host:port.
func ShareLink(host string, port int) string {
	return LinkScheme + host + ":" + strconv.Itoa(port)
}

// ParseLink returns the host:port of a share link.
func ParseLink(link string) (string, error) {
	addr, ok := strings.CutPrefix(strings.TrimSpace(link), LinkScheme)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrBadLink, link)
	}
	addr = strings.TrimSuffix(addr, "/")
	if _, err := url.Parse("ws://" + addr); err != nil || addr == "" || !strings.Contains(addr, ":") {
		return "", fmt.Errorf("%w: %q", ErrBadLink, link)
	}
	return addr, nil
}

// Follow connects to the hub at addr and replays its change feed into m
// until ctx is done or the host goes away. Changes older than the last one
// applied are skipped.
func Follow(ctx context.Context, addr string, m *state.Model) error {
	log := applog.WithComponent("viewer").With(slog.String("host", addr))
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()
	log.Info("following host")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	synced := false
	for {
		var c state.Change
		if err := conn.ReadJSON(&c); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("host closed the feed")
				return nil
			}
			return fmt.Errorf("read change: %w", err)
		}
		if c.Type != state.ChangeSync && (!synced || c.Revision <= m.Revision()) {
			log.Debug("skipping stale change", slog.Uint64("revision", c.Revision))
			continue
		}
		if err := m.Apply(c); err != nil {
			log.Warn("change not applied", slog.String("type", string(c.Type)), slog.Any("err", err))
			continue
		}
		synced = true
	}
}
