package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"fyne.io/fyne/v2"

	"CanvasBoard/internal/applog"
	"CanvasBoard/internal/config"
	"CanvasBoard/internal/export"
	boardnet "CanvasBoard/internal/net"
	"CanvasBoard/internal/render"
	"CanvasBoard/internal/selection"
	"CanvasBoard/internal/state"
	"CanvasBoard/internal/surface"
	"CanvasBoard/internal/ui"
)

var windowSize = fyne.NewSize(1024, 768)

func main() {
	cfg, err := config.Load(config.Path())
	applog.Init(os.Stderr, cfg.Log.Level)
	log := applog.WithComponent("main")
	if err != nil {
		log.Warn("settings not loaded, using defaults", slog.Any("err", err))
	}

	args := os.Args
	switch {
	case len(args) > 1 && args[1] == "browse":
		browse()
	case len(args) > 1 && strings.HasPrefix(args[1], boardnet.LinkScheme):
		runViewer(cfg, args[1])
	default:
		runHost(cfg)
	}
}

func newSurface(cfg *config.Config, m *state.Model) (*surface.Surface, *render.Renderer) {
	fallback := fyne.NewSize(float32(cfg.Layout.FallbackWidth), float32(cfg.Layout.FallbackHeight))
	s := surface.New(m, selection.NewCoordinator(m), state.NewLayout(fallback), surface.OptionsFrom(cfg))
	r := render.New(s)
	s.SetSnapshotter(r)
	return s, r
}

func runHost(cfg *config.Config) {
	log := applog.WithComponent("main")
	log.Info("starting as host")

	m := state.NewModel()
	s, r := newSurface(cfg, m)
	defer s.Close()
	exporter := export.NewExporter(export.NewStore(cfg.Storage), cfg.Storage.PDF)

	var shareLink string
	if cfg.Mirror.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		hub := boardnet.NewHub(m, s)
		go func() {
			if err := hub.Serve(ctx, fmt.Sprintf(":%d", cfg.Mirror.Port)); err != nil {
				log.Error("mirror stopped", slog.Any("err", err))
			}
		}()

		if cfg.Mirror.Advertise {
			srv, err := boardnet.Advertise(cfg.Mirror.Port)
			if err != nil {
				log.Warn("mDNS advertise failed", slog.Any("err", err))
			} else {
				defer srv.Shutdown()
			}
		}

		ip, err := boardnet.OutgoingIP()
		if err != nil {
			log.Warn("no local address for share link", slog.Any("err", err))
		} else {
			shareLink = boardnet.ShareLink(ip, cfg.Mirror.Port)
			log.Info("share link ready", slog.String("link", shareLink))
		}
	}

	ui.RunApp(s, r, ui.Options{
		Title:     "CanvasBoard",
		Size:      windowSize,
		ShareLink: shareLink,
		Exporter:  exporter,
	})
}

func runViewer(cfg *config.Config, link string) {
	log := applog.WithComponent("main")
	addr, err := boardnet.ParseLink(link)
	if err != nil {
		log.Error("cannot follow", slog.Any("err", err))
		os.Exit(2)
	}
	log.Info("starting as viewer", slog.String("host", addr))

	m := state.NewModel()
	s, r := newSurface(cfg, m)
	defer s.Close()

	ui.RunApp(s, r, ui.Options{
		Title:    "CanvasBoard - viewing " + addr,
		Size:     windowSize,
		ReadOnly: true,
		Follow: func(ctx context.Context) error {
			return boardnet.Follow(ctx, addr, m)
		},
	})
}

func browse() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	hosts, err := boardnet.Browse(ctx, 2*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "browse:", err)
		os.Exit(1)
	}
	if len(hosts) == 0 {
		fmt.Println("no boards found")
		return
	}
	for _, h := range hosts {
		fmt.Println(boardnet.LinkScheme + h)
	}
}
