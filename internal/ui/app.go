package ui

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"CanvasBoard/internal/applog"
	"CanvasBoard/internal/export"
	"CanvasBoard/internal/gesture"
	"CanvasBoard/internal/render"
	"CanvasBoard/internal/state"
	"CanvasBoard/internal/surface"
)

// Options configures the window.
type Options struct {
	Title    string
	Size     fyne.Size
	ReadOnly bool
	// ShareLink is shown with a copy button when set.
	ShareLink string
	Exporter  *export.Exporter
	// Follow, when set, runs for the life of the window; viewers use it to
	// stream the host's changes.
	Follow func(ctx context.Context) error
}

// session holds what the toolbar actions act on.
type session struct {
	win      fyne.Window
	board    *BoardWidget
	surface  *surface.Surface
	exporter *export.Exporter
	images   surface.ImageSource
	status   *widget.Label

	nextShape int
	busy      atomic.Bool
}

func (s *session) log() *slog.Logger {
	return applog.WithComponent("ui")
}

func (s *session) setStatus(text string) {
	fyne.Do(func() { s.status.SetText(text) })
}

func (s *session) showError(op string, err error) {
	s.log().Warn(op+" failed", slog.Any("err", err))
	fyne.Do(func() {
		if errors.Is(err, export.ErrPermissionDenied) || errors.Is(err, fs.ErrPermission) {
			dialog.ShowInformation("Permission denied",
				fmt.Sprintf("%s could not complete because access was refused.\n%v", op, err), s.win)
			s.status.SetText(op + ": permission denied")
			return
		}
		dialog.ShowError(fmt.Errorf("%s: %w", op, err), s.win)
		s.status.SetText(op + " failed")
	})
}

func (s *session) addText() {
	s.surface.AddText("")
}

func (s *session) addImage() {
	if !s.busy.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.busy.Store(false)
		_, ok, err := s.surface.AddImageFrom(context.Background(), s.images)
		switch {
		case err != nil:
			s.showError("Add image", err)
		case !ok:
			s.setStatus("No image chosen")
		}
	}()
}

func (s *session) addShape() {
	kind := state.Shapes[s.nextShape%len(state.Shapes)]
	s.nextShape++
	if _, err := s.surface.AddShape(kind); err != nil {
		s.showError("Add shape", err)
	}
}

func (s *session) finishEdit() {
	s.board.kb.Submit()
}

func (s *session) deleteSelected() {
	id := s.surface.Selection().Selected()
	if id == "" {
		return
	}
	if err := s.surface.Remove(id); err != nil {
		s.log().Warn("delete failed", slog.String("id", id), slog.Any("err", err))
	}
}

func (s *session) export() {
	if s.exporter == nil || !s.busy.CompareAndSwap(false, true) {
		return
	}
	s.setStatus("Exporting…")
	go func() {
		defer s.busy.Store(false)
		res, err := s.exporter.CaptureAndExport(context.Background(), s.surface)
		if err != nil {
			s.showError("Export", err)
			return
		}
		msg := "Saved " + res.Image
		if res.PDF != "" {
			msg += " and " + res.PDF
		}
		s.setStatus(msg)
	}()
}

// setColor recolours the selected text or shape.
func (s *session) setColor(name string) {
	id := s.surface.Selection().Selected()
	e, ok := s.surface.Model().Element(id)
	if !ok {
		return
	}
	switch e.Content.(type) {
	case state.TextContent, state.ShapeContent:
		if _, err := s.surface.Model().Update(id, state.Patch{Color: state.Ptr(name)}); err != nil {
			s.log().Warn("recolour failed", slog.Any("err", err))
		}
	case state.ImageContent:
		s.status.SetText("Images keep their own colours")
	}
}

func (s *session) setBold(on bool) {
	id := s.surface.Selection().Selected()
	e, ok := s.surface.Model().Element(id)
	if !ok || e.Kind() != state.KindText {
		return
	}
	style := state.FontNormal
	if on {
		style = state.FontBold
	}
	if _, err := s.surface.Model().Update(id, state.Patch{FontStyle: state.Ptr(style)}); err != nil {
		s.log().Warn("restyle failed", slog.Any("err", err))
	}
}

func (s *session) onOutcome(_ string, out gesture.Outcome) {
	if out == gesture.EditRequested {
		s.status.SetText("Editing text, press Enter to finish")
	}
}

// RunApp shows the board in a window and blocks until it is closed.
func RunApp(surf *surface.Surface, r *render.Renderer, opts Options) {
	a := app.NewWithID("io.canvasboard")
	win := a.NewWindow(opts.Title)
	win.Resize(opts.Size)

	board := NewBoardWidget(surf, r, opts.ReadOnly)
	defer board.Close()

	s := &session{
		win:      win,
		board:    board,
		surface:  surf,
		exporter: opts.Exporter,
		images:   fileImageSource{win: win},
		status:   widget.NewLabel("Ready"),
	}
	board.OnOutcome = s.onOutcome

	bottom := []fyne.CanvasObject{s.status, layout.NewSpacer()}
	if opts.ShareLink != "" {
		link := opts.ShareLink
		bottom = append(bottom,
			widget.NewLabel("Share: "+link),
			widget.NewButtonWithIcon("", theme.ContentCopyIcon(), func() {
				win.Clipboard().SetContent(link)
				s.status.SetText("Link copied")
			}),
		)
	}

	var top fyne.CanvasObject
	if !opts.ReadOnly {
		top = NewToolbar(s)
	}
	win.SetContent(container.NewBorder(top, container.NewHBox(bottom...), nil, nil, board))

	if opts.Follow != nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			err := opts.Follow(ctx)
			switch {
			case ctx.Err() != nil:
			case err != nil:
				s.setStatus("Disconnected: " + err.Error())
			default:
				s.setStatus("Host ended the session")
			}
		}()
	}

	win.ShowAndRun()
}
