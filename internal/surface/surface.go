// Package surface composes the elements of a session in their fixed stacking
// order, owns one gesture reconciler per element and implements capture.
package surface

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"golang.org/x/sync/semaphore"

	"CanvasBoard/internal/applog"
	"CanvasBoard/internal/config"
	"CanvasBoard/internal/gesture"
	"CanvasBoard/internal/selection"
	"CanvasBoard/internal/state"
)

var (
	ErrNoSnapshotter     = errors.New("surface: no snapshot primitive attached")
	ErrEmptySnapshot     = errors.New("surface: snapshot produced an empty image")
	ErrCaptureInProgress = errors.New("surface: capture already in progress")
	ErrUnknownShape      = errors.New("surface: unknown shape kind")
)

// Snapshotter rasterizes the surface region of the given size.
type Snapshotter interface {
	Snapshot(ctx context.Context, size fyne.Size) (image.Image, error)
}

// ImageSource picks an image for a new element. An empty uri with a nil
// error means the user cancelled.
type ImageSource interface {
	PickImage(ctx context.Context) (uri string, err error)
}

// Options configures a Surface.
type Options struct {
	Gesture         gesture.Options
	SettleDelay     time.Duration
	RestoreDelay    time.Duration
	SnapshotTimeout time.Duration
	ShapeColor      string
}

// OptionsFrom builds surface options from the settings file.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Gesture:         gesture.OptionsFrom(cfg.Gesture),
		SettleDelay:     cfg.Capture.SettleDelay.Duration,
		RestoreDelay:    cfg.Capture.RestoreDelay.Duration,
		SnapshotTimeout: cfg.Capture.SnapshotTimeout.Duration,
		ShapeColor:      "#4a90d9",
	}
}

// View is one element as it should be drawn now.
type View struct {
	Element   state.Element
	Transform gesture.Transform
	Selected  bool
	Editing   bool
	EditText  string
}

// Surface is the composition surface of one editor session.
type Surface struct {
	model  *state.Model
	sel    *selection.Coordinator
	layout *state.Layout
	opts   Options

	capturing *semaphore.Weighted

	mu          sync.Mutex
	snap        Snapshotter
	kb          gesture.Keyboard
	reconcilers map[string]*gesture.Reconciler
	trackers    map[string]*gesture.Tracker

	cancelSub func()
}

// New returns a surface over m.
func New(m *state.Model, sel *selection.Coordinator, layout *state.Layout, opts Options) *Surface {
	s := &Surface{
		model:       m,
		sel:         sel,
		layout:      layout,
		opts:        opts,
		capturing:   semaphore.NewWeighted(1),
		reconcilers: make(map[string]*gesture.Reconciler),
		trackers:    make(map[string]*gesture.Tracker),
	}
	s.cancelSub = m.Subscribe(s.onChange)
	sel.OnBlur(s.endEdit)
	return s
}

func (s *Surface) log() *slog.Logger {
	return applog.WithComponent("surface")
}

// Close detaches the surface from its model.
func (s *Surface) Close() {
	s.cancelSub()
}

// Model returns the element model.
func (s *Surface) Model() *state.Model { return s.model }

// Selection returns the coordinator.
func (s *Surface) Selection() *selection.Coordinator { return s.sel }

// SetSnapshotter attaches the snapshot primitive.
func (s *Surface) SetSnapshotter(snap Snapshotter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

// SetKeyboard attaches the text keyboard. Reconcilers created earlier are
// dropped so they pick it up.
func (s *Surface) SetKeyboard(kb gesture.Keyboard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kb = kb
	clear(s.reconcilers)
	clear(s.trackers)
}

// SetLayout records the measured surface size.
func (s *Surface) SetLayout(width, height float32) {
	s.layout.SetMeasured(fyne.NewSize(width, height))
}

// Size returns the surface size, measured or estimated.
func (s *Surface) Size() fyne.Size {
	return s.layout.Size()
}

func (s *Surface) onChange(c state.Change) {
	switch c.Type {
	case state.ChangeRemove:
		s.drop(c.ID)
	case state.ChangeSync:
		live := make(map[string]bool, len(c.Elements))
		for _, e := range c.Elements {
			live[e.ID] = true
		}
		s.mu.Lock()
		for id := range s.reconcilers {
			if !live[id] {
				delete(s.reconcilers, id)
				delete(s.trackers, id)
			}
		}
		s.mu.Unlock()
	}
}

func (s *Surface) drop(id string) {
	s.mu.Lock()
	r := s.reconcilers[id]
	delete(s.reconcilers, id)
	delete(s.trackers, id)
	s.mu.Unlock()
	if r != nil {
		r.Cancel()
		if r.Editing() && s.sel.Editing() == id {
			s.sel.KeyboardHidden()
		}
	}
}

// endEdit closes the edit session of id once the selection moves away.
func (s *Surface) endEdit(id string) {
	s.mu.Lock()
	r, kb := s.reconcilers[id], s.kb
	s.mu.Unlock()
	if r != nil && r.EndEdit() {
		return
	}
	if s.sel.Editing() == id {
		s.sel.KeyboardHidden()
		if kb != nil {
			kb.Dismiss()
		}
	}
}

// Reconciler returns the gesture reconciler of element id, creating it on
// first use.
func (s *Surface) Reconciler(id string) (*gesture.Reconciler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reconcilers[id]; ok {
		return r, nil
	}
	r, err := gesture.New(id, s.model, s.sel, s.kb, s.opts.Gesture)
	if err != nil {
		return nil, err
	}
	s.reconcilers[id] = r
	return r, nil
}

// Tracker returns the raw pointer tracker of element id.
func (s *Surface) Tracker(id string) (*gesture.Tracker, error) {
	r, err := s.Reconciler(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[id]
	if !ok {
		t = gesture.NewTracker(r)
		s.trackers[id] = t
	}
	return t, nil
}

func layer(k state.Kind) int {
	switch k {
	case state.KindShape:
		return 0
	case state.KindImage:
		return 1
	case state.KindText:
		return 2
	}
	panic(fmt.Sprintf("surface: unknown kind %q", k))
}

// Ordered returns the committed elements bottom to top: shapes, then
// images, then text, each layer in insertion order.
func (s *Surface) Ordered() []state.Element {
	elems := s.model.Elements()
	slices.SortStableFunc(elems, func(a, b state.Element) int {
		return cmp.Compare(layer(a.Kind()), layer(b.Kind()))
	})
	return elems
}

// Views returns every element bottom to top with in-flight gestures and
// edit scratch applied.
func (s *Surface) Views() []View {
	elems := s.Ordered()
	views := make([]View, 0, len(elems))
	for _, e := range elems {
		v := View{
			Element:   e,
			Transform: gesture.Transform{Position: e.Position, Size: e.Size, Scale: e.Scale, Rotation: e.Rotation},
			Selected:  s.sel.IsSelected(e.ID),
		}
		if tc, ok := e.Text(); ok {
			v.Transform.FontSize = tc.FontSize
		}
		s.mu.Lock()
		r := s.reconcilers[e.ID]
		s.mu.Unlock()
		if r != nil {
			if t, ok := r.Transient(); ok {
				v.Transform = t
			}
			v.Editing = r.Editing()
			if v.Editing {
				v.EditText = r.EditText()
			}
		}
		views = append(views, v)
	}
	return views
}

// AddText places a text element in the centre and selects it. Empty text
// becomes the placeholder.
func (s *Surface) AddText(text string) state.Element {
	if text == "" {
		text = state.Placeholder
	}
	return s.add(state.NewText(text))
}

// AddImage places an image element. An empty uri is a no-op and reports false.
func (s *Surface) AddImage(uri string) (state.Element, bool) {
	if uri == "" {
		return state.Element{}, false
	}
	return s.add(state.ImageContent{URI: uri}), true
}

// AddImageFrom asks src for an image and adds it. Cancellation is a no-op.
func (s *Surface) AddImageFrom(ctx context.Context, src ImageSource) (state.Element, bool, error) {
	uri, err := src.PickImage(ctx)
	if err != nil {
		return state.Element{}, false, fmt.Errorf("pick image: %w", err)
	}
	e, ok := s.AddImage(uri)
	return e, ok, nil
}

// AddShape places a shape element of the given kind.
func (s *Surface) AddShape(kind state.ShapeKind) (state.Element, error) {
	if !slices.Contains(state.Shapes, kind) {
		return state.Element{}, fmt.Errorf("add shape %q: %w", kind, ErrUnknownShape)
	}
	return s.add(state.ShapeContent{Shape: kind, Color: s.opts.ShapeColor}), nil
}

func (s *Surface) add(c state.Content) state.Element {
	if err := s.sel.Blur(); err != nil {
		s.log().Warn("edit session left open", slog.Any("err", err))
	}
	size := state.DefaultSize(c.Kind())
	e := s.model.Add(state.NewElement(c, s.layout.Center(size), size))
	s.log().Info("element added", slog.String("id", e.ID), slog.String("kind", string(e.Kind())))
	return e
}

// Remove deletes an element.
func (s *Surface) Remove(id string) error {
	return s.model.Remove(id)
}

// BackgroundTap handles a tap on empty surface.
func (s *Surface) BackgroundTap() bool {
	return s.sel.BackgroundTap()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type snapResult struct {
	img image.Image
	err error
}

// snapshot runs snap so that ctx bounds it even if the primitive ignores ctx.
func snapshot(ctx context.Context, snap Snapshotter, size fyne.Size) (image.Image, error) {
	done := make(chan snapResult, 1)
	go func() {
		img, err := snap.Snapshot(ctx, size)
		done <- snapResult{img, err}
	}()
	select {
	case r := <-done:
		return r.img, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Capture rasterizes the surface without selection decoration: the
// selection is cleared, the UI is given the settle delay, the snapshot is
// taken under the snapshot timeout, and after the restore delay the
// previous selection comes back. The selection is restored on every path.
// A second Capture while one is running fails with ErrCaptureInProgress.
func (s *Surface) Capture(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	snap := s.snap
	s.mu.Unlock()
	if snap == nil {
		return nil, ErrNoSnapshotter
	}
	if !s.capturing.TryAcquire(1) {
		return nil, ErrCaptureInProgress
	}
	defer s.capturing.Release(1)

	prev := s.sel.BeginCapture()
	defer func() {
		_ = sleep(ctx, s.opts.RestoreDelay)
		s.sel.EndCapture(prev)
	}()

	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return nil, fmt.Errorf("capture: settle: %w", err)
	}

	snapCtx := ctx
	if s.opts.SnapshotTimeout > 0 {
		var cancel context.CancelFunc
		snapCtx, cancel = context.WithTimeout(ctx, s.opts.SnapshotTimeout)
		defer cancel()
	}
	img, err := snapshot(snapCtx, snap, s.layout.Size())
	if err != nil {
		s.log().Warn("snapshot failed", slog.Any("err", err))
		return nil, fmt.Errorf("capture: snapshot: %w", err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptySnapshot
	}
	s.log().Info("captured surface", slog.Int("width", img.Bounds().Dx()), slog.Int("height", img.Bounds().Dy()))
	return img, nil
}
