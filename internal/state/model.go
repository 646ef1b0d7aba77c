// Package state is the authoritative element model of a canvas session:
// the ordered element list and the single selected id.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"CanvasBoard/internal/applog"
)

// ErrUnknownElement is returned when an operation names an id the model
// does not hold. Callers treat it as a reportable no-op.
var ErrUnknownElement = errors.New("state: unknown element")

// ChangeType names a model mutation.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeUpdate ChangeType = "update"
	ChangeRemove ChangeType = "remove"
	ChangeSelect ChangeType = "select"
	ChangeSync   ChangeType = "sync"
)

// Change describes one committed mutation. Selected always carries the
// selection after the change.
type Change struct {
	Type     ChangeType `json:"type"`
	Revision uint64     `json:"revision"`
	ID       string     `json:"id,omitempty"`
	Element  *Element   `json:"element,omitempty"`
	Elements []Element  `json:"elements,omitempty"`
	Selected string     `json:"selected"`
}

type subscriber struct {
	id int
	fn func(Change)
}

// Model holds the elements of one editor session. All mutation goes through
// Add, Update, Remove, Select, ClearSelection and Apply. Subscribers are
// called after the model lock is released, on the mutating goroutine.
type Model struct {
	mu       sync.RWMutex
	elements []Element
	selected string
	clock    Clock

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{elements: make([]Element, 0)}
}

func (m *Model) log() *slog.Logger {
	return applog.WithComponent("state")
}

// Subscribe registers fn for every change and returns a function that
// removes it.
func (m *Model) Subscribe(fn func(Change)) (cancel func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		m.subs = slices.DeleteFunc(m.subs, func(s subscriber) bool { return s.id == id })
	}
}

func (m *Model) notify(c Change) {
	m.subMu.Lock()
	subs := slices.Clone(m.subs)
	m.subMu.Unlock()
	for _, s := range subs {
		s.fn(c)
	}
}

func (m *Model) indexOf(id string) int {
	return slices.IndexFunc(m.elements, func(e Element) bool { return e.ID == id })
}

// Add appends e and selects it. An empty or already used id is replaced
// with a fresh one and non-finite numbers are reset to their defaults.
// The stored element is returned.
func (m *Model) Add(e Element) Element {
	e, reset := sanitizeElement(e)
	if len(reset) > 0 {
		m.log().Warn("reset non-finite element fields", slog.Any("fields", reset))
	}
	m.mu.Lock()
	if e.ID == "" || m.indexOf(e.ID) >= 0 {
		e.ID = uuid.NewString()
	}
	if e.Scale <= 0 {
		e.Scale = 1
	}
	e.Size.Width = max(e.Size.Width, MinSide)
	e.Size.Height = max(e.Size.Height, MinSide)
	m.elements = append(m.elements, e)
	m.selected = e.ID
	c := Change{Type: ChangeAdd, Revision: m.clock.Tick(), ID: e.ID, Element: &e, Selected: e.ID}
	m.mu.Unlock()

	m.log().Debug("element added", slog.String("id", e.ID), slog.String("kind", string(e.Kind())))
	m.notify(c)
	return e
}

// Update merges p into the element with the given id. Non-finite numbers in
// p are dropped; fields foreign to the element's variant are ignored.
func (m *Model) Update(id string, p Patch) (Element, error) {
	p, dropped := p.sanitize()
	if len(dropped) > 0 {
		m.log().Warn("dropped non-finite patch fields", slog.String("id", id), slog.Any("fields", dropped))
	}

	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		m.log().Warn("update of unknown element", slog.String("id", id))
		return Element{}, fmt.Errorf("update %s: %w", id, ErrUnknownElement)
	}
	next, ignored := merge(m.elements[i], p)
	m.elements[i] = next
	c := Change{Type: ChangeUpdate, Revision: m.clock.Tick(), ID: id, Element: &next, Selected: m.selected}
	m.mu.Unlock()

	if len(ignored) > 0 {
		m.log().Debug("ignored foreign patch fields", slog.String("id", id), slog.Any("fields", ignored))
	}
	m.notify(c)
	return next, nil
}

// Remove deletes the element with the given id, clearing the selection if
// it was selected.
func (m *Model) Remove(id string) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		m.log().Warn("remove of unknown element", slog.String("id", id))
		return fmt.Errorf("remove %s: %w", id, ErrUnknownElement)
	}
	m.elements = slices.Delete(m.elements, i, i+1)
	if m.selected == id {
		m.selected = ""
	}
	c := Change{Type: ChangeRemove, Revision: m.clock.Tick(), ID: id, Selected: m.selected}
	m.mu.Unlock()

	m.log().Debug("element removed", slog.String("id", id))
	m.notify(c)
	return nil
}

// Select makes id the selected element, implicitly deselecting any other.
func (m *Model) Select(id string) error {
	m.mu.Lock()
	if m.indexOf(id) < 0 {
		m.mu.Unlock()
		return fmt.Errorf("select %s: %w", id, ErrUnknownElement)
	}
	if m.selected == id {
		m.mu.Unlock()
		return nil
	}
	m.selected = id
	c := Change{Type: ChangeSelect, Revision: m.clock.Tick(), ID: id, Selected: id}
	m.mu.Unlock()

	m.notify(c)
	return nil
}

// ClearSelection deselects whatever is selected.
func (m *Model) ClearSelection() {
	m.mu.Lock()
	if m.selected == "" {
		m.mu.Unlock()
		return
	}
	m.selected = ""
	c := Change{Type: ChangeSelect, Revision: m.clock.Tick()}
	m.mu.Unlock()

	m.notify(c)
}

// Selected returns the selected id, or "" when nothing is selected.
func (m *Model) Selected() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selected
}

// Element returns the committed state of one element.
func (m *Model) Element(id string) (Element, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexOf(id)
	if i < 0 {
		return Element{}, false
	}
	return m.elements[i], true
}

// Elements returns a copy of the elements in insertion order.
func (m *Model) Elements() []Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.elements)
}

// Len returns the number of elements.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.elements)
}

// Revision returns the revision of the last change.
func (m *Model) Revision() uint64 {
	return m.clock.Now()
}

// Snapshot returns a sync change carrying the whole model.
func (m *Model) Snapshot() Change {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Change{
		Type:     ChangeSync,
		Revision: m.clock.Now(),
		Elements: slices.Clone(m.elements),
		Selected: m.selected,
	}
}

// Apply replays a change produced by another model. Updates replace the
// element wholesale since the producer already merged them.
func (m *Model) Apply(c Change) error {
	m.mu.Lock()
	switch c.Type {
	case ChangeAdd, ChangeUpdate:
		if c.Element == nil {
			m.mu.Unlock()
			return fmt.Errorf("apply %s: missing element", c.Type)
		}
		if i := m.indexOf(c.Element.ID); i >= 0 {
			m.elements[i] = *c.Element
		} else if c.Type == ChangeAdd {
			m.elements = append(m.elements, *c.Element)
		} else {
			m.mu.Unlock()
			return fmt.Errorf("apply update %s: %w", c.Element.ID, ErrUnknownElement)
		}
	case ChangeRemove:
		if i := m.indexOf(c.ID); i >= 0 {
			m.elements = slices.Delete(m.elements, i, i+1)
		}
	case ChangeSelect:
	case ChangeSync:
		m.elements = slices.Clone(c.Elements)
	default:
		m.mu.Unlock()
		return fmt.Errorf("apply: unknown change type %q", c.Type)
	}
	m.selected = c.Selected
	m.clock.Update(c.Revision)
	m.mu.Unlock()

	m.notify(c)
	return nil
}
