package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
)

// entryKeyboard edits text elements through an entry laid over the
// element. Enter ends the edit.
type entryKeyboard struct {
	board *BoardWidget
	entry *widget.Entry
	id    string
}

func newEntryKeyboard(b *BoardWidget) *entryKeyboard {
	k := &entryKeyboard{board: b, entry: widget.NewEntry()}
	k.entry.Hide()
	k.entry.OnChanged = func(text string) {
		if r, err := b.surface.Reconciler(k.id); err == nil && k.id != "" {
			r.SetText(text)
		}
	}
	k.entry.OnSubmitted = func(string) {
		k.Submit()
	}
	return k
}

// Show opens the entry over element id.
func (k *entryKeyboard) Show(id, text string) error {
	k.id = id
	k.entry.SetText(text)
	k.layout()
	k.entry.Show()
	if c := fyne.CurrentApp().Driver().CanvasForObject(k.board); c != nil {
		c.Focus(k.entry)
	}
	return nil
}

// Dismiss hides the entry.
func (k *entryKeyboard) Dismiss() {
	k.id = ""
	k.entry.Hide()
	if c := fyne.CurrentApp().Driver().CanvasForObject(k.board); c != nil {
		c.Unfocus()
	}
}

// Editing returns the id being edited, or "".
func (k *entryKeyboard) Editing() string {
	return k.id
}

// Submit ends the current edit.
func (k *entryKeyboard) Submit() bool {
	if k.id == "" {
		return false
	}
	r, err := k.board.surface.Reconciler(k.id)
	if err != nil {
		k.Dismiss()
		return false
	}
	r.SetText(k.entry.Text)
	ok := r.EndEdit()
	k.board.Refresh()
	return ok
}

// layout places the entry over the edited element.
func (k *entryKeyboard) layout() {
	if k.id == "" {
		return
	}
	for _, v := range k.board.surface.Views() {
		if v.Element.ID != k.id {
			continue
		}
		t := v.Transform
		h := k.entry.MinSize().Height
		k.entry.Move(fyne.NewPos(t.Position.X, t.Position.Y+(t.Size.Height-h)/2))
		k.entry.Resize(fyne.NewSize(max(t.Size.Width, 120), h))
		return
	}
}
