package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"CanvasBoard/internal/render"
)

type colorSwatch struct {
	widget.BaseWidget
	Name     string
	Color    color.Color
	OnTapped func(name string)
}

func newColorSwatch(name string, tapped func(string)) *colorSwatch {
	s := &colorSwatch{Name: name, Color: render.Palette[name], OnTapped: tapped}
	s.ExtendBaseWidget(s)
	return s
}

func (s *colorSwatch) CreateRenderer() fyne.WidgetRenderer {
	rect := canvas.NewRectangle(s.Color)
	rect.SetMinSize(fyne.NewSize(28, 28))

	border := canvas.NewRectangle(color.Transparent)
	border.StrokeColor = color.Gray{Y: 150}
	border.StrokeWidth = 1

	return widget.NewSimpleRenderer(container.NewStack(rect, border))
}

func (s *colorSwatch) Tapped(_ *fyne.PointEvent) {
	if s.OnTapped != nil {
		s.OnTapped(s.Name)
	}
}

// NewToolbar builds the editing toolbar for a session.
func NewToolbar(s *session) fyne.CanvasObject {
	tb := widget.NewToolbar(
		widget.NewToolbarAction(theme.DocumentCreateIcon(), s.addText),
		widget.NewToolbarAction(theme.FileImageIcon(), s.addImage),
		widget.NewToolbarAction(theme.ContentAddIcon(), s.addShape),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ConfirmIcon(), s.finishEdit),
		widget.NewToolbarAction(theme.DeleteIcon(), s.deleteSelected),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), s.export),
	)

	swatches := make([]fyne.CanvasObject, 0, len(render.PaletteOrder))
	for _, name := range render.PaletteOrder {
		swatches = append(swatches, newColorSwatch(name, s.setColor))
	}

	bold := widget.NewCheck("Bold", s.setBold)

	return container.NewHBox(
		tb,
		widget.NewSeparator(),
		widget.NewLabel("Color:"),
		container.NewHBox(swatches...),
		widget.NewSeparator(),
		bold,
		layout.NewSpacer(),
	)
}
