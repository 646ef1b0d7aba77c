package export

import (
	"context"
	"image"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"CanvasBoard/internal/applog"
)

// Capturer produces the flattened surface.
type Capturer interface {
	Capture(ctx context.Context) (image.Image, error)
}

// Result lists the files an export wrote. PDF is empty when disabled.
type Result struct {
	Image string
	PDF   string
}

// Exporter writes the raster and, optionally, a PDF copy side by side.
type Exporter struct {
	Store *Store
	PDF   bool
}

// NewExporter returns an exporter over store.
func NewExporter(store *Store, pdf bool) *Exporter {
	return &Exporter{Store: store, PDF: pdf}
}

// Export writes img. Both files share one timestamp and are written
// concurrently; if either fails the other is removed.
func (e *Exporter) Export(ctx context.Context, img image.Image) (Result, error) {
	if img == nil {
		return Result{}, ErrNilImage
	}
	stamp := e.Store.now()
	var res Result

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := e.Store.saveAt(stamp, img)
		res.Image = path
		return err
	})
	if e.PDF {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path, err := e.Store.savePDFAt(stamp, img)
			res.PDF = path
			return err
		})
	}
	if err := g.Wait(); err != nil {
		removeAll(res)
		applog.WithComponent("export").Warn("export failed", slog.Any("err", err))
		return Result{}, err
	}
	applog.WithComponent("export").Info("exported", slog.String("image", res.Image), slog.String("pdf", res.PDF))
	return res, nil
}

// CaptureAndExport captures c and exports the result.
func (e *Exporter) CaptureAndExport(ctx context.Context, c Capturer) (Result, error) {
	img, err := c.Capture(ctx)
	if err != nil {
		return Result{}, err
	}
	return e.Export(ctx, img)
}
