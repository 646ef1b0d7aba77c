package ui

import (
	"context"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}

// fileImageSource picks images with the file open dialog. PickImage must
// not be called on the UI goroutine.
type fileImageSource struct {
	win fyne.Window
}

type pick struct {
	uri string
	err error
}

func (f fileImageSource) PickImage(ctx context.Context) (string, error) {
	ch := make(chan pick, 1)
	fyne.Do(func() {
		d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			switch {
			case err != nil:
				ch <- pick{err: err}
			case rc == nil:
				ch <- pick{}
			default:
				ch <- pick{uri: rc.URI().String()}
				rc.Close()
			}
		}, f.win)
		d.SetFilter(storage.NewExtensionFileFilter(imageExtensions))
		d.Show()
	})
	select {
	case p := <-ch:
		return p.uri, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
