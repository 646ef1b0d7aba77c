package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CanvasBoard/internal/config"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.Local)

func newStore(t *testing.T, format string) *Store {
	t.Helper()
	s := NewStore(config.Storage{Directory: filepath.Join(t.TempDir(), "out"), Format: format, Quality: 80})
	s.now = func() time.Time { return fixedNow }
	return s
}

func sample() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 30, 20))
	for y := range 20 {
		for x := range 30 {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: 100, B: uint8(y * 10), A: 255})
		}
	}
	return img
}

func TestStoreSavePNG(t *testing.T) {
	s := newStore(t, "png")
	path, err := s.Save(sample())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Directory(), "canvas_20260314_150926.png"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, sample().Bounds(), got.Bounds())
}

func TestStoreSaveJPEG(t *testing.T) {
	s := newStore(t, "jpg")
	path, err := s.Save(sample())
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = jpeg.Decode(f)
	require.NoError(t, err)
}

func TestStoreAvoidsOverwriting(t *testing.T) {
	s := newStore(t, "png")
	first, err := s.Save(sample())
	require.NoError(t, err)
	second, err := s.Save(sample())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "canvas_20260314_150926_1.png", filepath.Base(second))
}

func TestStoreNilImage(t *testing.T) {
	_, err := newStore(t, "png").Save(nil)
	assert.ErrorIs(t, err, ErrNilImage)
}

func TestClassifyPermission(t *testing.T) {
	perm := &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}
	err := classify("create file", perm)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, err, fs.ErrPermission)

	other := classify("create file", errors.New("disk full"))
	assert.NotErrorIs(t, other, ErrPermissionDenied)
}

func TestStoreReadOnlyDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	s := NewStore(config.Storage{Directory: dir, Format: "png"})
	_, err := s.Save(sample())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, sample()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.ErrorIs(t, WritePDF(&buf, nil), ErrNilImage)
}

func TestExportWritesBothWithOneStamp(t *testing.T) {
	s := newStore(t, "png")
	res, err := NewExporter(s, true).Export(context.Background(), sample())
	require.NoError(t, err)
	assert.Equal(t, "canvas_20260314_150926.png", filepath.Base(res.Image))
	assert.Equal(t, "canvas_20260314_150926.pdf", filepath.Base(res.PDF))
	assert.FileExists(t, res.Image)
	assert.FileExists(t, res.PDF)
}

func TestExportWithoutPDF(t *testing.T) {
	s := newStore(t, "png")
	res, err := NewExporter(s, false).Export(context.Background(), sample())
	require.NoError(t, err)
	assert.Empty(t, res.PDF)

	entries, err := os.ReadDir(s.Directory())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExportFailureLeavesNothing(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	s := NewStore(config.Storage{Directory: filepath.Join(blocker, "sub"), Format: "png"})

	res, err := NewExporter(s, true).Export(context.Background(), sample())
	assert.Error(t, err)
	assert.Equal(t, Result{}, res)
}

type capturerFunc func(ctx context.Context) (image.Image, error)

func (f capturerFunc) Capture(ctx context.Context) (image.Image, error) { return f(ctx) }

func TestCaptureAndExport(t *testing.T) {
	s := newStore(t, "png")
	e := NewExporter(s, false)

	boom := errors.New("snapshot failed")
	_, err := e.CaptureAndExport(context.Background(), capturerFunc(func(context.Context) (image.Image, error) {
		return nil, boom
	}))
	assert.ErrorIs(t, err, boom)

	res, err := e.CaptureAndExport(context.Background(), capturerFunc(func(context.Context) (image.Image, error) {
		return sample(), nil
	}))
	require.NoError(t, err)
	assert.FileExists(t, res.Image)
}
