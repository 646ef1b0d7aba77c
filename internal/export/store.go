// Package export writes captured surfaces to disk.
package export

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"CanvasBoard/internal/config"
)

var (
	// ErrPermissionDenied marks failures caused by the destination refusing
	// access, so the UI can tell them apart from other I/O errors.
	ErrPermissionDenied = errors.New("export: permission denied")
	ErrNilImage         = errors.New("export: nil image")
)

const stampLayout = "20060102_150405"

// Store saves rasters under one directory with timestamped names.
type Store struct {
	directory string
	format    string
	quality   int

	now func() time.Time
}

// NewStore returns a store for the storage settings.
func NewStore(cfg config.Storage) *Store {
	return &Store{
		directory: cfg.Directory,
		format:    cfg.Format,
		quality:   cfg.Quality,
		now:       time.Now,
	}
}

// Directory returns the save directory.
func (s *Store) Directory() string {
	return s.directory
}

// Ext returns the raster file extension.
func (s *Store) Ext() string {
	if s.format == "jpg" {
		return "jpg"
	}
	return "png"
}

func classify(op string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%s: %w: %w", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// create opens a new file named canvas_<stamp>.<ext>, adding a counter when
// that name is taken.
func (s *Store) create(stamp time.Time, ext string) (*os.File, error) {
	if err := os.MkdirAll(s.directory, 0o755); err != nil {
		return nil, classify("create directory", err)
	}
	base := "canvas_" + stamp.Format(stampLayout)
	for i := 0; ; i++ {
		name := base + "." + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d.%s", base, i, ext)
		}
		f, err := os.OpenFile(filepath.Join(s.directory, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, classify("create file", err)
		}
		return f, nil
	}
}

// Save writes img in the configured format and returns its path.
func (s *Store) Save(img image.Image) (string, error) {
	return s.saveAt(s.now(), img)
}

func (s *Store) saveAt(stamp time.Time, img image.Image) (string, error) {
	if img == nil {
		return "", ErrNilImage
	}
	return s.write(stamp, s.Ext(), func(w io.Writer) error {
		return s.encode(w, img)
	})
}

func (s *Store) write(stamp time.Time, ext string, fn func(io.Writer) error) (path string, err error) {
	f, err := s.create(stamp, ext)
	if err != nil {
		return "", err
	}
	name := f.Name()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = classify("close file", cerr)
		}
		if err != nil {
			os.Remove(name)
			path = ""
		}
	}()
	if err := fn(f); err != nil {
		return "", classify("encode "+ext, err)
	}
	return name, nil
}

func (s *Store) encode(w io.Writer, img image.Image) error {
	if s.Ext() == "jpg" {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: s.quality})
	}
	return png.Encode(w, img)
}

func removeAll(r Result) {
	for _, p := range []string{r.Image, r.PDF} {
		if p != "" {
			os.Remove(p)
		}
	}
}
