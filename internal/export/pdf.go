package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// WritePDF writes img as a single-page PDF whose page matches the image,
// one point per pixel.
func WritePDF(w io.Writer, img image.Image) error {
	if img == nil {
		return ErrNilImage
	}
	b := img.Bounds()
	width, height := float64(b.Dx()), float64(b.Dy())

	var raster bytes.Buffer
	if err := png.Encode(&raster, img); err != nil {
		return fmt.Errorf("encode page raster: %w", err)
	}

	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	p.RegisterImageOptionsReader("canvas", opts, &raster)
	p.ImageOptions("canvas", 0, 0, width, height, false, opts, 0, "")
	if err := p.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// SavePDF writes img as a PDF next to the rasters and returns its path.
func (s *Store) SavePDF(img image.Image) (string, error) {
	return s.savePDFAt(s.now(), img)
}

func (s *Store) savePDFAt(stamp time.Time, img image.Image) (string, error) {
	if img == nil {
		return "", ErrNilImage
	}
	return s.write(stamp, "pdf", func(w io.Writer) error {
		return WritePDF(w, img)
	})
}
