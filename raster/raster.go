// Package raster holds the pixel helpers shared by the still encoders and
// the animated frame resizer.
package raster

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// FitSize returns the dimensions of a w×h image scaled to fit inside a
// maxSize square. Images already within bounds are returned unchanged and
// nothing is ever upscaled. A maxSize of zero or less disables the limit.
func FitSize(w, h, maxSize int) (int, int) {
	if maxSize <= 0 || w <= 0 || h <= 0 {
		return w, h
	}
	if w <= maxSize && h <= maxSize {
		return w, h
	}

	if w >= h {
		nh := int(math.Round(float64(h) * float64(maxSize) / float64(w)))
		return maxSize, max(nh, 1)
	}

	nw := int(math.Round(float64(w) * float64(maxSize) / float64(h)))
	return max(nw, 1), maxSize
}

// NeedsResize reports whether FitSize would change the dimensions.
func NeedsResize(w, h, maxSize int) bool {
	nw, nh := FitSize(w, h, maxSize)
	return nw != w || nh != h
}

// Scale resamples src into a new w×h image using Catmull-Rom.
func Scale(src image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Fit scales img down to fit maxSize, returning img itself when no resize
// is needed.
func Fit(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	nw, nh := FitSize(b.Dx(), b.Dy(), maxSize)
	if nw == b.Dx() && nh == b.Dy() {
		return img
	}
	return Scale(img, nw, nh)
}

// WriteAtomic writes through a temporary file next to dst and renames it
// into place, so readers never observe a partially written file.
func WriteAtomic(dst string, write func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temporary file: %w", err)
	}
	if err = os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// WritePNG atomically encodes img as a PNG at dst.
func WritePNG(dst string, img image.Image) error {
	return WriteAtomic(dst, func(w io.Writer) error {
		return png.Encode(w, img)
	})
}

// DecodeConfigFile reads only the header of the image at path.
func DecodeConfigFile(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	return cfg, err
}

// DecodeFile decodes the image at path with whichever registered decoder
// matches its header.
func DecodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	return image.Decode(f)
}
