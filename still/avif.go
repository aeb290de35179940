// Package still holds the single-call encoders used for assets that need no
// frame pipeline: static AVIF, lossless PNG re-encode and SVG minification.
package still

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"avifopt/raster"

	"github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"
)

// AVIF decodes any registered still format and encodes it as AVIF.
type AVIF struct {
	Options avif.Options
	MaxSize int
}

// NewAVIF returns an encoder with 4:2:0 chroma subsampling.
func NewAVIF(quality, qualityAlpha, speed, maxSize int) AVIF {
	return AVIF{
		Options: avif.Options{
			Quality:           quality,
			QualityAlpha:      qualityAlpha,
			Speed:             speed,
			ChromaSubsampling: image.YCbCrSubsampleRatio420,
		},
		MaxSize: maxSize,
	}
}

func (e AVIF) Encode(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := decode(src)
	if err != nil {
		return err
	}
	img = raster.Fit(img, e.MaxSize)

	if err := raster.WriteAtomic(dst, func(w io.Writer) error {
		return avif.Encode(w, img, e.Options)
	}); err != nil {
		return fmt.Errorf("encode avif: %w", err)
	}
	return nil
}

func decode(src string) (image.Image, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
