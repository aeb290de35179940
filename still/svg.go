package still

import (
	"context"
	"fmt"
	"io"
	"os"

	"avifopt/raster"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

const svgMime = "image/svg+xml"

// SVG minifies vector assets.
type SVG struct {
	m *minify.M
}

func NewSVG() SVG {
	m := minify.New()
	m.AddFunc(svgMime, svg.Minify)
	return SVG{m: m}
}

func (e SVG) Encode(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	if err := raster.WriteAtomic(dst, func(w io.Writer) error {
		return e.m.Minify(svgMime, w, in)
	}); err != nil {
		return fmt.Errorf("minify svg: %w", err)
	}
	return nil
}
