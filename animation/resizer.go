package animation

import (
	"context"
	"fmt"

	"avifopt/raster"
)

// Resizer bounds every frame to MaxSize on its longer side. Frames already
// within bounds are left untouched; a zero MaxSize disables resizing.
type Resizer struct {
	MaxSize int
}

// Resize rewrites oversized frames in place. Each replacement goes through
// a temporary file so a failure never leaves a truncated frame behind.
func (r Resizer) Resize(ctx context.Context, set FrameSet) (FrameSet, error) {
	if r.MaxSize <= 0 {
		return set, nil
	}

	for _, f := range set.Frames {
		if err := ctx.Err(); err != nil {
			return FrameSet{}, fmt.Errorf("%w: %v", ErrResize, err)
		}
		if err := r.resizeFrame(f); err != nil {
			return FrameSet{}, fmt.Errorf("%w: frame %d: %v", ErrResize, f.Index, err)
		}
	}
	return set, nil
}

func (r Resizer) resizeFrame(f Frame) error {
	cfg, err := raster.DecodeConfigFile(f.Path)
	if err != nil {
		return err
	}
	if !raster.NeedsResize(cfg.Width, cfg.Height, r.MaxSize) {
		return nil
	}

	img, _, err := raster.DecodeFile(f.Path)
	if err != nil {
		return err
	}

	w, h := raster.FitSize(cfg.Width, cfg.Height, r.MaxSize)
	return raster.WritePNG(f.Path, raster.Scale(img, w, h))
}
