package toolchain

import (
	"context"
	"errors"
	"math"
	"strconv"
)

// EncodeFrames passes each frame explicitly to avifenc.
func (r *Runner) EncodeFrames(ctx context.Context, frames []string, fps float64, minQuant, maxQuant int, dst string) error {
	if len(frames) == 0 {
		return errors.New("avifenc: no input frames")
	}
	_, _, err := r.run(ctx, r.Avifenc, encodeFramesArgs(frames, fps, minQuant, maxQuant, dst)...)
	return err
}

func encodeFramesArgs(frames []string, fps float64, minQuant, maxQuant int, dst string) []string {
	args := []string{
		// avifenc only accepts an integral frame rate.
		"--fps", strconv.Itoa(max(1, int(math.Round(fps)))),
		"--min", strconv.Itoa(minQuant),
		"--max", strconv.Itoa(maxQuant),
		"-o", dst,
	}
	return append(args, frames...)
}
