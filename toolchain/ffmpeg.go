package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// FramePattern names extracted frames. Eight digits keep lexicographic
	// order equal to temporal order past a day of 1000 fps video; readers
	// still order by FrameIndex.
	FramePattern = "frame_%08d.png"
	FrameGlob    = "frame_*.png"

	framePrefix = "frame_"
	frameSuffix = ".png"

	streamCodec   = "libaom-av1"
	streamCPUUsed = "4"
	streamPixFmt  = "yuv420p"
)

// ErrNoFrame is returned when a single-frame extraction produced no file,
// typically because the requested index is past the end of the stream.
var ErrNoFrame = errors.New("no frame produced")

// FrameName returns the file name for the frame at index.
func FrameName(index int) string {
	return fmt.Sprintf(FramePattern, index)
}

// FrameIndex parses the index out of a frame file name of any padding
// width. ok is false for names that do not follow FramePattern.
func FrameIndex(name string) (index int, ok bool) {
	digits, found := strings.CutPrefix(filepath.Base(name), framePrefix)
	if !found {
		return 0, false
	}
	digits, found = strings.CutSuffix(digits, frameSuffix)
	if !found || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || strings.ContainsAny(digits, "+-") {
		return 0, false
	}
	return n, true
}

// CountPackets counts the readable packets of the first video stream.
func (r *Runner) CountPackets(ctx context.Context, src string) (int, error) {
	out, _, err := r.run(ctx, r.FFprobe, countPacketsArgs(src)...)
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.Trim(strings.TrimSpace(line), ",")
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			return 0, fmt.Errorf("parse packet count %q: %w", line, err)
		}
		return n, nil
	}

	return 0, fmt.Errorf("ffprobe reported no video stream for %s", src)
}

// FrameRate returns the frame rate of the first video stream, preferring
// the average rate over the base rate.
func (r *Runner) FrameRate(ctx context.Context, src string) (float64, error) {
	out, _, err := r.run(ctx, r.FFprobe, frameRateArgs(src)...)
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(string(out), "\n") {
		if fps, err := ParseRate(line); err == nil && fps > 0 {
			return fps, nil
		}
	}

	return 0, fmt.Errorf("ffprobe reported no frame rate for %s", src)
}

// DecodeLog decodes the first video stream to the null muxer and returns
// ffmpeg's diagnostic output. The log is returned alongside any error.
func (r *Runner) DecodeLog(ctx context.Context, src string) (string, error) {
	_, stderr, err := r.run(ctx, r.FFmpeg, decodeLogArgs(src)...)
	return string(stderr), err
}

// ExtractFrames writes every frame of src as a lossless PNG into dir.
func (r *Runner) ExtractFrames(ctx context.Context, src, dir string) error {
	_, _, err := r.run(ctx, r.FFmpeg, extractAllArgs(src, dir)...)
	return err
}

// ExtractFrame writes the frame at index to dst.
func (r *Runner) ExtractFrame(ctx context.Context, src string, index int, dst string) error {
	if _, _, err := r.run(ctx, r.FFmpeg, extractOneArgs(src, index, dst)...); err != nil {
		return err
	}

	if info, err := os.Stat(dst); err != nil || info.Size() == 0 {
		return fmt.Errorf("frame %d of %s: %w", index, filepath.Base(src), ErrNoFrame)
	}
	return nil
}

// EncodeSequence encodes a numbered PNG sequence as an animated AVIF with
// the general-purpose AV1 encoder.
func (r *Runner) EncodeSequence(ctx context.Context, pattern string, fps float64, crf int, dst string) error {
	_, _, err := r.run(ctx, r.FFmpeg, encodeSequenceArgs(pattern, fps, crf, dst)...)
	return err
}

func countPacketsArgs(src string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-of", "csv=p=0",
		src,
	}
}

func frameRateArgs(src string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,r_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	}
}

func decodeLogArgs(src string) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-i", src,
		"-map", "0:v:0",
		"-f", "null", "-",
	}
}

func extractAllArgs(src, dir string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", src,
		"-vsync", "0",
		"-start_number", "0",
		filepath.Join(dir, FramePattern),
	}
}

func extractOneArgs(src string, index int, dst string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", src,
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, index),
		"-vsync", "0",
		"-frames:v", "1",
		dst,
	}
}

func encodeSequenceArgs(pattern string, fps float64, crf int, dst string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-framerate", formatRate(fps),
		"-start_number", "0",
		"-i", pattern,
		"-c:v", streamCodec,
		"-crf", strconv.Itoa(crf),
		"-cpu-used", streamCPUUsed,
		"-pix_fmt", streamPixFmt,
		dst,
	}
}

func formatRate(fps float64) string {
	if fps <= 0 {
		fps = 1
	}
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
