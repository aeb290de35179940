package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"avifopt/animation"
	"avifopt/logger"
	"avifopt/metrics"
	"avifopt/still"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoTools = errors.New("external tools unavailable")

// noTools fails every external invocation, so only assets that Go can
// classify and encode natively succeed.
type noTools struct{}

func (noTools) CountPackets(context.Context, string) (int, error)       { return 0, errNoTools }
func (noTools) FrameRate(context.Context, string) (float64, error)      { return 0, errNoTools }
func (noTools) DecodeLog(context.Context, string) (string, error)       { return "", errNoTools }
func (noTools) ExtractFrames(context.Context, string, string) error     { return errNoTools }
func (noTools) ExtractFrame(context.Context, string, int, string) error { return errNoTools }
func (noTools) EncodeSequence(context.Context, string, float64, int, string) error {
	return errNoTools
}
func (noTools) EncodeFrames(context.Context, []string, float64, int, int, string) error {
	return errNoTools
}

const testSVG = `<?xml version="1.0" encoding="UTF-8"?>
<!-- editor metadata -->
<svg xmlns="http://www.w3.org/2000/svg"   width="10"   height="10">
    <rect x="0" y="0" width="10" height="10" fill="#ff0000" />
</svg>
`

func newTestProcessor(t *testing.T, out string) (*Processor, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	console := logger.NewConsole(&logger.RichLoggerOptions{
		Output:     &buf,
		Level:      slog.LevelInfo,
		EnableJSON: true,
	})
	recorder := metrics.New()

	return &Processor{
		Console:     console,
		NumWorkers:  2,
		QueueSize:   4,
		OutputDir:   out,
		ClearOutput: true,
		Exclude:     []string{out},
		Pipeline: animation.New(animation.Deps{
			Tools:    noTools{},
			Still:    still.NewAVIF(60, 80, 10, 0),
			Logger:   console.Logger,
			Recorder: recorder,
		}, animation.Options{WorkDir: t.TempDir()}),
		PNG:     still.PNG{},
		SVG:     still.NewSVG(),
		Metrics: recorder,
	}, &buf
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient(16, 16)))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradient(16, 16), nil))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestPlanJob(t *testing.T) {
	root := filepath.Join("in")
	out := filepath.Join("out")

	tests := []struct {
		name       string
		src        string
		convertPNG bool
		wantRoute  route
		wantOutput string
	}{
		{name: "jpeg", src: "in/a.jpg", wantRoute: routeMedia, wantOutput: "out/a.avif"},
		{name: "nested gif", src: "in/x/y/anim.GIF", wantRoute: routeMedia, wantOutput: "out/x/y/anim.avif"},
		{name: "mp4", src: "in/clip.mp4", wantRoute: routeMedia, wantOutput: "out/clip.avif"},
		{name: "avif", src: "in/pic.avif", wantRoute: routeMedia, wantOutput: "out/pic.avif"},
		{name: "webp", src: "in/pic.webp", wantRoute: routeMedia, wantOutput: "out/pic.avif"},
		{name: "png recompressed", src: "in/icons/i.png", wantRoute: routePNG, wantOutput: "out/icons/i.png"},
		{name: "png converted", src: "in/icons/i.png", convertPNG: true, wantRoute: routeMedia, wantOutput: "out/icons/i.avif"},
		{name: "svg", src: "in/logo.svg", wantRoute: routeSVG, wantOutput: "out/logo.svg"},
		{name: "unsupported", src: "in/readme.txt", wantRoute: routeSkip},
		{name: "outside root", src: "elsewhere/a.jpg", wantRoute: routeMedia, wantOutput: "out/a.avif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Processor{OutputDir: out, ConvertPNG: tt.convertPNG}
			job := p.planJob(root, filepath.FromSlash(tt.src))

			assert.Equal(t, tt.wantRoute, job.Route)
			assert.Equal(t, filepath.FromSlash(tt.wantOutput), job.Output)
		})
	}
}

func TestClearOutputDir(t *testing.T) {
	t.Run("creates missing directory", func(t *testing.T) {
		base := t.TempDir()
		out := filepath.Join(base, "out")

		require.NoError(t, clearOutputDir(filepath.Join(base, "in"), out))
		assert.DirExists(t, out)
	})

	t.Run("removes previous results", func(t *testing.T) {
		base := t.TempDir()
		out := filepath.Join(base, "out")
		writeFile(t, out, "old.avif", "x")
		writeFile(t, out, "nested/old.svg", "x")

		require.NoError(t, clearOutputDir(filepath.Join(base, "in"), out))

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("output inside input is cleared", func(t *testing.T) {
		in := t.TempDir()
		out := filepath.Join(in, "out")
		writeFile(t, out, "old.avif", "x")
		src := writeFile(t, in, "keep.jpg", "x")

		require.NoError(t, clearOutputDir(in, out))
		assert.FileExists(t, src)
		assert.NoFileExists(t, filepath.Join(out, "old.avif"))
	})

	refusals := []struct {
		name string
		out  func(in string) string
	}{
		{name: "same directory", out: func(in string) string { return in }},
		{name: "parent of input", out: func(in string) string { return filepath.Dir(in) }},
	}
	for _, tt := range refusals {
		t.Run(tt.name, func(t *testing.T) {
			in := filepath.Join(t.TempDir(), "in")
			src := writeFile(t, in, "keep.jpg", "x")

			err := clearOutputDir(in, tt.out(in))
			require.ErrorIs(t, err, errUnsafeClear)
			assert.FileExists(t, src)
		})
	}
}

func TestEscapes(t *testing.T) {
	assert.True(t, escapes(".."))
	assert.True(t, escapes(filepath.Join("..", "x")))
	assert.False(t, escapes("..foo"))
	assert.False(t, escapes("."))
	assert.False(t, escapes(filepath.Join("a", "b")))
}

func TestProcessDirectory_MixedBatch(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "optimized")
	metricsFile := filepath.Join(t.TempDir(), "avifopt.prom")

	writeFile(t, in, "logo.svg", testSVG)
	writePNG(t, filepath.Join(in, "icons", "pic.png"))
	writeJPEG(t, filepath.Join(in, "photos", "cat.jpg"))
	writeFile(t, in, "notes.txt", "not an image")
	writeFile(t, in, "broken.jpg", "definitely not a jpeg")
	writeFile(t, out, "stale.avif", "left over")

	p, logs := newTestProcessor(t, out)
	p.MetricsFile = metricsFile

	stats, err := p.ProcessDirectory(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 5 files failed")
	require.NotNil(t, stats)

	assert.Equal(t, 5, stats.TotalFiles)
	assert.Equal(t, 5, stats.ProcessedFiles)
	assert.Equal(t, 3, stats.ConvertedFiles)
	assert.Equal(t, 1, stats.SkippedFiles)
	assert.Equal(t, 1, stats.FailedFiles)
	assert.Positive(t, stats.TotalCompressedSize)

	assert.NoFileExists(t, filepath.Join(out, "stale.avif"))
	assert.FileExists(t, filepath.Join(out, "icons", "pic.png"))
	assert.FileExists(t, filepath.Join(out, "photos", "cat.avif"))
	assert.NoFileExists(t, filepath.Join(out, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(out, "broken.avif"))

	svg, err := os.ReadFile(filepath.Join(out, "logo.svg"))
	require.NoError(t, err)
	assert.NotContains(t, string(svg), "editor metadata")
	assert.Less(t, len(svg), len(testSVG))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `avifopt_assets_total{outcome="converted"} 3`)
	assert.Contains(t, string(prom), `avifopt_assets_total{outcome="failed"} 1`)
	assert.Contains(t, string(prom), `avifopt_assets_total{outcome="skipped"} 1`)

	assert.Contains(t, logs.String(), "failed broken.jpg")
	assert.Contains(t, logs.String(), "Processing Summary:")
}

func TestProcessDirectory_SkipsOutputInsideInput(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(in, "optimized")

	writeFile(t, in, "logo.svg", testSVG)
	writeFile(t, out, "previous.svg", testSVG)

	p, _ := newTestProcessor(t, out)
	p.ClearOutput = false

	stats, err := p.ProcessDirectory(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TotalFiles)
	assert.FileExists(t, filepath.Join(out, "logo.svg"))
	assert.NoDirExists(t, filepath.Join(out, "optimized"))
}

func TestProcessDirectory_Empty(t *testing.T) {
	p, logs := newTestProcessor(t, filepath.Join(t.TempDir(), "out"))

	stats, err := p.ProcessDirectory(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalFiles)
	assert.Contains(t, logs.String(), "No files found to process")
}

func TestProcessPath_SingleFile(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	src := filepath.Join(in, "cat.jpg")
	writeJPEG(t, src)
	writeFile(t, out, "unrelated.avif", "kept")

	p, logs := newTestProcessor(t, out)

	require.NoError(t, p.ProcessPath(context.Background(), src))
	assert.FileExists(t, filepath.Join(out, "cat.avif"))
	assert.FileExists(t, filepath.Join(out, "unrelated.avif"), "single files never clear the output")
	assert.Contains(t, logs.String(), "Compression ratio")
}

func TestProcessPath_Errors(t *testing.T) {
	p, _ := newTestProcessor(t, filepath.Join(t.TempDir(), "out"))

	err := p.ProcessPath(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)

	broken := writeFile(t, t.TempDir(), "broken.jpg", "nope")
	err = p.ProcessPath(context.Background(), broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file processing error")
}
