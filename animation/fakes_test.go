package animation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"avifopt/toolchain"

	"github.com/stretchr/testify/require"
)

// fakeTools writes real PNG frames whose gray level equals the original
// frame index, so encoders can report which source frames reached them.
type fakeTools struct {
	mu sync.Mutex

	frames      int
	size        int
	corrupt     bool
	fps         float64
	packets     int
	packetsErr  error
	decodeLog   string
	extractable int
	extractErr  error
	encodeErr   error

	packetCalls   int
	directCalls   int
	sequenceCalls int
	encodedLevels []int
	encodedFPS    float64
	encodedCRF    int
	encodedQuant  [2]int
	encodedSizes  []image.Point
	pattern       string
}

func (f *fakeTools) CountPackets(context.Context, string) (int, error) {
	f.mu.Lock()
	f.packetCalls++
	f.mu.Unlock()
	if f.packetsErr != nil {
		return 0, f.packetsErr
	}
	return f.packets, nil
}

func (f *fakeTools) FrameRate(context.Context, string) (float64, error) {
	if f.fps <= 0 {
		return 0, errors.New("no frame rate")
	}
	return f.fps, nil
}

func (f *fakeTools) DecodeLog(context.Context, string) (string, error) {
	return f.decodeLog, nil
}

func (f *fakeTools) ExtractFrames(_ context.Context, _ string, dir string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	for i := 0; i < f.frames; i++ {
		if err := f.writeFrame(filepath.Join(dir, toolchain.FrameName(i)), i); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTools) ExtractFrame(_ context.Context, _ string, index int, dst string) error {
	if index >= f.extractable {
		return toolchain.ErrNoFrame
	}
	return f.writeFrame(dst, index)
}

func (f *fakeTools) EncodeSequence(_ context.Context, pattern string, fps float64, crf int, dst string) error {
	f.mu.Lock()
	f.sequenceCalls++
	f.pattern = pattern
	f.encodedFPS = fps
	f.encodedCRF = crf
	f.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(filepath.Dir(pattern), toolchain.FrameGlob))
	if err != nil {
		return err
	}
	return f.encode(paths, dst)
}

func (f *fakeTools) EncodeFrames(_ context.Context, frames []string, fps float64, minQuant, maxQuant int, dst string) error {
	f.mu.Lock()
	f.directCalls++
	f.encodedFPS = fps
	f.encodedQuant = [2]int{minQuant, maxQuant}
	f.mu.Unlock()
	return f.encode(frames, dst)
}

func (f *fakeTools) encode(frames []string, dst string) error {
	if f.encodeErr != nil {
		// Leave partial output behind like a crashing encoder would.
		_ = os.WriteFile(dst, []byte("partial"), 0o644)
		return f.encodeErr
	}

	levels := make([]int, 0, len(frames))
	sizes := make([]image.Point, 0, len(frames))
	for _, p := range frames {
		img, err := readPNG(p)
		if err != nil {
			return err
		}
		levels = append(levels, grayLevel(img))
		sizes = append(sizes, img.Bounds().Size())
	}

	f.mu.Lock()
	f.encodedLevels = levels
	f.encodedSizes = sizes
	f.mu.Unlock()

	return os.WriteFile(dst, []byte("avif"), 0o644)
}

func (f *fakeTools) writeFrame(dst string, index int) error {
	if f.corrupt {
		return os.WriteFile(dst, []byte("not a png"), 0o644)
	}

	size := f.size
	if size == 0 {
		size = 4
	}
	img := image.NewGray(image.Rect(0, 0, size, size/2))
	for i := range img.Pix {
		img.Pix[i] = uint8(index)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	return png.Encode(out, img)
}

func grayLevel(img image.Image) int {
	return int(color.GrayModel.Convert(img.At(0, 0)).(color.Gray).Y)
}

func readPNG(path string) (image.Image, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return png.Decode(in)
}

type fakeStill struct {
	err   error
	calls int
}

func (s *fakeStill) Encode(_ context.Context, _, dst string) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(dst, []byte("still"), 0o644)
}

type fakeRecorder struct {
	mu       sync.Mutex
	stages   map[string]int
	verdicts map[string]int
	frames   map[string]int
	cleanup  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{stages: map[string]int{}, verdicts: map[string]int{}, frames: map[string]int{}}
}

func (r *fakeRecorder) ObserveStage(stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage]++
}

func (r *fakeRecorder) CountDetection(method, verdict string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts[method+"/"+verdict]++
}

func (r *fakeRecorder) AddFrames(phase string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[phase] += n
}

func (r *fakeRecorder) CountCleanupFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanup++
}

// counterFor injects a fixed container reading for one media kind.
func counterFor(kind MediaKind, frames int, fps float64) map[MediaKind]FrameCounter {
	return map[MediaKind]FrameCounter{
		kind: func(string) (int, float64, error) { return frames, fps, nil },
	}
}

// touch creates an empty source file so path-based checks see an asset.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("src"), 0o644))
	return p
}

// requireEmptyDir asserts that dir holds no leftover workspaces.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	require.Empty(t, entries, "leftover workspace entries in %s", dir)
}
