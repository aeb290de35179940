package animation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	"avifopt/toolchain"
	"avifopt/workspace"

	_ "golang.org/x/image/webp"
)

// Kind is the classification of an asset.
type Kind int

const (
	Unknown Kind = iota
	Static
	Animated
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Animated:
		return "animated"
	default:
		return "unknown"
	}
}

// Method names the detection tier that produced a verdict.
type Method string

const (
	MethodNone        Method = "none"
	MethodContainer   Method = "container"
	MethodPackets     Method = "packets"
	MethodDecodeLog   Method = "decode-log"
	MethodDecodeProbe Method = "decode-probe"
)

// Verdict is the immutable result of classifying one asset. FrameCount and
// FrameRate are estimates and zero when the tier could not tell.
type Verdict struct {
	Kind       Kind
	FrameCount int
	FrameRate  float64
	Method     Method
}

// Strategy is one detection tier. Classify returns an error wrapping
// ErrDetectionInconclusive (or any other failure) to hand over to the next
// tier.
type Strategy interface {
	Method() Method
	Classify(ctx context.Context, asset Asset) (Verdict, error)
}

// Detector tries its strategies in priority order and stops at the first
// conclusive verdict.
type Detector struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewDetector(logger *slog.Logger, strategies ...Strategy) *Detector {
	return &Detector{strategies: strategies, logger: orDiscard(logger)}
}

// DefaultStrategies is the standard chain: container metadata, packet
// count, decode log heuristic, then a full decode probe.
func DefaultStrategies(tools Toolchain, workDir string, counters map[MediaKind]FrameCounter, logger *slog.Logger) []Strategy {
	if counters == nil {
		counters = DefaultFrameCounters()
	}
	return []Strategy{
		ContainerStrategy{Counters: counters},
		PacketStrategy{Prober: tools},
		DecodeLogStrategy{Prober: tools},
		DecodeProbeStrategy{Decoder: tools, WorkDir: workDir, Logger: logger},
	}
}

// Classify never fails; when every tier is inconclusive the verdict is
// Unknown with MethodNone.
func (d *Detector) Classify(ctx context.Context, asset Asset) Verdict {
	for _, s := range d.strategies {
		v, err := s.Classify(ctx, asset)
		if err != nil {
			d.logger.Debug("detection tier inconclusive",
				"asset", asset.Name(), "method", string(s.Method()), "error", err)
			continue
		}

		v.Method = s.Method()
		d.logger.Debug("asset classified",
			"asset", asset.Name(), "verdict", v.Kind.String(), "method", string(v.Method),
			"frames", v.FrameCount, "fps", v.FrameRate)
		return v
	}

	return Verdict{Kind: Unknown, Method: MethodNone}
}

func verdictFromCount(n int) (Verdict, error) {
	switch {
	case n > 1:
		return Verdict{Kind: Animated, FrameCount: n}, nil
	case n == 1:
		return Verdict{Kind: Static, FrameCount: 1}, nil
	default:
		return Verdict{}, inconclusive("frame count %d", n)
	}
}

// FrameCounter reads the frame count (and, when known, the frame rate) from
// a container without external tools.
type FrameCounter func(path string) (frames int, fps float64, err error)

// DefaultFrameCounters covers the containers Go can introspect natively.
// Only the GIF counter decodes pixel data.
func DefaultFrameCounters() map[MediaKind]FrameCounter {
	return map[MediaKind]FrameCounter{
		KindAVIF: countTrackSamples,
		KindMP4:  countTrackSamples,
		KindGIF:  countGIFFrames,
		KindJPEG: countStillFrames,
		KindWebP: countStillFrames,
		KindPNG:  countStillFrames,
	}
}

func countGIFFrames(path string) (int, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return 0, 0, err
	}

	// GIF delays are in hundredths of a second.
	var total int
	for _, d := range g.Delay {
		total += d
	}

	var fps float64
	if total > 0 {
		fps = float64(len(g.Delay)) * 100 / float64(total)
	}
	return len(g.Image), fps, nil
}

func countStillFrames(path string) (int, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return 0, 0, err
	}
	return 1, 0, nil
}

// ContainerStrategy is tier 1: container frame/page count metadata.
type ContainerStrategy struct {
	Counters map[MediaKind]FrameCounter
}

func (ContainerStrategy) Method() Method { return MethodContainer }

func (s ContainerStrategy) Classify(_ context.Context, asset Asset) (Verdict, error) {
	count, ok := s.Counters[asset.Kind]
	if !ok {
		return Verdict{}, inconclusive("no container reader for %q", asset.Kind)
	}

	frames, fps, err := count(asset.Path)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: read container: %v", ErrDetectionInconclusive, err)
	}

	v, err := verdictFromCount(frames)
	if err != nil {
		return Verdict{}, err
	}
	v.FrameRate = fps
	return v, nil
}

// PacketStrategy is tier 2: count readable video packets.
type PacketStrategy struct {
	Prober Prober
}

func (PacketStrategy) Method() Method { return MethodPackets }

func (s PacketStrategy) Classify(ctx context.Context, asset Asset) (Verdict, error) {
	n, err := s.Prober.CountPackets(ctx, asset.Path)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: count packets: %v", ErrDetectionInconclusive, err)
	}
	return verdictFromCount(n)
}

// minAnimatedDuration is the stream length above which a multi-frame decode
// log counts as animation.
const minAnimatedDuration = 0.1

// DecodeLogStrategy is tier 3: duration and frame tokens from a decode log.
type DecodeLogStrategy struct {
	Prober Prober
}

func (DecodeLogStrategy) Method() Method { return MethodDecodeLog }

func (s DecodeLogStrategy) Classify(ctx context.Context, asset Asset) (Verdict, error) {
	log, err := s.Prober.DecodeLog(ctx, asset.Path)
	if err != nil && log == "" {
		return Verdict{}, fmt.Errorf("%w: decode log: %v", ErrDetectionInconclusive, err)
	}

	stats := toolchain.ParseDecodeLog(log)
	switch {
	case stats.Duration > minAnimatedDuration && stats.Frames > 1:
		return Verdict{Kind: Animated, FrameCount: stats.Frames, FrameRate: stats.FrameRate}, nil
	case stats.Frames == 1:
		return Verdict{Kind: Static, FrameCount: 1}, nil
	default:
		return Verdict{}, inconclusive("duration %.3fs, %d frame tokens", stats.Duration, stats.Frames)
	}
}

// DecodeProbeStrategy is the last resort: extract frames 0 and 1 into a
// disposable workspace. It is conclusive even when nothing decodes, in which
// case the verdict is Unknown.
type DecodeProbeStrategy struct {
	Decoder Decoder
	WorkDir string
	Logger  *slog.Logger
}

func (DecodeProbeStrategy) Method() Method { return MethodDecodeProbe }

func (s DecodeProbeStrategy) Classify(ctx context.Context, asset Asset) (Verdict, error) {
	ws, err := workspace.Acquire(s.WorkDir, asset.Path)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrDetectionInconclusive, err)
	}
	defer func() {
		if err := ws.Release(); err != nil {
			orDiscard(s.Logger).Warn("probe workspace cleanup failed",
				"asset", asset.Name(), "error", errors.Join(ErrCleanup, err))
		}
	}()

	if err := s.extract(ctx, ws, asset, 0); err != nil {
		return Verdict{Kind: Unknown}, nil
	}
	if err := s.extract(ctx, ws, asset, 1); err == nil {
		return Verdict{Kind: Animated}, nil
	}
	return Verdict{Kind: Static, FrameCount: 1}, nil
}

func (s DecodeProbeStrategy) extract(ctx context.Context, ws *workspace.Workspace, asset Asset, index int) error {
	dst, err := ws.Path(toolchain.FrameName(index))
	if err != nil {
		return err
	}
	if err := s.Decoder.ExtractFrame(ctx, asset.Path, index, dst); err != nil {
		return err
	}
	_, err = os.Stat(dst)
	return err
}
