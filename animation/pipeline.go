// Package animation re-encodes animated assets into bounded-frame-rate
// animated AVIF, and routes static assets through a single still encode
// with an automatic fallback onto the animated reassembly path.
//
// Processing one asset is strictly sequential: detect, then either encode
// the still or extract, sample, resize and reassemble frames. Each asset
// owns a private workspace, so separate assets may be processed
// concurrently with no shared mutable state.
package animation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"avifopt/toolchain"
	"avifopt/workspace"
)

// Options is the immutable configuration of one pipeline run.
type Options struct {
	// HighQuality selects the High quantizer tier.
	HighQuality bool
	// MaxSize caps the longer side of every frame; zero disables resizing.
	MaxSize int
	// WorkDir is where per-asset workspaces are created.
	WorkDir string
	// FallbackFrameRate is assumed when no tier and no probe reports a
	// frame rate. Zero means MaxFrameRate.
	FallbackFrameRate float64
}

// Outcome is the per-asset result reported to the user.
type Outcome string

const (
	OutcomeConverted Outcome = "converted"
	OutcomeFallback  Outcome = "fallback"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result describes what happened to one asset.
type Result struct {
	Source    string
	Output    string
	Outcome   Outcome
	Verdict   Verdict
	Strategy  ReassemblyStrategy
	Animated  bool
	FramesIn  int
	FramesOut int
	Size      int64
	Duration  time.Duration
}

// Deps are the capabilities the pipeline delegates to.
type Deps struct {
	Tools    Toolchain
	Still    StillEncoder
	Logger   *slog.Logger
	Recorder Recorder
	// Counters overrides the container frame counters of the first
	// detection tier. Nil uses DefaultFrameCounters.
	Counters map[MediaKind]FrameCounter
}

type Pipeline struct {
	opts        Options
	tools       Toolchain
	still       StillEncoder
	detector    *Detector
	extractor   Extractor
	resizer     Resizer
	reassembler Reassembler
	logger      *slog.Logger
	recorder    Recorder
}

func New(deps Deps, opts Options) *Pipeline {
	logger := orDiscard(deps.Logger)

	var recorder Recorder = nopRecorder{}
	if deps.Recorder != nil {
		recorder = deps.Recorder
	}

	return &Pipeline{
		opts:        opts,
		tools:       deps.Tools,
		still:       deps.Still,
		detector:    NewDetector(logger, DefaultStrategies(deps.Tools, opts.WorkDir, deps.Counters, logger)...),
		extractor:   Extractor{Decoder: deps.Tools},
		resizer:     Resizer{MaxSize: opts.MaxSize},
		reassembler: Reassembler{Stream: deps.Tools, Frames: deps.Tools},
		logger:      logger,
		recorder:    recorder,
	}
}

// Process converts asset into dst. A failure affects this asset only; the
// workspace, if any, is already gone when Process returns.
func (p *Pipeline) Process(ctx context.Context, asset Asset, dst string) (Result, error) {
	start := time.Now()
	res, err := p.process(ctx, asset, dst, start)
	res.Duration = time.Since(start)
	return res, err
}

func (p *Pipeline) process(ctx context.Context, asset Asset, dst string, start time.Time) (Result, error) {
	res := Result{Source: asset.Path, Output: dst}
	log := p.logger.With("asset", asset.Name())

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("create output directory: %w", err)
	}

	verdict := p.detector.Classify(ctx, asset)
	res.Verdict = verdict
	p.recorder.CountDetection(string(verdict.Method), verdict.Kind.String())
	p.recorder.ObserveStage("detect", time.Since(start))

	if verdict.Kind == Animated {
		out, err := p.animate(ctx, asset, verdict, dst, log)
		if err != nil {
			res.Outcome = OutcomeFailed
			return res, err
		}
		res.fill(out)
		res.Outcome = OutcomeConverted
		return res, nil
	}

	if verdict.Kind == Unknown {
		log.Warn("animation detection inconclusive, treating as static", "method", string(verdict.Method))
	}

	stillStart := time.Now()
	stillErr := p.still.Encode(ctx, asset.Path, dst)
	p.recorder.ObserveStage("still", time.Since(stillStart))
	if stillErr == nil {
		res.Outcome = OutcomeConverted
		res.FramesIn, res.FramesOut = 1, 1
		if info, err := os.Stat(dst); err == nil {
			res.Size = info.Size()
		}
		return res, nil
	}

	log.Warn("static encode failed, falling back to frame reassembly", "error", stillErr)

	out, err := p.reassembleSingle(ctx, asset, dst, log)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("static encode failed (%v), fallback: %w", stillErr, err)
	}
	res.fill(out)
	res.Outcome = OutcomeFallback
	return res, nil
}

func (r *Result) fill(out animatedOutput) {
	r.Animated = true
	r.Strategy = out.Strategy
	r.FramesIn = out.framesIn
	r.FramesOut = out.Frames
	r.Size = out.Size
}

type animatedOutput struct {
	Output
	framesIn int
}

// animate runs Extract → Sample → Resize → Reassemble inside a workspace.
func (p *Pipeline) animate(ctx context.Context, asset Asset, verdict Verdict, dst string, log *slog.Logger) (animatedOutput, error) {
	ws, err := workspace.Acquire(p.opts.WorkDir, asset.Path)
	if err != nil {
		return animatedOutput{}, stageError("workspace", asset.Name(), ErrExtraction, err)
	}
	defer p.release(ws, log)

	stage := time.Now()
	set, err := p.extractor.Extract(ctx, asset, ws)
	p.recorder.ObserveStage("extract", time.Since(stage))
	if err != nil {
		return animatedOutput{}, err
	}
	framesIn := set.Len()
	p.recorder.AddFrames("extracted", framesIn)

	fps := p.frameRate(ctx, asset, verdict, log)
	plan := NewPlan(framesIn, fps)

	stage = time.Now()
	set, err = Apply(set, plan)
	p.recorder.ObserveStage("sample", time.Since(stage))
	if err != nil {
		return animatedOutput{}, stageError("sample", asset.Name(), ErrSampling, err)
	}
	p.recorder.AddFrames("retained", set.Len())

	log.Debug("frames sampled",
		"frames_in", framesIn, "frames_out", set.Len(),
		"fps_in", plan.OriginalFrameRate, "fps_out", plan.TargetFrameRate)

	out, err := p.finish(ctx, asset, set, plan, dst)
	if err != nil {
		return animatedOutput{}, err
	}
	return animatedOutput{Output: out, framesIn: framesIn}, nil
}

// reassembleSingle is the static fallback: the first decodable frame is
// treated as a one-frame animation.
func (p *Pipeline) reassembleSingle(ctx context.Context, asset Asset, dst string, log *slog.Logger) (animatedOutput, error) {
	ws, err := workspace.Acquire(p.opts.WorkDir, asset.Path)
	if err != nil {
		return animatedOutput{}, stageError("workspace", asset.Name(), ErrExtraction, err)
	}
	defer p.release(ws, log)

	frame, err := ws.Path(toolchain.FrameName(0))
	if err != nil {
		return animatedOutput{}, stageError("extract", asset.Name(), ErrExtraction, err)
	}

	stage := time.Now()
	err = p.tools.ExtractFrame(ctx, asset.Path, 0, frame)
	p.recorder.ObserveStage("extract", time.Since(stage))
	if err != nil {
		return animatedOutput{}, stageError("extract", asset.Name(), ErrExtraction, err)
	}
	p.recorder.AddFrames("extracted", 1)

	set := FrameSet{Dir: ws.Dir(), Frames: []Frame{{Index: 0, Path: frame}}}
	plan := NewPlan(1, MaxFrameRate)

	out, err := p.finish(ctx, asset, set, plan, dst)
	if err != nil {
		return animatedOutput{}, err
	}
	return animatedOutput{Output: out, framesIn: 1}, nil
}

// finish is the shared Resize → Reassemble tail.
func (p *Pipeline) finish(ctx context.Context, asset Asset, set FrameSet, plan Plan, dst string) (Output, error) {
	stage := time.Now()
	set, err := p.resizer.Resize(ctx, set)
	p.recorder.ObserveStage("resize", time.Since(stage))
	if err != nil {
		return Output{}, stageError("resize", asset.Name(), ErrResize, err)
	}

	profile := NewProfile(p.opts.HighQuality, plan.TargetFrameRate)

	stage = time.Now()
	out, err := p.reassembler.Encode(ctx, set, plan, profile, dst)
	p.recorder.ObserveStage("reassemble", time.Since(stage))
	if err != nil {
		return Output{}, stageError("reassemble", asset.Name(), ErrReassembly, err)
	}
	return out, nil
}

func (p *Pipeline) frameRate(ctx context.Context, asset Asset, verdict Verdict, log *slog.Logger) float64 {
	if verdict.FrameRate > 0 {
		return verdict.FrameRate
	}

	fps, err := p.tools.FrameRate(ctx, asset.Path)
	if err == nil && fps > 0 {
		return fps
	}

	fallback := p.opts.FallbackFrameRate
	if fallback <= 0 {
		fallback = MaxFrameRate
	}
	log.Debug("frame rate unknown, assuming fallback", "fps", fallback, "error", err)
	return fallback
}

// release removes ws. Cleanup failures are logged and counted, never
// returned.
func (p *Pipeline) release(ws *workspace.Workspace, log *slog.Logger) {
	if err := ws.Release(); err != nil {
		p.recorder.CountCleanupFailure()
		log.Warn("workspace cleanup failed", "dir", ws.Dir(), "error", fmt.Errorf("%w: %v", ErrCleanup, err))
	}
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
