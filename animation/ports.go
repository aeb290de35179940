package animation

import (
	"context"
	"time"
)

// Prober is the read-only stream probing capability.
type Prober interface {
	CountPackets(ctx context.Context, src string) (int, error)
	FrameRate(ctx context.Context, src string) (float64, error)
	DecodeLog(ctx context.Context, src string) (string, error)
}

// Decoder writes frames of src as zero-padded, lexicographically sortable
// lossless images.
type Decoder interface {
	ExtractFrames(ctx context.Context, src, dir string) error
	ExtractFrame(ctx context.Context, src string, index int, dst string) error
}

// StreamEncoder feeds a numbered image stream to a general video encoder.
type StreamEncoder interface {
	EncodeSequence(ctx context.Context, pattern string, fps float64, crf int, dst string) error
}

// FrameEncoder passes every frame file explicitly to an animation encoder.
type FrameEncoder interface {
	EncodeFrames(ctx context.Context, frames []string, fps float64, minQuant, maxQuant int, dst string) error
}

// Toolchain bundles every external capability the pipeline delegates to.
// *toolchain.Runner satisfies it.
type Toolchain interface {
	Prober
	Decoder
	StreamEncoder
	FrameEncoder
}

// StillEncoder is the direct single-call encode used for static assets.
type StillEncoder interface {
	Encode(ctx context.Context, src, dst string) error
}

// Recorder receives pipeline measurements. A nil Recorder is allowed.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	CountDetection(method, verdict string)
	AddFrames(phase string, n int)
	CountCleanupFailure()
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) CountDetection(string, string)      {}
func (nopRecorder) AddFrames(string, int)              {}
func (nopRecorder) CountCleanupFailure()               {}
