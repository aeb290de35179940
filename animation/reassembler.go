package animation

import (
	"context"
	"fmt"
	"os"
)

// ReassemblyStrategy is the encoder invocation shape.
type ReassemblyStrategy int

const (
	// DirectMultiArg passes every frame file to avifenc.
	DirectMultiArg ReassemblyStrategy = iota
	// SequencedStream feeds the numbered frames to ffmpeg as an image stream.
	SequencedStream
)

func (s ReassemblyStrategy) String() string {
	if s == SequencedStream {
		return "sequenced-stream"
	}
	return "direct-multi-arg"
}

// DirectFrameLimit is the largest frame count encoded with DirectMultiArg.
const DirectFrameLimit = 50

func ChooseStrategy(frames int) ReassemblyStrategy {
	if frames > DirectFrameLimit {
		return SequencedStream
	}
	return DirectMultiArg
}

// Output describes an encoded animation.
type Output struct {
	Path     string
	Size     int64
	Frames   int
	Strategy ReassemblyStrategy
}

// Reassembler re-encodes a frame set into the output animation.
type Reassembler struct {
	Stream StreamEncoder
	Frames FrameEncoder
}

// Encode writes dst from set. A failed encode removes whatever partial
// output the tool left behind.
func (r Reassembler) Encode(ctx context.Context, set FrameSet, plan Plan, profile Profile, dst string) (Output, error) {
	if set.Len() == 0 {
		return Output{}, fmt.Errorf("%w: empty frame set", ErrReassembly)
	}

	strategy := ChooseStrategy(set.Len())
	fps := profile.TargetFrameRate
	if fps <= 0 {
		fps = plan.TargetFrameRate
	}

	var err error
	switch strategy {
	case SequencedStream:
		err = r.Stream.EncodeSequence(ctx, set.Pattern(), fps, profile.CRF(), dst)
	default:
		err = r.Frames.EncodeFrames(ctx, set.Paths(), fps, profile.MinQuant, profile.MaxQuant, dst)
	}
	if err != nil {
		os.Remove(dst)
		return Output{}, fmt.Errorf("%w: %s: %v", ErrReassembly, strategy, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %s produced no output: %v", ErrReassembly, strategy, err)
	}

	return Output{Path: dst, Size: info.Size(), Frames: set.Len(), Strategy: strategy}, nil
}
