package animation

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"avifopt/toolchain"
)

// MaxFrameRate caps the frame rate of every re-encoded animation.
const MaxFrameRate = 10.0

// Plan is a deterministic, temporally uniform frame reduction.
type Plan struct {
	OriginalFrameCount int
	OriginalFrameRate  float64
	TargetFrameRate    float64
	TargetFrameCount   int
	// Retained holds the kept original indices in ascending order.
	Retained []int
}

// NewPlan computes which of n frames at frameRate fps to keep so the
// output plays at no more than MaxFrameRate. Unknown rates (<= 0) are
// treated as already within the cap.
func NewPlan(n int, frameRate float64) Plan {
	p := Plan{
		OriginalFrameCount: n,
		OriginalFrameRate:  frameRate,
		TargetFrameRate:    math.Min(frameRate, MaxFrameRate),
	}
	if frameRate <= 0 {
		p.TargetFrameRate = MaxFrameRate
	}
	if n <= 0 {
		return p
	}

	if frameRate <= MaxFrameRate {
		p.TargetFrameCount = n
		p.Retained = make([]int, n)
		for i := range p.Retained {
			p.Retained[i] = i
		}
		return p
	}

	target := int(math.Round(float64(n) * p.TargetFrameRate / frameRate))
	target = min(max(target, 1), n)
	p.TargetFrameCount = target

	if target == 1 {
		p.Retained = []int{0}
		return p
	}

	keep := make(map[int]struct{}, target)
	for i := 0; i < target; i++ {
		idx := int(math.Round(float64(i) * float64(n-1) / float64(target-1)))
		keep[idx] = struct{}{}
	}

	p.Retained = make([]int, 0, len(keep))
	for idx := range keep {
		p.Retained = append(p.Retained, idx)
	}
	sort.Ints(p.Retained)
	return p
}

// Reduces reports whether the plan drops any frame.
func (p Plan) Reduces() bool {
	return len(p.Retained) < p.OriginalFrameCount
}

// Apply deletes the frames the plan drops and renumbers the rest into a
// dense zero-padded sequence, preserving temporal order.
func Apply(set FrameSet, plan Plan) (FrameSet, error) {
	if set.Len() == 0 {
		return FrameSet{}, fmt.Errorf("%w: no frames to sample", ErrSampling)
	}
	if set.Len() != plan.OriginalFrameCount {
		return FrameSet{}, fmt.Errorf("%w: plan for %d frames applied to %d", ErrSampling, plan.OriginalFrameCount, set.Len())
	}
	if len(plan.Retained) == 0 {
		return FrameSet{}, fmt.Errorf("%w: plan retains no frames", ErrSampling)
	}

	keep := make(map[int]bool, len(plan.Retained))
	for _, idx := range plan.Retained {
		if idx < 0 || idx >= set.Len() {
			return FrameSet{}, fmt.Errorf("%w: retained index %d out of range", ErrSampling, idx)
		}
		keep[idx] = true
	}

	for _, f := range set.Frames {
		if keep[f.Index] {
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			return FrameSet{}, fmt.Errorf("%w: drop frame %d: %v", ErrSampling, f.Index, err)
		}
	}

	// Renaming in ascending order is safe: a retained frame's new index
	// never exceeds its original position, and every lower name has
	// already been vacated.
	out := FrameSet{Dir: set.Dir, Frames: make([]Frame, 0, len(plan.Retained))}
	for _, f := range set.Frames {
		if !keep[f.Index] {
			continue
		}

		next := filepath.Join(set.Dir, toolchain.FrameName(len(out.Frames)))
		if next != f.Path {
			if err := os.Rename(f.Path, next); err != nil {
				return FrameSet{}, fmt.Errorf("%w: renumber frame %d: %v", ErrSampling, f.Index, err)
			}
		}
		out.Frames = append(out.Frames, Frame{Index: len(out.Frames), Path: next})
	}

	return out, nil
}
