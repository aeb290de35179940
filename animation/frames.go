package animation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"avifopt/toolchain"
	"avifopt/workspace"
)

// Frame is one lossless frame file. Index is its position in the set.
type Frame struct {
	Index int
	Path  string
}

// FrameSet is an ordered frame sequence living in a single directory.
// Indices are always the dense range 0..Len()-1 and file names follow
// toolchain.FramePattern, so the set doubles as a numbered image stream.
type FrameSet struct {
	Dir    string
	Frames []Frame
}

func (s FrameSet) Len() int {
	return len(s.Frames)
}

// Paths returns the frame files in temporal order.
func (s FrameSet) Paths() []string {
	paths := make([]string, len(s.Frames))
	for i, f := range s.Frames {
		paths[i] = f.Path
	}
	return paths
}

// Pattern is the printf-style numbered stream pattern for the set.
func (s FrameSet) Pattern() string {
	return filepath.Join(s.Dir, toolchain.FramePattern)
}

// Extractor decodes every frame of an animated asset into a workspace.
type Extractor struct {
	Decoder Decoder
}

// Extract writes all frames into a "frames" directory inside ws and
// recovers temporal order from the frame indices. Producing no frames
// is a hard failure; partial output is never used.
func (e Extractor) Extract(ctx context.Context, asset Asset, ws *workspace.Workspace) (FrameSet, error) {
	dir, err := ws.Path("frames")
	if err != nil {
		return FrameSet{}, stageError("extract", asset.Name(), ErrExtraction, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FrameSet{}, stageError("extract", asset.Name(), ErrExtraction, err)
	}

	if err := e.Decoder.ExtractFrames(ctx, asset.Path, dir); err != nil {
		return FrameSet{}, stageError("extract", asset.Name(), ErrExtraction, err)
	}

	set, err := ScanFrames(dir)
	if err != nil {
		return FrameSet{}, stageError("extract", asset.Name(), ErrExtraction, err)
	}
	if set.Len() == 0 {
		return FrameSet{}, stageError("extract", asset.Name(), ErrExtraction, fmt.Errorf("decoder produced no frames"))
	}
	return set, nil
}

// ScanFrames enumerates frame files in dir ordered by their numeric index,
// so names of differing padding width still sort temporally. Files that
// match the glob but carry no index are ignored.
func ScanFrames(dir string) (FrameSet, error) {
	matches, err := filepath.Glob(filepath.Join(dir, toolchain.FrameGlob))
	if err != nil {
		return FrameSet{}, fmt.Errorf("glob frames: %w", err)
	}

	type numbered struct {
		index int
		path  string
	}
	found := make([]numbered, 0, len(matches))
	for _, p := range matches {
		if idx, ok := toolchain.FrameIndex(p); ok {
			found = append(found, numbered{index: idx, path: p})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].index != found[j].index {
			return found[i].index < found[j].index
		}
		return found[i].path < found[j].path
	})

	set := FrameSet{Dir: dir, Frames: make([]Frame, len(found))}
	for i, f := range found {
		set.Frames[i] = Frame{Index: i, Path: f.path}
	}
	return set, nil
}
