package animation

import (
	"os"
	"path/filepath"
	"testing"

	"avifopt/toolchain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlan_SixtyFramesAtThirty(t *testing.T) {
	p := NewPlan(60, 30)

	assert.Equal(t, 10.0, p.TargetFrameRate)
	assert.Equal(t, 20, p.TargetFrameCount)
	require.Len(t, p.Retained, 20)
	assert.Equal(t, []int{0, 3, 6}, p.Retained[:3])
	assert.Equal(t, 59, p.Retained[19])
	assert.True(t, p.Reduces())
}

func TestNewPlan_OneHundredTwentyAtThirty(t *testing.T) {
	p := NewPlan(120, 30)

	assert.Equal(t, 40, p.TargetFrameCount)
	require.Len(t, p.Retained, 40)
	assert.Equal(t, 0, p.Retained[0])
	assert.Equal(t, 119, p.Retained[39])
	assert.Equal(t, DirectMultiArg, ChooseStrategy(len(p.Retained)))
}

func TestNewPlan_WithinCapKeepsEverything(t *testing.T) {
	for _, fps := range []float64{1, 8, 10} {
		p := NewPlan(12, fps)
		assert.Equal(t, fps, p.TargetFrameRate)
		assert.Equal(t, 12, p.TargetFrameCount)
		assert.False(t, p.Reduces())
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, p.Retained)
	}
}

func TestNewPlan_UnknownRateAssumesCap(t *testing.T) {
	p := NewPlan(7, 0)
	assert.Equal(t, MaxFrameRate, p.TargetFrameRate)
	assert.Len(t, p.Retained, 7)
}

func TestNewPlan_CollapsesToSingleFrame(t *testing.T) {
	// Two frames at 100 fps round to a single retained frame.
	p := NewPlan(2, 100)
	assert.Equal(t, 1, p.TargetFrameCount)
	assert.Equal(t, []int{0}, p.Retained)
}

func TestNewPlan_Properties(t *testing.T) {
	for _, n := range []int{1, 2, 3, 17, 60, 121, 500} {
		for _, fps := range []float64{0, 5, 10, 12.5, 24, 29.97, 30, 60, 144} {
			p := NewPlan(n, fps)

			assert.LessOrEqual(t, p.TargetFrameRate, MaxFrameRate)
			assert.LessOrEqual(t, len(p.Retained), n)
			require.NotEmpty(t, p.Retained, "n=%d fps=%v", n, fps)
			assert.Equal(t, p.TargetFrameCount, len(p.Retained), "n=%d fps=%v", n, fps)
			assert.Equal(t, 0, p.Retained[0])
			if len(p.Retained) > 1 {
				assert.Equal(t, n-1, p.Retained[len(p.Retained)-1])
			}
			for i := 1; i < len(p.Retained); i++ {
				assert.Less(t, p.Retained[i-1], p.Retained[i], "n=%d fps=%v", n, fps)
			}

			// Same inputs, same plan.
			assert.Equal(t, p, NewPlan(n, fps))
		}
	}
}

func writeFrameFiles(t *testing.T, dir string, n int) FrameSet {
	t.Helper()
	tools := &fakeTools{frames: n}
	require.NoError(t, tools.ExtractFrames(t.Context(), "", dir))
	set, err := ScanFrames(dir)
	require.NoError(t, err)
	require.Equal(t, n, set.Len())
	return set
}

func TestApply_RenumbersDensely(t *testing.T) {
	dir := t.TempDir()
	set := writeFrameFiles(t, dir, 60)

	out, err := Apply(set, NewPlan(60, 30))
	require.NoError(t, err)
	require.Equal(t, 20, out.Len())

	onDisk, err := ScanFrames(dir)
	require.NoError(t, err)
	assert.Equal(t, out, onDisk)

	for i, f := range out.Frames {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, filepath.Join(dir, toolchain.FrameName(i)), f.Path)
	}

	// Gray level is the original index, so the content proves order.
	want := NewPlan(60, 30).Retained
	for i, f := range out.Frames {
		img, err := readPNG(f.Path)
		require.NoError(t, err)
		assert.Equal(t, want[i], grayLevel(img))
	}
}

func TestApply_NoReductionLeavesFiles(t *testing.T) {
	dir := t.TempDir()
	set := writeFrameFiles(t, dir, 5)

	out, err := Apply(set, NewPlan(5, 8))
	require.NoError(t, err)
	assert.Equal(t, set, out)
}

func TestApply_Rejects(t *testing.T) {
	dir := t.TempDir()
	set := writeFrameFiles(t, dir, 4)

	_, err := Apply(FrameSet{Dir: dir}, NewPlan(4, 30))
	assert.ErrorIs(t, err, ErrSampling)

	_, err = Apply(set, NewPlan(5, 30))
	assert.ErrorIs(t, err, ErrSampling)

	_, err = Apply(set, Plan{OriginalFrameCount: 4, Retained: []int{0, 9}})
	assert.ErrorIs(t, err, ErrSampling)

	// Nothing was touched by the rejected plans.
	_, err = os.Stat(set.Frames[3].Path)
	assert.NoError(t, err)
}
