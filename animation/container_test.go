package animation

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(typ string, children ...[]byte) []byte {
	payload := bytes.Join(children, nil)
	out := binary.BigEndian.AppendUint32(nil, uint32(8+len(payload)))
	out = append(out, typ...)
	return append(out, payload...)
}

func u32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

// track builds a trak box whose mdhd, hdlr and stsz describe count samples
// over duration/timescale seconds.
func track(handler string, timescale, duration, count uint32) []byte {
	mdhd := box("mdhd", u32(0), u32(0), u32(0), u32(timescale), u32(duration), []byte{0x55, 0xc4, 0, 0})
	hdlr := box("hdlr", u32(0), u32(0), []byte(handler), make([]byte, 12), []byte("frames\x00"))
	stsz := box("stsz", u32(0), u32(100), u32(count))
	return box("trak", box("mdia", mdhd, hdlr, box("minf", box("stbl", stsz))))
}

var avisBrand = box("ftyp", []byte("avis"), u32(0), []byte("avisavifmsf1"))

func writeBoxes(t *testing.T, name string, parts ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, bytes.Join(parts, nil), 0o644))
	return path
}

func TestCountTrackSamples(t *testing.T) {
	tests := []struct {
		name       string
		parts      [][]byte
		wantFrames int
		wantFPS    float64
	}{
		{
			name:       "avif sequence",
			parts:      [][]byte{avisBrand, box("moov", track("pict", 1000, 1200, 12))},
			wantFrames: 12,
			wantFPS:    10,
		},
		{
			name: "mp4 with audio first",
			parts: [][]byte{
				box("ftyp", []byte("isom"), u32(0), []byte("isomavc1")),
				box("moov", track("soun", 48000, 192000, 188), track("vide", 15360, 61440, 120)),
			},
			wantFrames: 120,
			wantFPS:    30,
		},
		{
			name:       "still avif",
			parts:      [][]byte{box("ftyp", []byte("avif"), u32(0), []byte("avifmif1")), box("meta", u32(0))},
			wantFrames: 1,
		},
		{
			name:       "zero duration",
			parts:      [][]byte{avisBrand, box("moov", track("pict", 1000, 0, 5))},
			wantFrames: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, fps, err := countTrackSamples(writeBoxes(t, "in.avif", tt.parts...))
			require.NoError(t, err)
			assert.Equal(t, tt.wantFrames, frames)
			assert.InDelta(t, tt.wantFPS, fps, 1e-9)
		})
	}
}

func TestCountTrackSamples_Errors(t *testing.T) {
	tests := []struct {
		name  string
		parts [][]byte
	}{
		{name: "empty"},
		{name: "no file type", parts: [][]byte{box("moov", track("pict", 1000, 1200, 12))}},
		{name: "audio only", parts: [][]byte{avisBrand, box("moov", track("soun", 48000, 48000, 47))}},
		{name: "video without sample table", parts: [][]byte{avisBrand, box("moov", box("trak", box("mdia",
			box("hdlr", u32(0), u32(0), []byte("vide"), make([]byte, 12), []byte{0}))))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := countTrackSamples(writeBoxes(t, "in.mp4", tt.parts...))
			assert.Error(t, err)
		})
	}
}

func TestContainerStrategy_AVIFSequence(t *testing.T) {
	path := writeBoxes(t, "spin.avif", avisBrand, box("moov", track("pict", 1000, 3000, 90)))
	s := ContainerStrategy{Counters: DefaultFrameCounters()}

	v, err := s.Classify(t.Context(), NewAsset(path))
	require.NoError(t, err)
	assert.Equal(t, Animated, v.Kind)
	assert.Equal(t, 90, v.FrameCount)
	assert.InDelta(t, 30.0, v.FrameRate, 1e-9)
}
