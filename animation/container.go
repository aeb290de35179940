package animation

import (
	"errors"
	"fmt"
	"os"

	"github.com/abema/go-mp4"
)

var errNoFileType = errors.New("no ftyp box")

// Handler types of the tracks that carry frames: AVIF image sequences use
// "pict", MP4 video uses "vide".
var frameHandlers = map[string]bool{"pict": true, "vide": true}

// countTrackSamples reads the frame count and average frame rate of an
// ISOBMFF file (AVIF, MP4) from the sample table of its first picture or
// video track. Only box headers and tables are read; nothing is decoded.
// A file without a movie box is a single still image.
func countTrackSamples(path string) (int, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	ftyp, err := mp4.ExtractBox(f, nil, mp4.BoxPath{mp4.BoxTypeFtyp()})
	if err != nil {
		return 0, 0, fmt.Errorf("read boxes: %w", err)
	}
	if len(ftyp) == 0 {
		return 0, 0, errNoFileType
	}

	traks, err := mp4.ExtractBox(f, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeTrak()})
	if err != nil {
		return 0, 0, fmt.Errorf("read tracks: %w", err)
	}
	if len(traks) == 0 {
		return 1, 0, nil
	}

	for _, trak := range traks {
		frames, fps, ok, err := trackSamples(f, trak)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			return frames, fps, nil
		}
	}
	return 0, 0, errors.New("no picture or video track")
}

// trackSamples reports ok=false for tracks that do not carry frames.
func trackSamples(f *os.File, trak *mp4.BoxInfo) (frames int, fps float64, ok bool, err error) {
	boxes, err := mp4.ExtractBoxesWithPayload(f, trak, []mp4.BoxPath{
		{mp4.BoxTypeMdia(), mp4.BoxTypeHdlr()},
		{mp4.BoxTypeMdia(), mp4.BoxTypeMdhd()},
		{mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl(), mp4.BoxTypeStsz()},
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("read track: %w", err)
	}

	var (
		hdlr *mp4.Hdlr
		mdhd *mp4.Mdhd
		stsz *mp4.Stsz
	)
	for _, b := range boxes {
		switch p := b.Payload.(type) {
		case *mp4.Hdlr:
			hdlr = p
		case *mp4.Mdhd:
			mdhd = p
		case *mp4.Stsz:
			stsz = p
		}
	}

	if hdlr == nil || !frameHandlers[string(hdlr.HandlerType[:])] {
		return 0, 0, false, nil
	}
	if stsz == nil {
		return 0, 0, false, fmt.Errorf("%s track has no sample sizes", hdlr.HandlerType[:])
	}

	frames = int(stsz.SampleCount)
	if mdhd != nil && mdhd.Timescale > 0 {
		if seconds := float64(mdhd.GetDuration()) / float64(mdhd.Timescale); seconds > 0 {
			fps = float64(frames) / seconds
		}
	}
	return frames, fps, true, nil
}
