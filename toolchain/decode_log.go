package toolchain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	durationRe   = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	fpsRe        = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+fps\b`)
	tbrRe        = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+tbr\b`)
	frameTokenRe = regexp.MustCompile(`frame=\s*(\d+)`)
)

// DecodeStats is what a decode log reveals about a stream. Zero values mean
// the corresponding token was absent.
type DecodeStats struct {
	Duration  float64
	FrameRate float64
	Frames    int
}

// ParseDecodeLog extracts stream duration, frame rate and the final
// decoded frame count from ffmpeg's stderr.
func ParseDecodeLog(log string) DecodeStats {
	var stats DecodeStats

	if m := durationRe.FindStringSubmatch(log); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		s, _ := strconv.ParseFloat(m[3], 64)
		stats.Duration = float64(h)*3600 + float64(mm)*60 + s
	}

	for _, line := range strings.Split(log, "\n") {
		if !strings.Contains(line, "Video:") {
			continue
		}
		if m := fpsRe.FindStringSubmatch(line); m != nil {
			stats.FrameRate, _ = strconv.ParseFloat(m[1], 64)
		} else if m := tbrRe.FindStringSubmatch(line); m != nil {
			stats.FrameRate, _ = strconv.ParseFloat(m[1], 64)
		}
		break
	}

	// Progress lines repeat; the last one carries the final count.
	for _, m := range frameTokenRe.FindAllStringSubmatch(log, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			stats.Frames = n
		}
	}

	return stats
}

// ParseRate parses an ffprobe rational ("30000/1001") or decimal rate.
func ParseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty rate")
	}

	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", s, err)
	}
	if !found {
		return n, nil
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("parse rate %q: zero denominator", s)
	}
	return n / d, nil
}
