package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain(buf *bytes.Buffer) *RichLoggerOptions {
	return &RichLoggerOptions{Output: buf, Level: slog.LevelInfo, TimeFormat: time.DateTime}
}

func TestRichHandler_TextRendersAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := NewRichLogger(plain(&buf)).With("asset", "spin.gif")

	log.Info("frames sampled", "frames_in", 60, "note", "two words")

	line := buf.String()
	assert.Contains(t, line, "INFO  frames sampled")
	assert.Contains(t, line, "asset=spin.gif")
	assert.Contains(t, line, "frames_in=60")
	assert.Contains(t, line, `note="two words"`)
	assert.NotContains(t, line, "\033[")
}

func TestRichHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	log := NewRichLogger(plain(&buf)).WithGroup("tool")

	log.Info("ran", slog.Group("exec", slog.Int("code", 3)), "name", "ffmpeg")

	assert.Contains(t, buf.String(), "tool.exec.code=3")
	assert.Contains(t, buf.String(), "tool.name=ffmpeg")
}

func TestRichHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	log := NewRichLogger(plain(&buf))

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	opts := plain(&buf)
	opts.Level = slog.LevelDebug
	NewRichLogger(opts).Debug("shown")
	assert.Contains(t, buf.String(), "DEBUG shown")
}

func TestRichHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	opts := plain(&buf)
	opts.EnableJSON = true
	opts.CompactJSON = true
	console := NewConsole(opts)

	console.Outcome(slog.LevelWarn, "fallback", "asset", "a.avif", "error", errors.New("boom"), "took", 2*time.Second)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "⚠ fallback", rec["msg"])
	assert.Equal(t, "a.avif", rec["asset"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "2s", rec["took"])
	assert.False(t, console.Interactive)
}

func TestConsole_ColorsOnlyWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	opts := plain(&buf)
	opts.EnableColors = true
	NewConsole(opts).Success("done")
	assert.Contains(t, buf.String(), Green)

	buf.Reset()
	NewConsole(plain(&buf)).Success("done")
	assert.Contains(t, buf.String(), "✓ done")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable([]string{"Metric", "Value"}, &buf)
	table.AddRow("Processed files", "3/4")
	table.AddRow("Saved", "1.00 MB", "ignored")
	table.Print()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "│ Processed files │ 3/4     │", lines[3])
	for _, l := range lines {
		assert.Equal(t, len([]rune(lines[0])), len([]rune(l)), "ragged line %q", l)
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(4, "Converting", &buf)
	bar.Step(false)
	bar.Step(true)
	assert.Contains(t, buf.String(), "] 2/4 (1 failed)")

	for i := 0; i < 5; i++ {
		bar.Step(false)
	}
	bar.Complete()
	bar.Complete()

	done, failed := bar.Counts()
	assert.Equal(t, 4, done)
	assert.Equal(t, 1, failed)
	assert.Contains(t, buf.String(), "["+strings.Repeat("█", barWidth)+"] 4/4 (1 failed)")
	assert.NotContains(t, buf.String(), "5/4")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	var empty bytes.Buffer
	NewProgressBar(0, "Nothing", &empty).Complete()
	assert.Empty(t, empty.String())
}

func TestProgressBarSilent(t *testing.T) {
	var buf bytes.Buffer
	opts := plain(&buf)
	opts.EnableJSON = true
	bar := NewConsole(opts).NewProgressBar(2, "Converting")
	bar.Step(true)
	bar.Complete()

	assert.Empty(t, buf.String())
	done, failed := bar.Counts()
	assert.Equal(t, 1, done)
	assert.Equal(t, 1, failed)
}

func TestSpinnerSilentWhenNotInteractive(t *testing.T) {
	var buf bytes.Buffer
	opts := plain(&buf)
	opts.EnableJSON = true
	console := NewConsole(opts)

	s := console.StartSpinner("Watching")
	s.Stop(true, "stopped")

	assert.NotContains(t, buf.String(), "Watching")
	assert.Contains(t, buf.String(), "stopped")
}

func TestBox(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(plain(&buf)).Box("avifopt", "Version: dev\nGit commit: abc")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	for _, l := range lines {
		assert.Equal(t, len([]rune(lines[0])), len([]rune(l)), "ragged line %q", l)
	}
}
