// Package logger is the user-facing console: leveled slog output through
// RichHandler plus progress bar, spinner, summary table and timers.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

type Console struct {
	Logger    *slog.Logger
	Colorized bool
	// Interactive is false in JSON mode; progress bars and spinners are
	// then suppressed so the output stays machine readable.
	Interactive bool

	out io.Writer
}

func NewConsole(opts *RichLoggerOptions) *Console {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := NewRichLogger(opts)

	return &Console{
		Logger:      logger,
		Colorized:   opts.EnableColors && !opts.EnableJSON,
		Interactive: !opts.EnableJSON,
		out:         opts.Output,
	}
}

func (c *Console) StartTimer(name string) *Timer {
	return &Timer{
		Name:      name,
		StartTime: time.Now(),
		Console:   c,
	}
}

func (c *Console) decorate(icon, color, format string, args []any) string {
	msg := icon + fmt.Sprintf(format, args...)
	if c.Colorized {
		msg = color + msg + Reset
	}
	return msg
}

func (c *Console) Success(format string, args ...any) {
	c.Logger.Info(c.decorate("✓ ", Green+Bold, format, args))
}

func (c *Console) Info(format string, args ...any) {
	c.Logger.Info(c.decorate("ℹ ", Blue+Bold, format, args))
}

func (c *Console) Log(format string, args ...any) {
	c.Logger.Info(c.decorate("", White, format, args))
}

func (c *Console) Warn(format string, args ...any) {
	c.Logger.Warn(c.decorate("⚠ ", Yellow+Bold, format, args))
}

func (c *Console) Error(format string, args ...any) {
	c.Logger.Error(c.decorate("✖ ", Red+Bold, format, args))
}

// Outcome logs one per-asset result line with structured attributes.
func (c *Console) Outcome(level slog.Level, msg string, attrs ...any) {
	icon, color := "✓ ", Green
	switch {
	case level >= slog.LevelError:
		icon, color = "✖ ", Red
	case level >= slog.LevelWarn:
		icon, color = "⚠ ", Yellow
	}
	c.Logger.Log(context.Background(), level, c.decorate(icon, color, "%s", []any{msg}), attrs...)
}

func (c *Console) StartSpinner(message string) *Spinner {
	s := &Spinner{
		Message: message,
		Frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Console: c,
	}

	s.Start()
	return s
}

func (c *Console) NewProgressBar(total int, label string) *ProgressBar {
	bar := NewProgressBar(total, label, c.out)
	bar.silent = !c.Interactive
	return bar
}

func (c *Console) NewTable(headers []string) *Table {
	return NewTable(headers, c.out)
}

// Box prints content framed under title. It bypasses the log format.
func (c *Console) Box(title string, content string) {
	lines := strings.Split(content, "\n")
	width := utf8.RuneCountInString(title)
	for _, line := range lines {
		width = max(width, utf8.RuneCountInString(line))
	}
	width += 4

	fmt.Fprintln(c.out, "┌─"+title+"─"+strings.Repeat("─", width-utf8.RuneCountInString(title))+"┐")
	for _, line := range lines {
		fmt.Fprintln(c.out, "│ "+line+strings.Repeat(" ", width-utf8.RuneCountInString(line))+" │")
	}
	fmt.Fprintln(c.out, "└"+strings.Repeat("─", width+2)+"┘")
}
