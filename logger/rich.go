package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
)

type RichLoggerOptions struct {
	Output           io.Writer
	TimeFormat       string
	Level            slog.Level
	AddSource        bool
	EnableJSON       bool
	EnableColors     bool
	CompactJSON      bool
	EnableSeparators bool
}

func DefaultOptions() *RichLoggerOptions {
	return &RichLoggerOptions{
		Level:        slog.LevelInfo,
		EnableColors: true,
		TimeFormat:   "2006-01-02 15:04:05.000",
		Output:       os.Stdout,
		CompactJSON:  true,
	}
}

// RichHandler is a slog.Handler writing colored text lines with trailing
// key=value attributes, or one JSON object per record.
type RichHandler struct {
	opts   *RichLoggerOptions
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewRichHandler(opts *RichLoggerOptions) *RichHandler {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.DateTime
	}

	return &RichHandler{opts: opts, mu: &sync.Mutex{}}
}

func (h *RichHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

func (h *RichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, h.qualify(a))
	}
	return h2
}

func (h *RichHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

// clone shares the mutex so every derived logger serializes on one writer.
func (h *RichHandler) clone() *RichHandler {
	return &RichHandler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

// qualify prefixes the key with the open groups.
func (h *RichHandler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) == 0 {
		return a
	}
	a.Key = strings.Join(h.groups, ".") + "." + a.Key
	return a
}

func (h *RichHandler) collect(record slog.Record) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})
	return flatten(attrs, "")
}

// flatten expands group values into dotted keys and drops empty attrs.
func flatten(attrs []slog.Attr, prefix string) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			continue
		}
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		if a.Value.Kind() == slog.KindGroup {
			out = append(out, flatten(a.Value.Group(), key)...)
			continue
		}
		out = append(out, slog.Attr{Key: key, Value: a.Value})
	}
	return out
}

func (h *RichHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := h.collect(record)

	var line []byte
	var err error
	if h.opts.EnableJSON {
		line, err = h.formatJSON(record, attrs)
	} else {
		line = h.formatText(record, attrs)
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.opts.Output.Write(line)
	return err
}

func (h *RichHandler) formatJSON(record slog.Record, attrs []slog.Attr) ([]byte, error) {
	obj := make(map[string]any, len(attrs)+4)

	if !record.Time.IsZero() {
		obj["time"] = record.Time.Format(time.RFC3339Nano)
	}
	obj["level"] = record.Level.String()
	if h.opts.AddSource && record.PC != 0 {
		obj["source"] = source(record.PC, false)
	}
	obj["msg"] = stripANSI(record.Message)

	for _, a := range attrs {
		obj[a.Key] = jsonValue(a.Value)
	}

	var data []byte
	var err error
	if h.opts.CompactJSON {
		data, err = json.Marshal(obj)
	} else {
		data, err = json.MarshalIndent(obj, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("marshal log record: %w", err)
	}
	return append(data, '\n'), nil
}

func jsonValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		if s, ok := v.Any().(fmt.Stringer); ok {
			return s.String()
		}
		return v.Any()
	default:
		return v.Any()
	}
}

var levelColors = map[slog.Level]string{
	slog.LevelDebug: Cyan,
	slog.LevelInfo:  Green,
	slog.LevelWarn:  Yellow,
	slog.LevelError: Red,
}

func (h *RichHandler) formatText(record slog.Record, attrs []slog.Attr) []byte {
	var b strings.Builder
	color := h.opts.EnableColors

	paint := func(code, s string) {
		if color {
			b.WriteString(code)
			b.WriteString(s)
			b.WriteString(Reset)
			return
		}
		b.WriteString(s)
	}

	if !record.Time.IsZero() {
		paint(Blue, record.Time.Format(h.opts.TimeFormat))
		b.WriteByte(' ')
	}

	paint(levelColors[record.Level]+Bold, fmt.Sprintf("%-5s", strings.ToUpper(record.Level.String())))
	b.WriteByte(' ')

	if h.opts.AddSource && record.PC != 0 {
		paint(Magenta, source(record.PC, true))
		b.WriteByte(' ')
	}

	msg := record.Message
	if !color {
		msg = stripANSI(msg)
	}
	b.WriteString(msg)

	for _, a := range attrs {
		b.WriteByte(' ')
		paint(Dim, a.Key+"=")
		b.WriteString(quoteIfNeeded(a.Value.String()))
	}

	if h.opts.EnableSeparators {
		b.WriteByte('\n')
		paint(Blue, strings.Repeat("─", 80))
	}
	b.WriteByte('\n')

	return []byte(b.String())
}

func source(pc uintptr, short bool) string {
	fs := runtime.CallersFrames([]uintptr{pc})
	f, _ := fs.Next()
	file := f.File
	if short {
		if i := strings.LastIndex(file, "/"); i >= 0 {
			file = file[i+1:]
		}
	}
	return fmt.Sprintf("%s:%d", file, f.Line)
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// stripANSI removes the escape sequences Console adds to messages.
func stripANSI(s string) string {
	if !strings.Contains(s, "\033[") {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func NewRichLogger(opts *RichLoggerOptions) *slog.Logger {
	return slog.New(NewRichHandler(opts))
}
