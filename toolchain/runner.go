// Package toolchain invokes the external media tools the pipeline delegates
// pixel work to: ffmpeg and ffprobe for decoding, probing and stream
// encoding, and avifenc for multi-file animation encoding.
//
// Every invocation runs under its own deadline because external tools can
// hang on malformed input. A deadline expiry surfaces as an error wrapping
// context.DeadlineExceeded.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultTimeout = 5 * time.Minute

	stderrTail = 2048
)

// ExecError describes a tool that ran but exited unsuccessfully.
type ExecError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Runner holds the binary locations and the per-invocation deadline.
type Runner struct {
	FFmpeg  string
	FFprobe string
	Avifenc string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewRunner returns a Runner using binaries resolved from PATH.
func NewRunner(timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Runner{
		FFmpeg:  "ffmpeg",
		FFprobe: "ffprobe",
		Avifenc: "avifenc",
		Timeout: timeout,
		Logger:  logger,
	}
}

// run executes tool and waits for it to exit. stdout and stderr are
// returned even on failure so callers can parse diagnostic output.
func (r *Runner) run(ctx context.Context, tool string, args ...string) ([]byte, []byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()

	r.Logger.Debug("tool finished",
		"tool", tool,
		"args", strings.Join(args, " "),
		"duration", time.Since(start).Round(time.Millisecond).String(),
		"ok", err == nil,
	)

	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s timed out after %v: %w", tool, timeout, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), &ExecError{
			Tool:     tool,
			Args:     args,
			ExitCode: exitErr.ExitCode(),
			Stderr:   tail(stderr.String(), stderrTail),
			Err:      err,
		}
	}

	return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("run %s: %w", tool, err)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
