// Package workspace provides disposable directories for intermediate frames.
//
// A Workspace is owned by exactly one pipeline invocation. Callers acquire it
// on entry and defer Release so the directory disappears on every exit path.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrReleased is returned by Path after the workspace was released.
	ErrReleased = errors.New("workspace already released")
	// ErrOutside is returned by Path for names that resolve outside the
	// workspace root.
	ErrOutside = errors.New("path escapes workspace")
)

type Workspace struct {
	dir string

	mu       sync.Mutex
	released bool
}

// Acquire creates a fresh directory under baseDir. The name combines the
// asset's base name, a nanosecond timestamp and a random suffix so that
// concurrent invocations for the same asset never collide.
func Acquire(baseDir, asset string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base %s: %w", baseDir, err)
	}

	name := fmt.Sprintf("%s-%d-%s", slug(asset), time.Now().UnixNano(), uuid.NewString()[:8])
	dir := filepath.Join(baseDir, name)

	// Mkdir (not MkdirAll) so an existing directory is an error, never shared.
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", dir, err)
	}

	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace root. Absolute names and names that
// climb out of the root are rejected.
func (w *Workspace) Path(name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return "", ErrReleased
	}
	if filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrOutside, name)
	}
	return filepath.Join(w.dir, name), nil
}

// Release removes the workspace recursively. It is safe to call more than once.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}
	w.released = true

	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.dir, err)
	}
	return nil
}

func slug(asset string) string {
	base := strings.TrimSuffix(filepath.Base(asset), filepath.Ext(asset))

	var b strings.Builder
	for _, r := range base {
		if b.Len() >= 32 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	if b.Len() == 0 || base == "." {
		return "asset"
	}
	return b.String()
}
