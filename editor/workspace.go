package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrNoActiveBuffer is returned by operations that need an open buffer.
	ErrNoActiveBuffer = errors.New("no active editor")
	// ErrUntitled is returned when saving a buffer that has no path.
	ErrUntitled = errors.New("buffer has no path")
)

// DefaultIgnore lists the glob patterns skipped when listing project files.
var DefaultIgnore = []string{
	"**/.git/**",
	"**/node_modules/**",
}

// Workspace is the headless editor model: a set of project roots and the
// active buffer.
type Workspace struct {
	log    *slog.Logger
	roots  []string
	ignore []string

	mu     sync.Mutex
	active *Buffer

	filesMu    sync.Mutex
	files      []string
	filesValid bool
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithRoots sets the project roots. Relative roots are made absolute.
func WithRoots(roots ...string) Option {
	return func(w *Workspace) {
		for _, r := range roots {
			if abs, err := filepath.Abs(r); err == nil {
				r = abs
			}
			w.roots = append(w.roots, filepath.Clean(r))
		}
	}
}

// WithIgnore replaces the ignore glob patterns (doublestar syntax, matched
// against slash-separated paths relative to a root).
func WithIgnore(patterns ...string) Option {
	return func(w *Workspace) { w.ignore = append([]string(nil), patterns...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.log = l }
}

func NewWorkspace(opts ...Option) *Workspace {
	w := &Workspace{
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		ignore: append([]string(nil), DefaultIgnore...),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Roots returns the project roots.
func (w *Workspace) Roots() []string { return append([]string(nil), w.roots...) }

// Active returns the active buffer.
func (w *Workspace) Active() (*Buffer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return nil, ErrNoActiveBuffer
	}
	return w.active, nil
}

// SetActive makes b the active buffer. A nil b closes the active buffer.
func (w *Workspace) SetActive(b *Buffer) {
	w.mu.Lock()
	w.active = b
	w.mu.Unlock()
}

// Resolve turns p into an absolute path. Relative paths resolve against the
// first project root, or the working directory when there is none.
func (w *Workspace) Resolve(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if len(w.roots) > 0 {
		return filepath.Join(w.roots[0], p), nil
	}
	return filepath.Abs(p)
}

// Open loads the file at p into a new active buffer. A file that does not
// exist yet opens as an empty buffer bound to that path.
func (w *Workspace) Open(ctx context.Context, p string) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := w.Resolve(p)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", p, err)
	}
	data, err := os.ReadFile(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = nil
	case err != nil:
		return nil, fmt.Errorf("open %s: %w", abs, err)
	}
	b := NewBuffer(abs, string(data))
	w.SetActive(b)
	w.log.InfoContext(ctx, "editor.open", slog.String("path", abs), slog.Int("bytes", len(data)))
	return b, nil
}

// Save writes the active buffer to its path and returns that path.
func (w *Workspace) Save(ctx context.Context) (string, error) {
	b, err := w.Active()
	if err != nil {
		return "", err
	}
	p := b.Path()
	if p == "" {
		return "", ErrUntitled
	}
	_, statErr := os.Stat(p)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("save %s: %w", p, err)
	}
	if err := os.WriteFile(p, []byte(b.Text()), 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", p, err)
	}
	b.markSaved(p)
	if errors.Is(statErr, fs.ErrNotExist) {
		w.InvalidateFiles()
	}
	w.log.InfoContext(ctx, "editor.save", slog.String("path", p))
	return p, nil
}

// ProjectFiles returns the absolute paths of all files under the project
// roots, sorted, skipping paths matched by the ignore globs. The listing is
// cached until InvalidateFiles is called.
func (w *Workspace) ProjectFiles(ctx context.Context) ([]string, error) {
	w.filesMu.Lock()
	defer w.filesMu.Unlock()
	if w.filesValid {
		return append([]string(nil), w.files...), nil
	}

	var files []string
	for _, root := range w.roots {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				// best-effort listing
				if d != nil && d.IsDir() && p != root {
					return fs.SkipDir
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p == root {
				return nil
			}
			if w.Ignored(root, p, d.IsDir()) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	w.files, w.filesValid = files, true
	return append([]string(nil), files...), nil
}

// InvalidateFiles drops the cached project file listing.
func (w *Workspace) InvalidateFiles() {
	w.filesMu.Lock()
	w.files, w.filesValid = nil, false
	w.filesMu.Unlock()
}

// Ignored reports whether p (under root) matches an ignore glob.
func (w *Workspace) Ignored(root, p string, isDir bool) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}
