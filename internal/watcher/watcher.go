// Package watcher reloads modules when their files change.
//
// Events are coalesced per file: a module is reloaded once the file has
// been quiet for the debounce delay. A file that no longer exists when the
// delay expires is unloaded instead.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dshills/xfs/internal/registry"
)

// DefaultDebounce is the quiet period before a changed module is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watcher: already running")

// defaultIgnores match editor temp files and the names Discover skips.
var defaultIgnores = []string{
	"_*",
	".*",
	"*~",
	"*.swp",
	"*.swo",
	"*.tmp",
	"#*#",
}

// Target is the set of registry operations the watcher drives.
type Target interface {
	Dir() string
	Extensions() []string
	Reload(ctx context.Context, name string) error
	Unload(name string) error
}

// Action is what the watcher did for a module.
type Action int

const (
	// ActionReload means the module was (re)loaded.
	ActionReload Action = iota

	// ActionUnload means the module was unloaded.
	ActionUnload
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionReload:
		return "reload"
	case ActionUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// Result reports one applied change.
type Result struct {
	Module string
	Path   string
	Action Action
	Err    error
}

// Watcher watches a module directory.
type Watcher struct {
	target   Target
	dir      string
	exts     []string
	ignores  []string
	debounce time.Duration
	logger   *zap.Logger
	onResult func(Result)

	fsw     *fsnotify.Watcher
	started atomic.Bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore adds doublestar patterns matched against file base names.
func WithIgnore(patterns ...string) Option {
	return func(w *Watcher) {
		w.ignores = append(w.ignores, patterns...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithResultHandler is called after each applied change.
func WithResultHandler(fn func(Result)) Option {
	return func(w *Watcher) {
		w.onResult = fn
	}
}

// New creates a watcher for target's module directory.
func New(target Target, opts ...Option) (*Watcher, error) {
	dir, err := filepath.Abs(target.Dir())
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve %s: %w", target.Dir(), err)
	}

	w := &Watcher{
		target:   target,
		dir:      dir,
		exts:     target.Extensions(),
		ignores:  append([]string(nil), defaultIgnores...),
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, pat := range w.ignores {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("watcher: invalid ignore pattern %q", pat)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watcher: watch %s: %w", dir, err)
	}
	w.fsw = fsw
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Close releases the underlying fsnotify watcher. Run closes it too; Close
// is for a watcher that was never run.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run processes file events until ctx is done. It closes the underlying
// fsnotify watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.fsw.Close()

	pending := make(map[string]time.Time)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(w.debounce)
			}
			pending[ev.Name] = time.Now().Add(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case now := <-timer.C:
			next := w.flush(ctx, pending, now)
			if !next.IsZero() {
				timer.Reset(next.Sub(now))
			}
		}
	}
}

// flush applies every pending change whose deadline passed and returns the
// earliest remaining deadline.
func (w *Watcher) flush(ctx context.Context, pending map[string]time.Time, now time.Time) time.Time {
	var due []string
	var next time.Time
	for path, deadline := range pending {
		if !deadline.After(now) {
			due = append(due, path)
			continue
		}
		if next.IsZero() || deadline.Before(next) {
			next = deadline
		}
	}
	sort.Strings(due)

	for _, path := range due {
		delete(pending, path)
		w.apply(ctx, path)
	}
	return next
}

// apply reloads or unloads the module behind path.
func (w *Watcher) apply(ctx context.Context, path string) {
	name, ok := registry.ModuleName(path, w.exts...)
	if !ok {
		return
	}

	res := Result{Module: name, Path: path, Action: ActionReload}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		res.Action = ActionUnload
		res.Err = w.target.Unload(name)
		if errors.Is(res.Err, registry.ErrModuleNotFound) {
			res.Err = nil
		}
	} else {
		res.Err = w.target.Reload(ctx, name)
	}

	fields := []zap.Field{
		zap.String("module", name),
		zap.String("path", path),
		zap.Stringer("action", res.Action),
	}
	if res.Err != nil {
		w.logger.Warn("module change failed", append(fields, zap.Error(res.Err))...)
	} else {
		w.logger.Info("module change applied", fields...)
	}

	if w.onResult != nil {
		w.onResult(res)
	}
}

// relevant reports whether ev concerns a module file.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if filepath.Dir(ev.Name) != w.dir {
		return false
	}
	if w.ignored(filepath.Base(ev.Name)) {
		return false
	}
	_, ok := registry.ModuleName(ev.Name, w.exts...)
	return ok
}

func (w *Watcher) ignored(base string) bool {
	for _, pat := range w.ignores {
		if ok, err := doublestar.Match(pat, base); err == nil && ok {
			return true
		}
	}
	return false
}
