package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// EventType identifies a registry event.
type EventType int

const (
	// EventLoaded is emitted when a module is loaded.
	EventLoaded EventType = iota
	// EventUnloaded is emitted when a module is unloaded.
	EventUnloaded
	// EventReloaded is emitted when a module is replaced by a fresh load.
	EventReloaded
	// EventError is emitted when a module fails to load.
	EventError
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventLoaded:
		return "loaded"
	case EventUnloaded:
		return "unloaded"
	case EventReloaded:
		return "reloaded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event describes a change to the registry.
type Event struct {
	Type     EventType
	Module   string
	Path     string
	Handlers int
	Err      error
}

// EventHandler receives registry events. Handlers run while the registry
// writer lock is held: they may read Snapshot but must not load, reload or
// unload. Panics are recovered.
type EventHandler func(Event)

// Registry owns the mapping from module name to handler entries.
//
// Readers call Snapshot or Acquire and never block. Writers (Load, Reload,
// Unload) serialize on a mutex, build a new Set and publish it with one
// atomic swap, so a reader always sees either the old or the new set in
// full. A superseded module is closed once no acquired Set contains it.
type Registry struct {
	dir      string
	runtimes map[string]Runtime
	logger   *zap.Logger

	set atomic.Pointer[Set]

	mu        sync.Mutex
	installed map[string][]Definition
	instOrder []string
	errs      map[string]error

	subMu       sync.RWMutex
	subscribers []EventHandler
}

// Option configures a Registry.
type Option func(*Registry)

// WithDir sets the modules directory.
func WithDir(dir string) Option {
	return func(r *Registry) {
		r.dir = dir
	}
}

// WithRuntime registers runtimes by their extension.
func WithRuntime(rts ...Runtime) Option {
	return func(r *Registry) {
		for _, rt := range rts {
			if rt != nil {
				r.runtimes[rt.Ext()] = rt
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		dir:       "modules",
		runtimes:  make(map[string]Runtime),
		logger:    zap.NewNop(),
		installed: make(map[string][]Definition),
		errs:      make(map[string]error),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.set.Store(newSet())
	return r
}

// Dir returns the modules directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Extensions returns the file extensions with a registered runtime, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.runtimes))
	for ext := range r.runtimes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Snapshot returns the current module set without holding its modules
// open. Use Acquire when the handlers will be invoked.
func (r *Registry) Snapshot() *Set {
	return r.set.Load()
}

// Discover lists module files in the modules directory.
func (r *Registry) Discover() (map[string]string, error) {
	return Discover(r.dir, r.Extensions()...)
}

// Install adds a module whose definitions are Go values bound to this
// registry, replacing any module of the same name.
func (r *Registry) Install(name string, defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.installed[name]; !ok {
		r.instOrder = append(r.instOrder, name)
	}
	r.installed[name] = slices.Clone(defs)
	return r.loadLocked(context.Background(), name, "")
}

// LoadAll loads compiled-in modules, installed modules and every discovered
// file module. A module that fails is skipped; all failures are returned
// joined. A directory without modules is not an error.
func (r *Registry) LoadAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var loadErrors []error
	seen := make(map[string]bool)

	load := func(name, path string) {
		if seen[name] {
			err := &ModuleLoadError{Module: name, Path: path, Err: ErrDuplicateModule}
			r.recordError(name, path, err)
			loadErrors = append(loadErrors, err)
			return
		}
		seen[name] = true
		if err := r.loadLocked(ctx, name, path); err != nil {
			loadErrors = append(loadErrors, err)
		}
	}

	for _, name := range Builtins() {
		load(name, "")
	}
	for _, name := range r.instOrder {
		load(name, "")
	}

	paths, err := r.Discover()
	switch {
	case errors.Is(err, ErrNoModules):
		r.logger.Info("no module files found", zap.String("dir", r.dir))
	case err != nil:
		loadErrors = append(loadErrors, err)
	}

	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		load(name, paths[name])
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("registry: %d modules failed: %w", len(loadErrors), errors.Join(loadErrors...))
	}
	return nil
}

// Load loads one module by name. It returns ErrAlreadyLoaded if the module
// is loaded; use Reload to replace it.
func (r *Registry) Load(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Snapshot().Has(name) {
		return fmt.Errorf("registry: module %q: %w", name, ErrAlreadyLoaded)
	}
	return r.loadLocked(ctx, name, "")
}

// Reload re-discovers and reloads one module, replacing all of its entries
// at once. A module that is not loaded is loaded. If the new version fails
// to load, the old version is removed and the error returned.
func (r *Registry) Reload(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx, name, "")
}

// Unload removes a module and closes it.
func (r *Registry) Unload(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.Snapshot()
	if !set.Has(name) {
		return fmt.Errorf("registry: module %q: %w", name, ErrModuleNotFound)
	}
	path := set.Path(name)

	_ = r.publish(set.without(name))
	delete(r.errs, name)

	r.logger.Info("module unloaded", zap.String("module", name))
	r.emit(Event{Type: EventUnloaded, Module: name, Path: path})
	return nil
}

// Close unloads every module. Modules are closed in reverse load order,
// immediately when no acquired Set holds them, otherwise by the last
// release; only errors from immediate closes are returned.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publish(newSet())
}

// Acquire returns the current Set and keeps every module in it open until
// release is called, even if the modules are reloaded or unloaded
// meanwhile. release may be called more than once.
func (r *Registry) Acquire() (set *Set, release func()) {
	for {
		s := r.set.Load()
		if !s.acquire() {
			// Superseded and released between Load and acquire.
			continue
		}
		var once sync.Once
		return s, func() {
			once.Do(func() { _ = r.releaseSet(s) })
		}
	}
}

// Errors returns the last load error of every module that failed and has
// not loaded successfully since.
func (r *Registry) Errors() map[string]error {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]error, len(r.errs))
	for k, v := range r.errs {
		out[k] = v
	}
	return out
}

// Subscribe adds an event handler and returns a function removing it.
func (r *Registry) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	r.subMu.Lock()
	r.subscribers = append(r.subscribers, handler)
	index := len(r.subscribers) - 1
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if index < len(r.subscribers) {
			r.subscribers[index] = nil
		}
	}
}

// loadLocked opens, extracts and publishes one module. path may be empty to
// resolve the module by name. Must be called with mu held.
func (r *Registry) loadLocked(ctx context.Context, name, path string) error {
	wasLoaded := r.Snapshot().Has(name)

	mod, path, err := r.open(ctx, name, path)
	if err != nil {
		if wasLoaded {
			_ = r.publish(r.Snapshot().without(name))
		}
		r.recordError(name, path, err)
		return err
	}

	entries, dropped := extract(name, mod)
	for _, d := range dropped {
		r.logger.Debug("handler not triggerable, skipped",
			zap.String("module", name),
			zap.String("handler", d.name),
			zap.Error(d.reason),
		)
	}

	delete(r.errs, name)
	_ = r.publish(r.Snapshot().with(name, path, entries, newHandle(name, mod)))

	typ := EventLoaded
	if wasLoaded {
		typ = EventReloaded
	}
	r.logger.Info("module "+typ.String(),
		zap.String("module", name),
		zap.String("path", path),
		zap.Int("handlers", len(entries)),
	)
	r.emit(Event{Type: typ, Module: name, Path: path, Handlers: len(entries)})
	return nil
}

// open resolves a module name to a Module.
func (r *Registry) open(ctx context.Context, name, path string) (mod Module, resolved string, err error) {
	if defs, ok := r.installed[name]; ok {
		return NewModule(name, defs...), "", nil
	}
	if defs, ok := builtin(name); ok {
		return NewModule(name, defs...), "", nil
	}

	if path == "" {
		paths, derr := r.Discover()
		if derr != nil && !errors.Is(derr, ErrNoModules) {
			return nil, "", &ModuleLoadError{Module: name, Err: derr}
		}
		p, ok := paths[name]
		if !ok {
			return nil, "", fmt.Errorf("registry: module %q: %w", name, ErrModuleNotFound)
		}
		path = p
	}

	rt, ok := r.runtimes[filepath.Ext(path)]
	if !ok {
		return nil, path, &ModuleLoadError{Module: name, Path: path, Err: ErrNoRuntime}
	}

	defer func() {
		if rec := recover(); rec != nil {
			mod, resolved = nil, path
			err = &ModuleLoadError{Module: name, Path: path, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	mod, err = rt.Load(ctx, name, path)
	if err != nil {
		var mle *ModuleLoadError
		if !errors.As(err, &mle) {
			err = &ModuleLoadError{Module: name, Path: path, Err: err}
		}
		return nil, path, err
	}
	if mod == nil {
		return nil, path, &ModuleLoadError{Module: name, Path: path, Err: errors.New("runtime returned no module")}
	}
	return mod, path, nil
}

func (r *Registry) recordError(name, path string, err error) {
	r.errs[name] = err
	r.logger.Warn("module failed to load",
		zap.String("module", name),
		zap.String("path", path),
		zap.Error(err),
	)
	r.emit(Event{Type: EventError, Module: name, Path: path, Err: err})
}

// publish makes next current and releases the registry's use of the
// previous Set. Must be called with mu held.
func (r *Registry) publish(next *Set) error {
	prev := r.set.Swap(next)
	if prev == next {
		return nil
	}
	return r.releaseSet(prev)
}

func (r *Registry) releaseSet(s *Set) error {
	err := s.release()
	if err != nil {
		r.logger.Warn("module close failed", zap.Error(err))
	}
	return err
}

// emit sends an event to all subscribers, recovering panics.
func (r *Registry) emit(ev Event) {
	r.subMu.RLock()
	handlers := make([]EventHandler, len(r.subscribers))
	copy(handlers, r.subscribers)
	r.subMu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			handler(ev)
		}()
	}
}
