package golang

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/traefik/yaegi/interp"
	"go.uber.org/zap"

	"github.com/dshills/xfs/internal/registry"
)

// Ext is the file extension served by Runtime.
const Ext = ".go"

// EntryPoint is the function every module source must define.
const EntryPoint = "main.Handlers"

// DefaultLoadTimeout bounds evaluation of a module source.
const DefaultLoadTimeout = 5 * time.Second

// ErrNoEntryPoint is returned when a source lacks a usable Handlers function.
var ErrNoEntryPoint = errors.New("golang: module must define func Handlers() []xfs.Handler")

// Runtime loads ".go" module files with the yaegi interpreter.
type Runtime struct {
	logger      *zap.Logger
	loadTimeout time.Duration
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLoadTimeout bounds source evaluation.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.loadTimeout = d
		}
	}
}

// NewRuntime creates a Go-source runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		logger:      zap.NewNop(),
		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ext returns ".go".
func (r *Runtime) Ext() string {
	return Ext
}

// Load interprets the file at path and calls its Handlers function.
func (r *Runtime) Load(ctx context.Context, name, path string) (registry.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("golang: %w", err)
	}

	i, err := r.interpreter()
	if err != nil {
		return nil, err
	}

	loadCtx, cancel := context.WithTimeout(ctx, r.loadTimeout)
	defer cancel()

	if _, err := i.EvalWithContext(loadCtx, string(src)); err != nil {
		return nil, fmt.Errorf("golang: eval: %w", err)
	}

	v, err := i.EvalWithContext(loadCtx, EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEntryPoint, err)
	}
	fn, ok := v.Interface().(func() []Handler)
	if !ok {
		return nil, ErrNoEntryPoint
	}

	handlers, err := collect(fn)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("go module evaluated",
		zap.String("module", name),
		zap.String("path", path),
		zap.Int("handlers", len(handlers)),
	)
	return newModule(name, handlers), nil
}

// collect calls the entry point, turning a panic into an error.
func collect(fn func() []Handler) (handlers []Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("golang: Handlers panicked: %v", r)
		}
	}()
	return fn(), nil
}

// interpreter creates an interpreter with the allowed imports.
func (r *Runtime) interpreter() (*interp.Interpreter, error) {
	i := interp.New(interp.Options{
		GoPath: os.DevNull,
	})
	if err := i.Use(stdlibSymbols()); err != nil {
		return nil, fmt.Errorf("golang: stdlib: %w", err)
	}
	if err := i.Use(apiSymbols); err != nil {
		return nil, fmt.Errorf("golang: api: %w", err)
	}
	return i, nil
}

var _ registry.Runtime = (*Runtime)(nil)
