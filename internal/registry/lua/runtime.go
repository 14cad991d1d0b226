package lua

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/xfs/internal/registry"
)

// Ext is the file extension served by Runtime.
const Ext = ".lua"

// Store persists small values per module.
type Store interface {
	Get(ctx context.Context, module, key string) (string, bool, error)
	Set(ctx context.Context, module, key, value string) error
	Delete(ctx context.Context, module, key string) error
}

// Runtime loads ".lua" module files.
type Runtime struct {
	logger      *zap.Logger
	store       Store
	loadTimeout time.Duration
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger handed to modules.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStore backs xfs.store.
func WithStore(s Store) Option {
	return func(r *Runtime) {
		r.store = s
	}
}

// WithLoadTimeout bounds a module's top-level code.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.loadTimeout = d
		}
	}
}

// NewRuntime creates a Lua runtime.
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

// Ext returns ".lua".
func (r *Runtime) Ext() string {
	return Ext
}

// Load runs the file at path in a fresh state and collects the handlers it
// declares.
func (r *Runtime) Load(ctx context.Context, name, path string) (registry.Module, error) {
	state := NewState()
	logger := r.logger.With(zap.String("module", name))

	m := &Module{
		name:    name,
		path:    path,
		state:   state,
		bridge:  NewBridge(state.L),
		logger:  logger,
		store:   r.store,
		loading: true,
	}

	state.Sandbox().Provide("xfs", m.api(state.L))
	state.Sandbox().SetPrint(func(msg string) {
		logger.Debug(msg)
	})

	loadCtx, cancel := context.WithTimeout(ctx, r.loadTimeout)
	defer cancel()

	if err := state.DoFile(loadCtx, path); err != nil {
		_ = state.Close()
		return nil, fmt.Errorf("lua: %w", err)
	}
	m.loading = false

	return m, nil
}

var _ registry.Runtime = (*Runtime)(nil)
var _ registry.Module = (*Module)(nil)
