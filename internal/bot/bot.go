// Package bot wires the connection, parser, registry and dispatch engine
// together and runs the read loop.
package bot

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/xfs/internal/config"
	"github.com/dshills/xfs/internal/dispatch"
	"github.com/dshills/xfs/internal/event"
	"github.com/dshills/xfs/internal/registry"
	"github.com/dshills/xfs/internal/registry/golang"
	"github.com/dshills/xfs/internal/registry/lua"
	"github.com/dshills/xfs/internal/store"
	"github.com/dshills/xfs/internal/watcher"
)

// shutdownTimeout bounds draining own-thread handlers on Close.
const shutdownTimeout = 10 * time.Second

// Bot is the running client.
type Bot struct {
	cfg    config.Config
	logger *zap.Logger

	store    *store.Store
	registry *registry.Registry
	parser   *event.Parser
	engine   *dispatch.Engine
	watcher  *watcher.Watcher
	out      *outbox

	unsubscribe func()
	running     atomic.Bool
	closed      atomic.Bool
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

// New builds every component and loads the modules. Module load failures
// are logged, not returned.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Bot, error) {
	b := &Bot{
		cfg:    cfg,
		logger: zap.NewNop(),
		out:    &outbox{},
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.bootstrap(ctx); err != nil {
		b.cleanup()
		return nil, err
	}
	return b, nil
}

// bootstrap initializes components in dependency order.
func (b *Bot) bootstrap(ctx context.Context) error {
	// 1. Store
	if b.cfg.Store.Path != "" {
		s, err := store.Open(b.cfg.Store.Path)
		if err != nil {
			return &InitError{Component: "store", Err: err}
		}
		b.store = s
	}

	// 2. Registry and runtimes
	luaOpts := []lua.Option{lua.WithLogger(b.logger.Named("lua"))}
	if b.store != nil {
		luaOpts = append(luaOpts, lua.WithStore(b.store))
	}
	b.registry = registry.New(
		registry.WithDir(b.cfg.Modules.Dir),
		registry.WithLogger(b.logger.Named("registry")),
		registry.WithRuntime(
			lua.NewRuntime(luaOpts...),
			golang.NewRuntime(golang.WithLogger(b.logger.Named("golang"))),
		),
	)

	// 3. Parser, kept in step with the prefixes loaded handlers use
	b.parser = event.NewParser(b.cfg.Modules.Prefixes)
	b.unsubscribe = b.registry.Subscribe(func(registry.Event) {
		b.syncPrefixes()
	})

	// 4. Engine
	b.engine = dispatch.NewEngine(
		dispatch.WithLogger(b.logger.Named("dispatch")),
		dispatch.WithSender(b.out),
		dispatch.WithEnv(dispatch.Env{
			BotNick:   b.cfg.Server.Nick,
			OwnerNick: b.cfg.Owner.Nick,
			OwnerHost: b.cfg.Owner.Host,
		}),
		dispatch.WithHandlerTimeout(b.cfg.Dispatch.Timeout),
		dispatch.WithPoolOptions(
			dispatch.WithWorkerCount(b.cfg.Dispatch.Workers),
			dispatch.WithQueueSize(b.cfg.Dispatch.QueueSize),
			dispatch.WithTaskTimeout(b.cfg.Dispatch.Timeout),
		),
	)
	if err := b.engine.Start(); err != nil {
		return &InitError{Component: "engine", Err: err}
	}
	if !b.cfg.HasOwner() {
		b.logger.Warn("no owner configured; owner-only handlers are disabled")
	}

	// 5. Modules
	if err := b.registry.Install(AdminModule, b.adminDefinitions()...); err != nil {
		return &InitError{Component: "admin module", Err: err}
	}
	if err := b.registry.LoadAll(ctx); err != nil {
		b.logger.Warn("some modules failed to load", zap.Error(err))
	}
	b.syncPrefixes()
	b.logger.Info("modules loaded",
		zap.Strings("modules", b.registry.Snapshot().Modules()),
		zap.Int("handlers", b.registry.Snapshot().Len()),
	)

	// 6. Watcher
	if b.cfg.Modules.Watch {
		if _, err := os.Stat(b.cfg.Modules.Dir); err != nil {
			b.logger.Warn("module directory unavailable; not watching",
				zap.String("dir", b.cfg.Modules.Dir), zap.Error(err))
			return nil
		}
		w, err := watcher.New(b.registry,
			watcher.WithDebounce(b.cfg.Modules.Debounce),
			watcher.WithLogger(b.logger.Named("watcher")),
		)
		if err != nil {
			return &InitError{Component: "watcher", Err: err}
		}
		b.watcher = w
	}
	return nil
}

// syncPrefixes recomputes the parser prefixes from configuration and the
// loaded handlers.
func (b *Bot) syncPrefixes() {
	prefixes := slices.Clone(b.cfg.Modules.Prefixes)
	for _, p := range b.registry.Snapshot().Prefixes() {
		if !slices.Contains(prefixes, p) {
			prefixes = append(prefixes, p)
		}
	}
	b.parser.SetPrefixes(prefixes)
}

// Registry returns the module registry.
func (b *Bot) Registry() *registry.Registry {
	return b.registry
}

// Engine returns the dispatch engine.
func (b *Bot) Engine() *dispatch.Engine {
	return b.engine
}

// Parser returns the event parser.
func (b *Bot) Parser() *event.Parser {
	return b.parser
}

// Run reads lines from conn and dispatches them until ctx is done or the
// connection closes. A closed connection is returned as an error.
func (b *Bot) Run(ctx context.Context, conn Conn) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	b.out.attach(conn)
	defer b.out.detach()
	b.engine.SetBotNick(conn.Nick())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.readLoop(gctx, conn)
	})
	if b.watcher != nil {
		g.Go(func() error {
			return b.watcher.Run(gctx)
		})
	}
	return g.Wait()
}

// readLoop stops at the connection's close signal: lines still buffered
// when it fires are not dispatched.
func (b *Bot) readLoop(ctx context.Context, conn Conn) error {
	for {
		line, err := conn.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-conn.Done():
			return ErrDisconnected
		default:
		}
		b.HandleLine(ctx, line, conn.Nick())
	}
}

// HandleLine parses one raw line and dispatches it against the current
// module set. Modules in that set stay open until its handlers, including
// own-thread ones, have finished, even if they are reloaded meanwhile.
func (b *Bot) HandleLine(ctx context.Context, line, nick string) dispatch.Report {
	ev := b.parser.Parse(line)
	if nick != "" && nick != b.engine.Env().BotNick {
		b.engine.SetBotNick(nick)
	}

	set, release := b.registry.Acquire()
	rep := b.engine.DispatchLeased(ctx, ev, set.Entries(), release)
	if rep.Matched > 0 {
		b.logger.Debug("dispatched",
			zap.String("event_id", ev.ID),
			zap.String("type", ev.Type),
			zap.Int("matched", rep.Matched),
			zap.Int("failed", rep.Failed),
			zap.Int("async", rep.Async),
			zap.Int("dropped", rep.Dropped),
		)
	}
	return rep
}

// Close stops dispatch, drains own-thread handlers and releases modules and
// the store.
func (b *Bot) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.cleanup()
}

func (b *Bot) cleanup() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if b.engine != nil {
		if err := b.engine.Close(ctx); err != nil && !errors.Is(err, dispatch.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if b.watcher != nil && !b.running.Load() {
		if err := b.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	if b.registry != nil {
		if err := b.registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
