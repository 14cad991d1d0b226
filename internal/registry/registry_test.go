package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/xfs/internal/dispatch"
	"github.com/dshills/xfs/internal/event"
	"github.com/dshills/xfs/internal/trigger"
)

// fakeRuntime loads ".fake" files: one command name per line. A file whose
// first line is FAIL fails to load; PANIC panics.
type fakeRuntime struct {
	mu     sync.Mutex
	loaded []*fakeModule
}

type fakeModule struct {
	name   string
	defs   []Definition
	closed atomic.Bool
}

func (m *fakeModule) Name() string           { return m.name }
func (m *fakeModule) Handlers() []Definition { return m.defs }
func (m *fakeModule) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *fakeModule) invoke(context.Context, *dispatch.Call) error {
	if m.closed.Load() {
		return ErrModuleClosed
	}
	return nil
}

func (rt *fakeRuntime) Ext() string { return ".fake" }

func (rt *fakeRuntime) Load(_ context.Context, name, path string) (Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Fields(string(data))
	if len(lines) > 0 && lines[0] == "FAIL" {
		return nil, errors.New("syntax error")
	}
	if len(lines) > 0 && lines[0] == "PANIC" {
		panic("runtime exploded")
	}

	mod := &fakeModule{name: name}
	for _, cmd := range lines {
		mod.defs = append(mod.defs, Definition{
			Name: cmd,
			Spec: trigger.Spec{Commands: []string{cmd}},
			Func: mod.invoke,
		})
	}

	rt.mu.Lock()
	rt.loaded = append(rt.loaded, mod)
	rt.mu.Unlock()
	return mod, nil
}

func writeModule(t *testing.T, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
}

func entryNames(entries []Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Module + "." + e.Name
	}
	return names
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "greet.fake", "hi")
	writeModule(t, dir, "admin.fake", "load")
	writeModule(t, dir, "_disabled.fake", "x")
	writeModule(t, dir, ".hidden.fake", "x")
	writeModule(t, dir, "notes.txt", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeModule(t, filepath.Join(dir, "sub"), "inner.fake", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.fake"), 0o755))

	first, err := Discover(dir, ".fake")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"admin": filepath.Join(dir, "admin.fake"),
		"greet": filepath.Join(dir, "greet.fake"),
	}, first)

	second, err := Discover(dir, ".fake")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDiscover_Symlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "real.fake")
	require.NoError(t, os.WriteFile(target, []byte("hi"), 0o644))
	if err := os.Symlink(target, filepath.Join(dir, "linked.fake")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := Discover(dir, ".fake")
	require.NoError(t, err)
	assert.Contains(t, got, "linked")
}

func TestDiscover_Empty(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "_only.fake", "x")

	_, err := Discover(dir, ".fake")
	assert.ErrorIs(t, err, ErrNoModules)

	_, err = Discover(filepath.Join(dir, "missing"), ".fake")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestModuleName(t *testing.T) {
	name, ok := ModuleName("/x/greet.lua", ".lua", ".go")
	assert.True(t, ok)
	assert.Equal(t, "greet", name)

	for _, p := range []string{"/x/_greet.lua", "/x/.greet.lua.swp", "/x/greet.txt", "/x/.lua"} {
		_, ok := ModuleName(p, ".lua", ".go")
		assert.False(t, ok, p)
	}
}

func TestExtractHandlers(t *testing.T) {
	noop := func(context.Context, *dispatch.Call) error { return nil }
	mod := NewModule("m",
		Definition{Name: "b", Spec: trigger.Spec{Commands: []string{"b"}}, Func: noop},
		Definition{Name: "helper", Spec: trigger.Spec{}, Func: noop},
		Definition{Name: "a", Spec: trigger.Spec{Commands: []string{"a"}, Events: []string{"notice"}}, Func: noop},
		Definition{Name: "nofunc", Spec: trigger.Spec{Commands: []string{"x"}}},
		Definition{Name: "bad", Spec: trigger.Spec{Commands: []string{"has space"}}, Func: noop},
	)

	entries := ExtractHandlers(mod)
	assert.Equal(t, []string{"m.b", "m.a"}, entryNames(entries))
	assert.Equal(t, []string{"."}, entries[0].Spec.Prefixes)
	assert.Equal(t, []string{"NOTICE"}, entries[1].Spec.Events)
}

func TestRegistry_LoadAllPartialFailure(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "good.fake", "hi hello")
	writeModule(t, dir, "bad.fake", "FAIL")
	writeModule(t, dir, "boom.fake", "PANIC")
	writeModule(t, dir, "other.fake", "bye")

	r := New(WithDir(dir), WithRuntime(&fakeRuntime{}))
	err := r.LoadAll(context.Background())
	require.Error(t, err)

	var mle *ModuleLoadError
	require.ErrorAs(t, err, &mle)

	set := r.Snapshot()
	assert.Equal(t, []string{"good", "other"}, set.Modules())
	assert.Equal(t, []string{"good.hi", "good.hello", "other.bye"}, entryNames(set.Entries()))

	errs := r.Errors()
	require.Contains(t, errs, "bad")
	require.Contains(t, errs, "boom")
	assert.ErrorContains(t, errs["bad"], "syntax error")
	assert.ErrorContains(t, errs["boom"], "panic")
}

func TestRegistry_LoadAllEmptyDir(t *testing.T) {
	r := New(WithDir(t.TempDir()), WithRuntime(&fakeRuntime{}))
	assert.NoError(t, r.LoadAll(context.Background()))
	assert.Zero(t, r.Snapshot().Len())
}

func TestRegistry_LoadUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "greet.fake", "hi")

	r := New(WithDir(dir))
	err := r.Load(context.Background(), "greet")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestRegistry_LoadTwice(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "greet.fake", "hi")

	r := New(WithDir(dir), WithRuntime(&fakeRuntime{}))
	require.NoError(t, r.Load(context.Background(), "greet"))
	assert.ErrorIs(t, r.Load(context.Background(), "greet"), ErrAlreadyLoaded)
	assert.ErrorIs(t, r.Load(context.Background(), "nope"), ErrModuleNotFound)
}

func TestRegistry_ReloadReplaces(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "a.fake", "one")
	writeModule(t, dir, "foo.fake", "old shared")
	writeModule(t, dir, "z.fake", "last")

	rt := &fakeRuntime{}
	r := New(WithDir(dir), WithRuntime(rt))
	require.NoError(t, r.LoadAll(context.Background()))

	before := r.Snapshot()
	writeModule(t, dir, "foo.fake", "shared new")
	require.NoError(t, r.Reload(context.Background(), "foo"))
	after := r.Snapshot()

	assert.Equal(t, []string{"a.one", "foo.old", "foo.shared", "z.last"}, entryNames(before.Entries()))
	assert.Equal(t, []string{"a.one", "foo.shared", "foo.new", "z.last"}, entryNames(after.Entries()))

	oldMod := rt.loaded[1]
	assert.Equal(t, "foo", oldMod.name)
	assert.True(t, oldMod.closed.Load())

	for _, e := range after.Entries() {
		assert.NotEqual(t, "old", e.Name)
	}
}

func TestRegistry_ReloadFailureRemoves(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "foo.fake", "hi")

	r := New(WithDir(dir), WithRuntime(&fakeRuntime{}))
	require.NoError(t, r.Load(context.Background(), "foo"))

	writeModule(t, dir, "foo.fake", "FAIL")
	err := r.Reload(context.Background(), "foo")

	var mle *ModuleLoadError
	require.ErrorAs(t, err, &mle)
	assert.Equal(t, "foo", mle.Module)
	assert.False(t, r.Snapshot().Has("foo"))
	assert.Contains(t, r.Errors(), "foo")

	writeModule(t, dir, "foo.fake", "hi")
	require.NoError(t, r.Reload(context.Background(), "foo"))
	assert.True(t, r.Snapshot().Has("foo"))
	assert.NotContains(t, r.Errors(), "foo")
}

func TestRegistry_ReloadDeletedFile(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "foo.fake", "hi")
	writeModule(t, dir, "bar.fake", "x")

	r := New(WithDir(dir), WithRuntime(&fakeRuntime{}))
	require.NoError(t, r.LoadAll(context.Background()))

	require.NoError(t, os.Remove(filepath.Join(dir, "foo.fake")))
	assert.ErrorIs(t, r.Reload(context.Background(), "foo"), ErrModuleNotFound)
	assert.Equal(t, []string{"bar"}, r.Snapshot().Modules())
}

func TestRegistry_Unload(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "foo.fake", "hi")

	rt := &fakeRuntime{}
	r := New(WithDir(dir), WithRuntime(rt))
	require.NoError(t, r.Load(context.Background(), "foo"))

	require.NoError(t, r.Unload("foo"))
	assert.Zero(t, r.Snapshot().Len())
	assert.True(t, rt.loaded[0].closed.Load())
	assert.ErrorIs(t, r.Unload("foo"), ErrModuleNotFound)
}

func TestRegistry_Events(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "foo.fake", "hi")

	r := New(WithDir(dir), WithRuntime(&fakeRuntime{}))

	var got []string
	unsubscribe := r.Subscribe(func(ev Event) {
		got = append(got, ev.Type.String()+":"+ev.Module)
	})
	r.Subscribe(func(Event) { panic("subscriber bug") })

	require.NoError(t, r.Load(context.Background(), "foo"))
	require.NoError(t, r.Reload(context.Background(), "foo"))
	writeModule(t, dir, "foo.fake", "FAIL")
	require.Error(t, r.Reload(context.Background(), "foo"))
	writeModule(t, dir, "foo.fake", "hi")
	require.NoError(t, r.Load(context.Background(), "foo"))
	require.NoError(t, r.Unload("foo"))

	unsubscribe()
	require.NoError(t, r.Load(context.Background(), "foo"))

	assert.Equal(t, []string{"loaded:foo", "reloaded:foo", "error:foo", "loaded:foo", "unloaded:foo"}, got)
}

func TestRegistry_BuiltinAndInstalled(t *testing.T) {
	noop := func(context.Context, *dispatch.Call) error { return nil }
	Register("core-test", Definition{Name: "ping", Spec: trigger.Spec{Commands: []string{"ping"}}, Func: noop})
	t.Cleanup(func() { unregister("core-test") })

	assert.Panics(t, func() { Register("core-test") })
	assert.Panics(t, func() { Register("") })
	assert.Contains(t, Builtins(), "core-test")

	dir := t.TempDir()
	writeModule(t, dir, "greet.fake", "hi")

	r := New(WithDir(dir), WithRuntime(&fakeRuntime{}))
	require.NoError(t, r.Install("admin", Definition{Name: "load", Spec: trigger.Spec{Commands: []string{"load"}}, Func: noop}))
	require.NoError(t, r.LoadAll(context.Background()))

	set := r.Snapshot()
	assert.True(t, slices.Contains(set.Modules(), "core-test"))
	assert.Equal(t, []string{"admin", "core-test", "greet"}, set.Modules())
	assert.Empty(t, set.Path("admin"))
	assert.Equal(t, filepath.Join(dir, "greet.fake"), set.Path("greet"))
	assert.Equal(t, []string{"."}, set.Prefixes())
}

func TestRegistry_DuplicateNames(t *testing.T) {
	noop := func(context.Context, *dispatch.Call) error { return nil }
	dir := t.TempDir()
	writeModule(t, dir, "admin.fake", "hi")

	r := New(WithDir(dir), WithRuntime(&fakeRuntime{}))
	require.NoError(t, r.Install("admin", Definition{Name: "load", Spec: trigger.Spec{Commands: []string{"load"}}, Func: noop}))

	err := r.LoadAll(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateModule)
	assert.Equal(t, []string{"admin.load"}, entryNames(r.Snapshot().Entries()))
}

func TestRegistry_SnapshotsAreConsistent(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "foo.fake", "v0a v0b")

	r := New(WithDir(dir), WithRuntime(&fakeRuntime{}))
	require.NoError(t, r.LoadAll(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			set, release := r.Acquire()
			entries := set.Entries()
			if len(entries) != 2 {
				t.Errorf("partial set: %v", entryNames(entries))
				release()
				return
			}
			if entries[0].Name[:2] != entries[1].Name[:2] {
				t.Errorf("mixed versions: %v", entryNames(entries))
				release()
				return
			}
			for _, e := range entries {
				if err := e.Func(ctx, &dispatch.Call{}); err != nil {
					t.Errorf("%s: %v", e, err)
				}
			}
			release()
		}
	}()

	for i := 1; i < 20; i++ {
		v := "v" + string(rune('a'+i))
		writeModule(t, dir, "foo.fake", v+"a "+v+"b")
		require.NoError(t, r.Reload(context.Background(), "foo"))
	}
	cancel()
	wg.Wait()
}

func TestRegistry_AcquiredSetOutlivesReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "foo.fake", "hi")
	writeModule(t, dir, "bar.fake", "x")

	rt := &fakeRuntime{}
	r := New(WithDir(dir), WithRuntime(rt))
	require.NoError(t, r.LoadAll(ctx))
	oldFoo := r.Snapshot().Handlers("foo")

	set, release := r.Acquire()
	require.NoError(t, r.Reload(ctx, "foo"))
	require.NoError(t, r.Unload("bar"))

	for _, m := range rt.loaded {
		assert.False(t, m.closed.Load(), m.name)
	}
	for _, e := range set.Entries() {
		assert.NoError(t, e.Func(ctx, &dispatch.Call{}), e.String())
	}

	release()
	release()
	require.Len(t, rt.loaded, 3)
	assert.True(t, rt.loaded[0].closed.Load())
	assert.True(t, rt.loaded[1].closed.Load())
	assert.False(t, rt.loaded[2].closed.Load())
	assert.ErrorIs(t, oldFoo[0].Func(ctx, &dispatch.Call{}), ErrModuleClosed)
}

func TestRegistry_SnapshotWithoutAcquireClosesAtOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "foo.fake", "hi")

	rt := &fakeRuntime{}
	r := New(WithDir(dir), WithRuntime(rt))
	require.NoError(t, r.Load(ctx, "foo"))

	require.NoError(t, r.Reload(ctx, "foo"))
	assert.True(t, rt.loaded[0].closed.Load())

	set, release := r.Acquire()
	release()
	assert.Same(t, r.Snapshot(), set)
	assert.False(t, rt.loaded[1].closed.Load())
}

// slowRuntime loads modules with one own-thread handler that waits for gate.
type slowRuntime struct {
	gate    chan struct{}
	results chan error

	mu     sync.Mutex
	loaded []*fakeModule
}

func (rt *slowRuntime) Ext() string { return ".slow" }

func (rt *slowRuntime) Load(_ context.Context, name, _ string) (Module, error) {
	mod := &fakeModule{name: name}
	mod.defs = []Definition{{
		Name: "wait",
		Spec: trigger.Spec{Commands: []string{"wait"}, OwnThread: true},
		Func: func(ctx context.Context, call *dispatch.Call) error {
			<-rt.gate
			err := mod.invoke(ctx, call)
			rt.results <- err
			return err
		},
	}}
	rt.mu.Lock()
	rt.loaded = append(rt.loaded, mod)
	rt.mu.Unlock()
	return mod, nil
}

func TestRegistry_QueuedHandlerOutlivesReload(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "slow.slow", "")

	rt := &slowRuntime{gate: make(chan struct{}), results: make(chan error, 1)}
	r := New(WithDir(dir), WithRuntime(rt))
	require.NoError(t, r.Load(ctx, "slow"))

	eng := dispatch.NewEngine(dispatch.WithPoolOptions(dispatch.WithWorkerCount(1)))
	require.NoError(t, eng.Start())

	set, release := r.Acquire()
	ev := event.NewParser(nil).Parse(":alice!a@host PRIVMSG #xfs :.wait")
	rep := eng.DispatchLeased(ctx, ev, set.Entries(), release)
	require.Equal(t, 1, rep.Async)

	require.NoError(t, r.Reload(ctx, "slow"))
	first := rt.loaded[0]
	assert.False(t, first.closed.Load())

	close(rt.gate)
	assert.NoError(t, <-rt.results)
	require.Eventually(t, first.closed.Load, 2*time.Second, 5*time.Millisecond)
	assert.False(t, rt.loaded[1].closed.Load())

	require.NoError(t, eng.Close(ctx))
	require.NoError(t, r.Close())
}

func TestRegistry_Close(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "a.fake", "x")
	writeModule(t, dir, "b.fake", "y")

	rt := &fakeRuntime{}
	r := New(WithDir(dir), WithRuntime(rt))
	require.NoError(t, r.LoadAll(context.Background()))
	require.NoError(t, r.Close())

	assert.Zero(t, r.Snapshot().Len())
	for _, m := range rt.loaded {
		assert.True(t, m.closed.Load())
	}
}

func unregister(name string) {
	builtins.mu.Lock()
	defer builtins.mu.Unlock()
	delete(builtins.defs, name)
	builtins.order = slices.DeleteFunc(builtins.order, func(n string) bool { return n == name })
}
