package lua

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/xfs/internal/dispatch"
	"github.com/dshills/xfs/internal/event"
	"github.com/dshills/xfs/internal/registry"
)

type sent struct {
	kind, target, text string
}

type captureSender struct {
	mu   sync.Mutex
	out  []sent
	fail error
}

func (s *captureSender) add(kind, target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.out = append(s.out, sent{kind, target, text})
	return nil
}

func (s *captureSender) Say(target, text string) error    { return s.add("say", target, text) }
func (s *captureSender) Notice(target, text string) error { return s.add("notice", target, text) }
func (s *captureSender) Raw(line string) error            { return s.add("raw", "", line) }

func (s *captureSender) sent() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.out...)
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (m *memStore) Get(_ context.Context, module, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[module+"/"+key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, module, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[module+"/"+key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, module, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, module+"/"+key)
	return nil
}

func writeModule(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+Ext)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func load(t *testing.T, rt *Runtime, name, src string) registry.Module {
	t.Helper()
	mod, err := rt.Load(context.Background(), name, writeModule(t, name, src))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mod.Close() })
	return mod
}

func invoke(t *testing.T, def registry.Definition, module, line string, sender dispatch.Sender) error {
	t.Helper()
	ev := event.NewParser(nil).Parse(line)
	entry := dispatch.Entry{Module: module, Name: def.Name, Spec: def.Spec, Func: def.Func}
	call := dispatch.NewCall(ev, entry, ev.Token, sender)
	return def.Func(context.Background(), call)
}

const greetSource = `
local xfs = require("xfs")

xfs.handler("hi", function(ctx)
    ctx:reply("hello, " .. ctx.nick .. " (" .. #ctx.args .. ")")
end, { commands = { "hi", "hello" } })

xfs.handler("whisper", function(ctx)
    ctx:notice(ctx.nick, "psst " .. ctx.args[1])
    ctx:say("#log", xfs.name)
end, { commands = "whisper", privmsg = true, owner = true, thread = true })
`

func TestRuntime_LoadDeclaresHandlers(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := NewRuntime()
	assert.Equal(t, ".lua", rt.Ext())

	mod := load(t, rt, "greet", greetSource)
	assert.Equal(t, "greet", mod.Name())

	defs := mod.Handlers()
	require.Len(t, defs, 2)
	assert.Equal(t, "hi", defs[0].Name)
	assert.Equal(t, []string{"hi", "hello"}, defs[0].Spec.Commands)
	assert.False(t, defs[0].Spec.OwnerOnly)

	assert.Equal(t, "whisper", defs[1].Name)
	assert.True(t, defs[1].Spec.OwnerOnly)
	assert.True(t, defs[1].Spec.PrivateOnly)
	assert.True(t, defs[1].Spec.OwnThread)
}

func TestRuntime_HandlerReplies(t *testing.T) {
	mod := load(t, NewRuntime(), "greet", greetSource)
	defs := mod.Handlers()

	s := &captureSender{}
	err := invoke(t, defs[0], "greet", ":alice!a@host PRIVMSG #xfs :.hi there bob", s)
	require.NoError(t, err)
	assert.Equal(t, []sent{{"say", "#xfs", "hello, alice (2)"}}, s.sent())

	s = &captureSender{}
	err = invoke(t, defs[1], "greet", ":alice!a@host PRIVMSG xfs :.whisper secret", s)
	require.NoError(t, err)
	assert.Equal(t, []sent{
		{"notice", "alice", "psst secret"},
		{"say", "#log", "greet"},
	}, s.sent())
}

func TestRuntime_ContextFields(t *testing.T) {
	mod := load(t, NewRuntime(), "fields", `
local xfs = require("xfs")
xfs.handler("dump", function(ctx)
    ctx:raw_line(table.concat({ ctx.event, ctx.command, ctx.nick, ctx.user,
        ctx.host, ctx.target, ctx.text, ctx.reply_target, ctx.handler }, "|"))
    ctx:raw_line(ctx.raw)
end, { commands = "dump" })
`)

	s := &captureSender{}
	line := ":bob!b@example.org PRIVMSG xfs :.dump now"
	require.NoError(t, invoke(t, mod.Handlers()[0], "fields", line, s))

	out := s.sent()
	require.Len(t, out, 2)
	assert.Equal(t, "MESSAGE|dump|bob|b|example.org|xfs|.dump now|bob|dump", out[0].text)
	assert.Equal(t, line, out[1].text)
}

func TestRuntime_HandlerErrors(t *testing.T) {
	mod := load(t, NewRuntime(), "broken", `
local xfs = require("xfs")
xfs.handler("boom", function(ctx) error("kaboom") end, { commands = "boom" })
xfs.handler("nilcall", function(ctx) local x = nil; x.y = 1 end, { commands = "nilcall" })
xfs.handler("send", function(ctx) ctx:reply("x") end, { commands = "send" })
`)
	defs := mod.Handlers()

	err := invoke(t, defs[0], "broken", ":a!b@c PRIVMSG #x :.boom", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	err = invoke(t, defs[1], "broken", ":a!b@c PRIVMSG #x :.nilcall", nil)
	assert.Error(t, err)

	s := &captureSender{fail: errors.New("connection lost")}
	err = invoke(t, defs[2], "broken", ":a!b@c PRIVMSG #x :.send", s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
}

func TestRuntime_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `xfs.handler(`, ""},
		{"runtime", `error("nope")`, "nope"},
		{"unknown option", `require("xfs").handler("a", function() end, { comands = "a" })`, "unknown option"},
		{"bad pattern", `require("xfs").handler("a", function() end, { patterns = "(" })`, "invalid"},
		{"bad list", `require("xfs").handler("a", function() end, { commands = 42 })`, "expected string"},
		{"duplicate", `
local xfs = require("xfs")
xfs.handler("a", function() end, { commands = "a" })
xfs.handler("a", function() end, { commands = "b" })`, "declared twice"},
		{"missing function", `require("xfs").handler("a", nil, { commands = "a" })`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewRuntime()
			_, err := rt.Load(context.Background(), "m", writeModule(t, "m", tt.src))
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestRuntime_MissingFile(t *testing.T) {
	_, err := NewRuntime().Load(context.Background(), "gone", filepath.Join(t.TempDir(), "gone.lua"))
	assert.Error(t, err)
}

func TestRuntime_LoadTimeout(t *testing.T) {
	rt := NewRuntime(WithLoadTimeout(50 * time.Millisecond))

	start := time.Now()
	_, err := rt.Load(context.Background(), "spin", writeModule(t, "spin", `while true do end`))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRuntime_HandlerHonoursContext(t *testing.T) {
	mod := load(t, NewRuntime(), "spin", `
require("xfs").handler("spin", function(ctx) while true do end end, { commands = "spin" })
`)
	def := mod.Handlers()[0]

	ev := event.NewParser(nil).Parse(":a!b@c PRIVMSG #x :.spin")
	call := dispatch.NewCall(ev, dispatch.Entry{Module: "spin", Name: "spin"}, "spin", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, def.Func(ctx, call))
}

func TestRuntime_Sandbox(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"os", `os.exit(1)`},
		{"io", `io.open("/etc/passwd")`},
		{"dofile", `dofile("/etc/passwd")`},
		{"loadstring", `loadstring("return 1")()`},
		{"require os", `require("os")`},
		{"require io", `require("io")`},
		{"debug", `debug.getinfo(1)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuntime().Load(context.Background(), "evil", writeModule(t, "evil", tt.src))
			assert.Error(t, err)
		})
	}
}

func TestRuntime_SandboxAllowsSafeLibraries(t *testing.T) {
	mod := load(t, NewRuntime(), "safe", `
local xfs = require("xfs")
local s = require("string")
local m = require("math")
print("loading", xfs.name)
xfs.handler("up", function(ctx)
    ctx:reply(s.upper(table.concat(ctx.args, " ")) .. " " .. m.floor(2.7))
end, { commands = "up" })
`)

	s := &captureSender{}
	require.NoError(t, invoke(t, mod.Handlers()[0], "safe", ":a!b@c PRIVMSG #x :.up a b", s))
	assert.Equal(t, "A B 2", s.sent()[0].text)
}

func TestRuntime_LateRegistration(t *testing.T) {
	mod := load(t, NewRuntime(), "late", `
local xfs = require("xfs")
xfs.handler("late", function(ctx)
    xfs.handler("more", function() end, { commands = "more" })
end, { commands = "late" })
`)

	err := invoke(t, mod.Handlers()[0], "late", ":a!b@c PRIVMSG #x :.late", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared while the module loads")
	assert.Len(t, mod.Handlers(), 1)
}

func TestRuntime_Store(t *testing.T) {
	store := newMemStore()
	mod := load(t, NewRuntime(WithStore(store)), "counter", `
local xfs = require("xfs")
xfs.handler("count", function(ctx)
    local n = xfs.store.get("n") or 0
    n = n + 1
    xfs.store.set("n", n)
    xfs.store.set("seen", { nick = ctx.nick, list = { "a", "b" } })
    ctx:reply(tostring(n))
end, { commands = "count" })
xfs.handler("reset", function(ctx)
    xfs.store.delete("n")
    local seen = xfs.store.get("seen")
    ctx:reply(seen.nick .. seen.list[2])
end, { commands = "reset" })
`)
	defs := mod.Handlers()

	s := &captureSender{}
	for range 3 {
		require.NoError(t, invoke(t, defs[0], "counter", ":a!b@c PRIVMSG #x :.count", s))
	}
	require.NoError(t, invoke(t, defs[1], "counter", ":a!b@c PRIVMSG #x :.reset", s))

	out := s.sent()
	require.Len(t, out, 4)
	assert.Equal(t, "1", out[0].text)
	assert.Equal(t, "3", out[2].text)
	assert.Equal(t, "ab", out[3].text)

	_, ok, _ := store.Get(context.Background(), "counter", "n")
	assert.False(t, ok)
	seen, ok, _ := store.Get(context.Background(), "counter", "seen")
	require.True(t, ok)
	assert.JSONEq(t, `{"nick":"a","list":["a","b"]}`, seen)
}

func TestRuntime_StoreWithoutBackend(t *testing.T) {
	mod := load(t, NewRuntime(), "nostore", `
local xfs = require("xfs")
xfs.handler("get", function(ctx) ctx:reply(tostring(xfs.store.get("k"))) end, { commands = "get" })
xfs.handler("set", function(ctx) xfs.store.set("k", 1) end, { commands = "set" })
`)
	defs := mod.Handlers()

	s := &captureSender{}
	require.NoError(t, invoke(t, defs[0], "nostore", ":a!b@c PRIVMSG #x :.get", s))
	assert.Equal(t, "nil", s.sent()[0].text)

	assert.Error(t, invoke(t, defs[1], "nostore", ":a!b@c PRIVMSG #x :.set", nil))
}

func TestModule_CallAfterClose(t *testing.T) {
	rt := NewRuntime()
	mod, err := rt.Load(context.Background(), "greet", writeModule(t, "greet", greetSource))
	require.NoError(t, err)

	def := mod.Handlers()[0]
	require.NoError(t, mod.Close())
	require.NoError(t, mod.Close())

	err = invoke(t, def, "greet", ":a!b@c PRIVMSG #x :.hi", nil)
	assert.ErrorIs(t, err, registry.ErrModuleClosed)
}

func TestModule_ConcurrentCalls(t *testing.T) {
	store := newMemStore()
	mod := load(t, NewRuntime(WithStore(store)), "counter", `
local xfs = require("xfs")
xfs.handler("count", function(ctx)
    xfs.store.set("n", (xfs.store.get("n") or 0) + 1)
end, { commands = "count" })
`)
	def := mod.Handlers()[0]

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, invoke(t, def, "counter", ":a!b@c PRIVMSG #x :.count", nil))
		}()
	}
	wg.Wait()

	v, ok, _ := store.Get(context.Background(), "counter", "n")
	require.True(t, ok)
	assert.Equal(t, "20", v)
}
