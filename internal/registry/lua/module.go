package lua

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/xfs/internal/dispatch"
	"github.com/dshills/xfs/internal/registry"
	"github.com/dshills/xfs/internal/trigger"
)

// Module is a loaded Lua module with its own state.
type Module struct {
	name   string
	path   string
	state  *State
	bridge *Bridge
	logger *zap.Logger
	store  Store

	loading bool
	defs    []registry.Definition
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.name
}

// Path returns the source file.
func (m *Module) Path() string {
	return m.path
}

// Handlers returns the handlers declared with xfs.handler, in order.
func (m *Module) Handlers() []registry.Definition {
	return slices.Clone(m.defs)
}

// Close releases the Lua state.
func (m *Module) Close() error {
	return m.state.Close()
}

// api builds the table returned by require("xfs").
func (m *Module) api(L *lua.LState) *lua.LTable {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"handler": m.luaHandler,
		"log":     m.luaLog,
	})
	mod.RawSetString("name", lua.LString(m.name))

	store := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"get":    m.luaStoreGet,
		"set":    m.luaStoreSet,
		"delete": m.luaStoreDelete,
	})
	mod.RawSetString("store", store)
	return mod
}

// luaHandler implements xfs.handler(name, fn, spec).
func (m *Module) luaHandler(L *lua.LState) int {
	if !m.loading {
		L.RaiseError("%s", ErrLateRegistration.Error())
		return 0
	}

	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	opts := L.OptTable(3, L.NewTable())

	for _, def := range m.defs {
		if def.Name == name {
			L.ArgError(1, fmt.Sprintf("handler %q declared twice", name))
			return 0
		}
	}

	spec, err := m.specFromTable(opts)
	if err != nil {
		L.ArgError(3, err.Error())
		return 0
	}

	m.defs = append(m.defs, registry.Definition{
		Name: name,
		Spec: spec,
		Func: m.invoker(fn),
	})
	return 0
}

// specFromTable reads a trigger spec from a Lua options table.
func (m *Module) specFromTable(t *lua.LTable) (trigger.Spec, error) {
	var spec trigger.Spec
	var err error

	strs := func(key string, lv lua.LValue) []string {
		v, ok := m.bridge.Strings(lv)
		if !ok && err == nil {
			err = fmt.Errorf("%s: expected string or array of strings", key)
		}
		return v
	}

	t.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		key, ok := k.(lua.LString)
		if !ok {
			err = fmt.Errorf("unexpected key %s", k.String())
			return
		}
		switch string(key) {
		case "commands":
			spec.Commands = strs("commands", v)
		case "prefixes":
			spec.Prefixes = strs("prefixes", v)
		case "patterns":
			for _, p := range strs("patterns", v) {
				re, cerr := regexp.Compile(p)
				if cerr != nil {
					err = fmt.Errorf("%w: %q: %v", trigger.ErrInvalidPattern, p, cerr)
					return
				}
				spec.Patterns = append(spec.Patterns, re)
			}
		case "events":
			spec.Events = strs("events", v)
		case "targets":
			spec.Targets = strs("targets", v)
		case "nicks":
			spec.Nicks = strs("nicks", v)
		case "hosts":
			spec.Hosts = strs("hosts", v)
		case "owner":
			spec.OwnerOnly = lua.LVAsBool(v)
		case "privmsg":
			spec.PrivateOnly = lua.LVAsBool(v)
		case "thread":
			spec.OwnThread = lua.LVAsBool(v)
		default:
			err = fmt.Errorf("unknown option %q", string(key))
		}
	})
	return spec, err
}

// invoker wraps a Lua function as a handler.
func (m *Module) invoker(fn *lua.LFunction) dispatch.HandlerFunc {
	return func(ctx context.Context, call *dispatch.Call) error {
		err := m.state.Call(ctx, fn, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{m.callTable(L, call)}
		})
		if errors.Is(err, ErrStateClosed) {
			return fmt.Errorf("%w: %s", registry.ErrModuleClosed, m.name)
		}
		return err
	}
}

// callTable builds the context table passed to a handler.
func (m *Module) callTable(L *lua.LState, call *dispatch.Call) *lua.LTable {
	ev := call.Event
	t := L.NewTable()
	t.RawSetString("id", lua.LString(ev.ID))
	t.RawSetString("event", lua.LString(ev.Type))
	t.RawSetString("nick", lua.LString(ev.SenderNick))
	t.RawSetString("user", lua.LString(ev.SenderUser))
	t.RawSetString("host", lua.LString(ev.SenderHost))
	t.RawSetString("target", lua.LString(ev.Target))
	t.RawSetString("text", lua.LString(ev.Text))
	t.RawSetString("raw", lua.LString(ev.Raw))
	t.RawSetString("command", lua.LString(call.Command))
	t.RawSetString("args", m.bridge.Encode(call.Args))
	t.RawSetString("params", m.bridge.Encode(ev.Params))
	t.RawSetString("reply_target", lua.LString(call.ReplyTarget))
	t.RawSetString("handler", lua.LString(call.Handler))

	send := func(fn func(L *lua.LState) error) *lua.LFunction {
		return L.NewFunction(func(L *lua.LState) int {
			if err := fn(L); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		})
	}
	t.RawSetString("reply", send(func(L *lua.LState) error {
		return call.Reply(L.CheckString(2))
	}))
	t.RawSetString("say", send(func(L *lua.LState) error {
		return call.Say(L.CheckString(2), L.CheckString(3))
	}))
	t.RawSetString("notice", send(func(L *lua.LState) error {
		return call.Notice(L.CheckString(2), L.CheckString(3))
	}))
	t.RawSetString("raw_line", send(func(L *lua.LState) error {
		return call.Raw(L.CheckString(2))
	}))
	return t
}

func (m *Module) luaLog(L *lua.LState) int {
	m.logger.Info(L.CheckString(1))
	return 0
}

func (m *Module) storeCtx(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (m *Module) luaStoreGet(L *lua.LState) int {
	key := L.CheckString(1)
	if m.store == nil {
		L.Push(lua.LNil)
		return 1
	}

	raw, ok, err := m.store.Get(m.storeCtx(L), m.name, key)
	if err != nil {
		L.RaiseError("store get %q: %v", key, err)
		return 0
	}
	if !ok {
		L.Push(lua.LNil)
		return 1
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		L.Push(lua.LString(raw))
		return 1
	}
	L.Push(m.bridge.Encode(v))
	return 1
}

func (m *Module) luaStoreSet(L *lua.LState) int {
	key := L.CheckString(1)
	if m.store == nil {
		L.RaiseError("store is not configured")
		return 0
	}

	data, err := json.Marshal(m.bridge.Decode(L.Get(2)))
	if err != nil {
		L.RaiseError("store set %q: %v", key, err)
		return 0
	}
	if err := m.store.Set(m.storeCtx(L), m.name, key, string(data)); err != nil {
		L.RaiseError("store set %q: %v", key, err)
	}
	return 0
}

func (m *Module) luaStoreDelete(L *lua.LState) int {
	key := L.CheckString(1)
	if m.store == nil {
		return 0
	}
	if err := m.store.Delete(m.storeCtx(L), m.name, key); err != nil {
		L.RaiseError("store delete %q: %v", key, err)
	}
	return 0
}
