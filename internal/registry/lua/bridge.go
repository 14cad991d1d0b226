package lua

import (
	"maps"
	"slices"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// Bridge moves plain data between Go and one Lua state: booleans, numbers,
// strings, sequences and string-keyed maps. Anything else maps to nil.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a Bridge for L.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// Decode converts a Lua value into bool, int64, float64, string, []any or
// map[string]any. A table reached again through itself decodes as nil.
func (b *Bridge) Decode(lv lua.LValue) any {
	return decode(lv, map[*lua.LTable]struct{}{})
}

func decode(lv lua.LValue, path map[*lua.LTable]struct{}) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		if n := int64(v); float64(n) == float64(v) {
			return n
		}
		return float64(v)
	case *lua.LTable:
		if _, seen := path[v]; seen {
			return nil
		}
		path[v] = struct{}{}
		defer delete(path, v)

		if n, ok := sequenceLen(v); ok {
			list := make([]any, n)
			for i := range n {
				list[i] = decode(v.RawGetInt(i+1), path)
			}
			return list
		}
		fields := make(map[string]any)
		v.ForEach(func(k, item lua.LValue) {
			fields[keyString(k)] = decode(item, path)
		})
		return fields
	}
	return nil
}

// sequenceLen reports the length of t when its keys are exactly 1..n, n > 0.
func sequenceLen(t *lua.LTable) (int, bool) {
	n := t.Len()
	if n == 0 {
		return 0, false
	}
	keys := 0
	t.ForEach(func(lua.LValue, lua.LValue) { keys++ })
	return n, keys == n
}

func keyString(k lua.LValue) string {
	if num, ok := k.(lua.LNumber); ok {
		return strconv.FormatFloat(float64(num), 'f', -1, 64)
	}
	return k.String()
}

// Encode converts a Go value produced by Decode, encoding/json or the
// handler context into a Lua value.
func (b *Bridge) Encode(v any) lua.LValue {
	switch val := v.(type) {
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []string:
		t := b.L.CreateTable(len(val), 0)
		for _, s := range val {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := b.L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, b.Encode(item))
		}
		return t
	case map[string]any:
		t := b.L.CreateTable(0, len(val))
		for _, k := range slices.Sorted(maps.Keys(val)) {
			t.RawSetString(k, b.Encode(val[k]))
		}
		return t
	}
	return lua.LNil
}

// Strings reads a string or a sequence of strings. ok is false when any
// element is not a string.
func (b *Bridge) Strings(lv lua.LValue) (out []string, ok bool) {
	if s, isStr := lv.(lua.LString); isStr {
		return []string{string(s)}, true
	}
	t, isTable := lv.(*lua.LTable)
	if !isTable {
		return nil, false
	}
	ok = true
	for i := 1; i <= t.Len(); i++ {
		s, isStr := t.RawGetInt(i).(lua.LString)
		if !isStr {
			ok = false
			continue
		}
		out = append(out, string(s))
	}
	return out, ok
}
