package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	glua "github.com/yuin/gopher-lua"
)

func TestBridge_RoundTrip(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	in := map[string]any{
		"n":    int64(3),
		"f":    1.5,
		"ok":   true,
		"name": "xfs",
		"list": []any{"a", int64(2)},
		"nest": map[string]any{"k": "v"},
	}
	assert.Equal(t, in, b.Decode(b.Encode(in)))
}

func TestBridge_Cycles(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	tbl := s.L.NewTable()
	tbl.RawSetString("self", tbl)
	tbl.RawSetString("x", glua.LString("y"))

	assert.Equal(t, map[string]any{"self": nil, "x": "y"}, b.Decode(tbl))
}

func TestBridge_Strings(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	got, ok := b.Strings(glua.LString("hi"))
	assert.True(t, ok)
	assert.Equal(t, []string{"hi"}, got)

	got, ok = b.Strings(b.Encode([]string{"a", "b"}))
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok = b.Strings(b.Encode([]any{"a", int64(1)}))
	assert.False(t, ok)

	_, ok = b.Strings(glua.LNumber(1))
	assert.False(t, ok)
}
