package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_ReplyTarget(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"channel", Event{Target: "#chan", SenderNick: "alice"}, "#chan"},
		{"ampersand channel", Event{Target: "&local", SenderNick: "alice"}, "&local"},
		{"private", Event{Target: "xfs", SenderNick: "alice"}, "alice"},
		{"no sender", Event{Target: "xfs"}, "xfs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.ReplyTarget())
		})
	}
}

func TestEvent_IsPrivate(t *testing.T) {
	ev := Event{Target: "XFS"}
	assert.True(t, ev.IsPrivate("xfs"))
	assert.False(t, ev.IsPrivate("other"))
	assert.False(t, ev.IsPrivate(""))
	assert.False(t, Event{Target: "#xfs"}.IsPrivate("xfs"))
}

func TestEvent_Mask(t *testing.T) {
	assert.Equal(t, "alice!a@example.org", Event{SenderNick: "alice", SenderUser: "a", SenderHost: "example.org"}.Mask())
	assert.Equal(t, "alice@example.org", Event{SenderNick: "alice", SenderHost: "example.org"}.Mask())
	assert.Equal(t, "alice", Event{SenderNick: "alice"}.Mask())
	assert.Empty(t, Event{}.Mask())
}

func TestIsChannel(t *testing.T) {
	assert.True(t, IsChannel("#a"))
	assert.True(t, IsChannel("+a"))
	assert.True(t, IsChannel("!a"))
	assert.False(t, IsChannel("alice"))
	assert.False(t, IsChannel(""))
}
