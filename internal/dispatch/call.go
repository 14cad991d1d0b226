package dispatch

import (
	"context"
	"slices"

	"github.com/dshills/xfs/internal/event"
	"github.com/dshills/xfs/internal/trigger"
)

// Sender writes handler output back to the connection.
type Sender interface {
	Say(target, text string) error
	Notice(target, text string) error
	Raw(line string) error
}

// HandlerFunc is the single capability a handler provides.
type HandlerFunc func(ctx context.Context, call *Call) error

// Entry is a handler registered by a module. Entries are values; the
// engine only reads them.
type Entry struct {
	Module string
	Name   string
	Spec   trigger.Spec
	Func   HandlerFunc
}

// String returns "module.name".
func (e Entry) String() string {
	return e.Module + "." + e.Name
}

// Call is the context a handler is invoked with.
type Call struct {
	// Event is the parsed line that triggered the handler.
	Event event.Event

	// Command is the matched command token. Empty for pattern matches.
	Command string

	// Args are the fields after the line's command token, for pattern
	// matches too. Never nil.
	Args []string

	// ReplyTarget is where Reply sends text.
	ReplyTarget string

	// Module and Handler identify the invoked entry.
	Module  string
	Handler string

	sender Sender
}

// NewCall builds the call context for an entry matched by ev.
func NewCall(ev event.Event, entry Entry, matched string, sender Sender) *Call {
	c := &Call{
		Event:       ev,
		Command:     matched,
		ReplyTarget: ev.ReplyTarget(),
		Module:      entry.Module,
		Handler:     entry.Name,
		sender:      sender,
		Args:        slices.Clone(ev.Args),
	}
	if c.Args == nil {
		c.Args = []string{}
	}
	return c
}

// Reply sends text to the reply target.
func (c *Call) Reply(text string) error {
	return c.Sender().Say(c.ReplyTarget, text)
}

// Say sends a message to target.
func (c *Call) Say(target, text string) error {
	return c.Sender().Say(target, text)
}

// Notice sends a notice to target.
func (c *Call) Notice(target, text string) error {
	return c.Sender().Notice(target, text)
}

// Raw sends a raw protocol line.
func (c *Call) Raw(line string) error {
	return c.Sender().Raw(line)
}

// Sender returns the output sink. It is never nil.
func (c *Call) Sender() Sender {
	if c.sender == nil {
		return Discard
	}
	return c.sender
}

// Discard is a Sender that drops all output.
var Discard Sender = discard{}

type discard struct{}

func (discard) Say(string, string) error    { return nil }
func (discard) Notice(string, string) error { return nil }
func (discard) Raw(string) error            { return nil }
