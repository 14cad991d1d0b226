package bot

import (
	"context"
	"sync/atomic"

	"github.com/dshills/xfs/internal/dispatch"
)

// Conn is the connection the bot reads from and writes to.
// *shell.Shell implements it.
type Conn interface {
	dispatch.Sender

	// ReadLine blocks for the next raw line.
	ReadLine(ctx context.Context) (string, error)

	// Nick returns the bot's current nick.
	Nick() string

	// Done is closed when the connection is gone. Lines read after that
	// are not dispatched.
	Done() <-chan struct{}
}

// outbox forwards handler output to the attached connection.
type outbox struct {
	conn atomic.Pointer[Conn]
}

func (o *outbox) attach(c Conn) {
	o.conn.Store(&c)
}

func (o *outbox) detach() {
	o.conn.Store(nil)
}

func (o *outbox) current() (Conn, error) {
	c := o.conn.Load()
	if c == nil {
		return nil, ErrNotConnected
	}
	return *c, nil
}

func (o *outbox) Say(target, text string) error {
	c, err := o.current()
	if err != nil {
		return err
	}
	return c.Say(target, text)
}

func (o *outbox) Notice(target, text string) error {
	c, err := o.current()
	if err != nil {
		return err
	}
	return c.Notice(target, text)
}

func (o *outbox) Raw(line string) error {
	c, err := o.current()
	if err != nil {
		return err
	}
	return c.Raw(line)
}

var _ dispatch.Sender = (*outbox)(nil)
