package event

import "strings"

// Event types produced by the parser.
const (
	TypeMessage = "MESSAGE"
	TypeNotice  = "NOTICE"
	TypeAction  = "ACTION"
	TypeCTCP    = "CTCP"
	TypeUnknown = "UNKNOWN"
)

// Event is the structured form of one protocol line.
type Event struct {
	// ID correlates log lines for a single dispatch pass.
	ID string

	// Type is the bot-level event type (MESSAGE, NOTICE, JOIN, ..., UNKNOWN).
	Type string

	// Command is the protocol verb as received (PRIVMSG, 001, ...).
	Command string

	// Sender identity.
	SenderNick string
	SenderUser string
	SenderHost string

	// Target is the channel or nick the line was addressed to.
	Target string

	// Text is the message body.
	Text string

	// Raw is the line as read from the connection, without the terminator.
	Raw string

	// Params are the protocol parameters.
	Params []string

	// Prefix is the command prefix that was stripped, if any.
	Prefix string

	// Token is the command token without its prefix. Empty when absent.
	Token string

	// Args are the whitespace-separated fields after Token.
	Args []string
}

// HasToken reports whether a command token was extracted.
func (e Event) HasToken() bool {
	return e.Token != ""
}

// Mask returns the sender as "nick!user@host".
func (e Event) Mask() string {
	if e.SenderNick == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.SenderNick)
	if e.SenderUser != "" {
		b.WriteByte('!')
		b.WriteString(e.SenderUser)
	}
	if e.SenderHost != "" {
		b.WriteByte('@')
		b.WriteString(e.SenderHost)
	}
	return b.String()
}

// IsPrivate reports whether the event was addressed directly to botNick.
func (e Event) IsPrivate(botNick string) bool {
	return botNick != "" && strings.EqualFold(e.Target, botNick)
}

// ReplyTarget returns where a reply should go: the channel for channel
// messages, the sender otherwise.
func (e Event) ReplyTarget() string {
	if IsChannel(e.Target) {
		return e.Target
	}
	if e.SenderNick != "" {
		return e.SenderNick
	}
	return e.Target
}

// IsChannel reports whether name looks like a channel.
func IsChannel(name string) bool {
	if name == "" {
		return false
	}
	switch name[0] {
	case '#', '&', '+', '!':
		return true
	}
	return false
}
