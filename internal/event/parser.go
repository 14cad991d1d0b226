package event

import (
	"regexp"
	"slices"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"gopkg.in/irc.v4"
)

// DefaultPrefix is the command prefix used when none are configured.
const DefaultPrefix = "."

const ctcpDelim = "\x01"

var commandPattern = regexp.MustCompile(`^(?:[A-Za-z]+|[0-9]{3})$`)

// Parser converts raw lines into Events. It is safe for concurrent use;
// SetPrefixes may be called while Parse runs on another goroutine.
type Parser struct {
	prefixes atomic.Pointer[[]string]
	newID    func() string
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithIDFunc overrides the event ID generator.
func WithIDFunc(fn func() string) ParserOption {
	return func(p *Parser) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// NewParser creates a parser recognising the given command prefixes.
// With no prefixes, DefaultPrefix is used.
func NewParser(prefixes []string, opts ...ParserOption) *Parser {
	p := &Parser{newID: uuid.NewString}
	for _, opt := range opts {
		opt(p)
	}
	p.SetPrefixes(prefixes)
	return p
}

// SetPrefixes replaces the recognised prefixes.
func (p *Parser) SetPrefixes(prefixes []string) {
	list := make([]string, 0, len(prefixes))
	for _, pfx := range prefixes {
		if pfx != "" && !slices.Contains(list, pfx) {
			list = append(list, pfx)
		}
	}
	if len(list) == 0 {
		list = append(list, DefaultPrefix)
	}
	// Longest prefix wins.
	slices.SortStableFunc(list, func(a, b string) int {
		return len(b) - len(a)
	})
	p.prefixes.Store(&list)
}

// Prefixes returns the recognised prefixes, longest first.
func (p *Parser) Prefixes() []string {
	return slices.Clone(*p.prefixes.Load())
}

// Parse converts one raw line into an Event. It never panics and never
// returns an error; malformed input yields a TypeUnknown event.
func (p *Parser) Parse(raw string) (ev Event) {
	raw = strings.TrimRight(raw, "\r\n")
	ev = Event{ID: p.newID(), Type: TypeUnknown, Raw: raw}

	defer func() {
		if r := recover(); r != nil {
			ev = Event{ID: ev.ID, Type: TypeUnknown, Raw: raw}
		}
	}()

	line := strings.ToValidUTF8(raw, "�")
	if strings.TrimSpace(line) == "" {
		return ev
	}

	msg, err := irc.ParseMessage(line)
	if err != nil || !commandPattern.MatchString(msg.Command) {
		return ev
	}
	if hasSource(line) && (msg.Prefix == nil || msg.Prefix.Name == "") {
		return ev
	}

	ev.Command = strings.ToUpper(msg.Command)
	ev.Type = ev.Command
	ev.Params = slices.Clone(msg.Params)
	if msg.Prefix != nil {
		ev.SenderNick = msg.Prefix.Name
		ev.SenderUser = msg.Prefix.User
		ev.SenderHost = msg.Prefix.Host
	}

	p.fill(&ev, msg)
	return ev
}

// fill sets Type, Target and Text by protocol verb.
func (p *Parser) fill(ev *Event, msg *irc.Message) {
	switch ev.Command {
	case "PRIVMSG":
		ev.Type = TypeMessage
		ev.Target = msg.Param(0)
		ev.Text = msg.Param(1)
		if inner, ok := unwrapCTCP(ev.Text); ok {
			verb, rest, _ := strings.Cut(inner, " ")
			if strings.EqualFold(verb, "ACTION") {
				ev.Type = TypeAction
				ev.Text = rest
			} else {
				ev.Type = TypeCTCP
				ev.Text = inner
			}
			return
		}
		p.extractCommand(ev)

	case "NOTICE":
		ev.Type = TypeNotice
		ev.Target = msg.Param(0)
		ev.Text = msg.Param(1)
		p.extractCommand(ev)

	case "INVITE":
		// INVITE <nick> <channel>
		ev.Target = msg.Param(1)
		ev.Text = msg.Param(0)

	case "QUIT", "PING", "PONG", "ERROR", "NICK", "AWAY":
		ev.Text = msg.Trailing()

	default:
		ev.Target = msg.Param(0)
		if len(msg.Params) > 1 {
			ev.Text = msg.Trailing()
		}
	}
}

// extractCommand splits a prefixed command token and its arguments from Text.
func (p *Parser) extractCommand(ev *Event) {
	for _, pfx := range *p.prefixes.Load() {
		if !strings.HasPrefix(ev.Text, pfx) {
			continue
		}
		rest := ev.Text[len(pfx):]
		if r, _ := utf8.DecodeRuneInString(rest); rest == "" || unicode.IsSpace(r) {
			continue
		}
		fields := strings.Fields(rest)
		ev.Prefix = pfx
		ev.Token = fields[0]
		ev.Args = fields[1:]
		return
	}
}

// hasSource reports whether the line carries a ":source" after any tags.
func hasSource(line string) bool {
	if strings.HasPrefix(line, "@") {
		_, line, _ = strings.Cut(line, " ")
	}
	return strings.HasPrefix(strings.TrimLeft(line, " "), ":")
}

func unwrapCTCP(text string) (string, bool) {
	if len(text) < 2 || !strings.HasPrefix(text, ctcpDelim) {
		return "", false
	}
	inner := strings.TrimPrefix(text, ctcpDelim)
	inner = strings.TrimSuffix(inner, ctcpDelim)
	return inner, inner != ""
}
