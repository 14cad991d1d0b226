package trigger

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

const (
	// DefaultPrefix is used when a spec declares commands but no prefixes.
	DefaultPrefix = "."

	// DefaultEvent is used when a spec declares no events.
	DefaultEvent = "MESSAGE"

	// AnyEvent accepts every event type.
	AnyEvent = "*"
)

// Spec is the trigger metadata attached to a handler at registration.
// The zero value is not triggerable.
type Spec struct {
	// Commands are the command tokens that trigger the handler.
	Commands []string

	// Prefixes are the accepted command prefixes (default ".").
	Prefixes []string

	// Patterns trigger the handler when they match the raw protocol line.
	Patterns []*regexp.Regexp

	// Events are the event types the handler accepts (default "MESSAGE").
	Events []string

	// Targets restricts the handler to specific channels or targets.
	Targets []string

	// Nicks restricts the handler to specific senders.
	Nicks []string

	// Hosts restricts the handler to senders matching one of the masks.
	Hosts []string

	// PrivateOnly restricts the handler to direct messages to the bot.
	PrivateOnly bool

	// OwnerOnly restricts the handler to the configured owner.
	OwnerOnly bool

	// OwnThread runs the handler on the worker pool instead of inline.
	OwnThread bool

	masks []HostMask
}

// Triggerable reports whether the spec declares a command or a pattern.
func (s Spec) Triggerable() bool {
	return len(s.Commands) > 0 || len(s.Patterns) > 0
}

// Normalize returns a copy of the spec with defaults applied, duplicates
// removed and host masks compiled. Invalid masks are dropped; use Validate to
// report them.
func (s Spec) Normalize() Spec {
	out := Spec{
		Commands:    dedupe(s.Commands, nil),
		Prefixes:    dedupe(s.Prefixes, nil),
		Patterns:    slices.Clone(s.Patterns),
		Events:      dedupe(s.Events, strings.ToUpper),
		Targets:     dedupe(s.Targets, nil),
		Nicks:       dedupe(s.Nicks, nil),
		Hosts:       dedupe(s.Hosts, nil),
		PrivateOnly: s.PrivateOnly,
		OwnerOnly:   s.OwnerOnly,
		OwnThread:   s.OwnThread,
	}

	if len(out.Commands) > 0 && len(out.Prefixes) == 0 {
		out.Prefixes = []string{DefaultPrefix}
	}
	if len(out.Events) == 0 {
		out.Events = []string{DefaultEvent}
	}

	out.masks = make([]HostMask, 0, len(out.Hosts))
	for _, h := range out.Hosts {
		m, err := CompileHostMask(h)
		if err != nil {
			continue
		}
		out.masks = append(out.masks, m)
	}

	return out
}

// Validate checks that the spec is triggerable and that its fields are well formed.
func (s Spec) Validate() error {
	if !s.Triggerable() {
		return ErrNotTriggerable
	}
	for _, c := range s.Commands {
		if c == "" {
			return ErrEmptyCommand
		}
		if strings.IndexFunc(c, unicode.IsSpace) >= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidCommand, c)
		}
	}
	for _, p := range s.Prefixes {
		if p == "" {
			return ErrEmptyPrefix
		}
	}
	for _, p := range s.Patterns {
		if p == nil {
			return fmt.Errorf("%w: nil pattern", ErrInvalidPattern)
		}
	}
	for _, h := range s.Hosts {
		if _, err := CompileHostMask(h); err != nil {
			return err
		}
	}
	return nil
}

// AcceptsEvent reports whether the spec accepts the event type.
// An un-normalized spec with no events accepts only DefaultEvent.
func (s Spec) AcceptsEvent(eventType string) bool {
	events := s.Events
	if len(events) == 0 {
		events = []string{DefaultEvent}
	}
	for _, e := range events {
		if e == AnyEvent || strings.EqualFold(e, eventType) {
			return true
		}
	}
	return false
}

// HasCommand reports whether token is one of the spec's commands.
func (s Spec) HasCommand(token string) bool {
	return slices.Contains(s.Commands, token)
}

// AcceptsPrefix reports whether the stripped prefix is accepted by the spec.
func (s Spec) AcceptsPrefix(prefix string) bool {
	if len(s.Prefixes) == 0 {
		return prefix == DefaultPrefix
	}
	return slices.Contains(s.Prefixes, prefix)
}

// MatchPattern reports whether any pattern matches the raw line.
func (s Spec) MatchPattern(raw string) bool {
	for _, p := range s.Patterns {
		if p != nil && p.MatchString(raw) {
			return true
		}
	}
	return false
}

// AllowsTarget reports whether the target passes the target restriction.
// Channel names compare case-insensitively.
func (s Spec) AllowsTarget(target string) bool {
	return len(s.Targets) == 0 || containsFold(s.Targets, target)
}

// AllowsNick reports whether the sender passes the nick restriction.
func (s Spec) AllowsNick(nick string) bool {
	return len(s.Nicks) == 0 || containsFold(s.Nicks, nick)
}

// AllowsHost reports whether the sender passes the host restriction.
// host is the sender host and mask the full "nick!user@host" form.
func (s Spec) AllowsHost(host, mask string) bool {
	if len(s.Hosts) == 0 {
		return true
	}

	masks := s.masks
	if len(masks) == 0 {
		// Not normalized; compile on demand.
		for _, h := range s.Hosts {
			if m, err := CompileHostMask(h); err == nil {
				masks = append(masks, m)
			}
		}
	}

	for _, m := range masks {
		if m.Match(host, mask) {
			return true
		}
	}
	return false
}

// PrefixSet returns the union of prefixes across specs, including DefaultPrefix
// for command specs without explicit prefixes.
func PrefixSet(specs ...Spec) []string {
	var out []string
	for _, s := range specs {
		if len(s.Commands) == 0 {
			continue
		}
		if len(s.Prefixes) == 0 {
			out = append(out, DefaultPrefix)
			continue
		}
		out = append(out, s.Prefixes...)
	}
	return dedupe(out, nil)
}

// String returns a compact description used in logs.
func (s Spec) String() string {
	var b strings.Builder
	b.WriteString("spec{")
	sep := ""
	field := func(name string, vals []string) {
		if len(vals) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s%s=%s", sep, name, strings.Join(vals, ","))
		sep = " "
	}
	field("commands", s.Commands)
	field("prefixes", s.Prefixes)
	if len(s.Patterns) > 0 {
		pats := make([]string, len(s.Patterns))
		for i, p := range s.Patterns {
			pats[i] = p.String()
		}
		field("patterns", pats)
	}
	field("events", s.Events)
	field("targets", s.Targets)
	field("nicks", s.Nicks)
	field("hosts", s.Hosts)
	if s.PrivateOnly {
		field("private", []string{"true"})
	}
	if s.OwnerOnly {
		field("owner", []string{"true"})
	}
	if s.OwnThread {
		field("thread", []string{"true"})
	}
	b.WriteString("}")
	return b.String()
}

func dedupe(in []string, transform func(string) string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if transform != nil {
			v = transform(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
