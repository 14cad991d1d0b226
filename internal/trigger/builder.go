package trigger

import (
	"fmt"
	"regexp"
)

// Builder assembles a Spec declaratively. The first error encountered is
// kept and returned by Build; later calls still record their values.
type Builder struct {
	spec Spec
	err  error
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// Command adds command tokens.
func (b *Builder) Command(cmds ...string) *Builder {
	b.spec.Commands = append(b.spec.Commands, cmds...)
	return b
}

// Prefix adds accepted command prefixes.
func (b *Builder) Prefix(prefixes ...string) *Builder {
	b.spec.Prefixes = append(b.spec.Prefixes, prefixes...)
	return b
}

// Regexp adds full-line patterns.
func (b *Builder) Regexp(patterns ...string) *Builder {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			b.setErr(fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err))
			continue
		}
		b.spec.Patterns = append(b.spec.Patterns, re)
	}
	return b
}

// MustRegexp is like Regexp but panics if a pattern does not compile.
func (b *Builder) MustRegexp(patterns ...string) *Builder {
	for _, p := range patterns {
		b.spec.Patterns = append(b.spec.Patterns, regexp.MustCompile(p))
	}
	return b
}

// Pattern adds already compiled patterns.
func (b *Builder) Pattern(res ...*regexp.Regexp) *Builder {
	b.spec.Patterns = append(b.spec.Patterns, res...)
	return b
}

// Event adds accepted event types.
func (b *Builder) Event(events ...string) *Builder {
	b.spec.Events = append(b.spec.Events, events...)
	return b
}

// RequireChan restricts the handler to the given targets.
func (b *Builder) RequireChan(targets ...string) *Builder {
	b.spec.Targets = append(b.spec.Targets, targets...)
	return b
}

// RequireNick restricts the handler to the given senders.
func (b *Builder) RequireNick(nicks ...string) *Builder {
	b.spec.Nicks = append(b.spec.Nicks, nicks...)
	return b
}

// RequireHost restricts the handler to senders matching the host masks.
func (b *Builder) RequireHost(masks ...string) *Builder {
	b.spec.Hosts = append(b.spec.Hosts, masks...)
	return b
}

// RequireOwner restricts the handler to the configured owner.
func (b *Builder) RequireOwner() *Builder {
	b.spec.OwnerOnly = true
	return b
}

// RequirePrivmsg restricts the handler to private messages.
func (b *Builder) RequirePrivmsg() *Builder {
	b.spec.PrivateOnly = true
	return b
}

// RequireThread runs the handler on the worker pool.
func (b *Builder) RequireThread() *Builder {
	b.spec.OwnThread = true
	return b
}

// Build validates and normalizes the spec.
func (b *Builder) Build() (Spec, error) {
	if b.err != nil {
		return Spec{}, b.err
	}
	if err := b.spec.Validate(); err != nil {
		return Spec{}, err
	}
	return b.spec.Normalize(), nil
}

// MustBuild is like Build but panics on error. Intended for package-level
// registrations of compiled-in handlers.
func (b *Builder) MustBuild() Spec {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}
