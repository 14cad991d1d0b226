package dispatch

import (
	"strings"

	"github.com/dshills/xfs/internal/event"
	"github.com/dshills/xfs/internal/trigger"
)

// Env is the external context the match predicate needs.
type Env struct {
	// BotNick is the bot's current nick, used for private-only checks.
	BotNick string

	// OwnerNick is the configured owner. Empty means no owner.
	OwnerNick string

	// OwnerHost optionally narrows the owner to a host mask.
	OwnerHost string

	owner *ownerMask
}

// ownerMask is OwnerHost compiled once by the engine.
type ownerMask struct {
	host string
	mask trigger.HostMask
	err  error
}

func compileOwnerMask(host string) *ownerMask {
	m, err := trigger.CompileHostMask(host)
	return &ownerMask{host: host, mask: m, err: err}
}

// compiled returns env with its owner mask compiled.
func (env Env) compiled() Env {
	if env.OwnerHost == "" {
		env.owner = nil
	} else if env.owner == nil || env.owner.host != env.OwnerHost {
		env.owner = compileOwnerMask(env.OwnerHost)
	}
	return env
}

// HasOwner reports whether an owner identity is configured.
func (env Env) HasOwner() bool {
	return env.OwnerNick != ""
}

// IsOwner reports whether the event was sent by the configured owner.
func (env Env) IsOwner(ev event.Event) bool {
	if !env.HasOwner() || !strings.EqualFold(ev.SenderNick, env.OwnerNick) {
		return false
	}
	if env.OwnerHost == "" {
		return true
	}
	om := env.owner
	if om == nil || om.host != env.OwnerHost {
		om = compileOwnerMask(env.OwnerHost)
	}
	if om.err != nil {
		return false
	}
	return om.mask.Match(ev.SenderHost, ev.Mask())
}

// Match evaluates spec against ev. It returns the matched command token
// (empty for a pattern match) and whether every predicate holds.
//
// Predicates are checked in order: event type, trigger mode (command or
// pattern), private-only, targets, nicks, hosts, owner-only.
func Match(ev event.Event, spec trigger.Spec, env Env) (string, bool) {
	if !spec.Triggerable() || !spec.AcceptsEvent(ev.Type) {
		return "", false
	}

	matched, ok := "", false
	if ev.HasToken() && spec.HasCommand(ev.Token) && spec.AcceptsPrefix(ev.Prefix) {
		matched, ok = ev.Token, true
	} else if spec.MatchPattern(ev.Raw) {
		ok = true
	}
	if !ok {
		return "", false
	}

	if spec.PrivateOnly && !ev.IsPrivate(env.BotNick) {
		return "", false
	}
	if !spec.AllowsTarget(ev.Target) {
		return "", false
	}
	if !spec.AllowsNick(ev.SenderNick) {
		return "", false
	}
	if !spec.AllowsHost(ev.SenderHost, ev.Mask()) {
		return "", false
	}
	if spec.OwnerOnly && !env.IsOwner(ev) {
		return "", false
	}

	return matched, true
}
