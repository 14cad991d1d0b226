// Package trigger defines the metadata a handler carries to say when it runs.
//
// A Spec is pure data. It names the trigger modes (command tokens and full-line
// patterns) and the restriction filters (event types, targets, nicks, host
// masks, owner-only, private-only) that narrow an already-triggered handler.
// It also records whether the handler runs on the worker pool.
//
// # Trigger Modes
//
// A handler is triggerable when it declares at least one command or pattern:
//
//	spec, err := trigger.New().
//	    Command("hi", "hello").
//	    Prefix("!").
//	    Build()
//
// Commands and patterns are alternatives. When both are present either one
// matching is enough; every other field is AND-combined on top.
//
// # Defaults
//
// Normalize fills in the documented defaults:
//
//   - Prefixes defaults to {"."} when commands are declared
//   - Events defaults to {"MESSAGE"}
//   - event names are upper-cased; "*" accepts every event type
//
// # Host Masks
//
// Host restrictions are wildcard masks. A mask without '!' or '@' is matched
// against the sender host only, so "foo.bar.com" behaves like
// "*!*@foo.bar.com". Masks containing '!' or '@' are matched against the full
// "nick!user@host" form. Matching is case-insensitive.
package trigger
