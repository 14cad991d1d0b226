// Package event turns raw protocol lines into structured events.
//
// The Parser never fails: a line that cannot be understood becomes an Event
// of type TypeUnknown with the original line preserved in Raw. Parsing uses
// gopkg.in/irc.v4 for the prefix/command/parameter split and layers the bot's
// view of the line on top:
//
//	PRIVMSG                 -> MESSAGE (ACTION / CTCP for CTCP bodies)
//	NOTICE                  -> NOTICE
//	JOIN, PART, KICK, ...   -> unchanged
//	numerics                -> the three digit code
//
// # Command Tokens
//
// For MESSAGE and NOTICE events the body is checked against the configured
// prefixes, longest first. A prefix immediately followed by a non-space token
// yields Token (without the prefix) and Args (the remaining fields):
//
//	".hi there bob"  -> Prefix ".", Token "hi", Args ["there" "bob"]
//	". hi"           -> no token
//
// Events are values. Treat them as immutable once parsed.
package event
