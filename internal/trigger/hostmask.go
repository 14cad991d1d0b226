package trigger

import (
	"strings"

	"github.com/tidwall/match"
)

// HostMask is a compiled wildcard mask. '*' matches any run of characters and
// '?' matches exactly one. Matching ignores case.
type HostMask struct {
	raw     string
	pattern string
	full    bool
}

// CompileHostMask compiles a host mask.
func CompileHostMask(mask string) (HostMask, error) {
	mask = strings.TrimSpace(mask)
	if mask == "" {
		return HostMask{}, ErrInvalidHostMask
	}

	return HostMask{
		raw: mask,
		// A backslash in a mask is a literal character, not an escape.
		pattern: strings.ReplaceAll(strings.ToLower(mask), `\`, `\\`),
		full:    strings.ContainsAny(mask, "!@"),
	}, nil
}

// Match matches the mask against host, or against the full "nick!user@host"
// mask when the pattern itself is a full mask.
func (m HostMask) Match(host, fullMask string) bool {
	if m.pattern == "" {
		return false
	}
	subject := host
	if m.full {
		subject = fullMask
	}
	if subject == "" {
		return false
	}
	return match.Match(strings.ToLower(subject), m.pattern)
}

// String returns the mask as written.
func (m HostMask) String() string {
	return m.raw
}
