package golang

import (
	"context"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/dshills/xfs/internal/dispatch"
	"github.com/dshills/xfs/internal/trigger"
)

// ImportPath is the import path module sources use for the handler API.
const ImportPath = "xfs"

// Handler is what a module's Handlers function returns.
type Handler struct {
	Name string
	Spec trigger.Spec
	Func func(ctx context.Context, call *dispatch.Call) error
}

// allowedPackages are the standard library packages module code may import.
var allowedPackages = []string{
	"bytes",
	"context",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"math/rand",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

// apiSymbols exposes the handler API under ImportPath.
var apiSymbols = interp.Exports{
	ImportPath + "/" + ImportPath: {
		"Handler": reflect.ValueOf((*Handler)(nil)),
		"Call":    reflect.ValueOf((*dispatch.Call)(nil)),
		"Spec":    reflect.ValueOf((*trigger.Spec)(nil)),
		"Builder": reflect.ValueOf((*trigger.Builder)(nil)),

		"New":     reflect.ValueOf(trigger.New),
		"Command": reflect.ValueOf(func(names ...string) *trigger.Builder { return trigger.New().Command(names...) }),
		"Regexp":  reflect.ValueOf(func(patterns ...string) *trigger.Builder { return trigger.New().Regexp(patterns...) }),

		"AnyEvent":      reflect.ValueOf(trigger.AnyEvent),
		"DefaultPrefix": reflect.ValueOf(trigger.DefaultPrefix),
	},
}

// stdlibSymbols returns the allowed subset of the yaegi stdlib exports.
func stdlibSymbols() interp.Exports {
	out := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		i := strings.LastIndex(key, "/")
		if i < 0 {
			continue
		}
		for _, pkg := range allowedPackages {
			if key[:i] == pkg {
				out[key] = syms
				break
			}
		}
	}
	return out
}
