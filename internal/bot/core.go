package bot

import (
	"context"
	"strings"

	"github.com/dshills/xfs/internal/dispatch"
	"github.com/dshills/xfs/internal/event"
	"github.com/dshills/xfs/internal/registry"
	"github.com/dshills/xfs/internal/trigger"
)

// Version is reported in CTCP VERSION replies. Set with -ldflags.
var Version = "dev"

// CoreModule is the compiled-in module answering pings and CTCP queries.
const CoreModule = "core"

func init() {
	registry.Register(CoreModule,
		registry.Definition{
			Name: "ping",
			Spec: trigger.New().Command("ping").Event(event.TypeMessage, event.TypeNotice).MustBuild(),
			Func: func(_ context.Context, call *dispatch.Call) error {
				return call.Reply("pong")
			},
		},
		registry.Definition{
			Name: "ctcp-version",
			Spec: trigger.New().MustRegexp(`\x01VERSION\x01?$`).Event(event.TypeCTCP).MustBuild(),
			Func: func(_ context.Context, call *dispatch.Call) error {
				return call.Notice(call.Event.SenderNick, ctcp("VERSION xfs "+Version))
			},
		},
		registry.Definition{
			Name: "ctcp-ping",
			Spec: trigger.New().MustRegexp(`\x01PING( [^\x01]*)?\x01?$`).Event(event.TypeCTCP).MustBuild(),
			Func: func(_ context.Context, call *dispatch.Call) error {
				return call.Notice(call.Event.SenderNick, ctcp(call.Event.Text))
			},
		},
	)
}

func ctcp(body string) string {
	return "\x01" + strings.Trim(body, "\x01") + "\x01"
}
