package bot

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dshills/xfs/internal/dispatch"
	"github.com/dshills/xfs/internal/registry"
	"github.com/dshills/xfs/internal/trigger"
)

// AdminModule is the name the admin commands are installed under.
const AdminModule = "admin"

// adminDefinitions returns the owner commands that manage modules, plus
// help.
func (b *Bot) adminDefinitions() []registry.Definition {
	owner := func(cmd string) trigger.Spec {
		return trigger.New().Command(cmd).RequireOwner().MustBuild()
	}
	return []registry.Definition{
		{Name: "load", Spec: owner("load"), Func: b.withModule(b.adminLoad)},
		{Name: "reload", Spec: owner("reload"), Func: b.withModule(b.adminReload)},
		{Name: "unload", Spec: owner("unload"), Func: b.withModule(b.adminUnload)},
		{Name: "modules", Spec: owner("modules"), Func: b.adminModules},
		{Name: "help", Spec: trigger.New().Command("help").MustBuild(), Func: b.adminHelp},
	}
}

// withModule requires one module name argument.
func (b *Bot) withModule(fn func(ctx context.Context, call *dispatch.Call, name string) error) dispatch.HandlerFunc {
	return func(ctx context.Context, call *dispatch.Call) error {
		if len(call.Args) != 1 {
			return call.Reply(fmt.Sprintf("usage: %s <module>", call.Command))
		}
		return fn(ctx, call, call.Args[0])
	}
}

func (b *Bot) adminLoad(ctx context.Context, call *dispatch.Call, name string) error {
	if err := b.registry.Load(ctx, name); err != nil {
		return call.Reply(fmt.Sprintf("load %s failed: %v", name, err))
	}
	return call.Reply(b.describe(name, "loaded"))
}

func (b *Bot) adminReload(ctx context.Context, call *dispatch.Call, name string) error {
	if err := b.registry.Reload(ctx, name); err != nil {
		return call.Reply(fmt.Sprintf("reload %s failed: %v", name, err))
	}
	return call.Reply(b.describe(name, "reloaded"))
}

func (b *Bot) adminUnload(_ context.Context, call *dispatch.Call, name string) error {
	if name == AdminModule {
		return call.Reply("the admin module cannot be unloaded")
	}
	if err := b.registry.Unload(name); err != nil {
		return call.Reply(fmt.Sprintf("unload %s failed: %v", name, err))
	}
	return call.Reply("unloaded " + name)
}

func (b *Bot) adminModules(_ context.Context, call *dispatch.Call) error {
	snap := b.registry.Snapshot()
	parts := make([]string, 0, snap.Len())
	for _, name := range snap.Modules() {
		parts = append(parts, fmt.Sprintf("%s(%d)", name, len(snap.Handlers(name))))
	}
	msg := "modules: " + strings.Join(parts, " ")

	if errs := b.registry.Errors(); len(errs) > 0 {
		failed := make([]string, 0, len(errs))
		for name := range errs {
			failed = append(failed, name)
		}
		slices.Sort(failed)
		msg += " | failed: " + strings.Join(failed, " ")
	}
	return call.Reply(msg)
}

// adminHelp lists the commands the caller can trigger.
func (b *Bot) adminHelp(_ context.Context, call *dispatch.Call) error {
	env := b.engine.Env()
	isOwner := env.IsOwner(call.Event)

	var cmds []string
	for _, e := range b.registry.Snapshot().Entries() {
		if e.Spec.OwnerOnly && !isOwner {
			continue
		}
		if len(e.Spec.Prefixes) == 0 {
			continue
		}
		for _, c := range e.Spec.Commands {
			cmd := e.Spec.Prefixes[0] + c
			if !slices.Contains(cmds, cmd) {
				cmds = append(cmds, cmd)
			}
		}
	}
	slices.Sort(cmds)
	return call.Reply("commands: " + strings.Join(cmds, " "))
}

func (b *Bot) describe(name, verb string) string {
	n := len(b.registry.Snapshot().Handlers(name))
	return fmt.Sprintf("%s %s (%d handlers)", verb, name, n)
}
