// Package dispatch routes parsed events to handler entries.
//
// Dispatch is a broadcast: every entry whose trigger spec matches the event is
// invoked, in entry order. Nothing short-circuits on the first match.
//
// # Matching
//
// Match checks, in order, that the event type is accepted, that a trigger
// mode fires (the command token with an accepted prefix, or a full-line
// pattern), and that every restriction holds: private-only, targets, nicks,
// host masks and owner-only. The owner identity and the bot nick come from
// Env.
//
// # Execution
//
// Synchronous handlers run on the dispatching goroutine through an Executor
// that recovers panics and records timing. Handlers flagged OwnThread are
// submitted to a bounded worker Pool and the engine moves on without
// waiting; a full queue drops the task and logs it.
//
// A failing handler is wrapped in a HandlerInvocationError, logged with its
// module and handler name, and the pass continues.
//
// # Shutdown
//
// Close waits for any pass in progress, rejects later passes with ErrClosed
// and drains the pool.
//
//	eng := dispatch.NewEngine(dispatch.WithLogger(log), dispatch.WithSender(conn))
//	if err := eng.Start(); err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	set, release := registry.Acquire()
//	rep := eng.DispatchLeased(ctx, ev, set.Entries(), release)
package dispatch
