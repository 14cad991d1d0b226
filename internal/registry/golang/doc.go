// Package golang runs bot modules written as Go source, interpreted with
// yaegi.
//
// A module is a single package main file defining Handlers:
//
//	package main
//
//	import (
//		"context"
//
//		"xfs"
//	)
//
//	func Handlers() []xfs.Handler {
//		return []xfs.Handler{{
//			Name: "ping",
//			Spec: xfs.Command("ping").MustBuild(),
//			Func: func(ctx context.Context, c *xfs.Call) error {
//				return c.Reply("pong")
//			},
//		}}
//	}
//
// Only a small set of standard library packages can be imported.
package golang
