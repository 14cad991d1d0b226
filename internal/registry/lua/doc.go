// Package lua runs bot modules written in Lua.
//
// Each module file gets its own sandboxed gopher-lua state with only the
// base, string, table and math libraries. The file's top-level code
// declares handlers through the xfs module:
//
//	local xfs = require("xfs")
//
//	xfs.handler("hi", function(ctx)
//	    ctx:reply("hello, " .. ctx.nick)
//	end, { commands = "hi" })
//
// The third argument accepts commands, prefixes, patterns, events,
// targets, nicks and hosts (a string or an array of strings) and the
// booleans owner, privmsg and thread.
//
// Handlers receive a context table with the event fields (id, event, nick,
// user, host, target, text, raw, command, args, params, reply_target,
// handler) and the methods reply, say, notice and raw_line. xfs.store
// offers get, set and delete over values that round-trip through JSON.
//
// Calls into one module are serialized. Handlers declared after the top
// level code finished raise an error.
package lua
