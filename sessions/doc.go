// Package sessions tracks the sessions that transport bindings serve.
//
// A Session is the continuity context for one client. The multiplexed
// binding (streaminghttp) creates sessions through a Registry, which hands
// out server-generated identifiers and guarantees that at most one Session
// exists per identifier. Identifiers are uuid v4; the Registry also refuses
// any identifier that is live or among the most recently closed ones. The
// persistent binding (stdio) owns exactly one
// implicit session that never enters the Registry.
//
// State machine
//
//	absent -> pending -> active -> closed
//
// Registry.Create performs generation, insertion and activation under one
// lock, so a caller never observes a session that exists in the binding but
// not in the Registry.
//
// # Hosts
//
// A SessionHost carries an ordered, resumable per-session event stream that
// backs the multiplexed binding's poll operation:
//
//	memoryhost : in-memory, process local
//	redishost  : Redis Streams
//
// sessionhosttest holds a conformance suite both implementations run.
package sessions
