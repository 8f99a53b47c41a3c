// Package redishost implements sessions.SessionHost on Redis Streams so that
// session event streams survive in a shared store and can be resumed from
// any event id Redis still holds.
//
// Design Notes
//   - Session streams: XADD with approximate MAXLEN trimming + blocking XREAD
//   - Resume: XREAD from the client's Last-Event-ID
//   - Cleanup: DEL of the stream key
//
// Example:
//
//	host, err := redishost.New(ctx, redishost.Config{RedisAddr: "localhost:6379"})
//	if err != nil { ... }
//	defer host.Close()
package redishost
