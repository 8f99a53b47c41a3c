// Package memoryhost provides an in-memory sessions.SessionHost suitable
// for tests and single-process gateways. All state is discarded on process
// exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Ordering          : monotonic decimal IDs, delivered in publish order
//	Resume            : any event still held for the session
//
// Example:
//
//	host := memoryhost.New()
//	reg := sessions.NewRegistry(sessions.WithHost(host))
package memoryhost
