// Package publisher owns the write path to the log store: a Pool of
// Pipelined publishers, one per (tenant, routed endpoint), each writing
// jobs immediately or in pipelined batches.
//
// Example:
//
//	pool := publisher.NewPool(publisher.Options{Router: ring, Connector: dialer, MaxLen: 1000})
//	err := pool.Push(ctx, publisher.Job{Tenant: "app", Channel: "lobby", Payload: pdu}, false)
package publisher
