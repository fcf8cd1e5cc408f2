// Package broker runs the pub/sub protocol over client connections.
//
// A connection authenticates with a two-step role/secret challenge and then
// sends JSON requests of the form
//
//	{"action": "rtm/publish", "id": 3, "body": {...}}
//
// which are answered with "<action>/ok" or "<action>/error". Requests of one
// connection are handled strictly in order. Each subscription runs in its own
// goroutine, tailing the routed log store and pushing
// "rtm/subscription/data" frames until it is cancelled by unsubscribe or
// connection teardown.
//
// Errors come in two kinds. Per-request errors (missing fields, denied
// access, backend failures) are answered and the connection stays usable.
// Fatal errors (malformed payloads, unknown actions, bad filters or
// positions, too many subscriptions) are answered and the connection is
// then closed.
package broker
