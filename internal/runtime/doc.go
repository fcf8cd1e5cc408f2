// Package runtime wires a pebble database and its stream logs into a single
// storage instance. It backs the embedded log store endpoints of the broker
// and the standalone lognode.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways})
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	l, _ := rt.OpenLog("app::orders")
//	_, _ = l.Append(ctx, []eventlog.AppendRecord{{Payload: []byte("hello")}}, 1000)
package runtime
