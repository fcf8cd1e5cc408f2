// Package serverrun exposes the Run entrypoints used by the CLI: Run starts
// the broker with its websocket server, RunLogNode starts a standalone log
// store node serving gRPC.
//
// Example:
//
//	cfg, _ := config.Load("rtm.yaml")
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
