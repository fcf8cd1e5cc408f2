// Package grpcserver hosts the lognode: a gRPC server exposing one embedded
// stream store as the rtm.logstore.v1.LogStore service plus the standard
// gRPC health service. Brokers reach it through grpc:// endpoints.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways})
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
