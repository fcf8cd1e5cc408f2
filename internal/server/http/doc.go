// Package httpserver is the client-facing transport of the broker: a
// websocket endpoint at /v2?appkey=<app> plus plain /health/ and /version/
// endpoints.
//
// Example:
//
//	s := httpserver.New(b, httpserver.Options{Apps: appsCfg, Version: version.Version})
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8765")
package httpserver
