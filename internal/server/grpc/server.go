package grpcserver

import (
	"context"
	"net"

	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/runtime"
	logpkg "github.com/rzbill/rtm/pkg/log"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	store  logstore.Client
	grpc   *grpc.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New constructs a lognode server over rt and registers the LogStore and
// health services.
func New(rt *runtime.Runtime, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	s := &Server{
		rt:     rt,
		store:  logstore.NewEmbedded(rt, rt.DataDir()),
		grpc:   grpc.NewServer(opts...),
		logger: logger.With(logpkg.Component("lognode")),
	}
	logstore.RegisterLogStoreServer(s.grpc, &logStoreSvc{store: s.store, logger: s.logger})
	healthpb.RegisterHealthServer(s.grpc, &healthSvc{rt: rt})
	return s
}

// GRPC exposes the underlying server, mostly for tests.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("lognode listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
