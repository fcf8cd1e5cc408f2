package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rzbill/rtm/internal/apps"
	"github.com/rzbill/rtm/internal/broker"
	"github.com/rzbill/rtm/internal/server/http/controllers"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Apps        *apps.Config
	Version     string
	IdleTimeout time.Duration
	// Health backs /v1/healthz; nil reports healthy.
	Health controllers.HealthFunc
	Logger logpkg.Logger
}

type Server struct {
	broker *broker.Broker
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

func New(b *broker.Broker, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	mux := http.NewServeMux()
	registry := controllers.NewControllerRegistry(
		controllers.NewGeneralController(opts.Version, opts.Health),
		controllers.NewRealtimeController(b, opts.Apps, controllers.RealtimeOptions{
			IdleTimeout: opts.IdleTimeout,
			Logger:      opts.Logger,
		}),
	)
	registry.RegisterAllRoutes(mux)
	return &Server{
		broker: b,
		srv:    &http.Server{Handler: cors(mux), ErrorLog: logpkg.ToStdLogger(opts.Logger, logpkg.WarnLevel)},
		logger: opts.Logger.With(logpkg.Component("http")),
	}
}

// Handler exposes the routes, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on addr until ctx is done, then stops accepting,
// closes live connections through the broker and returns.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.logger.Info("listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		if err := s.broker.Shutdown(cctx); err != nil {
			s.logger.Warn("broker shutdown", logpkg.Err(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr is the bound address once serving.
func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
