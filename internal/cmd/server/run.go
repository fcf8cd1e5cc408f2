package serverrun

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rzbill/rtm/internal/apps"
	"github.com/rzbill/rtm/internal/broker"
	cfgpkg "github.com/rzbill/rtm/internal/config"
	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/publisher"
	"github.com/rzbill/rtm/internal/router"
	"github.com/rzbill/rtm/internal/runtime"
	grpcserver "github.com/rzbill/rtm/internal/server/grpc"
	httpserver "github.com/rzbill/rtm/internal/server/http"
	pebblestore "github.com/rzbill/rtm/internal/storage/pebble"
	"github.com/rzbill/rtm/internal/version"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

// flushInterval bounds how long a batched publish can wait in a queue.
const flushInterval = 100 * time.Millisecond

type Options struct {
	Config cfgpkg.Config
	// Apps overrides the credential store named by Config.Apps.
	Apps   *apps.Config
	Logger logpkg.Logger
	// Listener, when set, is served instead of Config.Server.Addr().
	Listener net.Listener
}

// NewLogger builds the process logger from the log section of the config.
func NewLogger(cfg cfgpkg.LogConfig) (logpkg.Logger, error) {
	return logpkg.ApplyConfig(&logpkg.Config{
		Level:   cfg.Level,
		Format:  cfg.Format,
		Outputs: cfg.Outputs,
	})
}

// Run starts the broker and its websocket server and blocks until ctx is
// cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := opts.Config

	logger := opts.Logger
	if logger == nil {
		l, err := NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		logger = l
	}
	logpkg.RedirectStdLog(logger)

	appsCfg := opts.Apps
	if appsCfg == nil {
		c, err := apps.Resolve(cfg.Apps.Path, cfg.Apps.Content)
		if err != nil {
			return fmt.Errorf("apps config: %w", err)
		}
		appsCfg = c
	}
	for _, w := range appsCfg.Warnings() {
		logger.Warn(w)
	}

	fsync, err := cfg.Store.FsyncMode()
	if err != nil {
		return err
	}
	dialer := logstore.NewDialer(logstore.DialerOptions{
		Fsync:         fsync,
		FsyncInterval: cfg.Store.FsyncInterval,
		Logger:        logger,
	})
	defer dialer.Close()

	ring, err := router.NewRing(cfg.Store.Endpoints)
	if err != nil {
		return err
	}
	pool := publisher.NewPool(publisher.Options{
		Router:    ring,
		Connector: dialer,
		BatchSize: appsCfg.BatchPublishSize(),
		MaxLen:    appsCfg.ChannelMaxLength(),
		Logger:    logger,
	})

	var statsInterval time.Duration
	if cfg.Server.EnableStats {
		statsInterval = cfg.Server.StatsInterval
	}
	b, err := broker.New(broker.Options{
		Apps:             appsCfg,
		Router:           ring,
		Pool:             pool,
		Connector:        dialer,
		Logger:           logger,
		MaxSubscriptions: cfg.Server.MaxSubscriptions,
		Node:             cfg.Server.Node,
		Version:          version.Version,
		StatsInterval:    statsInterval,
		FlushInterval:    flushInterval,
	})
	if err != nil {
		return err
	}
	hsrv := httpserver.New(b, httpserver.Options{
		Apps:        appsCfg,
		Version:     version.Version,
		IdleTimeout: cfg.Server.IdleTimeout,
		Health:      CheckEndpoints(dialer, ring),
		Logger:      logger,
	})

	logger.Info("Starting rtm server",
		logpkg.Str("addr", cfg.Server.Addr()),
		logpkg.F("endpoints", cfg.Store.Endpoints),
		logpkg.Int("max_subscriptions", cfg.Server.MaxSubscriptions),
		logpkg.Dur("idle_timeout", cfg.Server.IdleTimeout),
		logpkg.Bool("stats", cfg.Server.EnableStats),
		logpkg.Str("version", version.Version),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(sctx)
	}()

	if opts.Listener != nil {
		err = hsrv.Serve(sctx, opts.Listener)
	} else {
		err = hsrv.ListenAndServe(sctx, cfg.Server.Addr())
	}
	stop()
	wg.Wait()

	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := pool.Close(cctx); cerr != nil {
		logger.Warn("flushing publishers", logpkg.Err(cerr))
	}
	if err != nil && sctx.Err() == nil {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

// CheckEndpoints returns a health check that pings every log store endpoint.
func CheckEndpoints(c logstore.Connector, r router.Router) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, ep := range r.Endpoints() {
			client, err := c.Dial(ctx, ep)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ep, err))
				continue
			}
			if err := client.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ep, err))
			}
			_ = client.Close()
		}
		return errors.Join(errs...)
	}
}

// LogNodeOptions configures a standalone log store node.
type LogNodeOptions struct {
	DataDir       string
	GRPCAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Logger        logpkg.Logger
}

// RunLogNode serves a pebble-backed log store over gRPC until ctx is
// cancelled. Brokers reach it through grpc:// endpoints.
func RunLogNode(ctx context.Context, opts LogNodeOptions) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewConsoleOutput()))
	}
	rt, err := runtime.Open(runtime.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Logger:        opts.Logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	opts.Logger.Info("Starting rtm lognode",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("data_dir", opts.DataDir),
	)
	gsrv := grpcserver.New(rt, opts.Logger)
	err = gsrv.ListenAndServe(sctx, opts.GRPCAddr)
	st := rt.Stats()
	opts.Logger.Info("lognode stopped",
		logpkg.Int64("commits", st.Commits),
		logpkg.Int64("bytes_written", st.BytesWritten),
		logpkg.Int64("bytes_read", st.BytesRead),
	)
	if err != nil && sctx.Err() == nil {
		return fmt.Errorf("grpc: %w", err)
	}
	return nil
}
