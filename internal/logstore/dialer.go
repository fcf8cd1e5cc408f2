package logstore

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rzbill/rtm/internal/runtime"
	pebblestore "github.com/rzbill/rtm/internal/storage/pebble"
	logpkg "github.com/rzbill/rtm/pkg/log"
	"google.golang.org/grpc"
)

// Connector opens clients to endpoints.
type Connector interface {
	Dial(ctx context.Context, endpoint string) (Client, error)
}

// DialerOptions configures a Dialer.
type DialerOptions struct {
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Logger        logpkg.Logger
	// GRPCOptions are appended when dialing grpc:// endpoints.
	GRPCOptions []grpc.DialOption
}

// Dialer opens clients by endpoint scheme:
//
//	pebble:///var/lib/rtm/node0  (or a bare path)  embedded store
//	grpc://host:50051                             remote lognode
//	redis://[:password@]host:6379[/db]            Redis Streams
//
// Embedded stores are opened once per directory and shared by every client
// the dialer hands out; Close releases them.
type Dialer struct {
	opts DialerOptions

	mu       sync.Mutex
	runtimes map[string]*runtime.Runtime
}

func NewDialer(opts DialerOptions) *Dialer {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	return &Dialer{opts: opts, runtimes: make(map[string]*runtime.Runtime)}
}

// Dial opens a client for endpoint.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (Client, error) {
	scheme, rest := splitScheme(endpoint)
	switch scheme {
	case "pebble", "":
		rt, err := d.embeddedRuntime(rest)
		if err != nil {
			return nil, err
		}
		return NewEmbedded(rt, endpoint), nil
	case "grpc":
		return NewRemote(ctx, endpoint, d.opts.GRPCOptions...)
	case "redis", "rediss":
		return NewRedis(ctx, endpoint)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEndpoint, endpoint)
	}
}

func (d *Dialer) embeddedRuntime(dir string) (*runtime.Runtime, error) {
	dir = filepath.Clean(dir)
	d.mu.Lock()
	defer d.mu.Unlock()
	if rt, ok := d.runtimes[dir]; ok {
		return rt, nil
	}
	rt, err := runtime.Open(runtime.Options{DataDir: dir, Fsync: d.opts.Fsync, FsyncInterval: d.opts.FsyncInterval, Logger: d.opts.Logger})
	if err != nil {
		return nil, err
	}
	d.opts.Logger.Info("opened embedded log store", logpkg.Str("dir", dir))
	d.runtimes[dir] = rt
	return rt, nil
}

// Close releases every embedded store.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for dir, rt := range d.runtimes {
		if err := rt.Close(); err != nil && first == nil {
			first = err
		}
		delete(d.runtimes, dir)
	}
	return first
}

// splitScheme returns the scheme and the remainder of an endpoint. For
// pebble endpoints the remainder is the directory.
func splitScheme(endpoint string) (string, string) {
	if !strings.Contains(endpoint, "://") {
		return "", endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", endpoint
	}
	if u.Scheme == "pebble" {
		return u.Scheme, u.Host + u.Path
	}
	return u.Scheme, u.Host
}
