package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rzbill/rtm/internal/apps"
	"github.com/rzbill/rtm/internal/broker"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

// DefaultWriteTimeout bounds a single websocket write.
const DefaultWriteTimeout = 10 * time.Second

// RealtimeController upgrades /v2?appkey=... requests to websockets and
// hands them to the broker.
type RealtimeController struct {
	broker       *broker.Broker
	apps         *apps.Config
	logger       logpkg.Logger
	idleTimeout  time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// RealtimeOptions configures a RealtimeController.
type RealtimeOptions struct {
	// IdleTimeout closes connections that send nothing for that long; zero
	// disables it.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       logpkg.Logger
}

// NewRealtimeController creates the websocket controller.
func NewRealtimeController(b *broker.Broker, cfg *apps.Config, opts RealtimeOptions) *RealtimeController {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &RealtimeController{
		broker:       b,
		apps:         cfg,
		logger:       opts.Logger.With(logpkg.Component("realtime")),
		idleTimeout:  opts.IdleTimeout,
		writeTimeout: opts.WriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers the websocket endpoint. Any path is accepted as
// long as it carries a valid appkey, /v2 being the documented one.
func (c *RealtimeController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", c.handleUpgrade)
}

// appKey returns the appkey query parameter; it must be given exactly once.
func appKey(r *http.Request) (string, bool) {
	values, ok := r.URL.Query()["appkey"]
	if !ok || len(values) != 1 {
		return "", false
	}
	return values[0], true
}

func (c *RealtimeController) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	key, ok := appKey(r)
	if !ok || !c.apps.IsAppKeyValid(key) {
		c.logger.Warn("rejecting request with invalid appkey", logpkg.Str("path", r.URL.Path))
		writeText(w, http.StatusForbidden, "KO")
		return
	}
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Debug("upgrade failed", logpkg.Err(err))
		return
	}
	conn := newWSConn(ws, c.idleTimeout, c.writeTimeout)
	userAgent := r.Header.Get("User-Agent")

	// The request context is not cancelled for hijacked connections; the
	// broker closes them on shutdown.
	err = c.broker.Serve(r.Context(), conn, key, userAgent)
	switch {
	case err == nil:
	case errors.Is(err, errIdle):
		c.broker.Stats().IncrIdleConnections()
		c.logger.Debug("closing idle connection", logpkg.Str("tenant", key))
	case errors.Is(err, broker.ErrFatal):
		c.logger.Debug("connection ended by protocol error", logpkg.Err(err))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
	default:
		c.logger.Debug("connection ended", logpkg.Err(err))
	}
}
