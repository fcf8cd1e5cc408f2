// Package stats keeps broker counters and periodically publishes them on
// the internal _stats app, through the same publish path clients use.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/rzbill/rtm/internal/apps"
	"github.com/rzbill/rtm/internal/publisher"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

const (
	// App is the tenant stats are published to.
	App = apps.StatsApp
	// Channel is the stats channel of App.
	Channel = "/stats"
)

type counters map[string]int64

func (c counters) clone() counters {
	out := make(counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Stats holds counters keyed by role (or channel). All methods are safe for
// concurrent use.
type Stats struct {
	node  string
	start time.Time

	mu              sync.Mutex
	connections     int64
	idleConnections int64
	subscriptions   counters

	publishedCount  counters
	publishedBytes  counters
	subscribedCount counters
	subscribedBytes counters
	reads           counters
	writes          counters
	chanPublished   counters
	chanSubscribed  counters

	periodPublishedCount  counters
	periodPublishedBytes  counters
	periodSubscribedCount counters
	periodSubscribedBytes counters
}

// New returns zeroed counters for node.
func New(node string) *Stats {
	s := &Stats{
		node:            node,
		start:           time.Now(),
		subscriptions:   counters{},
		publishedCount:  counters{},
		publishedBytes:  counters{},
		subscribedCount: counters{},
		subscribedBytes: counters{},
		reads:           counters{},
		writes:          counters{},
		chanPublished:   counters{},
		chanSubscribed:  counters{},
	}
	s.resetPeriodLocked()
	return s
}

func (s *Stats) resetPeriodLocked() {
	s.periodPublishedCount = counters{}
	s.periodPublishedBytes = counters{}
	s.periodSubscribedCount = counters{}
	s.periodSubscribedBytes = counters{}
}

// Node is the name stats are reported under.
func (s *Stats) Node() string { return s.node }

func (s *Stats) IncrConnections() {
	s.mu.Lock()
	s.connections++
	s.mu.Unlock()
}

func (s *Stats) DecrConnections() {
	s.mu.Lock()
	s.connections--
	s.mu.Unlock()
}

// IncrIdleConnections counts connections closed by the idle timeout.
func (s *Stats) IncrIdleConnections() {
	s.mu.Lock()
	s.idleConnections++
	s.mu.Unlock()
}

func (s *Stats) IncrSubscriptions(role string) {
	s.mu.Lock()
	s.subscriptions[role]++
	s.mu.Unlock()
}

func (s *Stats) DecrSubscriptionsBy(role string, n int) {
	s.mu.Lock()
	s.subscriptions[role] -= int64(n)
	s.mu.Unlock()
}

// UpdatePublished records one published message of size bytes.
func (s *Stats) UpdatePublished(role string, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishedCount[role]++
	s.publishedBytes[role] += int64(size)
	s.periodPublishedCount[role]++
	s.periodPublishedBytes[role] += int64(size)
}

func (s *Stats) UpdateChannelPublished(channel string) {
	s.mu.Lock()
	s.chanPublished[channel]++
	s.mu.Unlock()
}

func (s *Stats) UpdateChannelSubscribed(channel string) {
	s.mu.Lock()
	s.chanSubscribed[channel]++
	s.mu.Unlock()
}

// UpdateSubscribed records one message of size bytes delivered to role.
func (s *Stats) UpdateSubscribed(role string, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribedCount[role]++
	s.subscribedBytes[role] += int64(size)
	s.periodSubscribedCount[role]++
	s.periodSubscribedBytes[role] += int64(size)
}

func (s *Stats) UpdateReads(role string, size int) {
	s.mu.Lock()
	s.reads[role] += int64(size)
	s.mu.Unlock()
}

func (s *Stats) UpdateWrites(role string, size int) {
	s.mu.Lock()
	s.writes[role] += int64(size)
	s.mu.Unlock()
}

// Connections returns the live connection count.
func (s *Stats) Connections() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

// Subscriptions returns the live subscription count of role.
func (s *Stats) Subscriptions(role string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions[role]
}

// Report is one stats message.
type Report struct {
	Node string     `json:"node"`
	Data ReportData `json:"data"`
}

type ReportData struct {
	RTM    map[string]counters `json:"rtm"`
	System System              `json:"system"`
}

type System struct {
	Connections     int64  `json:"connections"`
	IdleConnections int64  `json:"idle_connections"`
	MemBytes        uint64 `json:"mem_bytes"`
	Uptime          string `json:"uptime"`
	UptimeMinutes   int64  `json:"uptime_minutes"`
	Goroutines      int    `json:"goroutines"`
	Publishers      int    `json:"publishers"`
}

// Snapshot captures the counters and starts a new period.
func (s *Stats) Snapshot(publishers int) Report {
	var mem goruntime.MemStats
	goruntime.ReadMemStats(&mem)
	up := time.Since(s.start)

	s.mu.Lock()
	defer s.mu.Unlock()
	r := Report{
		Node: s.node,
		Data: ReportData{
			RTM: map[string]counters{
				"subscriptions":               s.subscriptions.clone(),
				"published_count":             s.publishedCount.clone(),
				"published_bytes":             s.publishedBytes.clone(),
				"published_count_per_second":  s.periodPublishedCount,
				"published_bytes_per_second":  s.periodPublishedBytes,
				"subscribed_count":            s.subscribedCount.clone(),
				"subscribed_bytes":            s.subscribedBytes.clone(),
				"subscribed_count_per_second": s.periodSubscribedCount,
				"subscribed_bytes_per_second": s.periodSubscribedBytes,
				"read_bytes":                  s.reads.clone(),
				"write_bytes":                 s.writes.clone(),
				"channel_published_count":     s.chanPublished.clone(),
				"channel_subscribed_count":    s.chanSubscribed.clone(),
			},
			System: System{
				Connections:     s.connections,
				IdleConnections: s.idleConnections,
				MemBytes:        mem.Alloc,
				Uptime:          FormatUptime(up),
				UptimeMinutes:   int64(up / time.Minute),
				Goroutines:      goruntime.NumGoroutine(),
				Publishers:      publishers,
			},
		},
	}
	s.resetPeriodLocked()
	return r
}

// FormatUptime renders d as "H:MM:SS", prefixed by "N day(s), " past a day.
func FormatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	hms := fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	switch {
	case days == 1:
		return "1 day, " + hms
	case days > 1:
		return fmt.Sprintf("%d days, %s", days, hms)
	}
	return hms
}

// Publisher is the write path stats are sent through.
type Publisher interface {
	PublishNow(ctx context.Context, job publisher.Job, maxLen int) (string, error)
	Len() int
}

// Encode wraps a report in the publish PDU shape subscribers unwrap.
func Encode(r Report) ([]byte, error) {
	return json.Marshal(map[string]interface{}{"body": map[string]interface{}{"message": r}})
}

// Run publishes a report every interval until ctx is done. Publish failures
// are logged and the loop keeps going.
func (s *Stats) Run(ctx context.Context, pub Publisher, interval time.Duration, maxLen int, logger logpkg.Logger) error {
	if interval <= 0 {
		interval = time.Second
	}
	logger = logger.With(logpkg.Component("stats"))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		data, err := Encode(s.Snapshot(pub.Len()))
		if err != nil {
			logger.Error("encode stats", logpkg.Err(err))
			continue
		}
		if _, err := pub.PublishNow(ctx, publisher.Job{Tenant: App, Channel: Channel, Payload: data}, maxLen); err != nil && ctx.Err() == nil {
			logger.Warn("publish stats", logpkg.Err(err))
		}
	}
}
