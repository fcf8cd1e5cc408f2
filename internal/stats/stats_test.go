package stats

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/rtm/internal/publisher"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []publisher.Job
}

func (r *recordingPublisher) PublishNow(_ context.Context, job publisher.Job, _ int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return "1-0", nil
}

func (r *recordingPublisher) Len() int { return 2 }

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestSnapshotResetsPeriodCounters(t *testing.T) {
	s := New("node-a")
	s.IncrConnections()
	s.IncrSubscriptions("reader")
	s.UpdatePublished("writer", 10)
	s.UpdatePublished("writer", 5)
	s.UpdateChannelPublished("chat")
	s.UpdateChannelPublished("chat")
	s.UpdateSubscribed("reader", 7)
	s.UpdateChannelSubscribed("chat")
	s.UpdateWrites("writer", 3)

	r := s.Snapshot(4)
	assert.Equal(t, "node-a", r.Node)
	assert.Equal(t, int64(1), r.Data.System.Connections)
	assert.Equal(t, 4, r.Data.System.Publishers)
	assert.Equal(t, int64(2), r.Data.RTM["published_count"]["writer"])
	assert.Equal(t, int64(15), r.Data.RTM["published_bytes"]["writer"])
	assert.Equal(t, int64(2), r.Data.RTM["published_count_per_second"]["writer"])
	assert.Equal(t, int64(7), r.Data.RTM["subscribed_bytes_per_second"]["reader"])
	assert.Equal(t, int64(1), r.Data.RTM["subscriptions"]["reader"])
	assert.Equal(t, int64(2), r.Data.RTM["channel_published_count"]["chat"])
	assert.Equal(t, int64(1), r.Data.RTM["channel_subscribed_count"]["chat"])
	assert.Equal(t, int64(3), r.Data.RTM["write_bytes"]["writer"])

	r = s.Snapshot(0)
	assert.Equal(t, int64(2), r.Data.RTM["published_count"]["writer"])
	assert.Empty(t, r.Data.RTM["published_count_per_second"])
	assert.Empty(t, r.Data.RTM["subscribed_bytes_per_second"])
}

func TestSubscriptionCounters(t *testing.T) {
	s := New("n")
	s.IncrSubscriptions("r")
	s.IncrSubscriptions("r")
	s.IncrSubscriptions("r")
	s.DecrSubscriptionsBy("r", 2)
	assert.Equal(t, int64(1), s.Subscriptions("r"))

	s.IncrConnections()
	s.IncrConnections()
	s.DecrConnections()
	assert.Equal(t, int64(1), s.Connections())
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0:00:00", FormatUptime(0))
	assert.Equal(t, "0:01:05", FormatUptime(65*time.Second))
	assert.Equal(t, "2:03:04", FormatUptime(2*time.Hour+3*time.Minute+4*time.Second))
	assert.Equal(t, "1 day, 0:00:01", FormatUptime(24*time.Hour+time.Second))
	assert.Equal(t, "3 days, 1:00:00", FormatUptime(73*time.Hour))
}

func TestEncodeWrapsReportAsPublishBody(t *testing.T) {
	data, err := Encode(New("n1").Snapshot(0))
	require.NoError(t, err)

	var pdu struct {
		Body struct {
			Message struct {
				Node string `json:"node"`
				Data struct {
					RTM    map[string]interface{} `json:"rtm"`
					System map[string]interface{} `json:"system"`
				} `json:"data"`
			} `json:"message"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal(data, &pdu))
	assert.Equal(t, "n1", pdu.Body.Message.Node)
	assert.Contains(t, pdu.Body.Message.Data.RTM, "published_count")
	assert.Contains(t, pdu.Body.Message.Data.System, "uptime")
	assert.Contains(t, pdu.Body.Message.Data.System, "mem_bytes")
}

func TestRunPublishesToStatsChannel(t *testing.T) {
	s := New("n")
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, pub, 10*time.Millisecond, 1000, logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})))
	}()

	require.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, App, pub.jobs[0].Tenant)
	assert.Equal(t, Channel, pub.jobs[0].Channel)
}
