package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/runtime"
	pebblestore "github.com/rzbill/rtm/internal/storage/pebble"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
}

func newRemote(t *testing.T) *logstore.Remote {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	srv := New(rt, nil)
	d := dialer(srv.grpc)
	c, err := logstore.NewRemote(context.Background(), "grpc://passthrough:///bufnet", grpc.WithContextDialer(d))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		srv.Close()
		_ = rt.Close()
	})
	return c
}

func TestHealthOverGRPC(t *testing.T) {
	c := newRemote(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestAppendAndReadOverGRPC(t *testing.T) {
	c := newRemote(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pos, err := c.Append(ctx, "app::chan", []byte(`{"a":1}`), 10)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	e, err := c.ReadAt(ctx, "app::chan", pos)
	if err != nil {
		t.Fatalf("read at: %v", err)
	}
	if string(e.Value) != `{"a":1}` || e.Position != pos {
		t.Fatalf("unexpected entry %+v", e)
	}
	if _, err := c.ReadAt(ctx, "app::chan", "1-0"); !errors.Is(err, logstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	n, err := c.Len(ctx, "app::chan")
	if err != nil || n != 1 {
		t.Fatalf("len=%d err=%v", n, err)
	}
	last, err := c.LastPosition(ctx, "app::chan")
	if err != nil || last != pos {
		t.Fatalf("last=%s err=%v", last, err)
	}
}

func TestAppendBatchAndRangeLastOverGRPC(t *testing.T) {
	c := newRemote(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	recs := []logstore.Record{
		{Key: "a", Value: []byte("1"), MaxLen: 2},
		{Key: "a", Value: []byte("2"), MaxLen: 2},
		{Key: "a", Value: []byte("3"), MaxLen: 2},
	}
	pos, err := c.AppendBatch(ctx, recs)
	if err != nil || len(pos) != 3 {
		t.Fatalf("batch: %v %v", pos, err)
	}
	got, err := c.RangeLast(ctx, "a", 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 || string(got[0].Value) != "3" || string(got[1].Value) != "2" {
		t.Fatalf("unexpected range %+v", got)
	}
	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := c.Exists(ctx, "a"); ok {
		t.Fatalf("expected stream gone")
	}
}

func TestTailOverGRPC(t *testing.T) {
	c := newRemote(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := c.Append(ctx, "t", []byte("old"), 0); err != nil {
		t.Fatalf("append: %v", err)
	}
	got := make(chan string, 4)
	tailCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = c.Tail(tailCtx, "t", logstore.ZeroPosition, func(e logstore.Entry) error {
			got <- string(e.Value)
			return nil
		})
	}()
	if v := <-got; v != "old" {
		t.Fatalf("want old, got %s", v)
	}
	if _, err := c.Append(ctx, "t", []byte("new"), 0); err != nil {
		t.Fatalf("append: %v", err)
	}
	select {
	case v := <-got:
		if v != "new" {
			t.Fatalf("want new, got %s", v)
		}
	case <-ctx.Done():
		t.Fatalf("tail did not deliver")
	}
}

func TestHealthServices(t *testing.T) {
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	srv := New(rt, nil)
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer(srv.grpc)),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = cc.Close()
		srv.Close()
		_ = rt.Close()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	hc := healthpb.NewHealthClient(cc)

	for _, svc := range []string{"", logstore.ServiceName} {
		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
		if err != nil {
			t.Fatalf("check %q: %v", svc, err)
		}
		if resp.Status != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("check %q: %v", svc, resp.Status)
		}
	}
	if _, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"}); status.Code(err) != codes.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}

	_ = rt.Close()
	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check after close: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("want NOT_SERVING, got %v", resp.Status)
	}
}
