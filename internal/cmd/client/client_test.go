package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/rtm/internal/apps"
	"github.com/rzbill/rtm/internal/broker"
	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/publisher"
	"github.com/rzbill/rtm/internal/router"
	httpserver "github.com/rzbill/rtm/internal/server/http"
)

// startBroker generates a default apps file, serves a broker using it and
// returns the websocket URL and the apps file path.
func startBroker(t *testing.T) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apps.yaml")
	cfg, err := apps.GenerateDefault(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	d := logstore.NewDialer(logstore.DialerOptions{})
	t.Cleanup(func() { _ = d.Close() })
	ring, err := router.NewRing([]string{"pebble://" + filepath.Join(t.TempDir(), "n0")})
	if err != nil {
		t.Fatalf("ring: %v", err)
	}
	pool := publisher.NewPool(publisher.Options{Router: ring, Connector: d})
	t.Cleanup(func() { _ = pool.Close(context.Background()) })
	b, err := broker.New(broker.Options{
		Apps:             cfg,
		Router:           ring,
		Pool:             pool,
		Connector:        d,
		MaxSubscriptions: -1,
		Node:             "cli-node",
		Version:          "0.0.1",
		StatsInterval:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("broker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	ts := httptest.NewServer(httpserver.New(b, httpserver.Options{Apps: cfg}).Handler())
	t.Cleanup(func() {
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = b.Shutdown(sctx)
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v2", path
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestInitAndSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.yaml")
	out, err := run(t, newInitCommand(), "--apps", path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("unexpected output %q", out)
	}
	cfg, err := apps.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultRole("pubsub") != "pubsub" {
		t.Fatalf("default role = %q", cfg.DefaultRole("pubsub"))
	}

	if _, err := run(t, newInitCommand(), "--apps", path); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	if _, err := run(t, newInitCommand(), "--apps", path, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}

	out, err = run(t, newSecretCommand())
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	if len(strings.TrimSpace(out)) != 32 {
		t.Fatalf("secret %q", out)
	}
}

func TestWriteReadDelete(t *testing.T) {
	url, path := startBroker(t)

	out, err := run(t, newWriteCommand(), "--url", url, "--apps", path, "--channel", "config", "--data", `{"mode":"fast"}`)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	var w struct{ Stream string }
	if err := json.Unmarshal([]byte(out), &w); err != nil || w.Stream == "" {
		t.Fatalf("write output %q", out)
	}

	out, err = run(t, newReadCommand(), "--url", url, "--apps", path, "--channel", "config")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(out) != `{"message":{"mode":"fast"}}` {
		t.Fatalf("read output %q", out)
	}

	if _, err := run(t, newDeleteCommand(), "--url", url, "--apps", path, "--channel", "config"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, err = run(t, newReadCommand(), "--url", url, "--apps", path, "--channel", "config")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(out) != `{"message":null}` {
		t.Fatalf("read after delete %q", out)
	}
}

func TestPublishThenSubscribeFromStart(t *testing.T) {
	url, path := startBroker(t)

	out, err := run(t, newPublishCommand(), "--url", url, "--apps", path, "--channel", "news", "--data", "hello")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if strings.TrimSpace(out) != `{"channels":["news"]}` {
		t.Fatalf("publish output %q", out)
	}

	out, err = run(t, newSubscribeCommand(), "--url", url, "--apps", path, "--channel", "news", "--position", "0-0", "--limit", "1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("subscribe output %q", out)
	}
}

func TestSubscribeRequiresTarget(t *testing.T) {
	if _, err := run(t, newSubscribeCommand(), "--role", "r", "--secret", "s"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExplicitCredentials(t *testing.T) {
	url, path := startBroker(t)
	cfg, err := apps.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	secret := cfg.DefaultSecret("pubsub")

	_, err = run(t, newPublishCommand(), "--url", url, "--apps", "/nonexistent",
		"--role", "pubsub", "--secret", secret, "--channel", "x", "--data", "1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	_, err = run(t, newPublishCommand(), "--url", url, "--apps", "/nonexistent",
		"--role", "pubsub", "--secret", strings.Repeat("0", 32), "--channel", "x", "--data", "1")
	if err == nil || !strings.Contains(err.Error(), "challenge_failed") {
		t.Fatalf("expected challenge failure, got %v", err)
	}
}

func TestAdminConnections(t *testing.T) {
	url, path := startBroker(t)
	out, err := run(t, newAdminCommand(), "connections", "--url", url, "--apps", path)
	if err != nil {
		t.Fatalf("admin connections: %v", err)
	}
	if !strings.Contains(out, "(self)") {
		t.Fatalf("output %q", out)
	}

	out, err = run(t, newAdminCommand(), "close", "--all", "--url", url, "--apps", path)
	if err != nil {
		t.Fatalf("admin close: %v", err)
	}
	if !strings.HasPrefix(out, "closed: ") {
		t.Fatalf("output %q", out)
	}

	if _, err := run(t, newAdminCommand(), "close", "--url", url, "--apps", path); err == nil {
		t.Fatal("expected error without --id or --all")
	}
}

func TestHealth(t *testing.T) {
	url, path := startBroker(t)
	out, err := run(t, newHealthCommand(), "--url", url, "--apps", path)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out, "ok: node cli-node version 0.0.1") {
		t.Fatalf("output %q", out)
	}
}

func TestMonitor(t *testing.T) {
	url, path := startBroker(t)
	out, err := run(t, newMonitorCommand(), "--url", url, "--apps", path, "--limit", "1")
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	var report struct {
		Node string `json:"node"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &report); err != nil || report.Node != "cli-node" {
		t.Fatalf("monitor output %q", out)
	}
}

func TestHTTPBase(t *testing.T) {
	cases := map[string]string{
		"ws://host:8080/v2":         "http://host:8080",
		"wss://host/v2?appkey=demo": "https://host",
	}
	for in, want := range cases {
		got, err := httpBase(in)
		if err != nil || got != want {
			t.Fatalf("httpBase(%q) = %q, %v", in, got, err)
		}
	}
}

func TestDecodeData(t *testing.T) {
	if v, ok := decodeData(`{"a":1}`).(map[string]interface{}); !ok || v["a"] != float64(1) {
		t.Fatalf("json not decoded")
	}
	if v := decodeData("plain"); v != "plain" {
		t.Fatalf("got %v", v)
	}
}

func TestURLFromEnv(t *testing.T) {
	t.Setenv("RTM_URL", "ws://example:1/v2")
	if urlFromEnv() != "ws://example:1/v2" {
		t.Fatal("RTM_URL ignored")
	}
	os.Unsetenv("RTM_URL")
	if urlFromEnv() != defaultURL {
		t.Fatal("default not used")
	}
}
