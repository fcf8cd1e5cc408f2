package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rzbill/rtm/internal/apps"
	"github.com/rzbill/rtm/internal/stats"
	rtmclient "github.com/rzbill/rtm/pkg/client"
)

var (
	reservedHealth = apps.HealthApp[1:]
	reservedStats  = stats.App[1:]
)

// newHealthCommand constructs the `health` command: it checks readiness
// over HTTP, then round-trips a message through a fresh channel.
func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the broker and its log stores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			rawURL, _ := cmd.Flags().GetString("url")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			base, err := httpBase(rawURL)
			if err != nil {
				return err
			}
			if err := checkReady(ctx, base); err != nil {
				return err
			}

			cmd.SetContext(ctx)
			return withClient(cmd, reservedHealth, func(ctx context.Context, c *rtmclient.Client) error {
				if err := roundTrip(ctx, c); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: node %s version %s\n", c.Node(), c.Version())
				return nil
			})
		},
	}
	addConnFlags(cmd)
	cmd.Flags().Duration("timeout", 5*time.Second, "Overall deadline")
	return cmd
}

func checkReady(ctx context.Context, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("readiness: %s: %s", resp.Status, body)
	}
	return nil
}

// roundTrip subscribes to a random channel, publishes a token on it and
// waits for the token to come back.
func roundTrip(ctx context.Context, c *rtmclient.Client) error {
	channel := "health-" + uuid.NewString()
	token := uuid.NewString()
	got := make(chan struct{})
	sub, err := c.Subscribe(ctx, channel, rtmclient.SubscribeOptions{}, func(_ context.Context, _ *rtmclient.Subscription, m rtmclient.Message) error {
		for _, raw := range m.Messages {
			var s string
			if json.Unmarshal(raw, &s) == nil && s == token {
				close(got)
				return rtmclient.ErrStop
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := c.Publish(ctx, channel, token); err != nil {
		return err
	}
	select {
	case <-got:
	case <-ctx.Done():
		return fmt.Errorf("health: message not delivered: %w", ctx.Err())
	}
	<-sub.Done()
	return c.Delete(ctx, channel)
}

// newMonitorCommand constructs the `monitor` command, which prints the
// periodic stats reports of every broker node.
func newMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print broker stats reports as they are published",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withClient(cmd, reservedStats, func(ctx context.Context, c *rtmclient.Client) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				seen := 0
				sub, err := c.Subscribe(ctx, stats.Channel, rtmclient.SubscribeOptions{
					SubscriptionID: "monitor-" + uuid.NewString(),
				}, func(_ context.Context, _ *rtmclient.Subscription, m rtmclient.Message) error {
					for _, raw := range m.Messages {
						_ = enc.Encode(raw)
						seen++
					}
					if limit > 0 && seen >= limit {
						return rtmclient.ErrStop
					}
					return nil
				})
				if err != nil {
					return err
				}
				select {
				case <-sub.Done():
					return sub.Err()
				case <-c.Done():
					return c.Err()
				case <-ctx.Done():
					return nil
				}
			})
		},
	}
	addConnFlags(cmd)
	cmd.Flags().Int("limit", 0, "Stop after N reports (0 = infinite)")
	return cmd
}
