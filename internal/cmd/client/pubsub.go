package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/rtm/internal/apps"
	rtmclient "github.com/rzbill/rtm/pkg/client"
)

var reservedPubSub = apps.PubSubApp[1:]

// newPublishCommand constructs the `publish` command.
func newPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a message to one or more channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			channels, _ := cmd.Flags().GetStringSlice("channel")
			data, _ := cmd.Flags().GetString("data")
			if len(channels) == 0 {
				return errors.New("--channel is required")
			}
			return withClient(cmd, reservedPubSub, func(ctx context.Context, c *rtmclient.Client) error {
				var (
					acked []string
					err   error
				)
				if len(channels) == 1 {
					acked, err = c.Publish(ctx, channels[0], decodeData(data))
				} else {
					acked, err = c.PublishMany(ctx, channels, decodeData(data))
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"channels": acked})
			})
		},
	}
	addConnFlags(cmd)
	cmd.Flags().StringSlice("channel", nil, "Channel (repeat or comma separate for several)")
	cmd.Flags().String("data", "", "Message: JSON, or taken as a string")
	return cmd
}

// newSubscribeCommand constructs the `subscribe` command. Each push is
// printed as one JSON line.
func newSubscribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to a channel and print pushed messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			channel, _ := cmd.Flags().GetString("channel")
			opts := rtmclient.SubscribeOptions{}
			opts.Filter, _ = cmd.Flags().GetString("filter")
			opts.Position, _ = cmd.Flags().GetString("position")
			opts.SubscriptionID, _ = cmd.Flags().GetString("id")
			opts.BatchSize, _ = cmd.Flags().GetInt("batch-size")
			opts.ResumeFromPositionID, _ = cmd.Flags().GetString("resume")
			limit, _ := cmd.Flags().GetInt("limit")
			if channel == "" && opts.Filter == "" && opts.SubscriptionID == "" {
				return errors.New("one of --channel, --filter or --id is required")
			}

			return withClient(cmd, reservedPubSub, func(ctx context.Context, c *rtmclient.Client) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				seen := 0
				sub, err := c.Subscribe(ctx, channel, opts, func(ctx context.Context, s *rtmclient.Subscription, m rtmclient.Message) error {
					for _, raw := range m.Messages {
						_ = enc.Encode(map[string]interface{}{"position": m.Position, "message": raw})
						seen++
					}
					if opts.ResumeFromPositionID != "" {
						if err := s.SavePosition(ctx, m.Position); err != nil {
							return err
						}
					}
					if limit > 0 && seen >= limit {
						return rtmclient.ErrStop
					}
					return nil
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "subscribed %s at %s on %s\n", sub.ID(), sub.Position, sub.Node)
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
	cmd.Flags().String("channel", "", "Channel")
	cmd.Flags().String("filter", "", "SELECT ... FROM <channel> [WHERE ...] filter")
	cmd.Flags().String("position", "", "Start position <ms>-<seq> (default: latest)")
	cmd.Flags().String("id", "", "Subscription id (default: the channel)")
	cmd.Flags().Int("batch-size", 0, "Messages per push")
	cmd.Flags().String("resume", "", "KV channel storing the last processed position")
	cmd.Flags().Int("limit", 0, "Stop after N messages (0 = infinite)")
	return cmd
}

// newReadCommand constructs the `read` command.
func newReadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read the value of a kv channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			channel, _ := cmd.Flags().GetString("channel")
			position, _ := cmd.Flags().GetString("position")
			return withClient(cmd, reservedPubSub, func(ctx context.Context, c *rtmclient.Client) error {
				v, err := c.Read(ctx, channel, position)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"message": v})
			})
		},
	}
	addConnFlags(cmd)
	cmd.Flags().String("channel", "", "Channel")
	cmd.Flags().String("position", "", "Position to read (default: newest)")
	return cmd
}

// newWriteCommand constructs the `write` command.
func newWriteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Replace the value of a kv channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			channel, _ := cmd.Flags().GetString("channel")
			data, _ := cmd.Flags().GetString("data")
			return withClient(cmd, reservedPubSub, func(ctx context.Context, c *rtmclient.Client) error {
				pos, err := c.Write(ctx, channel, decodeData(data))
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"stream": pos})
			})
		},
	}
	addConnFlags(cmd)
	cmd.Flags().String("channel", "", "Channel")
	cmd.Flags().String("data", "", "Value: JSON, or taken as a string")
	return cmd
}

// newDeleteCommand constructs the `delete` command.
func newDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			channel, _ := cmd.Flags().GetString("channel")
			return withClient(cmd, reservedPubSub, func(ctx context.Context, c *rtmclient.Client) error {
				if err := c.Delete(ctx, channel); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted:", channel)
				return nil
			})
		},
	}
	addConnFlags(cmd)
	cmd.Flags().String("channel", "", "Channel")
	return cmd
}
