package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/rtm/internal/apps"
	rtmclient "github.com/rzbill/rtm/pkg/client"
)

var reservedAdmin = apps.AdminApp[1:]

// newAdminCommand constructs the `admin` command group.
func newAdminCommand() *cobra.Command {
	adminCmd := &cobra.Command{Use: "admin", Short: "Connection administration"}

	connsCmd := &cobra.Command{
		Use:   "connections",
		Short: "List connections of the broker node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, reservedAdmin, func(ctx context.Context, c *rtmclient.Client) error {
				ids, err := c.AdminGetConnections(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					marker := ""
					if id == c.ConnectionID() {
						marker = " (self)"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", id, marker)
				}
				return nil
			})
		},
	}
	addConnFlags(connsCmd)

	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Close one connection, or all with --all",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			all, _ := cmd.Flags().GetBool("all")
			if id == "" && !all {
				return errors.New("--id or --all is required")
			}
			return withClient(cmd, reservedAdmin, func(ctx context.Context, c *rtmclient.Client) error {
				if all {
					n, err := c.AdminCloseAllConnections(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "closed: %d\n", n)
					return nil
				}
				if err := c.AdminCloseConnection(ctx, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "closed:", id)
				return nil
			})
		},
	}
	addConnFlags(closeCmd)
	closeCmd.Flags().String("id", "", "Connection id")
	closeCmd.Flags().Bool("all", false, "Close every connection but this one")

	adminCmd.AddCommand(connsCmd, closeCmd)
	return adminCmd
}
