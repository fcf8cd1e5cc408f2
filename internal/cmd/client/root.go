package client

import (
	"github.com/spf13/cobra"
)

// Commands returns the client command set: kv and pub/sub operations,
// admin, health and the credential store helpers.
func Commands() []*cobra.Command {
	return []*cobra.Command{
		newInitCommand(),
		newSecretCommand(),
		newPublishCommand(),
		newSubscribeCommand(),
		newReadCommand(),
		newWriteCommand(),
		newDeleteCommand(),
		newAdminCommand(),
		newHealthCommand(),
		newMonitorCommand(),
	}
}

// NewRoot constructs a standalone root holding every client command.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "rtm",
		Short: "rtm client commands",
	}
	root.AddCommand(Commands()...)
	return root
}
