package client

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rzbill/rtm/internal/apps"
	"github.com/rzbill/rtm/internal/auth"
	cfgpkg "github.com/rzbill/rtm/internal/config"
)

// newInitCommand constructs the `init` command, which writes a credential
// store holding the reserved apps.
func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default apps file with fresh secrets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("apps")
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			cfg, err := apps.GenerateDefault(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s with apps %v\n", path, cfg.AppKeys())
			return nil
		},
	}
	cmd.Flags().String("apps", cfgpkg.DefaultAppsPath(), "Apps file to write")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

// newSecretCommand constructs the `secret` command.
func newSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Print a new random role secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := auth.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
}
