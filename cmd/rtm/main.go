package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/rtm/internal/cmd/client"
	serverrun "github.com/rzbill/rtm/internal/cmd/server"
	cfgpkg "github.com/rzbill/rtm/internal/config"
	"github.com/rzbill/rtm/internal/version"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

func main() {
	// Respect RTM_LOG_LEVEL for CLI output; the server builds its own logger
	// from config.
	parsed, err := logpkg.ParseLevel(os.Getenv("RTM_LOG_LEVEL"))
	if err != nil {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	rootCmd := &cobra.Command{
		Use:           "rtm",
		Short:         "rtm realtime pub/sub broker",
		Long:          "rtm is a websocket pub/sub broker with a KV API, backed by append-only channel logs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServerCommand(), newLogNodeCommand(), newVersionCommand())
	rootCmd.AddCommand(clientcmd.Commands()...)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the broker (websocket on /v2)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := cfgpkg.New()
			flags := map[string]string{
				"server.host":              "host",
				"server.port":              "port",
				"server.max_subscriptions": "max-subscriptions",
				"server.idle_timeout":      "idle-timeout",
				"server.enable_stats":      "enable-stats",
				"server.stats_interval":    "stats-interval",
				"server.node":              "node",
				"store.endpoints":          "endpoint",
				"store.data_dir":           "data-dir",
				"store.fsync":              "fsync",
				"store.fsync_interval":     "fsync-interval",
				"apps.path":                "apps",
				"log.level":                "log-level",
				"log.format":               "log-format",
			}
			for key, name := range flags {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("config: read %s: %w", path, err)
				}
			}
			cfg, err := cfgpkg.Decode(v)
			if err != nil {
				return err
			}
			if err := serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	d := cfgpkg.Default()
	f := startCmd.Flags()
	f.String("config", os.Getenv("RTM_CONFIG"), "Config file (yaml, json or toml)")
	f.String("host", d.Server.Host, "Listen host")
	f.Int("port", d.Server.Port, "Listen port")
	f.Int("max-subscriptions", d.Server.MaxSubscriptions, "Subscriptions per connection (-1 = unlimited)")
	f.Duration("idle-timeout", d.Server.IdleTimeout, "Close connections idle for this long (0 = never)")
	f.Bool("enable-stats", d.Server.EnableStats, "Publish stats reports on _stats /stats")
	f.Duration("stats-interval", d.Server.StatsInterval, "Stats report period")
	f.String("node", "", "Node name (default: hostname)")
	f.StringSlice("endpoint", nil, "Log store endpoint: pebble://dir, grpc://host:port or redis://host:port (repeatable)")
	f.String("data-dir", d.Store.DataDir, "Data directory of the default embedded store")
	f.String("fsync", d.Store.Fsync, "Fsync mode of embedded stores: always|interval|never")
	f.Duration("fsync-interval", d.Store.FsyncInterval, "Group-commit window when --fsync=interval")
	f.String("apps", d.Apps.Path, "Apps (credential store) file")
	f.String("log-level", d.Log.Level, "Log level: debug|info|warn|error")
	f.String("log-format", d.Log.Format, "Log format: text|json")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

func newLogNodeCommand() *cobra.Command {
	nodeCmd := &cobra.Command{Use: "lognode", Short: "Standalone log store node"}
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Serve a pebble log store over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			addr, _ := cmd.Flags().GetString("grpc")
			fsync, _ := cmd.Flags().GetString("fsync")
			interval, _ := cmd.Flags().GetDuration("fsync-interval")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			mode, err := cfgpkg.StoreConfig{Fsync: fsync}.FsyncMode()
			if err != nil {
				return err
			}
			logger, err := serverrun.NewLogger(cfgpkg.LogConfig{Level: logLevel, Format: logFormat})
			if err != nil {
				return err
			}
			logpkg.RedirectStdLog(logger)
			return serverrun.RunLogNode(cmd.Context(), serverrun.LogNodeOptions{
				DataDir:       dataDir,
				GRPCAddr:      addr,
				Fsync:         mode,
				FsyncInterval: interval,
				Logger:        logger,
			})
		},
	}
	startCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	startCmd.Flags().String("grpc", ":50051", "gRPC listen address")
	startCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	startCmd.Flags().Duration("fsync-interval", 5*time.Millisecond, "Group-commit window when --fsync=interval")
	startCmd.Flags().String("log-level", "info", "Log level: debug|info|warn|error")
	startCmd.Flags().String("log-format", "text", "Log format: text|json")
	nodeCmd.AddCommand(startCmd)
	return nodeCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
}
