package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rzbill/rtm/internal/apps"
	cfgpkg "github.com/rzbill/rtm/internal/config"
	rtmclient "github.com/rzbill/rtm/pkg/client"
)

const defaultURL = "ws://127.0.0.1:8080/v2"

// urlFromEnv returns the broker websocket URL from RTM_URL or a default.
func urlFromEnv() string {
	if u := os.Getenv("RTM_URL"); u != "" {
		return u
	}
	return defaultURL
}

// addConnFlags registers the connection flags shared by commands that talk
// to a broker.
func addConnFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", urlFromEnv(), "Broker websocket URL (env RTM_URL)")
	cmd.Flags().String("appkey", "", "App key (default: the reserved app of the command)")
	cmd.Flags().String("role", "", "Role name (default: taken from the apps file)")
	cmd.Flags().String("secret", "", "Role secret (default: taken from the apps file)")
	cmd.Flags().String("apps", cfgpkg.DefaultAppsPath(), "Apps file used for default credentials")
}

// connection resolves the flags of cmd. Missing credentials are read from
// the apps file, using the reserved app named by reserved (pubsub, admin...).
func connection(cmd *cobra.Command, reserved string) (rawURL, appkey string, creds rtmclient.Credentials, err error) {
	rawURL, _ = cmd.Flags().GetString("url")
	appkey, _ = cmd.Flags().GetString("appkey")
	creds.Role, _ = cmd.Flags().GetString("role")
	creds.Secret, _ = cmd.Flags().GetString("secret")
	if appkey == "" {
		appkey = "_" + reserved
	}
	if creds.Role != "" && creds.Secret != "" {
		return rawURL, appkey, creds, nil
	}
	path, _ := cmd.Flags().GetString("apps")
	cfg, err := apps.Load(path)
	if err != nil {
		return "", "", creds, fmt.Errorf("no --role/--secret given and %w", err)
	}
	if creds.Role == "" {
		creds.Role = cfg.DefaultRole(reserved)
	}
	if creds.Secret == "" {
		s, err := cfg.Secret(appkey, creds.Role)
		if err != nil {
			return "", "", creds, err
		}
		creds.Secret = string(s)
	}
	return rawURL, appkey, creds, nil
}

// withClient dials the broker and ensures the connection is closed.
func withClient(cmd *cobra.Command, reserved string, fn func(context.Context, *rtmclient.Client) error) error {
	rawURL, appkey, creds, err := connection(cmd, reserved)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := rtmclient.Dial(ctx, rawURL, appkey, creds, rtmclient.WithUserAgent("rtm-cli"))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return fn(ctx, c)
}

// decodeData returns data as JSON when it parses, else as a string.
func decodeData(data string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(data), &v); err == nil {
		return v
	}
	return data
}

// httpBase maps a websocket URL to the HTTP base of the same server.
func httpBase(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = ""
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
}
