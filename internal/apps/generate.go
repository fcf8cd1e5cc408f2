package apps

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rzbill/rtm/internal/auth"
)

// GenerateDefault writes a credential store holding the reserved apps, each
// with one all-permission role named after the app without its underscore.
func GenerateDefault(path string) (*Config, error) {
	f := File{Apps: make(map[string]*App)}
	for _, app := range []string{StatsApp, HealthApp, AdminApp, PubSubApp} {
		secret, err := auth.GenerateSecret()
		if err != nil {
			return nil, err
		}
		f.Apps[app] = &App{Roles: map[string]*Role{
			app[1:]: {Secret: secret, Permissions: append([]string(nil), AllPermissions...)},
		}}
	}
	cfg := &Config{path: path, file: f}
	data, err := cfg.Marshal()
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("apps: write %s: %w", path, err)
	}
	return cfg, nil
}
