package apps

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownApp  = errors.New("apps: unknown app")
	ErrUnknownRole = errors.New("apps: unknown role")
	ErrNoApps      = errors.New("apps: no apps present in config")
)

// Reserved apps created by GenerateDefault.
const (
	StatsApp  = "_stats"
	HealthApp = "_health"
	AdminApp  = "_admin"
	PubSubApp = "_pubsub"
)

// Permission names.
const (
	PermPublish     = "publish"
	PermSubscribe   = "subscribe"
	PermUnsubscribe = "unsubscribe"
	PermRead        = "read"
	PermWrite       = "write"
	PermDelete      = "delete"
	PermAdmin       = "admin"
)

// AllPermissions lists every permission, in the order written by GenerateDefault.
var AllPermissions = []string{PermSubscribe, PermUnsubscribe, PermPublish, PermAdmin, PermRead, PermWrite, PermDelete}

const (
	defaultBatchPublishSize = -1
	defaultChannelMaxLength = 1000
)

// Role is one credential scope of an app.
type Role struct {
	Secret      string   `yaml:"secret"`
	Permissions []string `yaml:"permissions"`
}

// App is one tenant.
type App struct {
	BatchPublish   bool             `yaml:"batch_publish,omitempty"`
	Roles          map[string]*Role `yaml:"roles"`
	ChannelBuilder map[string]*Rule `yaml:"channel_builder,omitempty"`
}

// File is the on-disk layout of the credential store.
type File struct {
	Apps             map[string]*App `yaml:"apps"`
	BatchPublishSize *int            `yaml:"batch_publish_size,omitempty"`
	ChannelMaxLength *int            `yaml:"channel_max_length,omitempty"`
}

// Config is the loaded credential store. It is read-only once built.
type Config struct {
	path     string
	file     File
	builders map[string]*ChannelBuilder
}

// Load reads and validates the YAML credential store at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("apps config file does not exist: %q, use `rtm init` to create one: %w", path, err)
		}
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes and validates YAML content.
func Parse(data []byte) (*Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("apps: decode: %w", err)
	}
	cfg := &Config{file: f}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.buildRules()
	return cfg, nil
}

func (c *Config) buildRules() {
	c.builders = make(map[string]*ChannelBuilder)
	for name, app := range c.file.Apps {
		if len(app.ChannelBuilder) > 0 {
			c.builders[name] = NewChannelBuilder(app.ChannelBuilder)
		}
	}
}

// Validate checks that apps exist and every role carries a secret.
func (c *Config) Validate() error {
	if len(c.file.Apps) == 0 {
		return ErrNoApps
	}
	for name, app := range c.file.Apps {
		if app == nil {
			return fmt.Errorf("apps: app %q is empty", name)
		}
		for roleName, role := range app.Roles {
			if role == nil {
				return fmt.Errorf("apps: role %q of app %q is not a mapping", roleName, name)
			}
			if role.Secret == "" {
				return fmt.Errorf("apps: role %q of app %q is missing a secret", roleName, name)
			}
		}
	}
	return nil
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string { return c.path }

// AppKeys lists configured apps, sorted.
func (c *Config) AppKeys() []string {
	keys := make([]string, 0, len(c.file.Apps))
	for k := range c.file.Apps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) IsAppKeyValid(appkey string) bool {
	_, ok := c.file.Apps[appkey]
	return ok
}

func (c *Config) role(appkey, role string) (*Role, error) {
	app, ok := c.file.Apps[appkey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownApp, appkey)
	}
	r, ok := app.Roles[role]
	if !ok || r == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return r, nil
}

// Secret returns the secret of role in appkey.
func (c *Config) Secret(appkey, role string) ([]byte, error) {
	r, err := c.role(appkey, role)
	if err != nil {
		return nil, err
	}
	return []byte(r.Secret), nil
}

// Permissions returns the permission names granted to role in appkey.
func (c *Config) Permissions(appkey, role string) ([]string, error) {
	r, err := c.role(appkey, role)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), r.Permissions...), nil
}

// BatchPublishEnabled reports whether publishes of appkey are batched.
func (c *Config) BatchPublishEnabled(appkey string) bool {
	app, ok := c.file.Apps[appkey]
	return ok && app.BatchPublish
}

// BatchPublishSize returns the configured batch size; <= 0 selects the
// publisher default.
func (c *Config) BatchPublishSize() int {
	if c.file.BatchPublishSize == nil {
		return defaultBatchPublishSize
	}
	return *c.file.BatchPublishSize
}

// ChannelMaxLength is the trim length applied to published channels.
func (c *Config) ChannelMaxLength() int {
	if c.file.ChannelMaxLength == nil {
		return defaultChannelMaxLength
	}
	return *c.file.ChannelMaxLength
}

// ChannelRules returns the channel builder rules of appkey.
func (c *Config) ChannelRules(appkey string) map[string]*Rule {
	app, ok := c.file.Apps[appkey]
	if !ok {
		return nil
	}
	return app.ChannelBuilder
}

// ChannelBuilder returns the compiled rules of appkey, or nil.
func (c *Config) ChannelBuilder(appkey string) *ChannelBuilder {
	return c.builders[appkey]
}

// Warnings lists invalid channel builder rules, per app.
func (c *Config) Warnings() []string {
	var out []string
	for _, app := range c.AppKeys() {
		if b := c.builders[app]; b != nil {
			for _, w := range b.Warnings() {
				out = append(out, app+": "+w)
			}
		}
	}
	return out
}

// DefaultRole returns the first role (by name) of the reserved app "_"+app.
func (c *Config) DefaultRole(app string) string {
	a, ok := c.file.Apps["_"+strings.TrimPrefix(app, "_")]
	if !ok || len(a.Roles) == 0 {
		return ""
	}
	names := make([]string, 0, len(a.Roles))
	for n := range a.Roles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names[0]
}

// DefaultSecret returns the secret of DefaultRole(app).
func (c *Config) DefaultSecret(app string) string {
	role := c.DefaultRole(app)
	if role == "" {
		return ""
	}
	return c.file.Apps["_"+strings.TrimPrefix(app, "_")].Roles[role].Secret
}

// Marshal renders the config back to YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(&c.file)
}
