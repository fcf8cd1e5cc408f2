package apps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
apps:
  chat:
    batch_publish: true
    roles:
      writer:
        secret: a0B1c2D3e4F5a6B7c8D9e0F1a2B3c4D5
        permissions: [publish, read]
      admin:
        secret: ffffffffffffffffffffffffffffffff
        permissions: [admin, subscribe, publish]
    channel_builder:
      fps:
        kind: compose2
        field1: device.game
        field2: id
        separator: _
      everything:
        kind: add
        channel: foo
  _health:
    roles:
      health:
        secret: 00000000000000000000000000000000
        permissions: [publish, subscribe]
channel_max_length: 50
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadAndAccessors(t *testing.T) {
	cfg, err := Load(writeFile(t, sampleYAML))
	require.NoError(t, err)

	assert.True(t, cfg.IsAppKeyValid("chat"))
	assert.False(t, cfg.IsAppKeyValid("nope"))

	secret, err := cfg.Secret("chat", "writer")
	require.NoError(t, err)
	assert.Equal(t, "a0B1c2D3e4F5a6B7c8D9e0F1a2B3c4D5", string(secret))

	perms, err := cfg.Permissions("chat", "writer")
	require.NoError(t, err)
	assert.Equal(t, []string{"publish", "read"}, perms)

	_, err = cfg.Secret("nope", "writer")
	assert.True(t, errors.Is(err, ErrUnknownApp))
	_, err = cfg.Secret("chat", "ghost")
	assert.True(t, errors.Is(err, ErrUnknownRole))

	assert.True(t, cfg.BatchPublishEnabled("chat"))
	assert.False(t, cfg.BatchPublishEnabled("_health"))
	assert.Equal(t, -1, cfg.BatchPublishSize())
	assert.Equal(t, 50, cfg.ChannelMaxLength())

	assert.Equal(t, "health", cfg.DefaultRole("health"))
	assert.Equal(t, "00000000000000000000000000000000", cfg.DefaultSecret("health"))
	assert.Equal(t, "", cfg.DefaultRole("stats"))
}

func TestValidateRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no apps", "channel_max_length: 3\n"},
		{"role without secret", "apps:\n  a:\n    roles:\n      r:\n        permissions: [publish]\n"},
		{"empty role", "apps:\n  a:\n    roles:\n      r:\n"},
		{"role not a mapping", "apps:\n  a:\n    roles:\n      r: [1, 2]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGenerateDefault(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "apps.yaml")
	gen, err := GenerateDefault(p)
	require.NoError(t, err)

	cfg, err := Load(p)
	require.NoError(t, err)
	for _, app := range []string{StatsApp, HealthApp, AdminApp, PubSubApp} {
		role := app[1:]
		perms, err := cfg.Permissions(app, role)
		require.NoError(t, err, app)
		assert.ElementsMatch(t, AllPermissions, perms)
		s, err := cfg.Secret(app, role)
		require.NoError(t, err)
		assert.Len(t, s, 32)
		assert.Equal(t, gen.DefaultSecret(role), string(s))
	}
}

func TestInlineContentRoundTrip(t *testing.T) {
	enc, err := EncodeContent([]byte(sampleYAML))
	require.NoError(t, err)
	cfg, err := Resolve("/does/not/matter", enc)
	require.NoError(t, err)
	assert.True(t, cfg.IsAppKeyValid("chat"))

	_, err = LoadContent("%%%")
	assert.Error(t, err)
	_, err = LoadContent("aGVsbG8=") // base64 of "hello", not gzip
	assert.Error(t, err)
}
