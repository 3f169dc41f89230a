package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "env-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Auth.Secret)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTTL.Std())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9000
auth:
  secret: file-secret
  access_ttl: 5m
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port, "environment wins over file")
	assert.Equal(t, "file-secret", cfg.Auth.Secret)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL.Std())
	assert.Equal(t, "debug", cfg.Logging.Level)
}
