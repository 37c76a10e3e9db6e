package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaultsAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: memory
auth:
  jwt_secret: file-secret
admin:
  allowedIPs: ["10.0.0.0/8"]
`)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("ADMIN_TOTP_SECRET", "JBSWY3DPEHPK3PXP")
	t.Setenv("POOL_ALLOW_CREDIT", "1")

	require.NoError(t, LoadConfig(path))
	cfg := AppConfig
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", cfg.Admin.TOTPSecret)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Admin.AllowedIPs)
	assert.True(t, cfg.Pool.AllowCredit)
	assert.Equal(t, 100, cfg.Events.BatchSize)
	assert.Equal(t, "shieldpool.events", cfg.NATS.SubjectPrefix)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "s"
	assert.Error(t, cfg.Validate(), "postgres needs a dsn")

	cfg.Database.DSN = "postgres://localhost/shieldpool"
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg.Database.Driver = "memory"
	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
}
