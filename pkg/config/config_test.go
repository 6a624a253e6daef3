package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(append([]string{"--env-file", ""}, args...)))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "evaluation_", cfg.Storage.KeyPrefix)
	assert.Equal(t, "header", cfg.Auth.Mode)
	assert.Equal(t, "sub", cfg.Auth.JWT.IDClaim)
	assert.True(t, cfg.Review.RequireJustification)
	assert.True(t, cfg.Review.RequireEvidenceVerification)
	assert.True(t, cfg.Lifecycle.AllowDeleteAfterSubmit)
	assert.Equal(t, int64(500*1024), cfg.Evidence.MaxBytes)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Empty(t, cfg.Telemetry.Endpoint)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "assess.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  listen: ":9000"
storage:
  backend: redis
  redis_addr: "cache:6379"
review:
  require_justification: false
cache:
  ttl: 30s
`), 0o600))

	t.Setenv("ASSESS_STORAGE_REDIS_ADDR", "env-redis:6379")
	t.Setenv("ASSESS_EVIDENCE_MAX_BYTES", "1024")

	cfg, err := Load(newFlags(t, "--config", file, "--log-level", "debug"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Listen, "file over default")
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "env-redis:6379", cfg.Storage.RedisAddr, "env over file")
	assert.False(t, cfg.Review.RequireJustification)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, int64(1024), cfg.Evidence.MaxBytes)
	assert.Equal(t, "debug", cfg.Log.Level, "flag over default")
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	t.Setenv("ASSESS_SERVER_LISTEN", ":7000")
	cfg, err := Load(newFlags(t, "--listen", ":7100"))
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Server.Listen)

	cfg, err = Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Listen)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("ASSESS_AUTH_MODE=jwt\nASSESS_AUTH_JWT_ROLE_CLAIM=realm.role\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("ASSESS_AUTH_MODE")
		os.Unsetenv("ASSESS_AUTH_JWT_ROLE_CLAIM")
	})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--env-file", envFile}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "jwt", cfg.Auth.Mode)
	assert.Equal(t, "realm.role", cfg.JWT().RoleClaim)
}

func TestLoad_MissingFiles(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}))
	_, err := Load(fs)
	require.NoError(t, err, "a missing .env file is not an error")

	_, err = Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "absent.yaml")))
	require.Error(t, err)
}

func TestWarnings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{"header mode", nil, []string{"X-User-*"}},
		{"jwt without key", map[string]string{"ASSESS_AUTH_MODE": "jwt"}, []string{"not verified"}},
		{"jwt with key", map[string]string{"ASSESS_AUTH_MODE": "jwt", "ASSESS_AUTH_JWT_PUBLIC_KEY_PATH": "/etc/keys/jwt.pem"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(newFlags(t))
			require.NoError(t, err)
			got := cfg.Warnings()
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.Contains(t, got[i], w)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"backend", map[string]string{"ASSESS_STORAGE_BACKEND": "s3"}, "storage.backend"},
		{"auth mode", map[string]string{"ASSESS_AUTH_MODE": "ldap"}, "auth.mode"},
		{"evidence", map[string]string{"ASSESS_EVIDENCE_MAX_BYTES": "0"}, "evidence.max_bytes"},
		{"retention", map[string]string{"ASSESS_AUDIT_RETENTION_DAYS": "-1"}, "audit.retention_days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(newFlags(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
