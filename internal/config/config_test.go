package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(PathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, database.ModePerRequest, cfg.Database.Mode)
	assert.Equal(t, 600*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, 180*time.Second, cfg.Database.HeavyStatementTimeout)
	assert.Equal(t, "256MB", cfg.Database.WorkMem)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "https://sims-dashboard-saude.vercel.app", cfg.Auth.FrontendURL)
	assert.False(t, cfg.Storage.Enabled())
	assert.False(t, cfg.Server.DebugEndpoints)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9090"
  debug_endpoints: true
database:
  mode: pool
  work_mem: 64MB
  heavy_statement_timeout: 90s
logging:
  level: debug
`)
	t.Setenv("DATABASE_URL", "postgresql://u:p@db:5432/postgres")
	t.Setenv("DB_WORK_MEM", "128MB")
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_KEY", "anon")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Server.DebugEndpoints)
	assert.Equal(t, database.ModePool, cfg.Database.Mode)
	assert.Equal(t, "128MB", cfg.Database.WorkMem)
	assert.Equal(t, 90*time.Second, cfg.Database.HeavyStatementTimeout)
	assert.Equal(t, "postgresql://u:p@db:5432/postgres", cfg.Database.URL)
	assert.Equal(t, "https://abc.supabase.co", cfg.Identity.URL)
	assert.Equal(t, "anon", cfg.Identity.Key)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Storage.Enabled())
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, "saudedash-exports", cfg.Storage.Bucket)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	t.Setenv(PathEnvVar, writeFile(t, "server:\n  addr: \":7000\"\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad mode", "database:\n  mode: shared\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"broken yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.True(t, errs.IsConfig(err), "got %v", err)
		})
	}
}

func TestDump_MasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgresql://u:hunter2@db/postgres"
	cfg.Identity.Key = "service-key"

	out, err := Dump(cfg)
	require.NoError(t, err)

	s := string(out)
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "service-key")
	assert.Contains(t, s, redacted)
	assert.Contains(t, s, "statement_timeout: 10m0s")
	assert.Contains(t, s, "work_mem: 256MB")
}
