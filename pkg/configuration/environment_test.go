package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "ORGCHART_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "cmd", "server")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)

	_ = os.Unsetenv("ORGCHART_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("ORGCHART_TEST_ENV_LOAD"))
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "major", c.Org.VersionBump)
	require.Equal(t, int64(10<<20), c.Org.ImportMaxBytes)
	require.Equal(t, []string{".xlsx", ".xls", ".csv", ".json"}, c.Org.Extensions())
	require.Equal(t, "localhost:3200", c.SocketAddress)
	require.NotNil(t, c.Logger())
}

func TestLoad_RejectsInvalidVersionBump(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ORG_VERSION_BUMP", "patch")

	_, err := Load()
	require.ErrorContains(t, err, "ORG_VERSION_BUMP")
}

func TestLoad_NormalizesCacheBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ORG_CACHE_BACKEND", " Redis ")
	t.Setenv("ORG_IMPORT_EXTENSIONS", "XLSX, csv")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "redis", c.Org.CacheBackend)
	require.Equal(t, []string{".xlsx", ".csv"}, c.Org.Extensions())
}

func TestLoad_RateLimitAndCors(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "redis://cache:6379/1", c.RateLimit.RedisURL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins())

	t.Setenv("RATE_LIMIT_STORAGE", "disk")
	_, err = Load()
	require.ErrorContains(t, err, "RATE_LIMIT_STORAGE")
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
