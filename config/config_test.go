package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "visits.db", cfg.DBPath)
	assert.Equal(t, SourceStatic, cfg.MemberSource.Mode)
	assert.Equal(t, 200, cfg.Scan.PageSize)
	assert.Equal(t, 50, cfg.Scan.MaxPages)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9090"
db_path: "/tmp/test.db"
member_source:
  mode: redis
  redis_addr: "redis:6379"
  redis_db: 3
scan:
  page_size: 25
  max_pages: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, SourceRedis, cfg.MemberSource.Mode)
	assert.Equal(t, "redis:6379", cfg.MemberSource.RedisAddr)
	assert.Equal(t, 3, cfg.MemberSource.RedisDB)
	assert.Equal(t, 25, cfg.Scan.PageSize)
	assert.Equal(t, 10, cfg.Scan.MaxPages)
}

func TestLoad_PartialFileKeepsRemainingDefaults(t *testing.T) {
	path := writeConfig(t, `listen_addr: ":7070"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "visits.db", cfg.DBPath)
	assert.Equal(t, 200, cfg.Scan.PageSize)
}

func TestLoad_RejectsUnknownSourceMode(t *testing.T) {
	path := writeConfig(t, `
member_source:
  mode: carrier-pigeon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestLoad_CaspioModeRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, `
member_source:
  mode: caspio
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caspio_base_url")
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "listen_addr: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveScanBounds(t *testing.T) {
	path := writeConfig(t, `
scan:
  page_size: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page_size")
}
