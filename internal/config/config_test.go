package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default(Development)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Versioning.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Dedup.Window())
	assert.Equal(t, 500, cfg.Bulk.BatchSize)
	assert.Equal(t, "noop", cfg.Events.Provider)
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	base := `
store:
  driver: memory
versioning:
  max_retries: 7
  comparable_fields: [downloads, license]
dedup:
  window_millis: 30000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o644))
	t.Setenv("APP_ENV", "development")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Versioning.MaxRetries)
	assert.Equal(t, []string{"downloads", "license"}, cfg.Versioning.ComparableFields)
	assert.Equal(t, 30*time.Second, cfg.Dedup.Window())
	assert.Contains(t, cfg.LoadedFrom, filepath.Join(dir, "base.yaml"))
}

func TestEnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "development")
	t.Setenv("VERSIONING_MAX_RETRIES", "9")
	t.Setenv("DEDUP_WINDOW_MILLIS", "15000")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Versioning.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.Dedup.Window())
}

func TestValidateRejectsIncompleteDynamo(t *testing.T) {
	cfg := Default(Production)
	cfg.Store.Driver = "dynamodb"
	cfg.Store.TableName = ""

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Default(Development)
	cfg.Store.Driver = "postgres"

	assert.Error(t, cfg.Validate())
}
