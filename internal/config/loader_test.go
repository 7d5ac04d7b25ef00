package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rpattn/afsync/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "files", cfg.Problems.Backend)
	assert.Equal(t, notify.BackendNone, cfg.Notify.Backend)
	assert.Equal(t, filepath.Join("data", "problems.db"), cfg.BadgerDir())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
database:
  host: db.internal
  dbname: directory
data_dir: /var/lib/afsync
problems:
  backend: badger
notify:
  backend: smtp
  smtp:
    host: mail.internal
    from: sync@example.org
    to: [admin@example.org]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	t.Setenv("AFSYNC_DATABASE_PORT", "6543")
	t.Setenv("AFSYNC_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.File)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "directory", cfg.Database.DBName)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "badger", cfg.Problems.Backend)
	assert.Equal(t, "/var/lib/afsync/problems.db", cfg.BadgerDir())
	assert.Equal(t, []string{"admin@example.org"}, cfg.Notify.SMTP.To)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("AFSYNC_PROBLEMS_BACKEND", "redis")
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Backend")
}

func TestValidateSMTPNeedsRecipients(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	cfg.Notify.Backend = notify.BackendSMTP
	cfg.Notify.SMTP.Host = "mail.internal"
	assert.Error(t, Validate(cfg))
}
