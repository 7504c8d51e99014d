package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("DATABASE_URL", "")
	SetDefaults()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, DefaultDSN, cfg.DSN)
	assert.Equal(t, SplitterPlain, cfg.Splitter)
	assert.False(t, cfg.Strict)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce)
}

func TestLoadFallsBackToDatabaseURL(t *testing.T) {
	resetViper(t)
	SetDefaults()
	t.Setenv("DATABASE_URL", "postgres://localhost/app")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/app", cfg.DSN)

	viper.Set("dsn", "./explicit.db")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "./explicit.db", cfg.DSN)
}

func TestLoadRejectsUnknownSplitter(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.Set("splitter", "clever")

	_, err := Load()
	assert.ErrorContains(t, err, "unknown splitter")
}

func TestLoadRejectsStrictQuoted(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.Set("splitter", SplitterQuoted)
	viper.Set("strict", true)

	_, err := Load()
	assert.ErrorContains(t, err, "strict mode requires the plain splitter")
}

func TestLoadRejectsBadDebounce(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.Set("watch.debounce", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "watch.debounce")
}

func TestInitReadsConfigFileAndDotEnv(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("SQLRUN_LOG_LEVEL") })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sqlrun.yaml"),
		[]byte("driver: MySQL\ndsn: user:pass@/app\nsplitter: quoted\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SQLRUN_LOG_LEVEL=debug\n"), 0o644))

	require.NoError(t, Init())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Driver)
	assert.Equal(t, "user:pass@/app", cfg.DSN)
	assert.Equal(t, SplitterQuoted, cfg.Splitter)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestInitWithoutConfigFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	assert.NoError(t, Init())
}
