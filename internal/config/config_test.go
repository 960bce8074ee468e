package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-gruen/nexus/internal/constants"
	"github.com/m-gruen/nexus/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{"database": {"path": "/tmp/nexus.db"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, constants.DefaultRelaySendBuffer, cfg.Relay.SendBuffer)
	assert.Equal(t, constants.DefaultCachePageSize, cfg.Cache.PageSize)
	assert.Equal(t, constants.DefaultSendRatePerSecond, cfg.RateLimit.SendPerSecond)
	assert.Equal(t, constants.DefaultRetryBackoffMs, cfg.Retry.InitialBackoffMs)
}

func TestLoadConfig_ExplicitValuesKept(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"server": {"port": 9100},
		"database": {"driver": "postgres", "dsn": "postgres://localhost/nexus"},
		"logLevel": "debug"
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("NEXUS_PORT", "9200")
	t.Setenv("NEXUS_DB_PATH", "/tmp/override.db")
	t.Setenv("NEXUS_LOG_LEVEL", "warn")

	path := writeConfig(t, t.TempDir(), `{"database": {"path": "/tmp/nexus.db"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_Rejects(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"malformed json", `{not json`},
		{"missing sqlite path", `{"database": {"driver": "sqlite3"}}`},
		{"missing postgres dsn", `{"database": {"driver": "postgres"}}`},
		{"unknown driver", `{"database": {"driver": "oracle", "path": "x"}}`},
		{"bad port", `{"server": {"port": 70000}, "database": {"path": "/tmp/nexus.db"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, dir, tt.content)
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_PathTraversalRejected(t *testing.T) {
	_, err := LoadConfig("../somewhere/config.json")
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"database": {"path": "/tmp/nexus.db"}, "logLevel": "info"}`)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	reloaded := make(chan *models.Config, 2)
	w := NewWatcher(path, logger)
	w.OnReload(func(cfg *models.Config) { reloaded <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.Equal(t, "info", w.Config().LogLevel)

	require.NoError(t, os.WriteFile(path,
		[]byte(`{"database": {"path": "/tmp/nexus.db"}, "logLevel": "debug"}`), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "debug", w.Config().LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload not observed")
	}
}

func TestWatcher_KeepsLastGoodOnBrokenReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"database": {"path": "/tmp/nexus.db"}, "logLevel": "info"}`)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	w := NewWatcher(path, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0600))

	// The broken write must not replace the last good configuration.
	assert.Never(t, func() bool { return w.Config() == nil || w.Config().LogLevel != "info" },
		500*time.Millisecond, 50*time.Millisecond)
}
