package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/m-gruen/nexus/internal/constants"
	"github.com/m-gruen/nexus/internal/models"
)

var (
	ErrMissingDatabase = models.ConfigError{Message: "missing database configuration: sqlite path or postgres dsn required"}
	ErrMissingCacheDir = models.ConfigError{Message: "missing cache directory"}
)

func LoadConfig(path string) (*models.Config, error) {
	if strings.Contains(path, "..") {
		return nil, fmt.Errorf("invalid config path: must not contain '..'")
	}

	file, err := os.ReadFile(path) // #nosec G304 - path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = constants.DefaultReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = constants.DefaultWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = constants.DefaultIdleTimeoutSec
	}
	if c.Database.Driver == "" {
		c.Database.Driver = constants.DefaultDatabaseDriver
	}
	if c.Relay.SendBuffer == 0 {
		c.Relay.SendBuffer = constants.DefaultRelaySendBuffer
	}
	if c.Relay.WriteTimeoutMs == 0 {
		c.Relay.WriteTimeoutMs = constants.DefaultRelayWriteTimeoutMs
	}
	if c.Cache.PageSize == 0 {
		c.Cache.PageSize = constants.DefaultCachePageSize
	}
	if c.Cache.MaxMessagesPerConversation == 0 {
		c.Cache.MaxMessagesPerConversation = constants.DefaultCacheMaxMessages
	}
	if c.RateLimit.SendPerSecond == 0 {
		c.RateLimit.SendPerSecond = constants.DefaultSendRatePerSecond
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = constants.DefaultSendRateBurst
	}
	if c.Retry.InitialBackoffMs == 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs == 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = constants.DefaultRetryMaxAttempts
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("NEXUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("NEXUS_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("NEXUS_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("NEXUS_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("NEXUS_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("NEXUS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func validate(c *models.Config) error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return ErrMissingDatabase
		}
	case "postgres":
		if c.Database.DSN == "" {
			return ErrMissingDatabase
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unsupported database driver: %s", c.Database.Driver)}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port: %d", c.Server.Port)}
	}

	if c.Cache.PageSize < 0 || c.Cache.MaxMessagesPerConversation < 0 {
		return models.ConfigError{Message: "cache sizes must not be negative"}
	}

	return nil
}
