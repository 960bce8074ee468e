package models

// Config is the full server configuration, loaded from JSON with
// environment overrides applied afterwards.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Relay     RelayConfig     `json:"relay"`
	Cache     CacheConfig     `json:"cache"`
	RateLimit RateLimitConfig `json:"rateLimit"`
	Retry     RetryConfig     `json:"retry"`
	Tracing   TracingConfig   `json:"tracing"`
	LogLevel  string          `json:"logLevel"`
}

type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

type DatabaseConfig struct {
	// Driver selects the mailbox backend: "sqlite3" or "postgres".
	Driver string `json:"driver"`
	// Path is the sqlite database file. Ignored for postgres.
	Path string `json:"path"`
	// DSN is the postgres connection string. Ignored for sqlite.
	DSN string `json:"dsn"`
}

type RelayConfig struct {
	// SendBuffer is the per-connection event buffer. A full buffer drops
	// the push; the mailbox remains the durable handoff.
	SendBuffer     int `json:"sendBuffer"`
	WriteTimeoutMs int `json:"writeTimeoutMs"`
}

type CacheConfig struct {
	Dir string `json:"dir"`
	// PageSize is the internal storage page size.
	PageSize int `json:"pageSize"`
	// MaxMessagesPerConversation caps what Compact retains. Unacknowledged
	// messages are retained beyond the cap.
	MaxMessagesPerConversation int `json:"maxMessagesPerConversation"`
}

type RateLimitConfig struct {
	SendPerSecond float64 `json:"sendPerSecond"`
	Burst         int     `json:"burst"`
}

type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
