package constants

const (
	DefaultServerPort      = 8084
	DefaultReadTimeoutSec  = 15
	DefaultWriteTimeoutSec = 15
	DefaultIdleTimeoutSec  = 60

	DefaultDatabaseDriver = "sqlite3"

	// Database retry behavior
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 100
	DefaultMaxBackoffMs          = 5000
	DefaultRetryMaxAttempts      = 5

	// Relay
	DefaultRelaySendBuffer     = 16
	DefaultRelayWriteTimeoutMs = 5000

	// Local cache
	DefaultCachePageSize       = 100
	DefaultCacheMaxMessages    = 1000
	DefaultFetchPageSize       = 50

	// Rate limiting for message sends, per identity
	DefaultSendRatePerSecond = 5.0
	DefaultSendRateBurst     = 10

	// At-rest encryption key derivation
	EncryptionSalt          = "nexus-mailbox-salt-v1"
	EncryptionKeySize       = 32
	EncryptionNonceSize     = 12
	EncryptionKDFIterations = 100000
	MinEncryptionSecretLen  = 32

	// Graceful shutdown window
	DefaultShutdownTimeoutSec = 10
)
