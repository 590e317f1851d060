package params

import "time"

const (
	APIVersion            = "1.0"
	ServerBodyLimit       = 1048576 // 1 MiB
	ServerIdleTimeout     = 30 * time.Second
	ServerReadTimeout     = 10 * time.Second
	ServerWriteTimeout    = 10 * time.Second
	PermissionKeyPrefix   = "perm:"          // redis key prefix for cached permission sets
	RateLimitKeyPrefix    = "rl:"            // redis key prefix for login rate limit counters
	RefreshTokenBytes     = 32               // random bytes in a refresh token secret
	RefreshTokenPrefix    = "rt_"            // prefix of raw refresh tokens handed to clients
	HealthCheckServerAddr = ":3001"          // health check and metrics server address
	ProviderVerifyTimeout = 10 * time.Second // upper bound for a single provider verification round trip
	AlertSendTimeout      = 15 * time.Second // upper bound for sending one operator alert
	AuditWriteTimeout     = 5 * time.Second  // audit writes outlive the request context up to this long
	MaxMethodLength       = 20
	MaxDeviceInfoLength   = 512
	MaxUserAgentLength    = 512
)
