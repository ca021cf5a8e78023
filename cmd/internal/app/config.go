package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rollbook/cmd/security/token"
)

// ErrConfig marks fatal configuration problems detected at boot.
var ErrConfig = errors.New("configuration error")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// DevMemory switches every store to the in-memory implementation.
	// It must be set explicitly; a missing database URL alone is a boot
	// failure, never a silent fallback.
	DevMemory bool

	SessionTTL time.Duration

	// If true, ROLLBOOK_TOKEN_HMAC_KEY must be set (>= 32 bytes) and
	// refresh-token hashing must be HMAC-based.
	RequireTokenHMAC bool

	// If true, /readyz returns 503 unless the database is reachable.
	ReadinessRequireDB bool

	// WSDevInsecure disables WebSocket origin verification; dev only.
	WSDevInsecure bool

	// Optional first-admin bootstrap. Both must be set or both empty.
	AdminUsername string
	AdminPassword string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("ROLLBOOK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("ROLLBOOK_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("ROLLBOOK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("ROLLBOOK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("ROLLBOOK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("ROLLBOOK_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("ROLLBOOK_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("ROLLBOOK_DATABASE_URL", ""),
		DBSchema:    EnvString("ROLLBOOK_DB_SCHEMA", "rollbook"),
		DBMaxConns:  EnvInt32("ROLLBOOK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("ROLLBOOK_DB_MIN_CONNS", 0),

		DevMemory: EnvBool("ROLLBOOK_DEV_MEMORY", false),

		SessionTTL: EnvDuration("ROLLBOOK_SESSION_TTL", 30*24*time.Hour),

		RequireTokenHMAC:   EnvBool("ROLLBOOK_REQUIRE_TOKEN_HMAC", false),
		ReadinessRequireDB: EnvBool("ROLLBOOK_READINESS_REQUIRE_DB", true),
		WSDevInsecure:      EnvBool("ROLLBOOK_WS_DEV_INSECURE", false),

		AdminUsername: EnvString("ROLLBOOK_ADMIN_USERNAME", ""),
		AdminPassword: EnvString("ROLLBOOK_ADMIN_PASSWORD", ""),
	}
}

// Placeholder substrings that indicate copied-from-template credentials.
var placeholderMarkers = []string{
	"changeme",
	"change-me",
	"placeholder",
	"your-",
	"example.com",
	"<",
}

func looksLikePlaceholder(v string) bool {
	lower := strings.ToLower(v)
	for _, m := range placeholderMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Validate fails fast on misconfiguration: missing or template credentials
// must stop the boot, never limp into runtime.
func (c Config) Validate() error {
	if c.DatabaseURL == "" && !c.DevMemory {
		return fmt.Errorf("%w: ROLLBOOK_DATABASE_URL is not set (set it, or set ROLLBOOK_DEV_MEMORY=true for the in-memory dev store)", ErrConfig)
	}
	if c.DatabaseURL != "" && looksLikePlaceholder(c.DatabaseURL) {
		return fmt.Errorf("%w: ROLLBOOK_DATABASE_URL contains a placeholder value", ErrConfig)
	}
	if looksLikePlaceholder(c.AdminPassword) {
		return fmt.Errorf("%w: ROLLBOOK_ADMIN_PASSWORD contains a placeholder value", ErrConfig)
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return fmt.Errorf("%w: ROLLBOOK_ADMIN_USERNAME and ROLLBOOK_ADMIN_PASSWORD must be set together", ErrConfig)
	}
	if c.RequireTokenHMAC {
		if _, err := token.HMACKeyFromEnv(32); err != nil {
			return fmt.Errorf("%w: ROLLBOOK_REQUIRE_TOKEN_HMAC=true but %v", ErrConfig, err)
		}
	}
	return nil
}
