package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// RootIssuer is the issuer name required on author certificates.
	RootIssuer string
	// RootKeys is a JSON object of kid -> base64 ed25519 public key.
	RootKeys string
	// OfflineKeys is a JSON object of kid -> base64 ed25519 public key
	// used for offline grant token verification.
	OfflineKeys string
	// FlowSigningKey is a base64 ed25519 private key used to sign
	// software statements during dynamic client registration.
	FlowSigningKey string
	// FlowSigningKeyID is the kid advertised on software statements.
	FlowSigningKeyID string
	// CallbackBaseURL is the externally reachable base URL for the
	// OAuth acquisition callback.
	CallbackBaseURL string

	// StrictSkew is the clock tolerance for strict validity checks.
	StrictSkew time.Duration
	// SoftGrace is the larger tolerance under which grants are still
	// accepted with a warning.
	SoftGrace time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "atrium"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RootIssuer:       getenv("LICENSE_ROOT_ISSUER", "atrium-root-registry"),
		RootKeys:         strings.TrimSpace(getenv("LICENSE_ROOT_KEYS", "")),
		OfflineKeys:      strings.TrimSpace(getenv("LICENSE_OFFLINE_KEYS", "")),
		FlowSigningKey:   strings.TrimSpace(getenv("LICENSE_FLOW_SIGNING_KEY", "")),
		FlowSigningKeyID: strings.TrimSpace(getenv("LICENSE_FLOW_SIGNING_KEY_ID", "default")),
		CallbackBaseURL:  strings.TrimRight(getenv("LICENSE_CALLBACK_BASE_URL", "http://localhost:8080"), "/"),

		StrictSkew: getenvDuration("LICENSE_STRICT_SKEW", 10*time.Minute),
		SoftGrace:  getenvDuration("LICENSE_SOFT_GRACE", 12*time.Hour),
	}

	return cfg
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
