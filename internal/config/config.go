package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	OTP         OTPConfig
	Notify      NotifyConfig
	Catalog     CatalogConfig
	RateLimit   RateLimitConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Clickhouse  ClickhouseConfig
	Scylla      ScyllaConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string

	EnableTLS   bool
	TLSPort     int
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Development fallbacks. Validate refuses them in production.
const (
	devJWTSecret   = "dev-only-secret-change-in-prod"
	devPepper      = "dev-only-pepper"
	devAPIKey      = "dev-api-key"
	devAdminAPIKey = "dev-admin-api-key"
)

type AuthConfig struct {
	JWTSecret   string
	TokenTTL    time.Duration
	Audience    string
	APIKey      string
	AdminAPIKey string
}

type OTPConfig struct {
	CodeLength  int
	Expiry      time.Duration
	MaxAttempts int
	// StoreBackend is "memory" or "redis".
	StoreBackend string
	LockStripes  int

	Pepper            string
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
}

type NotifyConfig struct {
	// Channel is "log" or "kafka".
	Channel     string
	Topic       string
	FailureRate float64
	MinLatency  time.Duration
	MaxLatency  time.Duration
}

type CatalogConfig struct {
	// Backend is "memory" or "scylla".
	Backend string
}

type RateLimitConfig struct {
	Enabled bool
	// Backend is "memory" or "redis".
	Backend         string
	GeneralRequests int
	GeneralWindow   time.Duration
	PhoneRequests   int
	PhoneWindow     time.Duration
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	EventsTopic string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
	Table    string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
	CAPath   string
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", ""),
			Port:           getInt("PORT", 3000),
			ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080", "http://127.0.0.1:8080"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", devJWTSecret),
			TokenTTL:    getDuration("TOKEN_TTL", 30*24*time.Hour),
			Audience:    getEnv("JWT_AUDIENCE", "restaurant-api"),
			APIKey:      getEnv("API_KEY", devAPIKey),
			AdminAPIKey: getEnv("ADMIN_API_KEY", devAdminAPIKey),
		},
		OTP: OTPConfig{
			CodeLength:        getInt("OTP_LENGTH", 6),
			Expiry:            getDuration("OTP_EXPIRY", 5*time.Minute),
			MaxAttempts:       getInt("OTP_MAX_ATTEMPTS", 3),
			StoreBackend:      getEnv("OTP_STORE", "memory"),
			LockStripes:       getInt("OTP_LOCK_STRIPES", 256),
			Pepper:            getEnv("OTP_PEPPER", devPepper),
			Argon2MemoryCost:  getInt("ARGON2_MEMORY_KB", 19*1024),
			Argon2TimeCost:    getInt("ARGON2_TIME_COST", 2),
			Argon2Parallelism: getInt("ARGON2_PARALLELISM", 1),
		},
		Notify: NotifyConfig{
			Channel:     getEnv("SMS_CHANNEL", "log"),
			Topic:       getEnv("SMS_TOPIC", "sms.outbound"),
			FailureRate: getFloat("SMS_FAILURE_RATE", 0.05),
			MinLatency:  getDuration("SMS_MIN_LATENCY", time.Second),
			MaxLatency:  getDuration("SMS_MAX_LATENCY", 3*time.Second),
		},
		Catalog: CatalogConfig{
			Backend: getEnv("CATALOG_BACKEND", "memory"),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getBool("RATE_LIMIT_ENABLED", true),
			Backend:         getEnv("RATE_LIMIT_BACKEND", "memory"),
			GeneralRequests: getInt("MAX_REQUESTS_PER_MINUTE", 100),
			GeneralWindow:   getDuration("RATE_LIMIT_WINDOW", time.Minute),
			PhoneRequests:   getInt("PHONE_VERIFY_MAX_REQUESTS", 3),
			PhoneWindow:     getDuration("PHONE_VERIFY_WINDOW", time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getBool("REDIS_ENABLED", false),
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			PoolSize: getInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Enabled:     getBool("KAFKA_ENABLED", false),
			Brokers:     getSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "restaurant.events"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USER", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DB", "restaurant"),
			Table:    getEnv("CLICKHOUSE_AUDIT_TABLE", "audit_events"),
		},
		Scylla: ScyllaConfig{
			Nodes:    getSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "restaurant"),
			Username: getEnv("SCYLLA_USER", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
			CAPath:   getEnv("SCYLLA_CA_PATH", ""),
		},
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.OTP.CodeLength < 4 || c.OTP.CodeLength > 10 {
		errs = append(errs, fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", c.OTP.CodeLength))
	}
	if c.OTP.Expiry <= 0 {
		errs = append(errs, errors.New("OTP_EXPIRY must be positive"))
	}
	if c.OTP.MaxAttempts < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be at least 1"))
	}
	if c.OTP.StoreBackend == "redis" && !c.Redis.Enabled {
		errs = append(errs, errors.New("OTP_STORE=redis requires REDIS_ENABLED=true"))
	}
	if c.RateLimit.Backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_ENABLED=true"))
	}
	if c.Catalog.Backend != "memory" && c.Catalog.Backend != "scylla" {
		errs = append(errs, fmt.Errorf("CATALOG_BACKEND must be memory or scylla, got %q", c.Catalog.Backend))
	}
	if c.Notify.Channel == "kafka" && !c.Kafka.Enabled {
		errs = append(errs, errors.New("SMS_CHANNEL=kafka requires KAFKA_ENABLED=true"))
	}
	if c.Server.AutoCert && c.Server.Domain == "" {
		errs = append(errs, errors.New("AUTO_CERT requires DOMAIN"))
	}
	if c.IsProduction() {
		if c.Auth.JWTSecret == devJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
		if c.OTP.Pepper == devPepper {
			errs = append(errs, errors.New("OTP_PEPPER must be set in production"))
		}
		if c.Auth.APIKey == devAPIKey {
			errs = append(errs, errors.New("API_KEY must be set in production"))
		}
		if c.Auth.AdminAPIKey == devAdminAPIKey {
			errs = append(errs, errors.New("ADMIN_API_KEY must be set in production"))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
