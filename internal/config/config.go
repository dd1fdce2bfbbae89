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
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

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
	// DBSlowQuery is the duration above which a statement is logged as slow.
	DBSlowQuery       time.Duration

	FrontURL   string
	BackendURL string

	MercadoPago MercadoPagoConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
}

// TelemetryConfig drives logging, tracing and metrics export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type MercadoPagoConfig struct {
	AccessToken   string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	StatusTTL time.Duration
	// KeyPrefix namespaces every lock and rate limit key.
	KeyPrefix string
	LockTTL   time.Duration
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type AuthConfig struct {
	TokenTTL          time.Duration
	BootstrapUsername string
	BootstrapPassword string
}

type RateLimitConfig struct {
	OrderCreateRate  float64
	OrderCreateBurst int
	LoginRate        float64
	LoginBurst       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "banca"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("NODE_ID", 1),
		OTLPEndpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "banca"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),
		FrontURL:          strings.TrimRight(getenv("FRONT_URL", "http://localhost:5173"), "/"),
		BackendURL:        strings.TrimRight(getenv("BACKEND_URL", "http://localhost:8080"), "/"),
		MercadoPago: MercadoPagoConfig{
			AccessToken:   strings.TrimSpace(getenv("MP_ACCESS_TOKEN", "")),
			WebhookSecret: strings.TrimSpace(getenv("MP_WEBHOOK_SECRET", "")),
			BaseURL:       strings.TrimRight(getenv("MP_BASE_URL", "https://api.mercadopago.com"), "/"),
			Timeout:       getenvDuration("MP_TIMEOUT", 8*time.Second),
		},
		Redis: RedisConfig{
			Addr:      strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:  getenv("REDIS_PASSWORD", ""),
			DB:        int(getenvInt64("REDIS_DB", 0)),
			StatusTTL: getenvDuration("REDIS_STATUS_TTL", 5*time.Minute),
			KeyPrefix: strings.Trim(strings.TrimSpace(getenv("REDIS_KEY_PREFIX", "banca")), ":"),
			LockTTL:   getenvDuration("REDIS_LOCK_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getenvList("KAFKA_BROKERS"),
			Topic:   getenv("KAFKA_TOPIC", "orders.events"),
		},
		Auth: AuthConfig{
			TokenTTL:          getenvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
			BootstrapUsername: strings.TrimSpace(getenv("ADMIN_USERNAME", "")),
			BootstrapPassword: getenv("ADMIN_PASSWORD", ""),
		},
		RateLimit: RateLimitConfig{
			OrderCreateRate:  getenvFloat("RATE_LIMIT_ORDER_RPS", 1),
			OrderCreateBurst: int(getenvInt64("RATE_LIMIT_ORDER_BURST", 5)),
			LoginRate:        getenvFloat("RATE_LIMIT_LOGIN_RPS", 0.2),
			LoginBurst:       int(getenvInt64("RATE_LIMIT_LOGIN_BURST", 5)),
		},
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
