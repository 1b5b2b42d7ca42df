package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultSigningSecret = "dev-signing-secret-change-in-production"
	defaultJWTSecret     = "your-secret-key-change-in-production"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OTel     OTelConfig     `mapstructure:"otel"`
	Gate     GateConfig     `mapstructure:"gate"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	ClientID    string   `mapstructure:"client_id"`
	EventsTopic string   `mapstructure:"events_topic"`
	OTPTopic    string   `mapstructure:"otp_topic"`
}

// JWTConfig holds operator token settings
type JWTConfig struct {
	// Enabled switches operator identity from trusted headers to bearer tokens
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// GateConfig holds ticket validation settings
type GateConfig struct {
	// TicketStore is "postgres" or "memory"
	TicketStore string `mapstructure:"ticket_store"`
	// ChallengeStore is "redis" or "memory"
	ChallengeStore string `mapstructure:"challenge_store"`
	// OTPSender is "kafka" or "log"
	OTPSender string `mapstructure:"otp_sender"`

	SigningSecret     string        `mapstructure:"signing_secret"`
	OTPLength         int           `mapstructure:"otp_length"`
	OTPTTL            time.Duration `mapstructure:"otp_ttl"`
	OTPMaxAttempts    int           `mapstructure:"otp_max_attempts"`
	OTPRetention      time.Duration `mapstructure:"otp_retention"`
	OTPRequiredTypes  []string      `mapstructure:"otp_required_types"`
	ReservationWindow time.Duration `mapstructure:"reservation_window"`
	Currency          string        `mapstructure:"currency"`
	// Prices maps ticket type to a decimal price string
	Prices map[string]string `mapstructure:"prices"`
	// IdempotencyTTL is how long replayable write responses are kept
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// WorkerConfig holds expiry worker settings
type WorkerConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional, environment variables still apply
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "ticket-gate")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_REQUEST_TIMEOUT", "3s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "ticket_gate")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", true)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "ticket-gate")
	v.SetDefault("KAFKA_EVENTS_TOPIC", "ticket-validation-events")
	v.SetDefault("KAFKA_OTP_TOPIC", "otp-dispatch")

	// JWT defaults
	v.SetDefault("JWT_ENABLED", false)
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "ticket-gate")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "ticket-gate")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Gate defaults
	v.SetDefault("GATE_TICKET_STORE", "postgres")
	v.SetDefault("GATE_CHALLENGE_STORE", "redis")
	v.SetDefault("GATE_OTP_SENDER", "kafka")
	v.SetDefault("GATE_SIGNING_SECRET", defaultSigningSecret)
	v.SetDefault("GATE_OTP_LENGTH", 6)
	v.SetDefault("GATE_OTP_TTL", "5m")
	v.SetDefault("GATE_OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("GATE_OTP_RETENTION", "10m")
	v.SetDefault("GATE_OTP_REQUIRED_TYPES", "vip,vvip")
	v.SetDefault("GATE_RESERVATION_WINDOW", "72h")
	v.SetDefault("GATE_CURRENCY", "USD")
	v.SetDefault("GATE_PRICE_SIMPLE", "49.99")
	v.SetDefault("GATE_PRICE_COUPLE", "84.99")
	v.SetDefault("GATE_PRICE_VIP", "149.99")
	v.SetDefault("GATE_PRICE_VVIP", "299.99")
	v.SetDefault("GATE_IDEMPOTENCY_TTL", "24h")

	// Worker defaults
	v.SetDefault("WORKER_INTERVAL", "30s")
	v.SetDefault("WORKER_BATCH_SIZE", 100)
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.RequestTimeout = v.GetDuration("SERVER_REQUEST_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.EventsTopic = v.GetString("KAFKA_EVENTS_TOPIC")
	cfg.Kafka.OTPTopic = v.GetString("KAFKA_OTP_TOPIC")

	// JWT
	cfg.JWT.Enabled = v.GetBool("JWT_ENABLED")
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Gate
	cfg.Gate.TicketStore = strings.ToLower(v.GetString("GATE_TICKET_STORE"))
	cfg.Gate.ChallengeStore = strings.ToLower(v.GetString("GATE_CHALLENGE_STORE"))
	cfg.Gate.OTPSender = strings.ToLower(v.GetString("GATE_OTP_SENDER"))
	cfg.Gate.SigningSecret = v.GetString("GATE_SIGNING_SECRET")
	cfg.Gate.OTPLength = v.GetInt("GATE_OTP_LENGTH")
	cfg.Gate.OTPTTL = v.GetDuration("GATE_OTP_TTL")
	cfg.Gate.OTPMaxAttempts = v.GetInt("GATE_OTP_MAX_ATTEMPTS")
	cfg.Gate.OTPRetention = v.GetDuration("GATE_OTP_RETENTION")
	cfg.Gate.OTPRequiredTypes = splitList(strings.ToLower(v.GetString("GATE_OTP_REQUIRED_TYPES")))
	cfg.Gate.ReservationWindow = v.GetDuration("GATE_RESERVATION_WINDOW")
	cfg.Gate.Currency = v.GetString("GATE_CURRENCY")
	cfg.Gate.Prices = map[string]string{
		"simple": v.GetString("GATE_PRICE_SIMPLE"),
		"couple": v.GetString("GATE_PRICE_COUPLE"),
		"vip":    v.GetString("GATE_PRICE_VIP"),
		"vvip":   v.GetString("GATE_PRICE_VVIP"),
	}
	cfg.Gate.IdempotencyTTL = v.GetDuration("GATE_IDEMPOTENCY_TTL")

	// Worker
	cfg.Worker.Interval = v.GetDuration("WORKER_INTERVAL")
	cfg.Worker.BatchSize = v.GetInt("WORKER_BATCH_SIZE")

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	if c.JWT.Enabled && c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required when JWT is enabled")
	}

	if c.Gate.SigningSecret == "" {
		return fmt.Errorf("signing secret is required")
	}

	if c.IsProduction() && c.Gate.SigningSecret == defaultSigningSecret {
		return fmt.Errorf("signing secret must be changed in production")
	}

	// Without JWT the operator headers are trusted as sent
	if c.IsProduction() && !c.JWT.Enabled {
		return fmt.Errorf("JWT must be enabled in production")
	}

	if c.IsProduction() && c.JWT.Secret == defaultJWTSecret {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	switch c.Gate.TicketStore {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid ticket store: %q", c.Gate.TicketStore)
	}

	switch c.Gate.ChallengeStore {
	case "redis", "memory":
	default:
		return fmt.Errorf("invalid challenge store: %q", c.Gate.ChallengeStore)
	}

	switch c.Gate.OTPSender {
	case "kafka", "log":
	default:
		return fmt.Errorf("invalid otp sender: %q", c.Gate.OTPSender)
	}

	if c.Gate.OTPLength < 4 || c.Gate.OTPLength > 10 {
		return fmt.Errorf("otp length must be between 4 and 10, got %d", c.Gate.OTPLength)
	}

	if c.Gate.OTPTTL <= 0 {
		return fmt.Errorf("otp ttl must be positive")
	}

	if c.Gate.OTPMaxAttempts <= 0 {
		return fmt.Errorf("otp max attempts must be positive")
	}

	if c.Gate.ReservationWindow <= 0 {
		return fmt.Errorf("reservation window must be positive")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
