package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Booking  BookingConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection and pool settings.
type PostgresConfig struct {
	Host              string        `mapstructure:"POSTGRES_HOST"`
	Port              int           `mapstructure:"POSTGRES_PORT"`
	User              string        `mapstructure:"POSTGRES_USER"`
	Password          string        `mapstructure:"POSTGRES_PASSWORD"`
	DBName            string        `mapstructure:"POSTGRES_DB"`
	SSLMode           string        `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns          int32         `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns          int32         `mapstructure:"POSTGRES_MIN_CONNS"`
	MaxConnLifetime   time.Duration `mapstructure:"POSTGRES_MAX_CONN_LIFETIME"`
	MaxConnIdleTime   time.Duration `mapstructure:"POSTGRES_MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod time.Duration `mapstructure:"POSTGRES_HEALTH_CHECK_PERIOD"`
	ConnectTimeout    time.Duration `mapstructure:"POSTGRES_CONNECT_TIMEOUT"`
	// LockTimeout is set as the session lock_timeout; zero leaves the
	// server default.
	LockTimeout time.Duration `mapstructure:"POSTGRES_LOCK_TIMEOUT"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host         string        `mapstructure:"REDIS_HOST"`
	Port         int           `mapstructure:"REDIS_PORT"`
	Password     string        `mapstructure:"REDIS_PASSWORD"`
	DB           int           `mapstructure:"REDIS_DB"`
	PoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	MinIdleConns int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`
}

// KafkaConfig holds the booking event producer settings. Events are
// disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"KAFKA_BROKERS"`
	Topic    string   `mapstructure:"KAFKA_TOPIC"`
	ClientID string   `mapstructure:"KAFKA_CLIENT_ID"`
}

// AuthConfig holds the shared secret used to verify customer tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"JWT_SECRET"`
}

// BookingConfig tunes the booking engine.
type BookingConfig struct {
	Timeout           time.Duration `mapstructure:"BOOKING_TIMEOUT"`
	RateLimit         int           `mapstructure:"BOOKING_RATE_LIMIT"`
	RateWindow        time.Duration `mapstructure:"BOOKING_RATE_WINDOW"`
	AvailabilityTTL   time.Duration `mapstructure:"AVAILABILITY_CACHE_TTL"`
	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "seatline")
	viper.SetDefault("POSTGRES_PASSWORD", "seatline_secret")
	viper.SetDefault("POSTGRES_DB", "seatline_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)
	viper.SetDefault("POSTGRES_MAX_CONN_LIFETIME", "1h")
	viper.SetDefault("POSTGRES_MAX_CONN_IDLE_TIME", "15m")
	viper.SetDefault("POSTGRES_HEALTH_CHECK_PERIOD", "30s")
	viper.SetDefault("POSTGRES_CONNECT_TIMEOUT", "5s")
	viper.SetDefault("POSTGRES_LOCK_TIMEOUT", "4s")

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)
	viper.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	viper.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	viper.SetDefault("REDIS_READ_TIMEOUT", "2s")
	viper.SetDefault("REDIS_WRITE_TIMEOUT", "2s")

	viper.SetDefault("KAFKA_BROKERS", "")
	viper.SetDefault("KAFKA_TOPIC", "booking-events")
	viper.SetDefault("KAFKA_CLIENT_ID", "seatline")

	viper.SetDefault("JWT_SECRET", "")

	viper.SetDefault("BOOKING_TIMEOUT", "5s")
	viper.SetDefault("BOOKING_RATE_LIMIT", 10)
	viper.SetDefault("BOOKING_RATE_WINDOW", "1m")
	viper.SetDefault("AVAILABILITY_CACHE_TTL", "30s")
	viper.SetDefault("RECONCILE_INTERVAL", "10m")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:              viper.GetString("POSTGRES_HOST"),
		Port:              viper.GetInt("POSTGRES_PORT"),
		User:              viper.GetString("POSTGRES_USER"),
		Password:          viper.GetString("POSTGRES_PASSWORD"),
		DBName:            viper.GetString("POSTGRES_DB"),
		SSLMode:           viper.GetString("POSTGRES_SSLMODE"),
		MaxConns:          viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns:          viper.GetInt32("POSTGRES_MIN_CONNS"),
		MaxConnLifetime:   viper.GetDuration("POSTGRES_MAX_CONN_LIFETIME"),
		MaxConnIdleTime:   viper.GetDuration("POSTGRES_MAX_CONN_IDLE_TIME"),
		HealthCheckPeriod: viper.GetDuration("POSTGRES_HEALTH_CHECK_PERIOD"),
		ConnectTimeout:    viper.GetDuration("POSTGRES_CONNECT_TIMEOUT"),
		LockTimeout:       viper.GetDuration("POSTGRES_LOCK_TIMEOUT"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:         viper.GetString("REDIS_HOST"),
		Port:         viper.GetInt("REDIS_PORT"),
		Password:     viper.GetString("REDIS_PASSWORD"),
		DB:           viper.GetInt("REDIS_DB"),
		PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
		MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
		DialTimeout:  viper.GetDuration("REDIS_DIAL_TIMEOUT"),
		ReadTimeout:  viper.GetDuration("REDIS_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("REDIS_WRITE_TIMEOUT"),
	}

	// ── Kafka ───────────────────────────────────────────
	cfg.Kafka = KafkaConfig{
		Brokers:  splitList(viper.GetString("KAFKA_BROKERS")),
		Topic:    viper.GetString("KAFKA_TOPIC"),
		ClientID: viper.GetString("KAFKA_CLIENT_ID"),
	}

	// ── Auth ────────────────────────────────────────────
	cfg.Auth = AuthConfig{
		JWTSecret: viper.GetString("JWT_SECRET"),
	}

	// ── Booking ─────────────────────────────────────────
	cfg.Booking = BookingConfig{
		Timeout:           viper.GetDuration("BOOKING_TIMEOUT"),
		RateLimit:         viper.GetInt("BOOKING_RATE_LIMIT"),
		RateWindow:        viper.GetDuration("BOOKING_RATE_WINDOW"),
		AvailabilityTTL:   viper.GetDuration("AVAILABILITY_CACHE_TTL"),
		ReconcileInterval: viper.GetDuration("RECONCILE_INTERVAL"),
	}

	// ── Log ─────────────────────────────────────────────
	cfg.Log = LogConfig{
		Level:  viper.GetString("LOG_LEVEL"),
		Format: viper.GetString("LOG_FORMAT"),
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}
	if cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
		return nil, fmt.Errorf("config: POSTGRES_MIN_CONNS (%d) exceeds POSTGRES_MAX_CONNS (%d)", cfg.Postgres.MinConns, cfg.Postgres.MaxConns)
	}
	if cfg.Booking.RateLimit <= 0 || cfg.Booking.RateWindow <= 0 {
		return nil, fmt.Errorf("config: BOOKING_RATE_LIMIT and BOOKING_RATE_WINDOW must be positive")
	}

	return cfg, nil
}

// splitList parses a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
