package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Server                 Server
	Database               DatabaseConfig
	Redis                  RedisConfig
	Kafka                  KafkaConfig
	Gateway                GatewayConfig
	Poller                 PollerConfig
	LockTTL                time.Duration
	CancellationPolicyFile string
	LogLevel               string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects PostgreSQL persistence when URL is set; otherwise
// the in-memory stores are used.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	TxTimeout    time.Duration
}

// RedisConfig selects the Redis event locker when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the outbox relay when Brokers is non-empty.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	RelayInterval time.Duration
	RelayBatch    int
}

// GatewayConfig configures the government gateway client. Simulate switches
// to the in-process simulator.
type GatewayConfig struct {
	BaseURL               string
	APIKey                string
	Timeout               time.Duration
	RateLimit             float64
	Burst                 int
	Simulate              bool
	SimulatorPendingPolls int
}

// PollerConfig configures the background consult job.
type PollerConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var p parser
	cfg := Config{
		Server: Server{
			Addr:            p.str("ESOCIAL_ADDR", ":8080"),
			JWTSigningKey:   p.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:       p.str("JWT_ISSUER", ""),
			JWTAudience:     p.str("JWT_AUDIENCE", ""),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:          p.str("DATABASE_URL", ""),
			MaxOpenConns: p.int("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: p.int("DATABASE_MAX_IDLE_CONNS", 5),
			TxTimeout:    p.duration("DATABASE_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       p.list("KAFKA_BROKERS"),
			Topic:         p.str("KAFKA_AUDIT_TOPIC", "esocial.compliance.events"),
			RelayInterval: p.duration("OUTBOX_RELAY_INTERVAL", time.Second),
			RelayBatch:    p.int("OUTBOX_RELAY_BATCH", 100),
		},
		Gateway: GatewayConfig{
			BaseURL:               p.str("GATEWAY_BASE_URL", ""),
			APIKey:                p.str("GATEWAY_API_KEY", ""),
			Timeout:               p.duration("GATEWAY_TIMEOUT", 10*time.Second),
			RateLimit:             p.float("GATEWAY_RATE_LIMIT", 5),
			Burst:                 p.int("GATEWAY_BURST", 5),
			Simulate:              p.bool("GATEWAY_SIMULATE", false),
			SimulatorPendingPolls: p.int("GATEWAY_SIMULATOR_PENDING_POLLS", 1),
		},
		Poller: PollerConfig{
			Enabled:     p.bool("POLLER_ENABLED", true),
			Interval:    p.duration("POLL_INTERVAL", 30*time.Second),
			BatchSize:   p.int("POLL_BATCH_SIZE", 50),
			Concurrency: p.int("POLL_CONCURRENCY", 4),
		},
		LockTTL:                p.duration("EVENT_LOCK_TTL", 30*time.Second),
		CancellationPolicyFile: p.str("CANCELLATION_POLICY_FILE", ""),
		LogLevel:               p.str("LOG_LEVEL", "info"),
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	if budget := cfg.Gateway.Timeout + cfg.Database.TxTimeout; cfg.LockTTL <= budget {
		return Config{}, fmt.Errorf("EVENT_LOCK_TTL (%s) must exceed GATEWAY_TIMEOUT + DATABASE_TX_TIMEOUT (%s)", cfg.LockTTL, budget)
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.Simulate = true
	}
	return cfg, nil
}

// parser collects parse errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) list(key string) []string {
	var out []string
	for part := range strings.SplitSeq(p.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) int(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
