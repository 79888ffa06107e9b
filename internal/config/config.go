package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Client   ClientConfig
	View     ViewConfig
	Feed     FeedConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Records  RecordsConfig
}

// ServerConfig points at the game-rules server.
type ServerConfig struct {
	BaseURL string
	Timeout time.Duration
}

type ClientConfig struct {
	PollInterval time.Duration
	CPUDelay     time.Duration
	// Viewer selects whose view the console shows; 0 is the shared screen.
	Viewer int
}

type ViewConfig struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      float64
}

type FeedConfig struct {
	URL string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type RecordsConfig struct {
	CacheTTL time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			BaseURL: strings.TrimRight(getEnv("RPS_SERVER_URL", "http://localhost:5000"), "/"),
			Timeout: getEnvMillis("RPS_HTTP_TIMEOUT_MS", 8*time.Second),
		},
		Client: ClientConfig{
			PollInterval: getEnvMillis("POLL_INTERVAL_MS", 1500*time.Millisecond),
			CPUDelay:     getEnvMillis("CPU_DELAY_MS", time.Second),
			Viewer:       getEnvInt("RPS_VIEWER", 0),
		},
		View: ViewConfig{
			Addr:           getEnv("VIEW_ADDR", ""),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", "http://localhost:3000"),
			RateLimit:      float64(getEnvInt("VIEW_RATE_LIMIT", 20)),
			RateBurst:      float64(getEnvInt("VIEW_RATE_BURST", 40)),
		},
		Feed: FeedConfig{
			URL: getEnv("FEED_URL", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "rps_client"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", ""),
			Topic:   getEnv("KAFKA_TOPIC", "rps-client-events"),
			GroupID: getEnv("KAFKA_GROUP", "rps-analytics"),
		},
		Records: RecordsConfig{
			CacheTTL: getEnvMillis("RECORDS_CACHE_TTL_MS", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid RPS_SERVER_URL %q", c.Server.BaseURL)
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if c.Client.CPUDelay < 0 {
		return fmt.Errorf("CPU_DELAY_MS must not be negative")
	}
	if c.Client.Viewer < 0 || c.Client.Viewer > 2 {
		return fmt.Errorf("RPS_VIEWER must be 0, 1 or 2")
	}
	return nil
}

// KafkaEnabled reports whether client events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
