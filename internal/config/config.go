package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultColumns is the projection for the primary CSV: the strike fields
// the feed reliably carries, plus the raw fallback column. Everything else
// still lands in the JSONL journal.
const DefaultColumns = "time,lat,lon,alt,pol,mds,sig,region,raw_data"

// Config holds all service settings, populated from environment variables.
type Config struct {
	FeedURL         string
	OutputPath      string
	CSVColumns      []string
	SnapshotGzip    bool
	ConnectAttempts int
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka mirror configuration.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset. Configuration errors are the only fatal errors in the
// process; everything downstream retries or degrades.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	connectAttempts, err := parseConnectAttempts()
	if err != nil {
		return nil, err
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		FeedURL:         sharedcfg.EnvOrDefault("FEED_URL", "wss://ws1.blitzortung.org/"),
		OutputPath:      sharedcfg.EnvOrDefault("OUTPUT_PATH", "blitzortung_data.csv"),
		CSVColumns:      parseColumns(sharedcfg.EnvOrDefault("CSV_COLUMNS", DefaultColumns)),
		SnapshotGzip:    os.Getenv("SNAPSHOT_GZIP") == "true",
		ConnectAttempts: connectAttempts,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   strings.TrimSpace(sharedcfg.EnvOrDefault("KAFKA_TOPIC", "raw-lightning-strikes")),
	}

	if err := validateFeedURL(cfg.FeedURL); err != nil {
		return nil, err
	}
	if cfg.OutputPath == "" {
		return nil, errors.New("OUTPUT_PATH is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is empty")
		}
	}

	return cfg, nil
}

func validateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid FEED_URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid FEED_URL: scheme %q is not ws or wss", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("invalid FEED_URL: missing host")
	}
	return nil
}

// parseConnectAttempts reads the initial-connect bound. Zero means retry
// forever; the bound never applies after the first successful connection.
func parseConnectAttempts() (int, error) {
	s := os.Getenv("CONNECT_ATTEMPTS")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid CONNECT_ATTEMPTS")
	}
	return n, nil
}

func parseColumns(s string) []string {
	parts := strings.Split(s, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if c := strings.TrimSpace(p); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
