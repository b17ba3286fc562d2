package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	// HTTP server
	ListenAddr      string        // e.g. ":8080"
	ShutdownTimeout time.Duration // grace period for in-flight requests

	// Storage
	Backend   string // "memory" or "sqlite"
	SQLiteDSN string // e.g. "./snaptide.db"
	SeedPosts int    // demo posts created at startup, 0 disables

	// Events; empty brokers disables publishing
	KafkaBrokers string
	KafkaTopic   string

	// Tracing; empty endpoint disables export
	OTLPEndpoint string
	ServiceName  string
	SampleRatio  float64
}

func FromEnv() (Config, error) {
	c := Config{}

	c.ListenAddr = getenv("HTTP_LISTEN_ADDR", ":8080")
	c.ShutdownTimeout = getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)

	c.Backend = strings.ToLower(getenv("STORE_BACKEND", BackendMemory))
	c.SQLiteDSN = getenv("SQLITE_DSN", "./snaptide.db")
	c.SeedPosts = getenvi("SEED_POSTS", 0)

	c.KafkaBrokers = os.Getenv("KAFKA_BROKERS")
	c.KafkaTopic = getenv("KAFKA_TOPIC", "posts.created")

	c.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	c.ServiceName = getenv("OTEL_SERVICE_NAME", "snaptide")
	c.SampleRatio = 1.0
	if s := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
			c.SampleRatio = f
		}
	}

	return c, c.validate()
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendSQLite, c.Backend)
	}
	if c.SeedPosts < 0 {
		return fmt.Errorf("SEED_POSTS must not be negative, got %d", c.SeedPosts)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
