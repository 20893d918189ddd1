package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	HTTPPort        string
	GRPCPort        string
	SessionBackend  string
	RedisAddr       string
	RedisPassword   string
	MongoURI        string
	MongoDBName     string
	SQLitePath      string
	KafkaBrokers    []string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// QuantityFloor is nil when cart quantities are not clamped.
	QuantityFloor *int
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50053"),
		SessionBackend:  getEnv("SESSION_BACKEND", BackendRedis),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:     getEnv("MONGO_DB_NAME", "storefront"),
		SQLitePath:      getEnv("SQLITE_PATH", "variants.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: 10 * time.Second,
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	switch cfg.SessionBackend {
	case BackendRedis, BackendMongo, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}

	timeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = timeout

	if floor := getEnv("QUANTITY_FLOOR", ""); floor != "" {
		n, err := strconv.Atoi(floor)
		if err != nil {
			return nil, fmt.Errorf("invalid QUANTITY_FLOOR: %w", err)
		}
		cfg.QuantityFloor = &n
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
