package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/meshgraph/pkg/engine"
)

const (
	defaultAddr              = "127.0.0.1:8095"
	defaultReconcileInterval = 60 * time.Second
	defaultStore             = "sqlite"
	defaultRedisAddr         = "127.0.0.1:6379"
	defaultWorkers           = 4
	defaultQueueSize         = 1024
)

type Config struct {
	DBPath            string
	Addr              string
	ReconcileInterval time.Duration
	Store             string
	RedisAddr         string
	Workers           int
	QueueSize         int
	LogLevel          slog.Level
	ConfigPath        string
	HolderID          string

	File FileConfig
}

// FileConfig is the optional YAML file named by -config.
type FileConfig struct {
	Retention engine.RetentionConfig `yaml:"retention"`
	Election  engine.ElectionConfig  `yaml:"election"`
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "meshgraph-d"
	}

	dbPath := envOrDefault("MESHGRAPH_DB_PATH", filepath.Join(cwd, "meshgraph.db"))
	addr := addrFromEnv(defaultAddr)
	reconcileInterval := defaultReconcileInterval
	if v := os.Getenv("MESHGRAPH_RECONCILE_INTERVAL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MESHGRAPH_RECONCILE_INTERVAL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("MESHGRAPH_RECONCILE_INTERVAL must be positive")
		}
		reconcileInterval = parsed
	}
	workers, err := intFromEnv("MESHGRAPH_INGEST_WORKERS", defaultWorkers)
	if err != nil {
		return Config{}, err
	}
	queueSize, err := intFromEnv("MESHGRAPH_INGEST_QUEUE", defaultQueueSize)
	if err != nil {
		return Config{}, err
	}

	flagSet := flag.NewFlagSet("meshgraph-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagInterval := flagSet.String("reconcile-interval", reconcileInterval.String(), "how often the live graph is compared with the last snapshot")
	flagStore := flagSet.String("store", envOrDefault("MESHGRAPH_STORE", defaultStore), "snapshot store: sqlite|redis")
	flagRedis := flagSet.String("redis-addr", envOrDefault("MESHGRAPH_REDIS_ADDR", defaultRedisAddr), "redis address when store=redis")
	flagWorkers := flagSet.Int("workers", workers, "ingest workers")
	flagQueue := flagSet.Int("queue-size", queueSize, "ingest queue capacity")
	flagLevel := flagSet.String("log-level", envOrDefault("MESHGRAPH_LOG_LEVEL", "info"), "log level: debug|info|warn|error")
	flagConfig := flagSet.String("config", os.Getenv("MESHGRAPH_CONFIG_PATH"), "path to YAML config with retention and election settings")
	flagHolder := flagSet.String("holder-id", envOrDefault("MESHGRAPH_HOLDER_ID", hostname), "identity used for leader election")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	interval, err := time.ParseDuration(*flagInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid reconcile interval: %w", err)
	}
	if interval <= 0 {
		return Config{}, errors.New("reconcile interval must be positive")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(*flagLevel))); err != nil {
		return Config{}, fmt.Errorf("invalid log level %q", *flagLevel)
	}

	config := Config{
		DBPath:            resolvePath(*flagDB, cwd),
		Addr:              strings.TrimSpace(*flagAddr),
		ReconcileInterval: interval,
		Store:             strings.ToLower(strings.TrimSpace(*flagStore)),
		RedisAddr:         strings.TrimSpace(*flagRedis),
		Workers:           *flagWorkers,
		QueueSize:         *flagQueue,
		LogLevel:          level,
		ConfigPath:        resolvePath(*flagConfig, cwd),
		HolderID:          strings.TrimSpace(*flagHolder),
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	switch config.Store {
	case "sqlite":
	case "redis":
		if config.RedisAddr == "" {
			return Config{}, errors.New("store=redis requires redis-addr")
		}
	default:
		return Config{}, fmt.Errorf("unsupported store: %s", config.Store)
	}
	if config.Workers <= 0 {
		return Config{}, errors.New("workers must be positive")
	}
	if config.QueueSize <= 0 {
		return Config{}, errors.New("queue-size must be positive")
	}
	if config.HolderID == "" {
		return Config{}, errors.New("holder-id cannot be empty")
	}

	if config.ConfigPath != "" {
		file, err := LoadFileConfig(config.ConfigPath)
		if err != nil {
			return Config{}, err
		}
		config.File = file
	}

	return config, nil
}

// LoadFileConfig reads and validates the YAML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to read config: %w", err)
	}
	var file FileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return FileConfig{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := file.Retention.Validate(); err != nil {
		return FileConfig{}, err
	}
	if _, err := file.Election.LeaseTTL(); err != nil {
		return FileConfig{}, err
	}
	return file, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intFromEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("MESHGRAPH_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("MESHGRAPH_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
