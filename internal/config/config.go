package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"eventScope/internal/provider"
)

// Backend names.
const (
	ProviderEtherscan = "etherscan"
	ProviderRPC       = "rpc"

	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	SinkJSONL    = "jsonl"
	SinkArrow    = "arrow"
	SinkPostgres = "postgres"

	StoreLocal = "local"
	StoreS3    = "s3"
)

// ObjectConfig is the S3 compatible object store used for sink output and
// ABI documents.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Enabled reports whether an endpoint is configured.
func (o ObjectConfig) Enabled() bool {
	return o.Endpoint != ""
}

// RedisConfig locates the Redis checkpoint store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend string
	Path    string
	PGDSN   string
	Redis   RedisConfig
}

// Config holds configuration for the run command.
type Config struct {
	Contracts       string
	ContractsSource string
	ABIDir          string
	RunAt           string

	Provider        string
	EtherscanURL    string
	EtherscanAPIKey string
	RPCURL          string
	RequestTimeout  time.Duration
	PageSize        int
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxAttempts     int
	RetryBackoff    time.Duration
	MaxBackoff      time.Duration
	RetryJitter     float64

	ConfirmationDepth      uint64
	MaxRangeSize           uint64
	Workers                int
	DecodeFailureThreshold float64
	MaxRangesPerRun        int
	RunTimeout             time.Duration
	CommitTimeout          time.Duration

	Checkpoint CheckpointConfig
	Sinks      []string
	OutStore   string
	Out        string
	Object     ObjectConfig

	MetricsAddr   string
	NATSURL       string
	NATSSubject   string
	AlertCooldown time.Duration

	LogLevel string
}

var checkpointDefaults = map[string]interface{}{
	"checkpoint-backend": BackendFile,
	"checkpoint":         "./data/checkpoints.json",
	"redis-addr":         "localhost:6379",
	"redis-prefix":       "checkpoint",
	"log-level":          "info",
}

var runDefaults = map[string]interface{}{
	"contracts-source":         "file",
	"provider":                 ProviderEtherscan,
	"request-timeout":          30 * time.Second,
	"page-size":                1000,
	"rate-limit-rps":           5.0,
	"rate-limit-burst":         1,
	"max-attempts":             5,
	"retry-backoff":            500 * time.Millisecond,
	"max-backoff":              30 * time.Second,
	"retry-jitter":             0.2,
	"confirmation-depth":       uint64(50),
	"max-range-size":           uint64(2000),
	"workers":                  5,
	"decode-failure-threshold": 0.5,
	"run-timeout":              55 * time.Minute,
	"commit-timeout":           2 * time.Minute,
	"sink":                     SinkJSONL,
	"out-store":                StoreLocal,
	"out":                      "./data",
	"nats-subject":             "indexer.alerts",
	"alert-cooldown":           15 * time.Minute,
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, merge(checkpointDefaults, runDefaults))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Contracts:       v.GetString("contracts"),
		ContractsSource: v.GetString("contracts-source"),
		ABIDir:          v.GetString("abi-dir"),
		RunAt:           v.GetString("run-at"),

		Provider:        strings.ToLower(v.GetString("provider")),
		EtherscanURL:    v.GetString("etherscan-url"),
		EtherscanAPIKey: v.GetString("etherscan-api-key"),
		RPCURL:          v.GetString("rpc"),
		RequestTimeout:  v.GetDuration("request-timeout"),
		PageSize:        v.GetInt("page-size"),
		RateLimitRPS:    v.GetFloat64("rate-limit-rps"),
		RateLimitBurst:  v.GetInt("rate-limit-burst"),
		MaxAttempts:     v.GetInt("max-attempts"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		MaxBackoff:      v.GetDuration("max-backoff"),
		RetryJitter:     v.GetFloat64("retry-jitter"),

		ConfirmationDepth:      v.GetUint64("confirmation-depth"),
		MaxRangeSize:           v.GetUint64("max-range-size"),
		Workers:                v.GetInt("workers"),
		DecodeFailureThreshold: v.GetFloat64("decode-failure-threshold"),
		MaxRangesPerRun:        v.GetInt("max-ranges-per-run"),
		RunTimeout:             v.GetDuration("run-timeout"),
		CommitTimeout:          v.GetDuration("commit-timeout"),

		Checkpoint: checkpointFrom(v.GetString("checkpoint-backend"), v.GetString("checkpoint"), v.GetString("pg-dsn"), RedisConfig{
			Addr:     v.GetString("redis-addr"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
			Prefix:   v.GetString("redis-prefix"),
		}),
		Sinks:    lowerAll(getStringSlice(v, "sink")),
		OutStore: strings.ToLower(v.GetString("out-store")),
		Out:      v.GetString("out"),
		Object:   objectFrom(v.GetString("s3-endpoint"), v.GetString("s3-access-key"), v.GetString("s3-secret-key"), v.GetString("s3-bucket"), v.GetString("s3-prefix"), v.GetBool("s3-use-ssl")),

		MetricsAddr:   v.GetString("metrics-addr"),
		NATSURL:       v.GetString("nats-url"),
		NATSSubject:   v.GetString("nats-subject"),
		AlertCooldown: v.GetDuration("alert-cooldown"),

		LogLevel: v.GetString("log-level"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderEtherscan:
	case ProviderRPC:
		if c.RPCURL == "" {
			return fmt.Errorf("rpc url is required for the rpc provider")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.ContractsSource != "file" && c.ContractsSource != BackendPostgres {
		return fmt.Errorf("unknown contracts source %q", c.ContractsSource)
	}
	if c.ContractsSource == "file" && c.Contracts == "" {
		return fmt.Errorf("contracts manifest path is required")
	}
	if c.MaxRangeSize == 0 {
		return fmt.Errorf("max range size must be greater than zero")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be greater than zero")
	}
	if c.Provider == ProviderEtherscan && c.PageSize > provider.MaxEtherscanPageSize {
		return fmt.Errorf("page size %d exceeds the etherscan limit of %d", c.PageSize, provider.MaxEtherscanPageSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be greater than zero")
	}
	if c.DecodeFailureThreshold < 0 || c.DecodeFailureThreshold > 1 {
		return fmt.Errorf("decode failure threshold must be within [0, 1]")
	}
	if c.MaxRangesPerRun < 0 {
		return fmt.Errorf("max ranges per run must not be negative")
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return err
	}
	if len(c.Sinks) == 0 {
		return fmt.Errorf("at least one sink is required")
	}
	for _, sink := range c.Sinks {
		switch sink {
		case SinkJSONL, SinkArrow:
		case SinkPostgres:
			if c.Checkpoint.PGDSN == "" {
				return fmt.Errorf("pg dsn is required for the postgres sink")
			}
		default:
			return fmt.Errorf("unknown sink %q", sink)
		}
	}
	switch c.OutStore {
	case StoreLocal:
	case StoreS3:
		if !c.Object.Enabled() || c.Object.Bucket == "" {
			return fmt.Errorf("s3 endpoint and bucket are required for the s3 output store")
		}
	default:
		return fmt.Errorf("unknown output store %q", c.OutStore)
	}
	return nil
}

// LoadCheckpoint merges configuration for the checkpoint command.
func LoadCheckpoint(cfgFile string, flags *pflag.FlagSet) (CheckpointConfig, string, error) {
	v, err := newViper(cfgFile, flags, checkpointDefaults)
	if err != nil {
		return CheckpointConfig{}, "", err
	}
	cfg := checkpointFrom(v.GetString("checkpoint-backend"), v.GetString("checkpoint"), v.GetString("pg-dsn"), RedisConfig{
		Addr:     v.GetString("redis-addr"),
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
		Prefix:   v.GetString("redis-prefix"),
	})
	if err := cfg.Validate(); err != nil {
		return CheckpointConfig{}, "", err
	}
	return cfg, v.GetString("log-level"), nil
}

// Validate checks the selected backend has its location.
func (c CheckpointConfig) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Path == "" {
			return fmt.Errorf("checkpoint path is required for the file backend")
		}
	case BackendPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg dsn is required for the postgres checkpoint backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for the redis checkpoint backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Backend)
	}
	return nil
}

func checkpointFrom(backend, path, dsn string, redis RedisConfig) CheckpointConfig {
	return CheckpointConfig{
		Backend: strings.ToLower(backend),
		Path:    path,
		PGDSN:   dsn,
		Redis:   redis,
	}
}

func objectFrom(endpoint, accessKey, secretKey, bucket, prefix string, useSSL bool) ObjectConfig {
	return ObjectConfig{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
		Prefix:    prefix,
		UseSSL:    useSSL,
	}
}

func merge(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func lowerAll(items []string) []string {
	for i, item := range items {
		items[i] = strings.ToLower(item)
	}
	return items
}
