package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TREQUER_SERVER_PORT.
const EnvPrefix = "TREQUER"

// Load loads configuration from a YAML file. An empty path searches the
// default locations; a missing file falls back to defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/trequer")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return parseConfig(v)
}

// setDefaults mirrors DefaultConfig so that partial files stay valid
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.pool_size", d.Storage.PoolSize)
	v.SetDefault("storage.max_memory_mb", d.Storage.MaxMemoryMB)
	v.SetDefault("storage.max_storage_gb", d.Storage.MaxStorageGB)

	v.SetDefault("retention.sensor_hours", d.Retention.SensorHours)
	v.SetDefault("retention.diagnostic_hours", d.Retention.DiagnosticHours)
	v.SetDefault("retention.schedule_enabled", d.Retention.ScheduleEnabled)
	v.SetDefault("retention.interval", d.Retention.Interval)
	v.SetDefault("retention.lock", d.Retention.Lock)
	v.SetDefault("retention.redis_url", d.Retention.RedisURL)
	v.SetDefault("retention.lock_ttl", d.Retention.LockTTL)

	v.SetDefault("gateway.retry_attempts", d.Gateway.RetryAttempts)
	v.SetDefault("gateway.retry_base_delay", d.Gateway.RetryBaseDelay)

	v.SetDefault("export.max_payload_bytes", d.Export.MaxPayloadBytes)
	v.SetDefault("export.compression_level", d.Export.CompressionLevel)
	v.SetDefault("export.fallback_enabled", d.Export.FallbackEnabled)
	v.SetDefault("export.default_window", d.Export.DefaultWindow)
	v.SetDefault("export.max_window", d.Export.MaxWindow)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultPort,
			ReadTimeout:  ServerReadTimeout,
			WriteTimeout: ServerWriteTimeout,
		},
		Storage: StorageConfig{
			Backend:      "badger",
			DataDir:      "./data/trequer",
			SQLitePath:   "./data/trequer.db",
			PoolSize:     4,
			MaxMemoryMB:  DefaultMaxMemoryMB,
			MaxStorageGB: DefaultMaxStorageGB,
		},
		Retention: RetentionConfig{
			SensorHours:     168,
			DiagnosticHours: 72,
			ScheduleEnabled: true,
			Interval:        DefaultRetentionInterval,
			Lock:            "local",
			RedisURL:        "redis://localhost:6379/0",
			LockTTL:         PurgeTimeout,
		},
		Gateway: GatewayConfig{
			RetryAttempts:  DefaultRetryAttempts,
			RetryBaseDelay: DefaultRetryBaseDelay,
		},
		Export: ExportConfig{
			MaxPayloadBytes:  DefaultExportMaxBytes,
			CompressionLevel: DefaultCompressionLevel,
			FallbackEnabled:  true,
			DefaultWindow:    DefaultExportWindow,
			MaxWindow:        MaxExportWindow,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
