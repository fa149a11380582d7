package config

import (
	"fmt"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Storage   StorageConfig          `mapstructure:"storage"`
	Retention RetentionConfig        `mapstructure:"retention"`
	Gateway   GatewayConfig          `mapstructure:"gateway"`
	Export    ExportConfig           `mapstructure:"export"`
	Logging   LoggingConfig          `mapstructure:"logging"`
	Sensors   []reading.SensorConfig `mapstructure:"sensors"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig selects and tunes the reading store gateway
type StorageConfig struct {
	Backend      string `mapstructure:"backend"` // memory, badger or sqlite
	DataDir      string `mapstructure:"data_dir"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	PoolSize     int    `mapstructure:"pool_size"`
	MaxMemoryMB  int64  `mapstructure:"max_memory_mb"`
	MaxStorageGB int64  `mapstructure:"max_storage_gb"`
}

// RetentionConfig controls purge defaults and the in-process trigger
type RetentionConfig struct {
	SensorHours     int           `mapstructure:"sensor_hours"`
	DiagnosticHours int           `mapstructure:"diagnostic_hours"`
	ScheduleEnabled bool          `mapstructure:"schedule_enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	Lock            string        `mapstructure:"lock"` // local or redis
	RedisURL        string        `mapstructure:"redis_url"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

// GatewayConfig controls retries on read paths
type GatewayConfig struct {
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

// ExportConfig controls archive packaging
type ExportConfig struct {
	MaxPayloadBytes  int           `mapstructure:"max_payload_bytes"`
	CompressionLevel int           `mapstructure:"compression_level"`
	FallbackEnabled  bool          `mapstructure:"fallback_enabled"`
	DefaultWindow    time.Duration `mapstructure:"default_window"`
	MaxWindow        time.Duration `mapstructure:"max_window"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the whole configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Retention.Validate(); err != nil {
		return err
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.ID == "" {
			return fmt.Errorf("sensors[%d].id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("sensors[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	return nil
}

// Validate validates storage configuration
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "badger":
		if c.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for the badger backend")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: memory, badger, sqlite")
	}
	if c.MaxStorageGB < 0 || c.MaxMemoryMB < 0 {
		return fmt.Errorf("storage limits cannot be negative")
	}
	return nil
}

// Validate validates retention configuration
func (c *RetentionConfig) Validate() error {
	for name, hours := range map[string]int{
		"retention.sensor_hours":     c.SensorHours,
		"retention.diagnostic_hours": c.DiagnosticHours,
	} {
		if hours < MinRetentionHours || hours > MaxRetentionHours {
			return fmt.Errorf("%s must be between %d and %d", name, MinRetentionHours, MaxRetentionHours)
		}
	}
	if c.ScheduleEnabled && c.Interval <= 0 {
		return fmt.Errorf("retention.interval must be positive when the schedule is enabled")
	}
	switch c.Lock {
	case "local":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("retention.redis_url is required for the redis lock")
		}
		if c.LockTTL <= 0 {
			return fmt.Errorf("retention.lock_ttl must be positive")
		}
	default:
		return fmt.Errorf("retention.lock must be 'local' or 'redis'")
	}
	return nil
}

// Validate validates gateway configuration
func (c *GatewayConfig) Validate() error {
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("gateway.retry_attempts must be between 1 and 10")
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("gateway.retry_base_delay cannot be negative")
	}
	return nil
}

// Validate validates export configuration
func (c *ExportConfig) Validate() error {
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("export.max_payload_bytes must be positive")
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 9 {
		return fmt.Errorf("export.compression_level must be between 1 and 9")
	}
	if c.DefaultWindow <= 0 || c.MaxWindow < c.DefaultWindow {
		return fmt.Errorf("export windows must be positive and max_window >= default_window")
	}
	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}
	return nil
}

// RetentionDefaults returns the configured default hours per data class.
func (c *Config) RetentionDefaults() map[reading.DataClass]int {
	return map[reading.DataClass]int{
		reading.ClassSensor:     c.Retention.SensorHours,
		reading.ClassDiagnostic: c.Retention.DiagnosticHours,
	}
}
