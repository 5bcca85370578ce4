// Package config binds the daemon's configuration from, in
// increasing precedence, built-in defaults, a YAML config file,
// and environment variables under the CORE_ namespace.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the antifraud daemon.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Plugins  PluginsConfig  `mapstructure:"plugins"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
}

// ServerConfig controls the admin HTTP API's listen address.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// StorageConfig describes the MySQL connection backing the plugin
// audit trail and dead-letter archive.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// QueueConfig selects and configures the event queue backend.
type QueueConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MemoryBuffer int    `mapstructure:"memory_buffer"`
}

// PluginsConfig locates the plugin manifest directory and manager config.
type PluginsConfig struct {
	Dir        string `mapstructure:"dir"`
	ConfigPath string `mapstructure:"config_path"`
	Watch      bool   `mapstructure:"watch"`
}

// MetricsConfig controls the standalone /metrics HTTP server.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
	Enabled bool   `mapstructure:"enabled"`
}

// LoggingConfig controls the slog handler's verbosity and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RuntimeConfig holds filesystem locations used at startup.
type RuntimeConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

const envPrefix = "CORE"

// Load builds a Config by layering, lowest to highest precedence,
// built-in defaults, an optional YAML file at path, and CORE_-prefixed
// environment variables (nested keys separated by "__", e.g.
// CORE_STORAGE__DSN).
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.max_open_conns", 20)
	v.SetDefault("storage.max_idle_conns", 10)
	v.SetDefault("storage.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.memory_buffer", 256)

	v.SetDefault("plugins.dir", "plugins")
	v.SetDefault("plugins.config_path", "")
	v.SetDefault("plugins.watch", false)

	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("runtime.data_dir", "data")
}
