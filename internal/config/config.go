package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DaemonPort        int           `mapstructure:"daemon_port"`
	DBPath            string        `mapstructure:"db_path"`
	ChecksumAlgorithm string        `mapstructure:"checksum_algorithm"`
	ConflictPolicy    string        `mapstructure:"conflict_policy"`
	RetentionDays     int           `mapstructure:"retention_days"`
	RenameRetryCap    int           `mapstructure:"rename_retry_cap"`
	DebounceInterval  time.Duration `mapstructure:"debounce_interval"`
}

var Default = Config{
	DaemonPort:        9400,
	DBPath:            "packrat.db",
	ChecksumAlgorithm: "sha256",
	ConflictPolicy:    "rename",
	RetentionDays:     30,
	RenameRetryCap:    9999,
	DebounceInterval:  2 * time.Second,
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home dir: %w", err)
	}

	configDir := filepath.Join(home, ".packrat")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	viper.SetDefault("daemon_port", Default.DaemonPort)
	viper.SetDefault("db_path", filepath.Join(configDir, Default.DBPath))
	viper.SetDefault("checksum_algorithm", Default.ChecksumAlgorithm)
	viper.SetDefault("conflict_policy", Default.ConflictPolicy)
	viper.SetDefault("retention_days", Default.RetentionDays)
	viper.SetDefault("rename_retry_cap", Default.RenameRetryCap)
	viper.SetDefault("debounce_interval", Default.DebounceInterval)

	viper.SetEnvPrefix("PACKRAT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if ok := errors.As(err, &notFoundErr); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
