package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	AppShoveld   = "shoveld"
	AppShovelctl = "shovelctl"
)

// configSearchPaths returns the paths to search for config files in the
// order Viper searches them: the first path holding a config file wins.
func configSearchPaths(appName string) []string {
	paths := []string{}

	paths = append(paths, filepath.Join("/etc", appName))

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)
	}

	return paths
}

// UserConfigDir returns the user-specific config directory for the app.
func UserConfigDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

func newViper(appName string) *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	for _, path := range configSearchPaths(appName) {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadShoveld loads the configuration for the shoveld daemon.
func LoadShoveld(cfgFile string) (*ShoveldConfig, error) {
	v := newViper(AppShoveld)
	setViperDefaults(v, DefaultShoveldConfig())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg ShoveldConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadShovelctl loads the configuration for the shovelctl CLI.
func LoadShovelctl(cfgFile string) (*ShovelctlConfig, error) {
	v := newViper(AppShovelctl)
	setViperDefaults(v, DefaultShovelctlConfig())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg ShovelctlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setViperDefaults(v *viper.Viper, cfg interface{}) {
	switch c := cfg.(type) {
	case *ShoveldConfig:
		v.SetDefault("log.level", c.Log.Level)
		v.SetDefault("log.format", c.Log.Format)
		v.SetDefault("log.output", c.Log.Output)
		v.SetDefault("log.max_size_mb", c.Log.MaxSizeMB)
		v.SetDefault("log.max_backups", c.Log.MaxBackups)
		v.SetDefault("log.max_age_days", c.Log.MaxAgeDays)
		v.SetDefault("log.redact_fields", c.Log.RedactFields)
		v.SetDefault("cluster.coord_store_prefix", c.Cluster.CoordStorePrefix)
		v.SetDefault("coord_store.path", c.CoordStore.Path)
		v.SetDefault("coord_store.lease_poll_every", c.CoordStore.LeasePollEvery)
		v.SetDefault("coord_store.lease_ttl", c.CoordStore.LeaseTTL)
		v.SetDefault("metrics.enabled", c.Metrics.Enabled)
		v.SetDefault("metrics.host", c.Metrics.Host)
		v.SetDefault("metrics.port", c.Metrics.Port)
		v.SetDefault("data_dir", c.DataDir)
		v.SetDefault("pid_file", c.PIDFile)
	case *ShovelctlConfig:
		v.SetDefault("log.level", c.Log.Level)
		v.SetDefault("log.format", c.Log.Format)
		v.SetDefault("log.output", c.Log.Output)
		v.SetDefault("cluster.coord_store_prefix", c.Cluster.CoordStorePrefix)
		v.SetDefault("coord_store.path", c.CoordStore.Path)
		v.SetDefault("coord_store.lease_poll_every", c.CoordStore.LeasePollEvery)
		v.SetDefault("coord_store.lease_ttl", c.CoordStore.LeaseTTL)
	}
}

// ConfigFileUsed returns the config file path that was loaded, if any.
func ConfigFileUsed(appName string) string {
	v := newViper(appName)
	_ = v.ReadInConfig()
	return v.ConfigFileUsed()
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
