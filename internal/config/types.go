package config

import "time"

// LogConfig holds logging configuration shared by shoveld and shovelctl.
type LogConfig struct {
	Level           string   `mapstructure:"level" yaml:"level"`                       // debug, info, warn, error
	Format          string   `mapstructure:"format" yaml:"format"`                     // text, json
	Output          string   `mapstructure:"output" yaml:"output"`                     // stdout, stderr, or file path
	FilePath        string   `mapstructure:"file_path" yaml:"file_path"`               // path to log file (in addition to output)
	MaxSizeMB       int      `mapstructure:"max_size_mb" yaml:"max_size_mb"`           // max size in MB before rotation
	MaxBackups      int      `mapstructure:"max_backups" yaml:"max_backups"`           // max number of old log files to keep
	MaxAgeDays      int      `mapstructure:"max_age_days" yaml:"max_age_days"`         // max days to retain old log files
	EnableCaller    bool     `mapstructure:"enable_caller" yaml:"enable_caller"`       // include source file/line in logs
	AuditPath       string   `mapstructure:"audit_path" yaml:"audit_path"`             // path to audit log file
	AuditMaxAgeDays int      `mapstructure:"audit_max_age_days" yaml:"audit_max_age_days"` // max days to retain audit logs
	RedactFields    []string `mapstructure:"redact_fields" yaml:"redact_fields"`       // field names to redact from logs (e.g. dsn)
}

// CoordStoreConfig configures the embedded coordination-store backing file.
type CoordStoreConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`                         // sqlite file path
	LeasePollEvery time.Duration `mapstructure:"lease_poll_every" yaml:"lease_poll_every"` // lease acquisition retry interval; not passed to consumers, which use their 50ms default
	LeaseTTL       time.Duration `mapstructure:"lease_ttl" yaml:"lease_ttl"`               // lease time-to-live; not passed to consumers, which use their 30s default
}

// ClusterConfig names the cluster this process administers or serves.
type ClusterConfig struct {
	Name             string `mapstructure:"name" yaml:"name"`
	Version          string `mapstructure:"version" yaml:"version"`
	CoordStorePrefix string `mapstructure:"coord_store_prefix" yaml:"coord_store_prefix"`
}

// DatabaseHostConfig is one Postgres host a Coordinator supervises at runtime.
type DatabaseHostConfig struct {
	DSN           string   `mapstructure:"dsn" yaml:"dsn"`
	Sets          []string `mapstructure:"sets" yaml:"sets"`
	ConsumerGroup string   `mapstructure:"consumer_group" yaml:"consumer_group"`
}

// MetricsConfig configures the Prometheus HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// ShovelctlConfig is the complete configuration for the shovelctl CLI.
type ShovelctlConfig struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Cluster    ClusterConfig    `mapstructure:"cluster" yaml:"cluster"`
	CoordStore CoordStoreConfig `mapstructure:"coord_store" yaml:"coord_store"`
}

// ShoveldConfig is the complete configuration for the shoveld daemon.
type ShoveldConfig struct {
	Log        LogConfig            `mapstructure:"log" yaml:"log"`
	Cluster    ClusterConfig        `mapstructure:"cluster" yaml:"cluster"`
	CoordStore CoordStoreConfig     `mapstructure:"coord_store" yaml:"coord_store"`
	Databases  []DatabaseHostConfig `mapstructure:"databases" yaml:"databases"`
	Metrics    MetricsConfig        `mapstructure:"metrics" yaml:"metrics"`
	DataDir    string               `mapstructure:"data_dir" yaml:"data_dir"`
	PIDFile    string               `mapstructure:"pid_file" yaml:"pid_file"`
}

// DefaultShovelctlConfig returns sensible defaults for the shovelctl CLI.
func DefaultShovelctlConfig() *ShovelctlConfig {
	return &ShovelctlConfig{
		Log: LogConfig{
			Level:        "info",
			Format:       "text",
			Output:       "stderr",
			MaxSizeMB:    100,
			MaxBackups:   3,
			MaxAgeDays:   28,
			RedactFields: []string{"dsn", "password", "token", "secret"},
		},
		Cluster: ClusterConfig{
			CoordStorePrefix: "shovel",
		},
		CoordStore: CoordStoreConfig{
			Path:           "~/.local/share/shovelctl/coordstore.db",
			LeasePollEvery: 50 * time.Millisecond,
			LeaseTTL:       30 * time.Second,
		},
	}
}

// DefaultShoveldConfig returns sensible defaults for the shoveld daemon.
func DefaultShoveldConfig() *ShoveldConfig {
	return &ShoveldConfig{
		Log: LogConfig{
			Level:           "info",
			Format:          "json",
			Output:          "stdout",
			MaxSizeMB:       100,
			MaxBackups:      3,
			MaxAgeDays:      28,
			EnableCaller:    true,
			AuditMaxAgeDays: 365,
			RedactFields:    []string{"dsn", "password", "token", "secret"},
		},
		Cluster: ClusterConfig{
			CoordStorePrefix: "shovel",
		},
		CoordStore: CoordStoreConfig{
			Path:           "~/.local/share/shoveld/coordstore.db",
			LeasePollEvery: 50 * time.Millisecond,
			LeaseTTL:       30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    9110,
		},
		DataDir: "~/.local/share/shoveld",
		PIDFile: "/var/run/shoveld.pid",
	}
}
