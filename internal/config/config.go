// Package config loads service configuration from defaults, an optional
// config file, environment variables, and runtime overrides, in ascending
// precedence.
package config

import "time"

// Config is the effective configuration after Load.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Jobs    JobsConfig    `mapstructure:"jobs" yaml:"jobs"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Health  HealthConfig  `mapstructure:"health" yaml:"health"`
	Debug   DebugConfig   `mapstructure:"debug" yaml:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Profile string `mapstructure:"profile" yaml:"profile"`
	File    string `mapstructure:"file" yaml:"file"`
}

type BrowserConfig struct {
	Headless bool          `mapstructure:"headless" yaml:"headless"`
	Stealth  bool          `mapstructure:"stealth" yaml:"stealth"`
	Proxy    string        `mapstructure:"proxy" yaml:"proxy"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type StorageConfig struct {
	SessionsDir string `mapstructure:"sessions_dir" yaml:"sessions_dir"`
	RunsDir     string `mapstructure:"runs_dir" yaml:"runs_dir"`
	ReportsDir  string `mapstructure:"reports_dir" yaml:"reports_dir"`
}

type JobsConfig struct {
	// IdleTimeout fails login jobs stuck waiting for a code. Zero keeps
	// them until process exit.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	// CreateRate caps job creation in jobs per second. Zero disables the cap.
	CreateRate  float64 `mapstructure:"create_rate" yaml:"create_rate"`
	CreateBurst int     `mapstructure:"create_burst" yaml:"create_burst"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled" yaml:"pprof_enabled"`
}
