package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "TELEPILOT"
	configName     = "telepilot"
	configFileType = "yaml"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envSpec maps a short environment variable to its config path. The short
// names exist alongside the automatic TELEPILOT_SECTION_KEY form so that
// container deployments can use the conventional flat names.
type envSpec struct {
	Name string
	Path string
}

func getEnvSpecs() []envSpec {
	return []envSpec{
		{Name: envPrefix + "_HOST", Path: "server.host"},
		{Name: envPrefix + "_PORT", Path: "server.port"},
		{Name: envPrefix + "_READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: envPrefix + "_WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: envPrefix + "_SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: envPrefix + "_LOG_LEVEL", Path: "logging.level"},
		{Name: envPrefix + "_LOG_PROFILE", Path: "logging.profile"},
		{Name: envPrefix + "_LOG_FILE", Path: "logging.file"},
		{Name: envPrefix + "_HEADLESS", Path: "browser.headless"},
		{Name: envPrefix + "_STEALTH", Path: "browser.stealth"},
		{Name: envPrefix + "_PROXY", Path: "browser.proxy"},
		{Name: envPrefix + "_SESSIONS_DIR", Path: "storage.sessions_dir"},
		{Name: envPrefix + "_RUNS_DIR", Path: "storage.runs_dir"},
		{Name: envPrefix + "_REPORTS_DIR", Path: "storage.reports_dir"},
		{Name: envPrefix + "_METRICS_ENABLED", Path: "metrics.enabled"},
		{Name: envPrefix + "_METRICS_PORT", Path: "metrics.port"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")
	v.SetDefault("logging.file", "")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.timeout", "30s")

	v.SetDefault("storage.sessions_dir", "sessions")
	v.SetDefault("storage.runs_dir", "runs")
	v.SetDefault("storage.reports_dir", "reports")

	v.SetDefault("jobs.idle_timeout", "0s")
	v.SetDefault("jobs.create_rate", 0.0)
	v.SetDefault("jobs.create_burst", 1)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// Load builds the configuration. Precedence, lowest to highest: defaults,
// config file, environment variables, runtime overrides. A .env file in the
// working directory is folded into the environment first. The result is
// cached for GetConfig.
func Load(_ context.Context, overrides ...map[string]any) (*Config, error) {
	// Best-effort; a missing .env file is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	// Runtime overrides win over everything, including environment.
	for _, override := range overrides {
		for key, value := range flatten("", override) {
			v.Set(key, value)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil before
// the first Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", cfg.Metrics.Port)
	}
	if cfg.Storage.SessionsDir == "" {
		return fmt.Errorf("storage.sessions_dir must not be empty")
	}
	if cfg.Jobs.CreateRate < 0 {
		return fmt.Errorf("jobs.create_rate must not be negative")
	}
	return nil
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}
