package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultInterval       = time.Minute
	defaultFetchTimeout   = 30 * time.Second
	defaultMetricsAddr    = ":9090"
	defaultLogLevel       = "info"
	defaultLogEnv         = "prod"
	defaultMaxAttempts    = 4
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 8 * time.Second
)

// Duration wraps time.Duration so yaml values like "30s" decode.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Interval       Duration                     `yaml:"interval"`
	FetchTimeout   Duration                     `yaml:"fetchTimeout"`
	Debug          bool                         `yaml:"debug"`
	Zones          []string                     `yaml:"zones"`
	MetricsAddr    string                       `yaml:"metricsAddr"`
	Log            Log                          `yaml:"log"`
	Plugins        []string                     `yaml:"plugins"`
	PluginSettings map[string]map[string]string `yaml:"pluginSettings"`
	Submit         Submit                       `yaml:"submit"`
	Diff           Diff                         `yaml:"diff"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

type Submit struct {
	MaxAttempts    int      `yaml:"maxAttempts"`
	InitialBackoff Duration `yaml:"initialBackoff"`
	MaxBackoff     Duration `yaml:"maxBackoff"`
	DryRun         bool     `yaml:"dryRun"`
}

type Diff struct {
	// OrderInsensitiveTypes lists record types whose rrdata compares as an
	// unordered multiset. Everything else compares order-sensitively.
	OrderInsensitiveTypes []string `yaml:"orderInsensitiveTypes"`
}

func Load(path string) (*Config, error) {
	configFile := true
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("fail find config file, proceeding", "path", path)
		configFile = false
	}

	var cfg Config
	if configFile {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, err
		}
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	// Plugin settings may reference secrets via ${ENV_VAR}.
	for _, settings := range cfg.PluginSettings {
		for k, v := range settings {
			settings[k] = os.ExpandEnv(v)
		}
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Interval == 0 {
		cfg.Interval = Duration(defaultInterval)
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = Duration(defaultFetchTimeout)
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = defaultMetricsAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = defaultLogEnv
	}
	if cfg.Submit.MaxAttempts == 0 {
		cfg.Submit.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Submit.InitialBackoff == 0 {
		cfg.Submit.InitialBackoff = Duration(defaultInitialBackoff)
	}
	if cfg.Submit.MaxBackoff == 0 {
		cfg.Submit.MaxBackoff = Duration(defaultMaxBackoff)
	}
	if cfg.PluginSettings == nil {
		cfg.PluginSettings = map[string]map[string]string{}
	}
}

// Override from environment if set
func (cfg *Config) applyEnv() {
	if interval := os.Getenv("DNS_RECONCILER_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Interval = Duration(d)
		} else {
			slog.Default().Warn("fail parse interval to duration from string", "interval", interval, "error", err)
		}
	}
	if timeout := os.Getenv("DNS_RECONCILER_FETCH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.FetchTimeout = Duration(d)
		} else {
			slog.Default().Warn("fail parse fetch timeout to duration from string", "timeout", timeout, "error", err)
		}
	}
	if debug := os.Getenv("DNS_RECONCILER_DEBUG"); debug != "" {
		if b, err := strconv.ParseBool(debug); err == nil {
			cfg.Debug = b
		} else {
			slog.Default().Warn("fail parse debug to bool from string", "debug", debug)
		}
	}
	if zones := os.Getenv("DNS_RECONCILER_ZONES"); zones != "" {
		cfg.Zones = strings.Split(zones, ",")
	}
	if plugins := os.Getenv("DNS_RECONCILER_PLUGINS"); plugins != "" {
		cfg.Plugins = strings.Split(plugins, ",")
	}
	if addr := os.Getenv("DNS_RECONCILER_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}
	if dryRun := os.Getenv("DNS_RECONCILER_DRYRUN"); dryRun != "" {
		if b, err := strconv.ParseBool(dryRun); err == nil {
			cfg.Submit.DryRun = b
		} else {
			slog.Default().Warn("fail parse dryrun to bool from string", "dryrun", dryRun)
		}
	}
	if level := os.Getenv("DNS_RECONCILER_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if env := os.Getenv("DNS_RECONCILER_LOG_ENV"); env != "" {
		cfg.Log.Env = env
	}
}
