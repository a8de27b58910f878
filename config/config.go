// Package config loads the query client settings from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/colorfulnotion/zylith/client"
	"github.com/colorfulnotion/zylith/felt"
	log "github.com/colorfulnotion/zylith/log"
	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/colorfulnotion/zylith/rpc"
	"github.com/colorfulnotion/zylith/scanner"
	"github.com/colorfulnotion/zylith/storage"
	"github.com/colorfulnotion/zylith/telemetry"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvRPCURL   = "ZYLITH_RPC_URL"
	EnvContract = "ZYLITH_CONTRACT"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Config captures every setting of the query client.
type Config struct {
	RPCURL          string        `yaml:"rpc_url"`
	Contract        string        `yaml:"contract"`
	DeploymentBlock uint64        `yaml:"deployment_block"`
	DepositSelector string        `yaml:"deposit_selector"`
	ChunkSize       int           `yaml:"chunk_size"`
	Probe           ProbeConfig   `yaml:"probe"`
	RateLimit       RateConfig    `yaml:"rate_limit"`
	Log             LogConfig     `yaml:"log"`
	Metrics         MetricsConfig `yaml:"metrics"`
	Tracing         TracingConfig `yaml:"tracing"`
}

// ProbeConfig bounds each storage candidate read.
type ProbeConfig struct {
	FirstTimeout Duration `yaml:"first_timeout"`
	NextTimeout  Duration `yaml:"next_timeout"`
}

// RateConfig throttles outgoing RPC calls. Zero RPS disables throttling.
type RateConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Modules string `yaml:"modules"`
}

// MetricsConfig enables the prometheus listener when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// TracingConfig enables OTLP/HTTP span export when Endpoint is set.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
}

// Default returns the settings of the Sepolia deployment without an
// endpoint or contract.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads path, applies defaults and environment overrides, and validates
// the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: open config: %w", poolerrors.ErrInvalidConfiguration, err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("%w: decode config: %w", poolerrors.ErrInvalidConfiguration, err)
		}
	}
	applyDefaults(&cfg)
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides the endpoint and contract from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvRPCURL)); v != "" {
		c.RPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvContract)); v != "" {
		c.Contract = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.DeploymentBlock == 0 {
		cfg.DeploymentBlock = scanner.DefaultDeploymentBlock
	}
	if cfg.DepositSelector == "" {
		cfg.DepositSelector = scanner.DefaultDepositSelector.Short()
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = scanner.DefaultChunkSize
	}
	if cfg.Probe.FirstTimeout.Duration == 0 {
		cfg.Probe.FirstTimeout.Duration = storage.DefaultFirstTimeout
	}
	if cfg.Probe.NextTimeout.Duration == 0 {
		cfg.Probe.NextTimeout.Duration = storage.DefaultNextTimeout
	}
	if cfg.RateLimit.RPS > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = log.FormatText
	}
}

// Validate checks the settings a client cannot be built without.
func (c Config) Validate() error {
	if err := rpc.ValidateURL(c.RPCURL); err != nil {
		return err
	}
	addr, err := felt.Parse(c.Contract)
	if err != nil {
		return fmt.Errorf("%w: contract %q: %v", poolerrors.ErrInvalidConfiguration, c.Contract, err)
	}
	if addr.IsZero() {
		return fmt.Errorf("%w: contract is zero", poolerrors.ErrInvalidConfiguration)
	}
	if _, err := felt.Parse(c.DepositSelector); err != nil {
		return fmt.Errorf("%w: deposit_selector %q: %v", poolerrors.ErrInvalidConfiguration, c.DepositSelector, err)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk_size must be positive", poolerrors.ErrInvalidConfiguration)
	}
	if c.Probe.FirstTimeout.Duration < 0 || c.Probe.NextTimeout.Duration < 0 {
		return fmt.Errorf("%w: probe timeouts must be positive", poolerrors.ErrInvalidConfiguration)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("%w: rate_limit.rps must not be negative", poolerrors.ErrInvalidConfiguration)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", poolerrors.ErrInvalidConfiguration, err)
	}
	switch c.Log.Format {
	case log.FormatText, log.FormatJSON:
	default:
		return fmt.Errorf("%w: log.format %q", poolerrors.ErrInvalidConfiguration, c.Log.Format)
	}
	return nil
}

// ClientConfig converts c into the client's construction settings.
func (c Config) ClientConfig(metrics *telemetry.Metrics) (client.Config, error) {
	if err := c.Validate(); err != nil {
		return client.Config{}, err
	}
	sel, err := felt.Parse(c.DepositSelector)
	if err != nil {
		return client.Config{}, fmt.Errorf("%w: deposit_selector: %v", poolerrors.ErrInvalidConfiguration, err)
	}
	return client.Config{
		RPCURL:   c.RPCURL,
		Contract: c.Contract,
		Scanner: scanner.Config{
			DeploymentBlock: c.DeploymentBlock,
			DepositSelector: sel,
			ChunkSize:       c.ChunkSize,
		},
		FirstProbeTimeout: c.Probe.FirstTimeout.Duration,
		NextProbeTimeout:  c.Probe.NextTimeout.Duration,
		RateLimit:         c.RateLimit.RPS,
		RateBurst:         c.RateLimit.Burst,
		Metrics:           metrics,
	}, nil
}

// TracingSettings converts the tracing section for telemetry.InitTracing.
func (c Config) TracingSettings() telemetry.TracingConfig {
	return telemetry.TracingConfig{
		ServiceName: "zylith-query",
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		Headers:     telemetry.ParseHeaders(c.Tracing.Headers),
	}
}
