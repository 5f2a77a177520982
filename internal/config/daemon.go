package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DaemonConfig is the root configuration for the laminarkd server process,
// loaded once at startup and never re-read while the process is running.
type DaemonConfig struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Processor ProcessorConfig `yaml:"processor" json:"processor"`
	Curation  CurationConfig  `yaml:"curation" json:"curation"`
}

// ServerConfig holds daemon networking settings.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port" json:"http_port"`
	NATSPort int `yaml:"nats_port" json:"nats_port"`
}

// StoreConfig points at the embedded SQL database file.
type StoreConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ProcessorConfig holds the C4 background worker's defaults; these are
// overridable per-process by the user-facing config.json (see UserConfig).
type ProcessorConfig struct {
	IntervalMs int `yaml:"interval_ms" json:"interval_ms"`
	BatchSize  int `yaml:"batch_size" json:"batch_size"`
}

// CurationConfig holds the C8 periodic pass's tick interval.
type CurationConfig struct {
	IntervalMs int `yaml:"interval_ms" json:"interval_ms"`
}

// DefaultDaemonConfig returns the daemon's out-of-the-box settings.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Server: ServerConfig{
			HTTPPort: 7870,
			NATSPort: 7871,
		},
		Store: StoreConfig{
			DataDir: "data",
		},
		Processor: ProcessorConfig{
			IntervalMs: 2000,
			BatchSize:  20,
		},
		Curation: CurationConfig{
			IntervalMs: 15 * 60 * 1000,
		},
	}
}

// LoadDaemonConfig loads configuration from a YAML file, falling back to
// defaults when the file does not exist.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultDaemonConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon config: %w", err)
	}

	config := DefaultDaemonConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse daemon config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon configuration: %w", err)
	}

	return config, nil
}

// Validate checks the daemon config for obviously invalid values.
func (c *DaemonConfig) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}
	if c.Server.NATSPort <= 0 || c.Server.NATSPort > 65535 {
		return fmt.Errorf("invalid nats port: %d", c.Server.NATSPort)
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store data_dir is required")
	}
	if c.Processor.IntervalMs <= 0 {
		return fmt.Errorf("processor interval_ms must be positive")
	}
	if c.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor batch_size must be positive")
	}
	if c.Curation.IntervalMs <= 0 {
		return fmt.Errorf("curation interval_ms must be positive")
	}
	return nil
}
