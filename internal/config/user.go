package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AppDirName is the directory name under the user's home directory holding
// Laminark's persisted state and config, per the external-interfaces layout.
const AppDirName = ".laminark"

// UserDataDir resolves ~/<app-dir>, creating no directories itself.
func UserDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, AppDirName), nil
}

// UserConfigPath returns ~/<app-dir>/config.json for a given data dir.
func UserConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.json")
}

// UserDBPath returns ~/<app-dir>/db.sqlite for a given data dir.
func UserDBPath(dataDir string) string {
	return filepath.Join(dataDir, "db.sqlite")
}

// UserConfig is the per-user config.json described in the external interfaces
// section: read once per process from ~/<app-dir>/config.json.
type UserConfig struct {
	Privacy   PrivacyConfig   `json:"privacy"`
	Processor UserProcessor   `json:"processor"`
	Detector  UserDetector    `json:"detector"`
	Curation  UserCurationCfg `json:"curation"`
}

// PrivacyConfig holds user-supplied additions to the default redaction/exclusion lists.
type PrivacyConfig struct {
	AdditionalPatterns []PatternRule `json:"additionalPatterns"`
	ExcludedFiles      []string      `json:"excludedFiles"`
}

// PatternRule is one user-supplied redaction rule, appended after the defaults.
type PatternRule struct {
	Regex       string `json:"regex"`
	Replacement string `json:"replacement"`
}

// UserProcessor overrides C4's interval/batch defaults.
type UserProcessor struct {
	IntervalMs int `json:"intervalMs"`
	BatchSize  int `json:"batchSize"`
}

// UserDetector overrides C6's alpha/sensitivity defaults.
type UserDetector struct {
	Alpha       float64 `json:"alpha"`
	Sensitivity float64 `json:"sensitivity"`
}

// UserCurationCfg overrides C8's tick interval.
type UserCurationCfg struct {
	IntervalMs int `json:"intervalMs"`
}

// DefaultUserConfig returns the documented defaults: processor.intervalMs=2000,
// processor.batchSize=20, detector.alpha=0.3, detector.sensitivity=1.5,
// curation.intervalMs=15min.
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Processor: UserProcessor{IntervalMs: 2000, BatchSize: 20},
		Detector:  UserDetector{Alpha: 0.3, Sensitivity: 1.5},
		Curation:  UserCurationCfg{IntervalMs: 15 * 60 * 1000},
	}
}

// LoadUserConfig reads config.json if present, applying documented defaults for
// any field left unset (zero-valued) in the file. A missing file is not an error.
func LoadUserConfig(path string) (*UserConfig, error) {
	cfg := DefaultUserConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	var onDisk UserConfig
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("failed to parse user config JSON: %w", err)
	}

	cfg.Privacy = onDisk.Privacy
	if onDisk.Processor.IntervalMs > 0 {
		cfg.Processor.IntervalMs = onDisk.Processor.IntervalMs
	}
	if onDisk.Processor.BatchSize > 0 {
		cfg.Processor.BatchSize = onDisk.Processor.BatchSize
	}
	if onDisk.Detector.Alpha > 0 {
		cfg.Detector.Alpha = onDisk.Detector.Alpha
	}
	if onDisk.Detector.Sensitivity > 0 {
		cfg.Detector.Sensitivity = onDisk.Detector.Sensitivity
	}
	if onDisk.Curation.IntervalMs > 0 {
		cfg.Curation.IntervalMs = onDisk.Curation.IntervalMs
	}

	return cfg, nil
}
