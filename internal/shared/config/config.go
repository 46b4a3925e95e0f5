// Package config provides configuration management
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cluster2600/ALBATOR/internal/shared/utils"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// CandidatePaths are the config file locations probed in order, relative to
// the root directory.
var CandidatePaths = []string{
	"config.yaml",
	filepath.Join("config", "albator.yaml"),
}

// GatePolicy is the version policy the preflight gate enforces. It is read
// by the gate controller and evaluator, never written.
type GatePolicy struct {
	MinMacOSVersion   string `yaml:"min_macos_version" validate:"required"`
	EnforceMinVersion bool   `yaml:"enforce_min_version"`
}

// RollbackConfig controls rollback point recording.
type RollbackConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BackupLocation string `yaml:"backup_location" validate:"required"`
	KeepCount      int    `yaml:"keep_count" validate:"gte=0"`
}

// DependencyConfig lists the external tools preflight probes for.
type DependencyConfig struct {
	Required []string `yaml:"required" validate:"required,min=1,dive,required"`
	Optional []string `yaml:"optional" validate:"dive,required"`
}

// ServerConfig configures the local web console API.
type ServerConfig struct {
	APIKey       string `yaml:"api_key"`
	Listen       string `yaml:"listen" validate:"required"`
	ReadTimeout  int    `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout int    `yaml:"write_timeout" validate:"gt=0"`
}

// Config is the full tool configuration. Unknown fields in the source file
// are rejected at load time.
type Config struct {
	RootDir             string           `yaml:"root_dir"`
	ScriptsDir          string           `yaml:"scripts_dir"`
	ProbeTimeoutSeconds int              `yaml:"probe_timeout_seconds" validate:"gt=0"`
	Preflight           GatePolicy       `yaml:"preflight"`
	Rollback            RollbackConfig   `yaml:"rollback"`
	Dependencies        DependencyConfig `yaml:"dependencies"`
	Server              ServerConfig     `yaml:"server"`
}

// Default returns the built-in configuration used when no config file is
// found.
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		RootDir:             cwd,
		ScriptsDir:          cwd,
		ProbeTimeoutSeconds: 30,
		Preflight: GatePolicy{
			MinMacOSVersion:   "26.3",
			EnforceMinVersion: true,
		},
		Rollback: RollbackConfig{
			Enabled:        true,
			BackupLocation: "/tmp/albator_backup",
			KeepCount:      10,
		},
		Dependencies: DependencyConfig{
			Required: []string{"curl", "jq"},
			Optional: []string{"pup"},
		},
		Server: ServerConfig{
			Listen:       "127.0.0.1:9876",
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
	}
}

// Load reads the configuration from path, or from the first readable
// candidate under rootDir when path is empty. A missing file is not an
// error; defaults apply and the returned source is empty. A present but
// malformed file is an error.
func Load(path, rootDir string) (*Config, string, error) {
	cfg := Default()
	if rootDir != "" {
		cfg.RootDir = rootDir
		cfg.ScriptsDir = rootDir
	}

	source := path
	if source == "" {
		for _, candidate := range CandidatePaths {
			full := filepath.Join(cfg.RootDir, candidate)
			if utils.IsReadable(full) {
				source = full
				break
			}
		}
	}
	if source == "" {
		return cfg, "", nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, source, fmt.Errorf("failed to open config %s: %w", source, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, source, fmt.Errorf("failed to parse config %s: %w", source, err)
	}

	return cfg, source, nil
}

// Validate returns schema errors as human-readable strings, one per
// violated field. An empty slice means the configuration is usable.
func (c *Config) Validate() []string {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var errs []string
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	for _, fe := range validationErrors {
		errs = append(errs, fmt.Sprintf("field %s failed %q validation", fe.Namespace(), fe.Tag()))
	}
	return errs
}

// ProbeTimeout returns the per-probe subprocess timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}
