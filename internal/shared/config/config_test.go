package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Preflight.MinMacOSVersion != "26.3" {
		t.Errorf("MinMacOSVersion = %q, want %q", cfg.Preflight.MinMacOSVersion, "26.3")
	}
	if !cfg.Preflight.EnforceMinVersion {
		t.Error("EnforceMinVersion should default to true")
	}
	if !cfg.Rollback.Enabled {
		t.Error("Rollback should be enabled by default")
	}
	if cfg.Rollback.KeepCount != 10 {
		t.Errorf("KeepCount = %d, want 10", cfg.Rollback.KeepCount)
	}
	if cfg.ProbeTimeoutSeconds != 30 {
		t.Errorf("ProbeTimeoutSeconds = %d, want 30", cfg.ProbeTimeoutSeconds)
	}
	if len(cfg.Dependencies.Required) == 0 {
		t.Error("Required dependencies should not be empty")
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default config should validate, got %v", errs)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, source, err := Load("", tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if source != "" {
		t.Errorf("source = %q, want empty for defaults", source)
	}
	if cfg.RootDir != tmpDir {
		t.Errorf("RootDir = %q, want %q", cfg.RootDir, tmpDir)
	}
	if cfg.Preflight.MinMacOSVersion != "26.3" {
		t.Errorf("MinMacOSVersion = %q, want default", cfg.Preflight.MinMacOSVersion)
	}
}

func TestLoadFromCandidate(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
preflight:
  min_macos_version: "27.0"
  enforce_min_version: false
rollback:
  enabled: false
  backup_location: /var/backups/albator
  keep_count: 5
`
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, source, err := Load("", tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if source != path {
		t.Errorf("source = %q, want %q", source, path)
	}
	if cfg.Preflight.MinMacOSVersion != "27.0" {
		t.Errorf("MinMacOSVersion = %q, want 27.0", cfg.Preflight.MinMacOSVersion)
	}
	if cfg.Preflight.EnforceMinVersion {
		t.Error("EnforceMinVersion should be false")
	}
	if cfg.Rollback.Enabled {
		t.Error("Rollback should be disabled")
	}
	if cfg.Rollback.KeepCount != 5 {
		t.Errorf("KeepCount = %d, want 5", cfg.Rollback.KeepCount)
	}
	// Sections not present keep their defaults
	if len(cfg.Dependencies.Required) == 0 {
		t.Error("Dependencies should keep defaults")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
preflight:
  min_macos_version: "26.3"
  minimum_version_enforced: true
`
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, _, err := Load(path, tmpDir)
	if err == nil {
		t.Fatal("Load should reject unknown fields")
	}
	if !strings.Contains(err.Error(), "minimum_version_enforced") {
		t.Errorf("error should name the unknown field, got %v", err)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("preflight: [not a mapping"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, _, err := Load(path, tmpDir); err == nil {
		t.Fatal("Load should fail on malformed YAML")
	}
}

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing min version",
			mutate:  func(c *Config) { c.Preflight.MinMacOSVersion = "" },
			wantErr: "MinMacOSVersion",
		},
		{
			name:    "missing backup location",
			mutate:  func(c *Config) { c.Rollback.BackupLocation = "" },
			wantErr: "BackupLocation",
		},
		{
			name:    "empty required deps",
			mutate:  func(c *Config) { c.Dependencies.Required = nil },
			wantErr: "Required",
		},
		{
			name:    "negative keep count",
			mutate:  func(c *Config) { c.Rollback.KeepCount = -1 },
			wantErr: "KeepCount",
		},
		{
			name:    "zero probe timeout",
			mutate:  func(c *Config) { c.ProbeTimeoutSeconds = 0 },
			wantErr: "ProbeTimeoutSeconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("Validate should report errors")
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v should mention %q", errs, tt.wantErr)
			}
		})
	}
}
