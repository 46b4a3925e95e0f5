package main

import (
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

func boolPtr(v bool) *bool { return &v }

func TestExtractGateOverrides(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantVersion string
		wantEnforce *bool
		wantRest    []string
	}{
		{
			name:     "no overrides",
			args:     []string{"--dry-run", "--level", "strict"},
			wantRest: []string{"--dry-run", "--level", "strict"},
		},
		{
			name:        "separate value",
			args:        []string{"--min-macos-version", "14.0", "--dry-run"},
			wantVersion: "14.0",
			wantRest:    []string{"--dry-run"},
		},
		{
			name:        "equals value",
			args:        []string{"--min-macos-version=15.1"},
			wantVersion: "15.1",
			wantRest:    []string{},
		},
		{
			name:        "enforce bare",
			args:        []string{"--enforce-min-version"},
			wantEnforce: boolPtr(true),
			wantRest:    []string{},
		},
		{
			name:        "enforce false",
			args:        []string{"--enforce-min-version=false", "--dry-run"},
			wantEnforce: boolPtr(false),
			wantRest:    []string{"--dry-run"},
		},
		{
			name:        "both overrides before script args",
			args:        []string{"--min-macos-version", "14.0", "--enforce-min-version=true", "--verbose-script"},
			wantVersion: "14.0",
			wantEnforce: boolPtr(true),
			wantRest:    []string{"--verbose-script"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minVersion, enforce, rest := extractGateOverrides(tt.args)
			if minVersion != tt.wantVersion {
				t.Errorf("minVersion = %q, want %q", minVersion, tt.wantVersion)
			}
			if (enforce == nil) != (tt.wantEnforce == nil) {
				t.Fatalf("enforce = %v, want %v", enforce, tt.wantEnforce)
			}
			if enforce != nil && *enforce != *tt.wantEnforce {
				t.Errorf("*enforce = %v, want %v", *enforce, *tt.wantEnforce)
			}
			if !reflect.DeepEqual(rest, tt.wantRest) {
				t.Errorf("rest = %v, want %v", rest, tt.wantRest)
			}
		})
	}
}

func TestGateOverridesFromFlags(t *testing.T) {
	defer func() {
		minMacOSVersion = ""
		enforceMinVersion = false
	}()

	var gotVersion string
	var gotEnforce *bool
	cmd := &cobra.Command{
		Use: "apply",
		RunE: func(cmd *cobra.Command, args []string) error {
			gotVersion, gotEnforce = gateOverrides(cmd)
			return nil
		},
	}
	cmd.Flags().StringVar(&minMacOSVersion, "min-macos-version", "", "")
	cmd.Flags().BoolVar(&enforceMinVersion, "enforce-min-version", false, "")

	cmd.SetArgs([]string{"--min-macos-version", "14.0", "--enforce-min-version=false"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotVersion != "14.0" {
		t.Errorf("minVersion = %q, want %q", gotVersion, "14.0")
	}
	if gotEnforce == nil || *gotEnforce {
		t.Errorf("enforce = %v, want false", gotEnforce)
	}
}

func TestGateOverridesUnsetFlags(t *testing.T) {
	defer func() {
		minMacOSVersion = ""
		enforceMinVersion = false
	}()

	var gotVersion string
	var gotEnforce *bool
	cmd := &cobra.Command{
		Use: "apply",
		RunE: func(cmd *cobra.Command, args []string) error {
			gotVersion, gotEnforce = gateOverrides(cmd)
			return nil
		},
	}
	cmd.Flags().StringVar(&minMacOSVersion, "min-macos-version", "", "")
	cmd.Flags().BoolVar(&enforceMinVersion, "enforce-min-version", false, "")

	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotVersion != "" {
		t.Errorf("minVersion = %q, want empty", gotVersion)
	}
	if gotEnforce != nil {
		t.Errorf("enforce = %v, want nil", gotEnforce)
	}
}
