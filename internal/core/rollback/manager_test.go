package rollback

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cluster2600/ALBATOR/internal/core/adapter"
	"github.com/cluster2600/ALBATOR/internal/shared/config"
	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"go.uber.org/zap"
)

type fakeRunner struct {
	results map[string]*adapter.CommandResult
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (*adapter.CommandResult, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, key)
	if result, ok := f.results[key]; ok {
		return result, nil
	}
	return &adapter.CommandResult{ExitCode: 1, Stderr: "command not faked: " + key}, nil
}

func newTestManager(t *testing.T, runner *fakeRunner) *Manager {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.RollbackConfig{
		Enabled:        true,
		BackupLocation: t.TempDir(),
		KeepCount:      10,
	}
	m := NewManager(cfg, adapter.NewSystemAdapter(runner, logger), logger)
	m.now = func() time.Time {
		return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	}
	return m
}

func TestCreateRollbackPoint(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})

	id, err := m.CreateRollbackPoint(context.Background(), "privacy", "before privacy hardening")
	if err != nil {
		t.Fatal(err)
	}
	if id != "privacy_20260829_120000" {
		t.Errorf("id = %q", id)
	}

	point, err := m.LoadPoint(id)
	if err != nil {
		t.Fatal(err)
	}
	if point.Component != "privacy" || point.Description != "before privacy hardening" {
		t.Errorf("metadata = %+v", point)
	}
	if len(point.Backups) != 0 {
		t.Errorf("new point has %d backups, want 0", len(point.Backups))
	}
}

func TestCreateRollbackPointSameSecondCollision(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	ctx := context.Background()

	first, err := m.CreateRollbackPoint(ctx, "firewall", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.CreateRollbackPoint(ctx, "firewall", "")
	if err != nil {
		t.Fatal(err)
	}
	third, err := m.CreateRollbackPoint(ctx, "firewall", "")
	if err != nil {
		t.Fatal(err)
	}

	if first != "firewall_20260829_120000" {
		t.Errorf("first = %q", first)
	}
	if second != "firewall_20260829_120000_2" {
		t.Errorf("second = %q", second)
	}
	if third != "firewall_20260829_120000_3" {
		t.Errorf("third = %q", third)
	}
}

func TestCreateRollbackPointUnusableRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(root, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()
	m := NewManager(config.RollbackConfig{
		Enabled:        true,
		BackupLocation: root,
	}, adapter.NewSystemAdapter(&fakeRunner{}, logger), logger)

	_, err := m.CreateRollbackPoint(context.Background(), "privacy", "")
	if err == nil {
		t.Fatal("expected error for unusable backup root")
	}
	if !strings.Contains(err.Error(), types.ErrBackupRootUnavailable.Error()) {
		t.Errorf("error = %v", err)
	}
}

func TestDisabledManagerIsNoop(t *testing.T) {
	logger := zap.NewNop()
	m := NewManager(config.RollbackConfig{
		Enabled:        false,
		BackupLocation: t.TempDir(),
	}, adapter.NewSystemAdapter(&fakeRunner{}, logger), logger)
	ctx := context.Background()

	id, err := m.CreateRollbackPoint(ctx, "privacy", "")
	if err != nil || id != "" {
		t.Fatalf("disabled create = (%q, %v), want empty id", id, err)
	}
	if m.BackupDefaultsSetting(ctx, id, "com.example", "Key", false) {
		t.Error("backup with empty id must return false")
	}

	result, err := m.Restore(ctx, id, false)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success() || result.Attempted != 0 {
		t.Errorf("empty-id restore = %+v", result)
	}
}

func TestBackupAndRestoreRoundTrip(t *testing.T) {
	runner := &fakeRunner{results: map[string]*adapter.CommandResult{
		"defaults read com.example.app KeyA":           {Stdout: "1", ExitCode: 0},
		"defaults read com.example.app KeyB":           {ExitCode: 1}, // absent key
		"sudo -n defaults read com.example.sys Tracking": {Stdout: "enabled", ExitCode: 0},
		"sudo -n launchctl list com.apple.captiveagent": {Stdout: "{...}", ExitCode: 0},
		"defaults write com.example.app KeyA 1":          {ExitCode: 0},
		"defaults delete com.example.app KeyB":           {ExitCode: 0},
		"sudo -n defaults write com.example.sys Tracking enabled": {ExitCode: 0},
		"sudo -n launchctl load -w /System/Library/LaunchDaemons/com.apple.captiveagent.plist": {ExitCode: 0},
	}}
	m := newTestManager(t, runner)
	ctx := context.Background()

	id, err := m.CreateRollbackPoint(ctx, "privacy", "round trip")
	if err != nil {
		t.Fatal(err)
	}
	if !m.BackupDefaultsSetting(ctx, id, "com.example.app", "KeyA", false) {
		t.Fatal("backup KeyA failed")
	}
	if !m.BackupDefaultsSetting(ctx, id, "com.example.app", "KeyB", false) {
		t.Fatal("backup KeyB failed")
	}
	if !m.BackupDefaultsSetting(ctx, id, "com.example.sys", "Tracking", true) {
		t.Fatal("backup Tracking failed")
	}
	if !m.BackupServiceState(ctx, id, "com.apple.captiveagent") {
		t.Fatal("backup service failed")
	}

	point, err := m.LoadPoint(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(point.Backups) != 4 {
		t.Fatalf("backups = %d, want 4", len(point.Backups))
	}

	runner.calls = nil
	result, err := m.Restore(ctx, id, false)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success() || result.Restored != 4 || result.Failed != 0 {
		t.Fatalf("result = %+v", result)
	}

	// Reverse capture order: service first, KeyA last.
	want := []string{
		"sudo -n launchctl load -w /System/Library/LaunchDaemons/com.apple.captiveagent.plist",
		"sudo -n defaults write com.example.sys Tracking enabled",
		"defaults delete com.example.app KeyB",
		"defaults write com.example.app KeyA 1",
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("calls = %v", runner.calls)
	}
	for i := range want {
		if runner.calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, runner.calls[i], want[i])
		}
	}
}

func TestRestoreDryRunMutatesNothing(t *testing.T) {
	runner := &fakeRunner{results: map[string]*adapter.CommandResult{
		"defaults read com.example.app KeyA": {Stdout: "1", ExitCode: 0},
	}}
	m := newTestManager(t, runner)
	ctx := context.Background()

	id, _ := m.CreateRollbackPoint(ctx, "privacy", "")
	m.BackupDefaultsSetting(ctx, id, "com.example.app", "KeyA", false)

	runner.calls = nil
	result, err := m.Restore(ctx, id, true)
	if err != nil {
		t.Fatal(err)
	}
	if !result.DryRun || result.Restored != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.Outcomes[0].Status != types.RestoreStatusPlanned {
		t.Errorf("status = %s", result.Outcomes[0].Status)
	}
	if len(runner.calls) != 0 {
		t.Errorf("dry run executed commands: %v", runner.calls)
	}
}

func TestRestoreIsIdempotent(t *testing.T) {
	runner := &fakeRunner{results: map[string]*adapter.CommandResult{
		"defaults read com.example.app KeyA":    {Stdout: "1", ExitCode: 0},
		"defaults write com.example.app KeyA 1": {ExitCode: 0},
	}}
	m := newTestManager(t, runner)
	ctx := context.Background()

	id, _ := m.CreateRollbackPoint(ctx, "privacy", "")
	m.BackupDefaultsSetting(ctx, id, "com.example.app", "KeyA", false)

	for i := 0; i < 2; i++ {
		result, err := m.Restore(ctx, id, false)
		if err != nil {
			t.Fatal(err)
		}
		if !result.Success() {
			t.Fatalf("pass %d failed: %+v", i, result)
		}
	}
}

func TestRestoreContinuesPastMissingBackupFile(t *testing.T) {
	runner := &fakeRunner{results: map[string]*adapter.CommandResult{
		"defaults read com.example.app KeyA":    {Stdout: "1", ExitCode: 0},
		"defaults read com.example.app KeyB":    {Stdout: "2", ExitCode: 0},
		"defaults write com.example.app KeyA 1": {ExitCode: 0},
		"defaults write com.example.app KeyB 2": {ExitCode: 0},
	}}
	m := newTestManager(t, runner)
	ctx := context.Background()

	id, _ := m.CreateRollbackPoint(ctx, "privacy", "")
	m.BackupDefaultsSetting(ctx, id, "com.example.app", "KeyA", false)
	m.BackupDefaultsSetting(ctx, id, "com.example.app", "KeyB", false)

	if err := os.Remove(filepath.Join(m.backupRoot, id, "defaults_com.example.app_KeyB.backup")); err != nil {
		t.Fatal(err)
	}

	result, err := m.Restore(ctx, id, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Attempted != 2 || result.Failed != 1 || result.Restored != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.Success() {
		t.Error("a failed entry must fail the pass")
	}
	var failed types.RestoreOutcome
	for _, o := range result.Outcomes {
		if o.Status == types.RestoreStatusFailed {
			failed = o
		}
	}
	if failed.Kind != types.ErrKindNotFound {
		t.Errorf("failed kind = %q, want %q", failed.Kind, types.ErrKindNotFound)
	}
}

func TestRestoreManualStepCountsAsSkipped(t *testing.T) {
	runner := &fakeRunner{results: map[string]*adapter.CommandResult{
		"sh -c pmset -g | grep hibernatemode": {Stdout: "hibernatemode 3", ExitCode: 0},
	}}
	m := newTestManager(t, runner)
	ctx := context.Background()

	id, _ := m.CreateRollbackPoint(ctx, "privacy", "")
	if !m.BackupSystemSetting(ctx, id, "hibernatemode", "pmset -g | grep hibernatemode") {
		t.Fatal("system backup failed")
	}

	result, err := m.Restore(ctx, id, false)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success() || result.Skipped != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v", result)
	}
	if result.Outcomes[0].Op != types.OpManualStep {
		t.Errorf("op = %s", result.Outcomes[0].Op)
	}
}

func TestRestoreUnknownPoint(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	_, err := m.Restore(context.Background(), "privacy_19990101_000000", false)
	if err == nil || !strings.Contains(err.Error(), types.ErrRollbackPointNotFound.Error()) {
		t.Errorf("err = %v", err)
	}
}

func TestListSortedNewestFirst(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	ctx := context.Background()

	times := []time.Time{
		time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
	for _, ts := range times {
		ts := ts
		m.now = func() time.Time { return ts }
		if _, err := m.CreateRollbackPoint(ctx, "privacy", ""); err != nil {
			t.Fatal(err)
		}
	}

	points, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 {
		t.Fatalf("points = %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i-1].CreatedAt < points[i].CreatedAt {
			t.Errorf("points not sorted newest first: %s before %s",
				points[i-1].CreatedAt, points[i].CreatedAt)
		}
	}
}

func TestListSkipsCorruptPoint(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	ctx := context.Background()

	if _, err := m.CreateRollbackPoint(ctx, "privacy", ""); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(m.backupRoot, "broken_20260801_000000")
	if err := os.MkdirAll(corrupt, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corrupt, metadataFile), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	points, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 {
		t.Errorf("points = %d, want corrupt one skipped", len(points))
	}
}

func TestCleanup(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	ctx := context.Background()

	for day := 1; day <= 5; day++ {
		day := day
		m.now = func() time.Time {
			return time.Date(2026, 8, day, 10, 0, 0, 0, time.UTC)
		}
		if _, err := m.CreateRollbackPoint(ctx, "privacy", ""); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := m.Cleanup(2)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	points, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("remaining = %d", len(points))
	}
	// The newest two survive.
	if points[0].RollbackID != "privacy_20260805_100000" || points[1].RollbackID != "privacy_20260804_100000" {
		t.Errorf("survivors = %s, %s", points[0].RollbackID, points[1].RollbackID)
	}

	removed, err = m.Cleanup(10)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("cleanup below threshold removed %d", removed)
	}
}

func TestPlanRestore(t *testing.T) {
	value := "1"
	tests := []struct {
		name   string
		entry  types.BackupEntry
		wantOp types.RestoreOp
	}{
		{
			name:   "existing defaults value",
			entry:  types.BackupEntry{Type: types.BackupKindDefaults, Domain: "d", Key: "k", Exists: true, OriginalValue: &value},
			wantOp: types.OpDefaultsWrite,
		},
		{
			name:   "absent defaults value",
			entry:  types.BackupEntry{Type: types.BackupKindDefaults, Domain: "d", Key: "k", Exists: false},
			wantOp: types.OpDefaultsDelete,
		},
		{
			name:   "loaded service",
			entry:  types.BackupEntry{Type: types.BackupKindService, ServiceName: "svc", WasLoaded: true},
			wantOp: types.OpServiceLoad,
		},
		{
			name:   "unloaded service",
			entry:  types.BackupEntry{Type: types.BackupKindService, ServiceName: "svc", WasLoaded: false},
			wantOp: types.OpServiceNoop,
		},
		{
			name:   "system setting",
			entry:  types.BackupEntry{Type: types.BackupKindSystem, SettingName: "s"},
			wantOp: types.OpManualStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := PlanRestore(&tt.entry)
			if err != nil {
				t.Fatal(err)
			}
			if action.Op != tt.wantOp {
				t.Errorf("op = %s, want %s", action.Op, tt.wantOp)
			}
		})
	}

	t.Run("unknown type", func(t *testing.T) {
		_, err := PlanRestore(&types.BackupEntry{Type: "mystery"})
		if err == nil {
			t.Fatal("expected error for unknown type")
		}
	})
}

func TestBackupEntryFileContents(t *testing.T) {
	runner := &fakeRunner{results: map[string]*adapter.CommandResult{
		"defaults read com.example.app KeyA": {Stdout: "1", ExitCode: 0},
	}}
	m := newTestManager(t, runner)
	ctx := context.Background()

	id, _ := m.CreateRollbackPoint(ctx, "privacy", "")
	m.BackupDefaultsSetting(ctx, id, "com.example.app", "KeyA", false)

	data, err := os.ReadFile(filepath.Join(m.backupRoot, id, "defaults_com.example.app_KeyA.backup"))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["type"] != "defaults" || raw["domain"] != "com.example.app" || raw["original_value"] != "1" {
		t.Errorf("entry = %v", raw)
	}
	if raw["exists"] != true {
		t.Error("exists flag missing")
	}
}
