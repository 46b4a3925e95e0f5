package rollback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"go.uber.org/zap"
)

// PlanRestore maps one backup entry to the undo operation that reverses it.
// The mapping is total over the known entry types; an unknown type is an
// error at plan time, not a silent skip at execute time.
func PlanRestore(entry *types.BackupEntry) (types.RestoreAction, error) {
	switch entry.Type {
	case types.BackupKindDefaults:
		if entry.Exists && entry.OriginalValue != nil {
			return types.RestoreAction{
				Op:      types.OpDefaultsWrite,
				Domain:  entry.Domain,
				Key:     entry.Key,
				Value:   *entry.OriginalValue,
				UseSudo: entry.UseSudo,
			}, nil
		}
		// Key did not exist at capture time; undo means removing it.
		return types.RestoreAction{
			Op:      types.OpDefaultsDelete,
			Domain:  entry.Domain,
			Key:     entry.Key,
			UseSudo: entry.UseSudo,
		}, nil

	case types.BackupKindService:
		if entry.WasLoaded {
			return types.RestoreAction{
				Op:      types.OpServiceLoad,
				Service: entry.ServiceName,
			}, nil
		}
		return types.RestoreAction{
			Op:      types.OpServiceNoop,
			Service: entry.ServiceName,
			Note:    "service was not loaded at capture time",
		}, nil

	case types.BackupKindSystem:
		note := fmt.Sprintf("verify %q manually", entry.SettingName)
		if entry.CheckCommand != "" {
			note = fmt.Sprintf("verify %q manually (check: %s)", entry.SettingName, entry.CheckCommand)
		}
		return types.RestoreAction{
			Op:   types.OpManualStep,
			Note: note,
		}, nil
	}

	return types.RestoreAction{}, fmt.Errorf("unknown backup entry type %q", entry.Type)
}

// Restore replays a rollback point's backup entries in reverse capture
// order. The pass is best-effort: every entry is attempted regardless of
// earlier failures, and per-entry results land in the returned RestoreResult.
// The returned error covers only failures to load the point itself.
//
// The empty id (from a disabled manager) restores nothing and succeeds.
func (m *Manager) Restore(ctx context.Context, rollbackID string, dryRun bool) (*types.RestoreResult, error) {
	result := &types.RestoreResult{
		RollbackID: rollbackID,
		DryRun:     dryRun,
		Outcomes:   []types.RestoreOutcome{},
	}
	if rollbackID == "" {
		return result, nil
	}

	point, err := m.LoadPoint(rollbackID)
	if err != nil {
		return nil, err
	}
	pointDir := filepath.Join(m.backupRoot, rollbackID)

	m.logger.Info("starting restore",
		zap.String("rollback_id", rollbackID),
		zap.Bool("dry_run", dryRun),
		zap.Int("entries", len(point.Backups)))

	for i := len(point.Backups) - 1; i >= 0; i-- {
		ref := point.Backups[i]
		result.Attempted++
		outcome := m.restoreEntry(ctx, pointDir, ref, dryRun)
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Status {
		case types.RestoreStatusRestored, types.RestoreStatusPlanned:
			result.Restored++
		case types.RestoreStatusSkipped:
			result.Skipped++
		case types.RestoreStatusFailed:
			result.Failed++
		}
	}

	m.logger.Info("restore finished",
		zap.String("rollback_id", rollbackID),
		zap.Bool("success", result.Success()),
		zap.Int("restored", result.Restored),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (m *Manager) restoreEntry(ctx context.Context, pointDir string, ref types.BackupRef, dryRun bool) types.RestoreOutcome {
	outcome := types.RestoreOutcome{File: ref.File}

	entry, err := readEntry(pointDir, ref.File)
	if err != nil {
		outcome.Status = types.RestoreStatusFailed
		outcome.Detail = err.Error()
		outcome.Kind = classifyError(err)
		m.logger.Warn("unreadable backup entry",
			zap.String("file", ref.File),
			zap.Error(err))
		return outcome
	}

	action, err := PlanRestore(entry)
	if err != nil {
		outcome.Status = types.RestoreStatusFailed
		outcome.Detail = err.Error()
		outcome.Kind = types.ErrKindUnknownKind
		return outcome
	}
	outcome.Op = action.Op

	if action.Op == types.OpManualStep {
		outcome.Status = types.RestoreStatusSkipped
		outcome.Detail = action.Note
		return outcome
	}
	if action.Op == types.OpServiceNoop {
		outcome.Status = types.RestoreStatusSkipped
		outcome.Detail = action.Note
		return outcome
	}

	if dryRun {
		outcome.Status = types.RestoreStatusPlanned
		outcome.Detail = describeAction(action)
		return outcome
	}

	if err := m.execute(ctx, action); err != nil {
		outcome.Status = types.RestoreStatusFailed
		outcome.Detail = err.Error()
		outcome.Kind = classifyError(err)
		m.logger.Warn("restore action failed",
			zap.String("file", ref.File),
			zap.String("op", string(action.Op)),
			zap.Error(err))
		return outcome
	}

	outcome.Status = types.RestoreStatusRestored
	return outcome
}

func (m *Manager) execute(ctx context.Context, action types.RestoreAction) error {
	switch action.Op {
	case types.OpDefaultsWrite:
		return m.adapter.Defaults.Write(ctx, action.Domain, action.Key, action.Value, action.UseSudo)
	case types.OpDefaultsDelete:
		return m.adapter.Defaults.Delete(ctx, action.Domain, action.Key, action.UseSudo)
	case types.OpServiceLoad:
		return m.adapter.Launchd.Load(ctx, action.Service)
	}
	return fmt.Errorf("unexecutable restore op %q", action.Op)
}

func describeAction(action types.RestoreAction) string {
	switch action.Op {
	case types.OpDefaultsWrite:
		return fmt.Sprintf("would write %s %s = %s", action.Domain, action.Key, action.Value)
	case types.OpDefaultsDelete:
		return fmt.Sprintf("would delete %s %s", action.Domain, action.Key)
	case types.OpServiceLoad:
		return fmt.Sprintf("would load service %s", action.Service)
	}
	return string(action.Op)
}

func readEntry(pointDir, file string) (*types.BackupEntry, error) {
	// Refs hold paths relative to the point directory, but metadata written
	// by earlier releases may carry absolute paths.
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(pointDir, file)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry types.BackupEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt backup entry %s: %w", file, err)
	}
	return &entry, nil
}

func classifyError(err error) types.ErrorKind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return types.ErrKindNotFound
	case errors.Is(err, fs.ErrPermission):
		return types.ErrKindPermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return types.ErrKindProbeTimeout
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return types.ErrKindIO
	}
	return types.ErrKindUnknownKind
}
