// Package rollback captures pre-mutation system state into rollback points
// and replays it on demand. Capture is best-effort: a failed backup logs a
// warning and returns false, but never aborts the calling operation.
package rollback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cluster2600/ALBATOR/internal/core/adapter"
	"github.com/cluster2600/ALBATOR/internal/shared/config"
	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"github.com/cluster2600/ALBATOR/internal/shared/utils"
	"go.uber.org/zap"
)

const (
	metadataFile = "metadata.json"
	lockFile     = ".lock"
	idTimeLayout = "20060102_150405"
)

// Manager owns the backup root and all rollback point lifecycle operations.
type Manager struct {
	backupRoot string
	enabled    bool
	keepCount  int
	adapter    *adapter.SystemAdapter
	logger     *zap.Logger

	now func() time.Time
}

// NewManager creates a Manager from the rollback configuration section.
func NewManager(cfg config.RollbackConfig, ad *adapter.SystemAdapter, logger *zap.Logger) *Manager {
	return &Manager{
		backupRoot: cfg.BackupLocation,
		enabled:    cfg.Enabled,
		keepCount:  cfg.KeepCount,
		adapter:    ad,
		logger:     logger,
		now:        time.Now,
	}
}

// Enabled reports whether rollback capture is active.
func (m *Manager) Enabled() bool { return m.enabled }

// KeepCount returns the configured retention count for Cleanup.
func (m *Manager) KeepCount() int { return m.keepCount }

// CreateRollbackPoint creates a new empty rollback point and returns its id.
// When rollback is disabled it returns the empty id, which every Backup*
// method treats as a no-op. The only hard error is an unusable backup root;
// that one must stop the caller before it mutates anything.
func (m *Manager) CreateRollbackPoint(ctx context.Context, component, description string) (string, error) {
	if !m.enabled {
		m.logger.Debug("rollback disabled, skipping point creation",
			zap.String("component", component))
		return "", nil
	}

	if err := utils.EnsureDir(m.backupRoot); err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrBackupRootUnavailable, m.backupRoot, err)
	}

	now := m.now()
	id := fmt.Sprintf("%s_%s", component, now.Format(idTimeLayout))
	// Same-second creations for one component get a counter suffix.
	for suffix := 2; utils.DirExists(filepath.Join(m.backupRoot, id)); suffix++ {
		id = fmt.Sprintf("%s_%s_%d", component, now.Format(idTimeLayout), suffix)
	}

	pointDir := filepath.Join(m.backupRoot, id)
	if err := utils.EnsureDir(pointDir); err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrBackupRootUnavailable, pointDir, err)
	}

	point := types.RollbackPoint{
		RollbackID:  id,
		Component:   component,
		Description: description,
		Timestamp:   now.Format(idTimeLayout),
		CreatedAt:   now.Format(time.RFC3339),
		SystemInfo:  m.adapter.SysInfo.Environment(ctx),
		Backups:     []types.BackupRef{},
	}
	if err := m.writeMetadata(pointDir, &point); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrBackupRootUnavailable, err)
	}

	m.logger.Info("created rollback point",
		zap.String("rollback_id", id),
		zap.String("component", component))
	return id, nil
}

// BackupDefaultsSetting captures the current value of one defaults key.
// Returns false (after logging) on any failure; capture must not abort the
// hardening operation it protects.
func (m *Manager) BackupDefaultsSetting(ctx context.Context, rollbackID, domain, key string, useSudo bool) bool {
	if !m.enabled || rollbackID == "" {
		return false
	}

	value, exists, err := m.adapter.Defaults.Read(ctx, domain, key, useSudo)
	if err != nil {
		m.logger.Warn("defaults read failed during backup",
			zap.String("domain", domain),
			zap.String("key", key),
			zap.Error(err))
		return false
	}

	entry := types.BackupEntry{
		Type:       types.BackupKindDefaults,
		Domain:     domain,
		Key:        key,
		UseSudo:    useSudo,
		Exists:     exists,
		BackupTime: m.now().Format(time.RFC3339),
	}
	if exists {
		entry.OriginalValue = &value
	}

	file := fmt.Sprintf("defaults_%s_%s.backup", domain, key)
	ref := types.BackupRef{
		File:   file,
		Type:   types.BackupKindDefaults,
		Domain: domain,
		Key:    key,
	}
	return m.appendEntry(rollbackID, ref, &entry)
}

// BackupSystemSetting records the output of an arbitrary read-only probe
// command for one named system setting. These entries document state for a
// human; restore surfaces them as manual steps.
func (m *Manager) BackupSystemSetting(ctx context.Context, rollbackID, settingName, checkCommand string) bool {
	if !m.enabled || rollbackID == "" {
		return false
	}

	entry := types.BackupEntry{
		Type:         types.BackupKindSystem,
		SettingName:  settingName,
		CheckCommand: checkCommand,
		BackupTime:   m.now().Format(time.RFC3339),
	}

	result, err := adapter.Shell(ctx, m.adapter.Runner, checkCommand)
	if err != nil {
		m.logger.Warn("system setting probe failed during backup",
			zap.String("setting", settingName),
			zap.Error(err))
		return false
	}
	output := result.Combined()
	entry.OriginalValue = &output
	entry.Exists = result.ExitCode == 0
	entry.ReturnCode = result.ExitCode

	file := fmt.Sprintf("system_%s.backup", settingName)
	ref := types.BackupRef{
		File:        file,
		Type:        types.BackupKindSystem,
		SettingName: settingName,
	}
	return m.appendEntry(rollbackID, ref, &entry)
}

// BackupServiceState records whether a launchd service is currently loaded.
func (m *Manager) BackupServiceState(ctx context.Context, rollbackID, serviceName string) bool {
	if !m.enabled || rollbackID == "" {
		return false
	}

	loaded, info, err := m.adapter.Launchd.IsLoaded(ctx, serviceName)
	if err != nil {
		m.logger.Warn("service state probe failed during backup",
			zap.String("service", serviceName),
			zap.Error(err))
		return false
	}

	entry := types.BackupEntry{
		Type:        types.BackupKindService,
		ServiceName: serviceName,
		WasLoaded:   loaded,
		Exists:      true,
		BackupTime:  m.now().Format(time.RFC3339),
	}
	if info != "" {
		entry.ServiceInfo = &info
	}

	file := fmt.Sprintf("service_%s.backup", serviceName)
	ref := types.BackupRef{
		File:        file,
		Type:        types.BackupKindService,
		ServiceName: serviceName,
	}
	return m.appendEntry(rollbackID, ref, &entry)
}

// appendEntry writes the entry file and appends its ref to the point's
// metadata. The metadata read-modify-write runs under the point's file lock
// so concurrent captures into one point cannot drop each other's refs.
func (m *Manager) appendEntry(rollbackID string, ref types.BackupRef, entry *types.BackupEntry) bool {
	pointDir := filepath.Join(m.backupRoot, rollbackID)

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		m.logger.Warn("failed to encode backup entry", zap.Error(err))
		return false
	}
	if err := utils.AtomicWriteFile(filepath.Join(pointDir, ref.File), data, 0o644); err != nil {
		m.logger.Warn("failed to write backup file",
			zap.String("file", ref.File),
			zap.Error(err))
		return false
	}

	lock := utils.NewFileLock(filepath.Join(pointDir, lockFile))
	if err := lock.Lock(); err != nil {
		m.logger.Warn("failed to lock rollback point", zap.Error(err))
		return false
	}
	defer lock.Unlock()

	point, err := m.loadMetadata(pointDir)
	if err != nil {
		m.logger.Warn("failed to load rollback metadata",
			zap.String("rollback_id", rollbackID),
			zap.Error(err))
		return false
	}
	point.Backups = append(point.Backups, ref)
	if err := m.writeMetadata(pointDir, point); err != nil {
		m.logger.Warn("failed to update rollback metadata",
			zap.String("rollback_id", rollbackID),
			zap.Error(err))
		return false
	}

	m.logger.Debug("captured backup entry",
		zap.String("rollback_id", rollbackID),
		zap.String("file", ref.File),
		zap.String("type", ref.Type))
	return true
}

// LoadPoint reads one rollback point's metadata by id.
func (m *Manager) LoadPoint(rollbackID string) (*types.RollbackPoint, error) {
	pointDir := filepath.Join(m.backupRoot, rollbackID)
	point, err := m.loadMetadata(pointDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrRollbackPointNotFound, rollbackID)
		}
		return nil, err
	}
	return point, nil
}

// List returns all rollback points sorted newest first. Directories without
// readable metadata are skipped, not fatal; a half-written point must not
// hide the healthy ones.
func (m *Manager) List() ([]types.RollbackPoint, error) {
	entries, err := os.ReadDir(m.backupRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.RollbackPoint{}, nil
		}
		return nil, fmt.Errorf("failed to read backup root: %w", err)
	}

	points := make([]types.RollbackPoint, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		point, err := m.loadMetadata(filepath.Join(m.backupRoot, entry.Name()))
		if err != nil {
			m.logger.Warn("skipping unreadable rollback point",
				zap.String("dir", entry.Name()),
				zap.Error(err))
			continue
		}
		points = append(points, *point)
	}

	// CreatedAt strings sort chronologically for both legacy naive ISO and
	// RFC3339 timestamps written by this implementation.
	sort.Slice(points, func(i, j int) bool {
		return points[i].CreatedAt > points[j].CreatedAt
	})
	return points, nil
}

// Cleanup deletes the oldest rollback points beyond keepCount and returns
// how many were removed.
func (m *Manager) Cleanup(keepCount int) (int, error) {
	if keepCount < 0 {
		keepCount = 0
	}
	points, err := m.List()
	if err != nil {
		return 0, err
	}
	if len(points) <= keepCount {
		return 0, nil
	}

	removed := 0
	for _, point := range points[keepCount:] {
		dir := filepath.Join(m.backupRoot, point.RollbackID)
		if !strings.HasPrefix(dir, filepath.Clean(m.backupRoot)+string(os.PathSeparator)) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to remove rollback point",
				zap.String("rollback_id", point.RollbackID),
				zap.Error(err))
			continue
		}
		removed++
		m.logger.Info("removed old rollback point",
			zap.String("rollback_id", point.RollbackID))
	}
	return removed, nil
}

func (m *Manager) loadMetadata(pointDir string) (*types.RollbackPoint, error) {
	data, err := os.ReadFile(filepath.Join(pointDir, metadataFile))
	if err != nil {
		return nil, err
	}
	var point types.RollbackPoint
	if err := json.Unmarshal(data, &point); err != nil {
		return nil, fmt.Errorf("corrupt rollback metadata in %s: %w", pointDir, err)
	}
	return &point, nil
}

func (m *Manager) writeMetadata(pointDir string, point *types.RollbackPoint) error {
	data, err := json.MarshalIndent(point, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode rollback metadata: %w", err)
	}
	return utils.AtomicWriteFile(filepath.Join(pointDir, metadataFile), data, 0o644)
}
