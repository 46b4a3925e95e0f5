package types

// Backup kinds. The values match the "type" field written to backup files by
// earlier Albator releases, which this implementation can still read.
const (
	BackupKindDefaults = "defaults"
	BackupKindSystem   = "system"
	BackupKindService  = "service"
)

// BackupRef points at one backup file from a rollback point's metadata.
// Insertion order in RollbackPoint.Backups is capture order; restore walks it
// in reverse.
type BackupRef struct {
	File        string `json:"file"`
	Type        string `json:"type"`
	Domain      string `json:"domain,omitempty"`
	Key         string `json:"key,omitempty"`
	SettingName string `json:"setting_name,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// SystemInfo records the environment a rollback point was created in.
type SystemInfo struct {
	MacOSVersion string `json:"macos_version"`
	User         string `json:"user"`
	Hostname     string `json:"hostname"`
}

// RollbackPoint is the metadata header for one named snapshot collection.
// CreatedAt is kept as a string so metadata written by earlier releases
// (naive ISO timestamps without a zone) still loads; its lexical order is its
// chronological order.
type RollbackPoint struct {
	RollbackID  string      `json:"rollback_id"`
	Component   string      `json:"component"`
	Description string      `json:"description"`
	Timestamp   string      `json:"timestamp"`
	CreatedAt   string      `json:"created_at"`
	SystemInfo  SystemInfo  `json:"system_info"`
	Backups     []BackupRef `json:"backups"`
}

// BackupEntry is the recorded pre-mutation state of exactly one system
// setting. Entries are immutable once written; restore reads them but never
// rewrites them. Which fields are meaningful depends on Type.
type BackupEntry struct {
	Type          string  `json:"type"`
	Domain        string  `json:"domain,omitempty"`
	Key           string  `json:"key,omitempty"`
	UseSudo       bool    `json:"use_sudo,omitempty"`
	SettingName   string  `json:"setting_name,omitempty"`
	CheckCommand  string  `json:"check_command,omitempty"`
	ServiceName   string  `json:"service_name,omitempty"`
	WasLoaded     bool    `json:"was_loaded,omitempty"`
	ServiceInfo   *string `json:"service_info,omitempty"`
	OriginalValue *string `json:"original_value"`
	Exists        bool    `json:"exists"`
	ReturnCode    int     `json:"return_code,omitempty"`
	BackupTime    string  `json:"backup_time"`
}

// RestoreOp enumerates the undo operations restore can plan. Restore logic is
// data driven: an entry is planned into exactly one of these, never into a
// raw shell string.
type RestoreOp string

const (
	OpDefaultsWrite  RestoreOp = "defaults_write"
	OpDefaultsDelete RestoreOp = "defaults_delete"
	OpServiceLoad    RestoreOp = "service_load"
	OpServiceNoop    RestoreOp = "service_noop"
	OpManualStep     RestoreOp = "manual_step"
)

// RestoreAction is the planned undo for one backup entry.
type RestoreAction struct {
	Op      RestoreOp
	Domain  string
	Key     string
	Value   string
	UseSudo bool
	Service string
	Note    string
}

// Restore outcome statuses
const (
	RestoreStatusRestored = "restored"
	RestoreStatusSkipped  = "skipped"
	RestoreStatusFailed   = "failed"
	RestoreStatusPlanned  = "planned" // dry run
)

// RestoreOutcome is the per-entry result of a restore pass.
type RestoreOutcome struct {
	File   string    `json:"file"`
	Op     RestoreOp `json:"op,omitempty"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	Kind   ErrorKind `json:"error_kind,omitempty"`
}

// RestoreResult aggregates a full restore pass over one rollback point.
// Every entry is attempted even after failures.
type RestoreResult struct {
	RollbackID string           `json:"rollback_id"`
	DryRun     bool             `json:"dry_run"`
	Attempted  int              `json:"attempted"`
	Restored   int              `json:"restored"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Outcomes   []RestoreOutcome `json:"outcomes"`
}

// Success reports whether the pass completed with zero failed entries.
// Skipped entries (documented manual steps) do not count as failures.
func (r *RestoreResult) Success() bool {
	return r.Failed == 0
}
