package adapter

import "go.uber.org/zap"

// SystemAdapter aggregates all system adapters
type SystemAdapter struct {
	Defaults *DefaultsManager
	Launchd  *LaunchdManager
	SysInfo  *SystemInfoManager
	Runner   Runner
	logger   *zap.Logger
}

// NewSystemAdapter creates a new SystemAdapter with all managers sharing
// one runner.
func NewSystemAdapter(runner Runner, logger *zap.Logger) *SystemAdapter {
	return &SystemAdapter{
		Defaults: NewDefaultsManager(runner, logger),
		Launchd:  NewLaunchdManager(runner, logger),
		SysInfo:  NewSystemInfoManager(runner, logger),
		Runner:   runner,
		logger:   logger,
	}
}
