package handlers

import (
	"github.com/cluster2600/ALBATOR/internal/shared/config"
	"github.com/cluster2600/ALBATOR/pkg/version"
	"github.com/gin-gonic/gin"
)

// StatusHandler serves the console status endpoint.
type StatusHandler struct {
	cfg      *config.Config
	rollback RollbackService
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(cfg *config.Config, rollback RollbackService) *StatusHandler {
	return &StatusHandler{cfg: cfg, rollback: rollback}
}

// Status handles GET /status.
func (h *StatusHandler) Status(c *gin.Context) {
	points, err := h.rollback.List()
	if err != nil {
		internalError(c, err.Error())
		return
	}

	success(c, gin.H{
		"version":  version.GetInfo(),
		"root_dir": h.cfg.RootDir,
		"gate_policy": gin.H{
			"min_macos_version":   h.cfg.Preflight.MinMacOSVersion,
			"enforce_min_version": h.cfg.Preflight.EnforceMinVersion,
		},
		"rollback": gin.H{
			"enabled":         h.rollback.Enabled(),
			"backup_location": h.cfg.Rollback.BackupLocation,
			"keep_count":      h.rollback.KeepCount(),
			"point_count":     len(points),
		},
	})
}
