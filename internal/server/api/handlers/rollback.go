package handlers

import (
	"context"
	"errors"

	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"github.com/gin-gonic/gin"
)

// RollbackService is the rollback manager surface the console exposes.
type RollbackService interface {
	List() ([]types.RollbackPoint, error)
	LoadPoint(rollbackID string) (*types.RollbackPoint, error)
	Restore(ctx context.Context, rollbackID string, dryRun bool) (*types.RestoreResult, error)
	Cleanup(keepCount int) (int, error)
	Enabled() bool
	KeepCount() int
}

// RollbackHandler serves rollback point endpoints.
type RollbackHandler struct {
	service RollbackService
}

// NewRollbackHandler creates a RollbackHandler.
func NewRollbackHandler(service RollbackService) *RollbackHandler {
	return &RollbackHandler{service: service}
}

// List handles GET /rollback-points.
func (h *RollbackHandler) List(c *gin.Context) {
	points, err := h.service.List()
	if err != nil {
		internalError(c, err.Error())
		return
	}
	success(c, gin.H{
		"enabled":         h.service.Enabled(),
		"rollback_points": points,
	})
}

// Get handles GET /rollback-points/:id.
func (h *RollbackHandler) Get(c *gin.Context) {
	id := c.Param("id")
	point, err := h.service.LoadPoint(id)
	if err != nil {
		if errors.Is(err, types.ErrRollbackPointNotFound) {
			notFound(c, "rollback point not found")
			return
		}
		internalError(c, err.Error())
		return
	}
	success(c, point)
}

// RestoreRequest is the body of POST /rollback-points/:id/restore.
type RestoreRequest struct {
	DryRun bool `json:"dry_run"`
}

// Restore handles POST /rollback-points/:id/restore.
func (h *RollbackHandler) Restore(c *gin.Context) {
	id := c.Param("id")

	var req RestoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	result, err := h.service.Restore(c.Request.Context(), id, req.DryRun)
	if err != nil {
		if errors.Is(err, types.ErrRollbackPointNotFound) {
			notFound(c, "rollback point not found")
			return
		}
		internalError(c, err.Error())
		return
	}

	if !result.Success() {
		errorWithData(c, 500, types.ErrCodeRestoreFailed,
			"restore completed with failures", result)
		return
	}
	success(c, result)
}

// CleanupRequest is the body of POST /rollback-points/cleanup. Keep, when
// nil, defaults to the configured retention count.
type CleanupRequest struct {
	Keep *int `json:"keep"`
}

// Cleanup handles POST /rollback-points/cleanup.
func (h *RollbackHandler) Cleanup(c *gin.Context) {
	var req CleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	keep := h.service.KeepCount()
	if req.Keep != nil {
		if *req.Keep < 0 {
			badRequest(c, "keep must be non-negative")
			return
		}
		keep = *req.Keep
	}

	removed, err := h.service.Cleanup(keep)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	success(c, gin.H{
		"removed": removed,
		"kept":    keep,
	})
}
