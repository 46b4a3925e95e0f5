// Package handlers implements the console API endpoint handlers.
package handlers

import (
	"context"

	"github.com/cluster2600/ALBATOR/internal/core/preflight"
	"github.com/cluster2600/ALBATOR/internal/shared/config"
	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"github.com/gin-gonic/gin"
)

// PreflightService runs the preflight check battery.
type PreflightService interface {
	Run(ctx context.Context, opts preflight.Options) *types.PreflightSummary
}

// PreflightHandler serves preflight runs over HTTP.
type PreflightHandler struct {
	service PreflightService
	policy  config.GatePolicy
}

// NewPreflightHandler creates a PreflightHandler with the configured version
// policy as the default for requests that do not override it.
func NewPreflightHandler(service PreflightService, policy config.GatePolicy) *PreflightHandler {
	return &PreflightHandler{service: service, policy: policy}
}

// PreflightRequest is the body of POST /preflight. Version policy fields are
// optional and default to the configured gate policy.
type PreflightRequest struct {
	RequireSudo       bool   `json:"require_sudo"`
	RequireRules      bool   `json:"require_rules"`
	MinMacOSVersion   string `json:"min_macos_version"`
	EnforceMinVersion *bool  `json:"enforce_min_version"`
}

// Run handles POST /preflight.
func (h *PreflightHandler) Run(c *gin.Context) {
	var req PreflightRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	opts := preflight.Options{
		RequireSudo:       req.RequireSudo,
		RequireRules:      req.RequireRules,
		MinMacOSVersion:   h.policy.MinMacOSVersion,
		EnforceMinVersion: h.policy.EnforceMinVersion,
	}
	if req.MinMacOSVersion != "" {
		opts.MinMacOSVersion = req.MinMacOSVersion
	}
	if req.EnforceMinVersion != nil {
		opts.EnforceMinVersion = *req.EnforceMinVersion
	}

	summary := h.service.Run(c.Request.Context(), opts)
	success(c, summary)
}
