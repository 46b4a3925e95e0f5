// Package types provides shared data types
package types

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrRollbackPointNotFound = errors.New("rollback point not found")
	ErrBackupRootUnavailable = errors.New("backup root unavailable")
	ErrRuleSourceNotFound    = errors.New("no matching rule documents found")
	ErrScriptNotFound        = errors.New("hardening script not found")
	ErrGateBlocked           = errors.New("preflight gate blocked the operation")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidRequest        = errors.New("invalid request")
)

// ErrorKind classifies capture and restore failures so callers can branch on
// the failure category instead of parsing log strings.
type ErrorKind string

const (
	ErrKindNone             ErrorKind = ""
	ErrKindIO               ErrorKind = "io_error"
	ErrKindProbeTimeout     ErrorKind = "probe_timeout"
	ErrKindNotFound         ErrorKind = "not_found"
	ErrKindPermissionDenied ErrorKind = "permission_denied"
	ErrKindUnknownKind      ErrorKind = "unknown_kind"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes
const (
	ErrCodeRollbackNotFound = "ROLLBACK_POINT_NOT_FOUND"
	ErrCodeRestoreFailed    = "RESTORE_FAILED"
	ErrCodeGateBlocked      = "GATE_BLOCKED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)
