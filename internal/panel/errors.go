package panel

import (
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// ERROR TAXONOMY
// ============================================================================

type ErrorCode int

const (
	ErrCodeInvalidRequest ErrorCode = iota + 1000
	ErrCodeUnauthorized
	ErrCodeForbidden
	ErrCodeNotFound
	ErrCodeRateLimitExceeded // local admission control rejected the call
	ErrCodeRateLimited       // the remote panel reported 429
	ErrCodeUnreachable
	ErrCodeRemoteFault
	ErrCodeRequestFailed
)

const (
	ErrCodeInvalidIdentifier ErrorCode = iota + 2000
	ErrCodeServerNotFound
	ErrCodeBackupNotFound
)

// APIError is the one error type every panel-facing operation returns. The
// message is written for direct display; raw transport errors stay wrapped
// underneath.
type APIError struct {
	Code      ErrorCode
	Message   string
	Err       error
	Context   map[string]interface{}
	Timestamp int64
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) WithContext(key string, value interface{}) *APIError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewError(code ErrorCode, msg string, err error) *APIError {
	return &APIError{
		Code:      code,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now().UnixNano(),
	}
}

// CodeOf extracts the taxonomy code from err, or 0 when err is not ours.
func CodeOf(err error) ErrorCode {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Error constructors

func ErrRateLimitExceeded(inWindow, max int) *APIError {
	return NewError(ErrCodeRateLimitExceeded, "local rate limit exceeded, try again shortly", nil).
		WithContext("in_window", inWindow).
		WithContext("max_requests", max)
}

func ErrUnreachable(err error) *APIError {
	return NewError(ErrCodeUnreachable, "panel is unreachable", err)
}

func ErrInvalidRequest(err error) *APIError {
	return NewError(ErrCodeInvalidRequest, "could not build panel request", err)
}

func ErrInvalidIdentifier(input string) *APIError {
	return NewError(ErrCodeInvalidIdentifier, "identifier must be a numeric id, UUID, or 8-character short id", nil).
		WithContext("input", input)
}

func ErrServerNotFound(identifier string) *APIError {
	return NewError(ErrCodeServerNotFound, "server not found", nil).
		WithContext("identifier", identifier)
}

func ErrBackupNotFound(backupID string) *APIError {
	return NewError(ErrCodeBackupNotFound, "backup not found", nil).
		WithContext("backup_id", backupID)
}
