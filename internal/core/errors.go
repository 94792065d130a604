package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeNotRegistered  = "not_registered"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeInvalidChannel = "invalid_channel"
)

var (
	ErrNotRegistered  = coreError(ErrCodeNotRegistered, "not registered")
	ErrInvalidChannel = coreError(ErrCodeInvalidChannel, "channel name is required")
	ErrInvalidPeer    = coreError(ErrCodeBadRequest, "username and port are required")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// Code extracts the domain code from err, or "" when err is not a CoreError.
func Code(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
