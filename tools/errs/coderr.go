package errs

import (
	"errors"
	"fmt"
)

// Protocol-level error codes, sent to clients inside error frames and
// used to classify failures internally.
const (
	CodeAuthFailed          = "AUTH_FAILED"
	CodeNotAuthenticated    = "NOT_AUTHENTICATED"
	CodeInvalidEvent        = "INVALID_EVENT"
	CodeDuplicateConnection = "DUPLICATE_CONNECTION"
	CodeDuplicateService    = "DUPLICATE_SERVICE"
	CodeRegistryUnavailable = "REGISTRY_UNAVAILABLE"
	CodeBridgeUnavailable   = "BRIDGE_UNAVAILABLE"
)

// CodeError carries a stable protocol code plus a human message.
type CodeError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func NewCodeError(code, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	return e.Code + " " + e.Msg
}

// WithMsg returns a copy with a more specific message, keeping the code.
func (e *CodeError) WithMsg(format string, args ...any) *CodeError {
	return &CodeError{Code: e.Code, Msg: fmt.Sprintf(format, args...)}
}

func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !errors.As(target, &ce) {
		return false
	}
	return e.Code == ce.Code
}

var (
	ErrAuthFailed          = NewCodeError(CodeAuthFailed, "authentication failed")
	ErrNotAuthenticated    = NewCodeError(CodeNotAuthenticated, "please authenticate first")
	ErrInvalidEvent        = NewCodeError(CodeInvalidEvent, "malformed or unroutable event")
	ErrDuplicateConnection = NewCodeError(CodeDuplicateConnection, "session superseded by a newer connection")
	ErrDuplicateService    = NewCodeError(CodeDuplicateService, "service already registered")
	ErrRegistryUnavailable = NewCodeError(CodeRegistryUnavailable, "presence registry unavailable")
	ErrBridgeUnavailable   = NewCodeError(CodeBridgeUnavailable, "pub/sub bridge unavailable")
)

// CodeOf extracts the protocol code from err, or "" when err carries none.
func CodeOf(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
