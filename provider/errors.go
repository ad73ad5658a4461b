package provider

import (
	"github.com/pkg/errors"
)

// Code classifies a provider failure. Implementations of Client must return
// errors built with NewError (or wrapping one) so the orchestration layer can
// classify them.
type Code string

const (
	CodeTokenRevoked          Code = "TokenRevoked"
	CodeRefreshTokenExpired   Code = "RefreshTokenExpired"
	CodeRefreshTokenRevoked   Code = "RefreshTokenRevoked"
	CodeUserDisabled          Code = "UserDisabled"
	CodeUserNotFound          Code = "UserNotFound"
	CodePasswordResetRequired Code = "PasswordResetRequired"
	CodeUserNotConfirmed      Code = "UserNotConfirmed"
	CodeNotAuthorized         Code = "NotAuthorized"
	CodeCodeMismatch          Code = "CodeMismatch"
	CodeNetwork               Code = "NetworkError"
	CodeInternal              Code = "InternalError"
)

// Error is a classified provider failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewError creates a classified provider error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the provider error code from err's chain, or "" when err is
// not a provider error.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// sessionInvalidCodes are the failures that mean the stored session can never
// become valid again and local state must be torn down.
var sessionInvalidCodes = map[Code]struct{}{
	CodeTokenRevoked:          {},
	CodeRefreshTokenExpired:   {},
	CodeRefreshTokenRevoked:   {},
	CodeUserDisabled:          {},
	CodeUserNotFound:          {},
	CodePasswordResetRequired: {},
}

// IsSessionInvalid reports whether err means the current session is
// unrecoverable and local sign-out is required.
func IsSessionInvalid(err error) bool {
	_, ok := sessionInvalidCodes[CodeOf(err)]
	return ok
}

// IsUserNotConfirmed reports whether err means the account exists but has not
// completed registration confirmation yet.
func IsUserNotConfirmed(err error) bool {
	return CodeOf(err) == CodeUserNotConfirmed
}
