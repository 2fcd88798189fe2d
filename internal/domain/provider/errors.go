package provider

import (
	"errors"
	"fmt"
)

// Error codes shared across adapters. Adapters translate provider-native
// error identifiers into these where a match exists and pass the native code
// through otherwise.
const (
	CodeTransport     = "TRANSPORT_ERROR"
	CodeRateLimited   = "RATE_LIMITED"
	CodeLoginRequired = "ITEM_LOGIN_REQUIRED"
	CodeInvalidToken  = "INVALID_ACCESS_TOKEN"
	CodeItemLocked    = "ITEM_LOCKED"
	CodeItemNotFound  = "ITEM_NOT_FOUND"
	CodeInvalidInput  = "INVALID_REQUEST"
	CodeProvider      = "PROVIDER_ERROR"
)

// Error is the failure variant of every adapter operation. All transport and
// provider-side failures are converted into it; no adapter call surfaces any
// other failure shape.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an adapter error with the given code.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds an adapter error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err to an adapter *Error if there is one in the chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsAuthError reports whether err indicates the credential needs the user to
// re-authenticate with the institution.
func IsAuthError(err error) bool {
	pe, ok := AsError(err)
	if !ok {
		return false
	}
	switch pe.Code {
	case CodeLoginRequired, CodeInvalidToken, CodeItemLocked:
		return true
	}
	return false
}

// IsRateLimited reports whether err is a provider rate-limit rejection.
func IsRateLimited(err error) bool {
	pe, ok := AsError(err)
	return ok && pe.Code == CodeRateLimited
}
