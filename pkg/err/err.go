package errprocess

import (
	"errors"
	"fmt"

	"social_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// Code classify an AppError
type Code string

const (
	// CodeValidation bad input: empty text, malformed timestamp, cursor and before together
	CodeValidation Code = "VALIDATION"
	// CodeAuthorization caller is not a participant
	CodeAuthorization Code = "AUTHORIZATION"
	// CodeUnauthenticated no valid identity on the request
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	// CodeNotFound conversation or member absent
	CodeNotFound Code = "NOT_FOUND"
	// CodeNetwork transport failure, no response from the server
	CodeNetwork Code = "NETWORK"
	// CodeInternal everything else
	CodeInternal Code = "INTERNAL"
)

// AppError definition error with code
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// New create AppError
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

// Wrap create AppError keeping cause
func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Validation create validation error
func Validation(msg string) error { return New(CodeValidation, msg) }

// Authorization create authorization error
func Authorization(msg string) error { return New(CodeAuthorization, msg) }

// Unauthenticated create unauthenticated error
func Unauthenticated(msg string) error { return New(CodeUnauthenticated, msg) }

// NotFound create not found error
func NotFound(msg string) error { return New(CodeNotFound, msg) }

// Network create network error
func Network(msg string, cause error) error { return Wrap(CodeNetwork, msg, cause) }

// Internal create internal error
func Internal(msg string, cause error) error { return Wrap(CodeInternal, msg, cause) }

// CodeOf return the code of the first AppError in the chain, CodeInternal otherwise
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode check err chain carry code
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// Set log and return an AppError
func Set(code Code, errMsg string) error {
	logger.Log.Error(errMsg, zap.String("code", string(code)))
	return New(code, errMsg)
}
