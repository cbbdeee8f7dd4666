package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrConflict           ErrorCode = "CONFLICT"
	ErrBadRequest         ErrorCode = "BAD_REQUEST"
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrUnauthenticated    ErrorCode = "UNAUTHENTICATED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrInvalidState       ErrorCode = "INVALID_STATE"
	ErrAlreadyRefunded    ErrorCode = "ALREADY_REFUNDED"
	ErrAlreadyClaimed     ErrorCode = "ALREADY_CLAIMED"
	ErrInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	ErrExternalDependency ErrorCode = "EXTERNAL_DEPENDENCY"
	ErrInternalServer     ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Retryable reports whether the caller may retry the failed operation as-is.
// Only concurrent-write conflicts qualify; every other code is terminal.
func Retryable(err error) bool {
	apiErr, ok := err.(APIError)
	return ok && apiErr.Code == ErrConflict
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrAlreadyRefunded, ErrAlreadyClaimed:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrUnauthenticated:
			return http.StatusUnauthorized
		case ErrForbidden:
			return http.StatusForbidden
		case ErrInvalidState, ErrInsufficientFunds:
			return http.StatusUnprocessableEntity
		case ErrExternalDependency:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
