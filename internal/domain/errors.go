package domain

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	CodeInvalidArgument          ErrorCode = "invalid_argument"
	CodeNotFound                 ErrorCode = "not_found"
	CodeForbidden                ErrorCode = "forbidden"
	CodeExecutionNotConfigured   ErrorCode = "execution_not_configured"
	CodeSchemaUnavailable        ErrorCode = "schema_unavailable"
	CodeIntegrityViolation       ErrorCode = "integrity_violation"
	CodeNoRecommendableSkill     ErrorCode = "no_recommendable_skill"
	CodeInvalidContainerContract ErrorCode = "invalid_container_contract"
	CodeOrchestrationTimeout     ErrorCode = "trial_orchestration_timeout"
	CodeUpstream                 ErrorCode = "upstream_error"
	CodeInternal                 ErrorCode = "internal"
)

type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code onto the status the HTTP surface returns.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeIntegrityViolation, CodeNoRecommendableSkill:
		return http.StatusConflict
	case CodeInvalidContainerContract:
		return http.StatusUnprocessableEntity
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeExecutionNotConfigured, CodeSchemaUnavailable:
		return http.StatusServiceUnavailable
	case CodeOrchestrationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func InvalidArgument(message string) *AppError {
	return &AppError{Code: CodeInvalidArgument, Message: message}
}

func InvalidArgumentf(format string, args ...any) *AppError {
	return &AppError{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func Forbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

func ExecutionNotConfigured(message string) *AppError {
	return &AppError{Code: CodeExecutionNotConfigured, Message: message}
}

func SchemaUnavailable(message string, cause error) *AppError {
	return &AppError{Code: CodeSchemaUnavailable, Message: message, Cause: cause}
}

func IntegrityViolation(message string) *AppError {
	return &AppError{Code: CodeIntegrityViolation, Message: message}
}

func IntegrityViolationf(format string, args ...any) *AppError {
	return &AppError{Code: CodeIntegrityViolation, Message: fmt.Sprintf(format, args...)}
}

func NoRecommendableSkill(message string) *AppError {
	return &AppError{Code: CodeNoRecommendableSkill, Message: message}
}

func InvalidContainerContract(message string, cause error) *AppError {
	return &AppError{Code: CodeInvalidContainerContract, Message: message, Cause: cause}
}

func OrchestrationTimeout(message string, cause error) *AppError {
	return &AppError{Code: CodeOrchestrationTimeout, Message: message, Cause: cause}
}

func Upstream(message string, cause error) *AppError {
	return &AppError{Code: CodeUpstream, Message: message, Cause: cause}
}

func Internal(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Cause: cause}
}

// AsAppError unwraps err looking for an *AppError anywhere in the chain.
func AsAppError(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}
	var typed *AppError
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// HasCode reports whether err carries the given application error code.
func HasCode(err error, code ErrorCode) bool {
	typed, ok := AsAppError(err)
	return ok && typed.Code == code
}
