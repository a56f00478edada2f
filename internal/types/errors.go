package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Handlers and services use these constants instead of hardcoded strings.
// The prefix of each code selects its HTTP status (see HTTPStatus).
const (
	// Validation (400)
	ErrCodeValidationInvalidLat    ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon    ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationInvalidCoords ErrorCode = "validation_invalid_coordinates"
	ErrCodeValidationInvalidMonth  ErrorCode = "validation_invalid_month"
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidInput  ErrorCode = "validation_invalid_input"
	ErrCodeValidationInvalidID     ErrorCode = "validation_invalid_id"
	ErrCodeValidationInvalidImage  ErrorCode = "validation_invalid_image"
	ErrCodeValidationNoImages      ErrorCode = "validation_no_images"
	ErrCodeValidationInvalidPlan   ErrorCode = "validation_invalid_plan"
	ErrCodeValidationWeakPassword  ErrorCode = "validation_weak_password"

	// Auth (401)
	ErrCodeAuthNotAuthenticated ErrorCode = "auth_not_authenticated"
	ErrCodeAuthSessionInvalid   ErrorCode = "auth_session_invalid"
	ErrCodeAuthSessionExpired   ErrorCode = "auth_session_expired"
	ErrCodeAuthInvalidCreds     ErrorCode = "auth_invalid_credentials"
	ErrCodeAuthCSRFInvalid      ErrorCode = "auth_csrf_invalid"
	ErrCodeAuthLocked           ErrorCode = "auth_account_locked"
	ErrCodeAuthSignatureInvalid ErrorCode = "auth_signature_invalid"

	// Permission (403)
	ErrCodePermissionNotOwner ErrorCode = "permission_not_owner"

	// Limits (429)
	ErrCodeLimitIdentifications ErrorCode = "limit_identifications_exceeded"
	ErrCodeRateLimit            ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundUser           ErrorCode = "not_found_user"
	ErrCodeNotFoundIdentification ErrorCode = "not_found_identification"
	ErrCodeNotFoundLogbookEntry   ErrorCode = "not_found_logbook_entry"
	ErrCodeNotFoundSubscription   ErrorCode = "not_found_subscription"
	ErrCodeNotFoundSession        ErrorCode = "not_found_session"
	ErrCodeNotFoundRoute          ErrorCode = "not_found_route"

	// Conflict (409)
	ErrCodeConflictUsername ErrorCode = "conflict_username_exists"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB              ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected      ErrorCode = "internal_unexpected_error"
	ErrCodeInternalIdentification  ErrorCode = "internal_identification_failed"
	ErrCodeInternalWeather         ErrorCode = "internal_weather_failed"
	ErrCodeUpstreamStripe          ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamWeather         ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamVision          ErrorCode = "upstream_vision_unavailable"
	ErrCodeUpstreamUnavailable     ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited     ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamInvalidResponse ErrorCode = "upstream_invalid_response"

	// Payment-specific
	ErrCodePaymentDeclined ErrorCode = "payment_declined"
)

// HTTPStatus maps an ErrorCode to its HTTP status code.
// Unrecognized codes map to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case s == string(ErrCodeAuthLocked):
		return http.StatusTooManyRequests
	case s == string(ErrCodeAuthCSRFInvalid):
		return http.StatusForbidden
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "limit_"), s == string(ErrCodeRateLimit):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodePaymentDeclined):
		return http.StatusPaymentRequired
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Domain and handler errors
// are expressed as AppError so the HTTP layer can map them consistently.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// AsAppError extracts an *AppError from err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
