package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"bugspotter/internal/types"
)

const (
	// DefaultMaxBodyBytes caps ordinary JSON request bodies.
	DefaultMaxBodyBytes int64 = 1 << 20
	// IdentifyMaxBodyBytes caps /api/identify, which carries base64 images.
	IdentifyMaxBodyBytes int64 = 10 << 20
)

// errorBody is the failure envelope: {"success":false,"error":"..."}.
type errorBody struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// JSON writes data as the response body with the given status. A marshal
// failure degrades to a 500 failure envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(errorBody{
			Error:     "An unexpected error occurred",
			Code:      string(types.ErrCodeInternalUnexpected),
			RequestID: types.GetRequestID(r.Context()),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Success writes {"success":true, ...fields}.
func Success(w http.ResponseWriter, r *http.Request, status int, fields map[string]any) {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["success"] = true
	JSON(w, r, status, out)
}

// Error writes the failure envelope for err. An AppError keeps its message
// and the status its code maps to; anything else becomes a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), errorBody{
			Error:     appErr.Message,
			Code:      string(appErr.Code),
			Details:   appErr.Details,
			RequestID: requestID,
		})
		return
	}

	JSON(w, r, http.StatusInternalServerError, errorBody{
		Error:     "An unexpected error occurred",
		Code:      string(types.ErrCodeInternalUnexpected),
		RequestID: requestID,
	})
}

// ErrorWithFallback writes client errors (4xx) as-is. Server-side failures
// are logged and answered with a 500 carrying the route's fallback message,
// so upstream and database details never reach the client.
func ErrorWithFallback(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	if appErr, ok := types.AsAppError(err); ok && appErr.HTTPStatus() < http.StatusInternalServerError {
		Error(w, r, appErr)
		return
	}

	code := types.ErrCodeInternalUnexpected
	if appErr, ok := types.AsAppError(err); ok {
		code = appErr.Code
	}
	if logger != nil {
		logger.ErrorContext(r.Context(), fallback,
			slog.String("path", r.URL.Path),
			slog.String("error_code", string(code)),
			slog.Any("error", err),
		)
	}
	JSON(w, r, http.StatusInternalServerError, errorBody{
		Error:     fallback,
		Code:      string(code),
		RequestID: types.GetRequestID(r.Context()),
	})
}

// DecodeJSON reads a single JSON value from the body into dst, refusing
// bodies larger than maxBytes. Unknown fields are ignored. Failures come back
// as validation_invalid_input AppErrors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err, maxBytes)
	}
	if dec.More() {
		return types.NewAppError(types.ErrCodeValidationInvalidInput,
			"request body must contain a single JSON object", nil)
	}
	return nil
}

func mapDecodeError(err error, maxBytes int64) *types.AppError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewAppError(types.ErrCodeValidationInvalidInput,
			fmt.Sprintf("request body must not exceed %dMB", maxBytes>>20), err)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return types.NewAppError(types.ErrCodeValidationInvalidInput, "malformed JSON in request body", err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidInput,
			"invalid value for field", err,
			map[string]any{"field": typeErr.Field, "expected": typeErr.Type.String()})
	}

	if errors.Is(err, io.EOF) {
		return types.NewAppError(types.ErrCodeValidationInvalidInput, "request body must not be empty", err)
	}

	return types.NewAppError(types.ErrCodeValidationInvalidInput, "invalid JSON in request body", err)
}
