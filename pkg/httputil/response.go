// Package httputil writes the JSON envelope every listings endpoint answers
// with.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
	"github.com/ffimoveis/imoveis/pkg/logger"
	"github.com/ffimoveis/imoveis/pkg/validator"
)

// Response wraps either a payload or an error, never both.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of Response. RequestID echoes the
// correlation id so a client report can be matched to server logs.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError answers with the status apperrors.HTTPStatus assigns to err.
// Server-side failures are logged with the request-scoped logger when the
// RequestLogger middleware installed one, otherwise with fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		WriteJSON(w, appErr.Status, Response{
			Error: &ErrorResponse{Code: appErr.Code, Message: appErr.Message, RequestID: requestID},
		})
		return
	}

	kind := apperrors.KindOf(err)
	body := ErrorResponse{Code: kind.Code, Message: kind.Message, RequestID: requestID}
	if body.Message == "" {
		body.Message = err.Error()
	}

	status := kind.Status
	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() {
			l = fallback
		}
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.Int("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{Error: &body})
}

// WriteValidationError answers 400, listing the offending fields when err
// came from the validator package.
func WriteValidationError(w http.ResponseWriter, err error) {
	body := ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		body = ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		}
	}
	WriteJSON(w, http.StatusBadRequest, Response{Error: &body})
}
