package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/tenantcore/internal/service"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// FromError writes the response for an error returned by a service.
// Unrecognized errors are logged and reported as a 500 without detail.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *service.ValidationError
		cerr *service.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "One or more fields are invalid", verr.Fields)
	case errors.Is(err, service.ErrInvalidCredential):
		Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	case errors.Is(err, service.ErrNotFound):
		Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, service.ErrForbidden):
		Error(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
	case errors.As(err, &cerr):
		Error(w, http.StatusConflict, "CONFLICT", err.Error(), map[string]string{cerr.Field: cerr.Reason})
	case errors.Is(err, service.ErrConflict):
		Error(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
