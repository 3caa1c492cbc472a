// Package respond writes the JSON envelope shared by every API response.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/templui/fileshare/internal/apperr"
	"github.com/templui/fileshare/internal/pagination"
)

type envelope struct {
	Success    bool                `json:"success"`
	Data       any                 `json:"data,omitempty"`
	Pagination *pagination.Meta    `json:"pagination,omitempty"`
	Message    string              `json:"message,omitempty"`
	Errors     []apperr.FieldError `json:"errors,omitempty"`
	Path       string              `json:"path,omitempty"`
	Detail     string              `json:"detail,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, envelope{Success: true, Data: data})
}

func Paginated(w http.ResponseWriter, data any, meta pagination.Meta) {
	JSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &meta})
}

func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, envelope{Success: true, Message: message})
}

func Fail(w http.ResponseWriter, status int, message string, fields ...apperr.FieldError) {
	JSON(w, status, envelope{Success: false, Message: message, Errors: fields})
}

// NotFound is the fallback for unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusNotFound, envelope{Success: false, Message: "Route not found", Path: r.URL.Path})
}

// Error renders err with the status of its kind. Internal and upstream causes
// are logged and only exposed when verbose is set.
func Error(w http.ResponseWriter, r *http.Request, err error, verbose bool) {
	kind := apperr.KindOf(err)
	status := Status(kind)

	body := envelope{Success: false, Message: "Internal server error"}
	if e, ok := apperr.As(err); ok {
		body.Message = e.Message
		body.Errors = e.Fields
	}

	if kind == apperr.Internal || kind == apperr.Upstream {
		slog.Error("request failed",
			"error", err,
			"kind", kind.String(),
			"method", r.Method,
			"path", r.URL.Path,
		)
		if verbose {
			body.Detail = err.Error()
		} else if kind == apperr.Internal {
			body.Message = "Internal server error"
		}
	}

	JSON(w, status, body)
}

func Status(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Upstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
