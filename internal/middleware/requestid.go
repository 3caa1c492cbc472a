package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/templui/fileshare/internal/ctxkeys"
)

const (
	RequestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 128
)

var validRequestID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// RequestID reuses a well-formed incoming X-Request-ID or generates one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if len(id) == 0 || len(id) > maxRequestIDLength || !validRequestID.MatchString(id) {
			id = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctxkeys.WithRequestID(r.Context(), id)))
	})
}
