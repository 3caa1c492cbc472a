package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/templui/fileshare/internal/ctxkeys"
	"github.com/templui/fileshare/internal/respond"
)

// Recover turns a panic into a 500 envelope.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.Error("panic recovered",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", ctxkeys.RequestID(r.Context()),
				"stack", string(debug.Stack()),
			)
			respond.Fail(w, http.StatusInternalServerError, "Internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}
