package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/templui/fileshare/internal/cache"
	"github.com/templui/fileshare/internal/ctxkeys"
)

// GroupCachePrefix scopes cached group responses to one user.
func GroupCachePrefix(userID string) string {
	return "groups:" + userID + ":"
}

// bodyRecorder passes the response through while keeping a copy.
type bodyRecorder struct {
	*responseWriter
	body bytes.Buffer
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	br.body.Write(b)
	return br.responseWriter.Write(b)
}

// CacheGroups serves GET responses of the user's group routes from c and
// stores fresh 200 responses for ttl.
func CacheGroups(c cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ctxkeys.UserID(r.Context())
			if r.Method != http.MethodGet || userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := GroupCachePrefix(userID) + r.URL.RequestURI()

			cached, ok, err := c.Get(r.Context(), key)
			if err != nil {
				slog.Warn("cache read failed", "key", key, "error", err)
			}
			if ok {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached)
				return
			}

			w.Header().Set("X-Cache", "MISS")
			rec := &bodyRecorder{responseWriter: newResponseWriter(w)}
			next.ServeHTTP(rec, r)

			if rec.statusCode != http.StatusOK {
				return
			}
			err = c.Set(r.Context(), key, rec.body.Bytes(), ttl)
			if err != nil {
				slog.Warn("cache write failed", "key", key, "error", err)
			}
		})
	}
}

// InvalidateGroups drops the user's cached group responses after any
// successful mutation.
func InvalidateGroups(c cache.Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			userID := ctxkeys.UserID(r.Context())
			if userID == "" || rw.statusCode >= http.StatusBadRequest {
				return
			}

			err := c.DeletePrefix(r.Context(), GroupCachePrefix(userID))
			if err != nil {
				slog.Warn("cache invalidation failed", "user_id", userID, "error", err)
			}
		})
	}
}
