package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/templui/fileshare/internal/ctxkeys"
	"github.com/templui/fileshare/internal/ratelimit"
	"github.com/templui/fileshare/internal/respond"
)

// KeyFunc picks the rate limit bucket for a request.
type KeyFunc func(r *http.Request) string

// ByIP buckets requests by client address.
func ByIP(r *http.Request) string {
	return "ip:" + getClientIP(r)
}

// ByUser buckets authenticated requests by user and the rest by address.
func ByUser(r *http.Request) string {
	if id := ctxkeys.UserID(r.Context()); id != "" {
		return "user:" + id
	}
	return ByIP(r)
}

// RateLimit consumes one slot per request and answers 429 when none is left.
// Store failures let the request through.
func RateLimit(limiter *ratelimit.Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				slog.Error("rate limiter unavailable", "limiter", limiter.Name(), "error", err)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)
			if !result.Allowed {
				tooManyRequests(w, r, limiter, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitFailures only counts requests that end in an error status, so
// successful logins never use up the budget. A slot is reserved before the
// handler runs and handed back on success.
func RateLimitFailures(limiter *ratelimit.Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, release, err := limiter.Reserve(r.Context(), key(r))
			if err != nil {
				slog.Error("rate limiter unavailable", "limiter", limiter.Name(), "error", err)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)
			if !result.Allowed {
				tooManyRequests(w, r, limiter, result)
				return
			}

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			if rw.statusCode < http.StatusBadRequest {
				err = release(context.WithoutCancel(r.Context()))
				if err != nil {
					slog.Error("failed to release rate limit slot", "limiter", limiter.Name(), "error", err)
				}
			}
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func tooManyRequests(w http.ResponseWriter, r *http.Request, limiter *ratelimit.Limiter, result *ratelimit.Result) {
	retryAfter := int(result.RetryAfter().Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	slog.Warn("rate limit exceeded",
		"limiter", limiter.Name(),
		"ip", getClientIP(r),
		"path", r.URL.Path,
	)

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	respond.Fail(w, http.StatusTooManyRequests, "Too many requests, please try again later")
}
