package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templui/fileshare/internal/cache"
	"github.com/templui/fileshare/internal/ctxkeys"
	"github.com/templui/fileshare/internal/middleware"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/ratelimit"
)

func newLimiter(t *testing.T, limit int) *ratelimit.Limiter {
	t.Helper()

	store := ratelimit.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	l, err := ratelimit.New("test", store, limit, time.Minute)
	require.NoError(t, err)
	return l
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := middleware.Chain(statusHandler(http.StatusOK), mw("first"), mw("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	h := middleware.RateLimit(newLimiter(t, 2), middleware.ByIP)(statusHandler(http.StatusOK))

	for i := range 2 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, []string{"1", "0"}[i], rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])

	// A forged header does not open a new bucket.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	req.Header.Set("X-Forwarded-For", "10.0.0.2")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other clients keep their own budget.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRealIP(t *testing.T) {
	t.Parallel()

	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name    string
		remote  string
		xff     string
		realIP  string
		trusted []netip.Prefix
		want    string
	}{
		{"no proxies configured", "192.0.2.1:1234", "203.0.113.9", "", nil, "192.0.2.1"},
		{"untrusted peer", "192.0.2.1:1234", "203.0.113.9", "198.51.100.1", proxies, "192.0.2.1"},
		{"trusted peer", "10.1.2.3:80", "203.0.113.9", "", proxies, "203.0.113.9"},
		{"skips own hops", "10.1.2.3:80", "203.0.113.9, 10.0.0.5", "", proxies, "203.0.113.9"},
		{"client prefix is not trusted", "10.1.2.3:80", "1.1.1.1, 203.0.113.9, 10.0.0.5", "", proxies, "203.0.113.9"},
		{"garbage hop stops the walk", "10.1.2.3:80", "not-an-ip", "", proxies, "10.1.2.3"},
		{"real ip header", "10.1.2.3:80", "", "203.0.113.4", proxies, "203.0.113.4"},
		{"ipv6 peer", "[2001:db8::1]:443", "203.0.113.9", "", proxies, "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got string
			h := middleware.RealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ctxkeys.ClientIP(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimitFailuresCountsOnlyErrors(t *testing.T) {
	t.Parallel()

	limiter := newLimiter(t, 2)
	status := http.StatusOK
	h := middleware.RateLimitFailures(limiter, middleware.ByIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	do := func() int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		return rec.Code
	}

	for range 5 {
		assert.Equal(t, http.StatusOK, do())
	}

	status = http.StatusUnauthorized
	assert.Equal(t, http.StatusUnauthorized, do())
	assert.Equal(t, http.StatusUnauthorized, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestRateLimitFailuresHoldsUnderConcurrency(t *testing.T) {
	t.Parallel()

	var reached atomic.Int32
	h := middleware.RateLimitFailures(newLimiter(t, 2), middleware.ByIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	var limited atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
			if rec.Code == http.StatusTooManyRequests {
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), reached.Load())
	assert.Equal(t, int32(8), limited.Load())
}

type stubAuth struct{}

func (stubAuth) Authenticate(_ context.Context, token string) (*model.User, error) {
	if token == "good" {
		return &model.User{ID: "u1", Username: "alice", PasswordHash: "secret"}, nil
	}
	return nil, errors.New("bad token")
}

func TestAuth(t *testing.T) {
	t.Parallel()

	protected := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		user := ctxkeys.User(r.Context())
		assert.Empty(t, user.PasswordHash)
		w.WriteHeader(http.StatusNoContent)
	})
	h := middleware.Auth(stubAuth{})(protected)

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		status  int
		message string
	}{
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusNoContent, ""},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: middleware.AuthCookie, Value: "good"}) }, http.StatusNoContent, ""},
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized, "Not authorized, no token"},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized, "Not authorized, token failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.message != "" {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxkeys.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(middleware.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "<script>")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", seen)
	assert.Len(t, seen, 36)
}

func TestRecover(t *testing.T) {
	t.Parallel()

	h := middleware.Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestGroupCache(t *testing.T) {
	t.Parallel()

	c := cache.NewMemoryCache(16)
	calls := 0
	list := middleware.CacheGroups(c, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	mutate := middleware.InvalidateGroups(c)(statusHandler(http.StatusCreated))

	withUser := func(method string) *http.Request {
		req := httptest.NewRequest(method, "/api/groups?page=1", nil)
		return req.WithContext(ctxkeys.WithUser(req.Context(), &model.User{ID: "u1"}))
	}

	rec := httptest.NewRecorder()
	list.ServeHTTP(rec, withUser(http.MethodGet))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = httptest.NewRecorder()
	list.ServeHTTP(rec, withUser(http.MethodGet))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, 1, calls)

	mutate.ServeHTTP(httptest.NewRecorder(), withUser(http.MethodPost))

	rec = httptest.NewRecorder()
	list.ServeHTTP(rec, withUser(http.MethodGet))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	middleware.SecurityHeaders(true)(statusHandler(http.StatusOK)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestCSRFProtection(t *testing.T) {
	t.Parallel()

	h := middleware.CSRFProtection("http://client.test/")(statusHandler(http.StatusNoContent))

	tests := []struct {
		name    string
		method  string
		cookie  bool
		headers map[string]string
		want    int
	}{
		{"safe method", http.MethodGet, true, nil, http.StatusNoContent},
		{"no cookie", http.MethodPost, false, nil, http.StatusNoContent},
		{"bearer token", http.MethodPost, true, map[string]string{"Authorization": "Bearer x"}, http.StatusNoContent},
		{"trusted origin", http.MethodDelete, true, map[string]string{"Origin": "http://client.test"}, http.StatusNoContent},
		{"trusted referer", http.MethodPut, true, map[string]string{"Referer": "http://client.test/files/1"}, http.StatusNoContent},
		{"same origin fetch", http.MethodPost, true, map[string]string{"Sec-Fetch-Site": "same-origin"}, http.StatusNoContent},
		{"foreign origin", http.MethodPost, true, map[string]string{"Origin": "http://evil.test"}, http.StatusForbidden},
		{"no origin", http.MethodPost, true, nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/api/files/1", nil)
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: middleware.AuthCookie, Value: "token"})
			}
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
