package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/templui/fileshare/internal/ctxkeys"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/respond"
)

// AuthCookie carries the session token for browser clients.
const AuthCookie = "auth_token"

// Authenticator resolves a token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// Auth puts the user behind a valid bearer token or auth cookie into the
// context. Requests without a valid token continue anonymously.
func Auth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			user.PasswordHash = ""
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithUser(r.Context(), user)))
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.User(r.Context()) != nil {
			next(w, r)
			return
		}

		if tokenFromRequest(r) == "" {
			respond.Fail(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		respond.Fail(w, http.StatusUnauthorized, "Not authorized, token failed")
	}
}

func tokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}

	cookie, err := r.Cookie(AuthCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
