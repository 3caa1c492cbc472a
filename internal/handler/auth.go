package handler

import (
	"net/http"
	"time"

	"github.com/templui/fileshare/internal/ctxkeys"
	"github.com/templui/fileshare/internal/middleware"
	"github.com/templui/fileshare/internal/respond"
	"github.com/templui/fileshare/internal/service"
)

type AuthHandler struct {
	responder
	authService  *service.AuthService
	secureCookie bool
}

func NewAuthHandler(authService *service.AuthService, production bool) *AuthHandler {
	return &AuthHandler{
		responder:    responder{verbose: !production},
		authService:  authService,
		secureCookie: production,
	}
}

type authResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	err := decodeJSON(r, &in, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	session, err := h.authService.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.setAuthCookie(w, session)
	respond.Success(w, http.StatusCreated, newAuthResponse(session))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	err := decodeJSON(r, &in, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	session, err := h.authService.Login(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.setAuthCookie(w, session)
	respond.Success(w, http.StatusOK, newAuthResponse(session))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	respond.Message(w, http.StatusOK, "Logged out")
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.Me(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateProfileInput
	err := decodeJSON(r, &in, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), ctxkeys.UserID(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in service.ChangePasswordInput
	err := decodeJSON(r, &in, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	err = h.authService.ChangePassword(r.Context(), ctxkeys.UserID(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Message(w, http.StatusOK, "Password updated successfully")
}

// setAuthCookie mirrors the bearer token into an HttpOnly cookie for browsers.
func (h *AuthHandler) setAuthCookie(w http.ResponseWriter, session *service.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func newAuthResponse(s *service.Session) authResponse {
	return authResponse{
		ID:        s.User.ID,
		Username:  s.User.Username,
		Email:     s.User.Email,
		Role:      s.User.Role,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}
