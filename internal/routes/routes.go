package routes

import (
	"fmt"
	"net/http"

	"github.com/templui/fileshare/internal/app"
	"github.com/templui/fileshare/internal/handler"
	"github.com/templui/fileshare/internal/middleware"
	"github.com/templui/fileshare/internal/pagination"
	"github.com/templui/fileshare/internal/respond"
	"github.com/templui/fileshare/internal/storage"
)

const (
	jsonBodyLimit  = 1 << 20
	multipartSlack = 1 << 20
)

func SetupRoutes(app *app.App) (http.Handler, error) {
	cfg := app.Cfg
	production := cfg.IsProduction()

	pageOptions := pagination.Options{DefaultLimit: cfg.PageSizeDefault, MaxLimit: cfg.PageSizeMax}

	// Handlers
	auth := handler.NewAuthHandler(app.AuthService, production)
	files := handler.NewFileHandler(app.FileService, pageOptions, production)
	groups := handler.NewGroupHandler(app.GroupService, pageOptions, production)
	checks := make(map[string]handler.Check, len(app.Checks))
	for name, check := range app.Checks {
		checks[name] = handler.Check(check)
	}
	health := handler.NewHealthHandler(checks)

	// Per-route middleware
	limits := app.Limiters
	jsonBody := middleware.BodyLimit(jsonBodyLimit)
	authFailures := middleware.RateLimitFailures(limits.Auth, middleware.ByIP)
	fileAccess := middleware.RateLimit(limits.FileAccess, middleware.ByIP)
	invalidate := middleware.InvalidateGroups(app.Cache)
	cached := middleware.CacheGroups(app.Cache, cfg.CacheTTL)

	api := http.NewServeMux()

	// ============================================================================
	// AUTH
	// ============================================================================

	api.Handle("POST /api/auth/register", middleware.Chain(http.HandlerFunc(auth.Register), authFailures, jsonBody))
	api.Handle("POST /api/auth/login", middleware.Chain(http.HandlerFunc(auth.Login), authFailures, jsonBody))
	api.HandleFunc("POST /api/auth/logout", auth.Logout)
	api.HandleFunc("GET /api/auth/me", middleware.RequireAuth(auth.Me))
	api.Handle("PUT /api/auth/profile", protected(auth.UpdateProfile, jsonBody))
	api.Handle("PUT /api/auth/password", protected(auth.ChangePassword, authFailures, jsonBody))

	// ============================================================================
	// FILES
	// ============================================================================

	// Public, optionally authenticated
	api.Handle("GET /api/files/public", middleware.Chain(http.HandlerFunc(files.Public), fileAccess))
	api.Handle("GET /api/files/{id}", middleware.Chain(http.HandlerFunc(files.Get), fileAccess))
	api.Handle("POST /api/files/{id}/download", middleware.Chain(http.HandlerFunc(files.Download),
		middleware.RateLimit(limits.Download, middleware.ByIP),
		jsonBody,
	))

	// Owner
	api.Handle("POST /api/files/upload", protected(files.Upload,
		middleware.RateLimit(limits.Upload, middleware.ByUser),
		middleware.BodyLimit(cfg.MaxFileSize+multipartSlack),
		invalidate,
	))
	api.Handle("GET /api/files", protected(files.List))
	api.Handle("PUT /api/files/{id}", protected(files.Update, jsonBody, invalidate))
	api.Handle("DELETE /api/files/{id}", protected(files.Delete, invalidate))
	api.Handle("GET /api/files/{id}/qr", protected(files.QRCode))

	// ============================================================================
	// GROUPS
	// ============================================================================

	api.Handle("POST /api/groups", protected(groups.Create,
		middleware.RateLimit(limits.GroupCreate, middleware.ByUser),
		jsonBody,
		invalidate,
	))
	api.Handle("GET /api/groups", protected(groups.List, cached))
	api.Handle("GET /api/groups/{id}", protected(groups.Get, cached))
	api.Handle("GET /api/groups/{id}/files", protected(groups.Files, cached))
	api.Handle("PUT /api/groups/{id}", protected(groups.Update, jsonBody, invalidate))
	api.Handle("DELETE /api/groups/{id}", protected(groups.Delete, invalidate))

	api.HandleFunc("/api/{path...}", respond.NotFound)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.Chain(api, middleware.RateLimit(limits.API, middleware.ByIP)))
	mux.HandleFunc("GET /health", health.Health)

	if local, ok := app.Storage.(*storage.LocalStorage); ok {
		mux.Handle("GET "+storage.LocalURLPrefix+"{key...}", handler.Uploads(local.Dir()))
	}

	// 404
	mux.HandleFunc("/", respond.NotFound)

	compress, err := middleware.Compression()
	if err != nil {
		return nil, fmt.Errorf("failed to set up compression: %w", err)
	}

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}

	// Global middleware - executed in order (top to bottom)
	return middleware.Chain(
		mux,
		middleware.Recover,
		middleware.RequestID,
		middleware.RealIP(proxies),
		middleware.RequestLogging,
		middleware.SecurityHeaders(production),
		middleware.CORS(cfg.ClientURL),
		middleware.CSRFProtection(cfg.ClientURL, cfg.AppURL),
		compress,
		middleware.Auth(app.AuthService),
	), nil
}

// protected requires an authenticated user before running mws and h.
func protected(h http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
	return middleware.RequireAuth(middleware.Chain(h, mws...).ServeHTTP)
}
