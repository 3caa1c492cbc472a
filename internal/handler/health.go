package handler

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/templui/fileshare/internal/respond"
)

const healthTimeout = 2 * time.Second

// Check pings one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	started time.Time
	checks  map[string]Check
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{started: time.Now(), checks: checks}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    float64           `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Seconds(),
		Checks:    make(map[string]string, len(h.checks)),
	}
	status := http.StatusOK

	for name, check := range h.checks {
		err := check(ctx)
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "DEGRADED"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	respond.JSON(w, status, resp)
}

// Uploads serves objects of the local storage driver. Directory listings
// are not exposed.
func Uploads(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.PathValue("key"))
		if strings.HasSuffix(r.URL.Path, "/") {
			respond.NotFound(w, r)
			return
		}
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil || info.IsDir() {
			respond.NotFound(w, r)
			return
		}

		r.URL.Path = name
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Disposition", "attachment")
		files.ServeHTTP(w, r)
	})
}
