package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/engineroom-pricing/internal/common"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles readiness. The server clears it when shutdown begins.
func SetReady(v bool) {
	ready.Store(v)
}

// Dependency is a named readiness check.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Deps    []Dependency
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency checks.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"server": "shutting down"})
		return
	}
	status := make(map[string]string, len(h.Deps))
	healthy := true
	for _, dep := range h.Deps {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		err := dep.Check(ctx)
		cancel()
		if err != nil {
			status[dep.Name] = err.Error()
			healthy = false
			continue
		}
		status[dep.Name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.Timeout
}
