package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"loanflow/pkg/platform/httputil"
)

// Check probes one dependency. Implementations must respect the context
// deadline.
type Check func(ctx context.Context) error

const healthTimeout = 3 * time.Second

// HealthHandler answers liveness and readiness probes. Liveness is
// unconditional; readiness fans out to every registered dependency check
// concurrently and fails when any dependency does.
type HealthHandler struct {
	checks map[string]Check
	logger *slog.Logger
}

func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: make(map[string]Check), logger: logger}
}

// AddCheck registers a named dependency probe.
func (h *HealthHandler) AddCheck(name string, check Check) {
	h.checks[name] = check
}

func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(h.checks))

	g, ctx := errgroup.WithContext(ctx)
	for name, check := range h.checks {
		name, check := name, check
		g.Go(func() error {
			results <- outcome{name: name, err: check(ctx)}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for res := range results {
		if res.err != nil {
			h.logger.Warn("readiness check failed", "dependency", res.name, "error", res.err)
			deps[res.name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[res.name] = "up"
	}

	body := map[string]any{"dependencies": deps}
	if status == http.StatusOK {
		body["status"] = "ok"
	} else {
		body["status"] = "degraded"
	}
	httputil.WriteJSON(w, status, body)
}
