package handlers

import (
	"net/http"
	"time"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	build  services.BuildInfo
	system services.SystemService
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs handlers for /healthz and /readyz.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	return h
}

// WithHealthBuildInfo sets the build metadata reported by the liveness probe.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthSystemService wires the dependency health report used by /readyz.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthClock overrides the clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		h.clock = clock
	}
}

type healthzResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Healthz reports process liveness and build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock()
	resp := healthzResponse{
		Status:      "ok",
		Version:     h.build.Version,
		Environment: h.build.Environment,
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
	}
	if !h.build.StartedAt.IsZero() {
		resp.Uptime = now.Sub(h.build.StartedAt).Round(time.Second).String()
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type readyzResponse struct {
	Status  string                  `json:"status"`
	Checks  map[string]readyzCheck  `json:"checks"`
	Details []string                `json:"details"`
}

type readyzCheck struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Readyz reports dependency health. Degraded dependencies still serve traffic;
// only a hard failure returns 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readyzResponse{
			Status:  string(domain.HealthStatusOK),
			Checks:  map[string]readyzCheck{},
			Details: []string{},
		})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:  string(domain.HealthStatusError),
			Checks:  map[string]readyzCheck{},
			Details: []string{err.Error()},
		})
		return
	}

	resp := readyzResponse{
		Status:  string(report.Status),
		Checks:  make(map[string]readyzCheck, len(report.Checks)),
		Details: []string{},
	}
	for name, check := range report.Checks {
		entry := readyzCheck{Status: string(check.Status), Error: check.Error}
		if check.Latency > 0 {
			entry.Latency = check.Latency.String()
		}
		resp.Checks[name] = entry
		if check.Status != domain.HealthStatusOK {
			detail := name
			if check.Error != "" {
				detail = name + ": " + check.Error
			}
			resp.Details = append(resp.Details, detail)
		}
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
