package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

var startedAt = time.Now()

// HealthResponse is the body of GET /ui/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadinessResponse is the body of GET /ui/ready. Failed lists the names of
// failing checks in sorted order.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
	Failed []string               `json:"failed,omitempty"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker is implemented by the backend registry and the session store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks lists what /ui/ready verifies. DefinitionsLoaded always
// runs and fails when nil; the rest run only when set.
type ReadinessChecks struct {
	DefinitionsLoaded func() bool
	OpenAPILoaded     func() bool
	Backend           HealthChecker
	Sessions          HealthChecker
}

const checkTimeout = 2 * time.Second

var (
	errNoDefinitions = errors.New("no screen definitions loaded")
	errNoOpenAPI     = errors.New("OpenAPI contract not loaded")
)

type probe struct {
	name string
	run  func(ctx context.Context) error
}

func flagProbe(name string, ok func() bool, failure error) probe {
	return probe{name: name, run: func(context.Context) error {
		if ok == nil || !ok() {
			return failure
		}
		return nil
	}}
}

func (c ReadinessChecks) probes() []probe {
	out := []probe{flagProbe("definitions", c.DefinitionsLoaded, errNoDefinitions)}
	if c.OpenAPILoaded != nil {
		out = append(out, flagProbe("openapi_index", c.OpenAPILoaded, errNoOpenAPI))
	}
	if c.Backend != nil {
		out = append(out, probe{name: "backend", run: c.Backend.HealthCheck})
	}
	if c.Sessions != nil {
		out = append(out, probe{name: "sessions", run: c.Sessions.HealthCheck})
	}
	return out
}

// HandleHealth serves the liveness endpoint. It never consults dependencies.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:        "ok",
			Version:       Version,
			Commit:        Commit,
			UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		})
	}
}

// HandleReady serves the readiness endpoint. Checks run concurrently, each
// bounded by checkTimeout; any failure answers 503.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		probes := checks.probes()
		results := make([]CheckResult, len(probes))

		var wg sync.WaitGroup
		for i, p := range probes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = p.measure(r.Context())
			}()
		}
		wg.Wait()

		resp := ReadinessResponse{Status: "ready", Checks: make(map[string]CheckResult, len(probes))}
		for i, p := range probes {
			resp.Checks[p.name] = results[i]
			if results[i].Status != "ok" {
				resp.Failed = append(resp.Failed, p.name)
			}
		}

		status := http.StatusOK
		if len(resp.Failed) > 0 {
			sort.Strings(resp.Failed)
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func (p probe) measure(parent context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := p.run(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
