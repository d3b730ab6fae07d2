// Package integration provides a reusable test harness for end-to-end
// testing of the tshop admin server. It starts the full HTTP router in
// front of an in-memory tshop REST backend.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tshop/admin/internal/backend"
	"github.com/tshop/admin/internal/config"
	"github.com/tshop/admin/internal/definition"
	"github.com/tshop/admin/internal/observability"
	"github.com/tshop/admin/internal/openapi"
	"github.com/tshop/admin/internal/screen"
	"github.com/tshop/admin/internal/session"
	"github.com/tshop/admin/internal/transport"
	"github.com/tshop/admin/model"
)

// Today is the date every harness screen runs on.
var Today = time.Date(2024, time.June, 15, 9, 0, 0, 0, time.UTC)

// TestHarness is a fully wired admin server backed by a MockBackend.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	Backend  *MockBackend
	Registry *definition.Registry
	OAIndex  *openapi.Index
	Backends *backend.Registry
	Sessions *session.MemoryStore
	Metrics  *observability.Metrics
	Config   *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*config.Config)

// WithRetry sets the tshop service retry policy.
func WithRetry(rc config.RetryConfig) HarnessOption {
	return func(c *config.Config) {
		svc := c.Services[config.DefaultServiceID]
		svc.Retry = rc
		c.Services[config.DefaultServiceID] = svc
	}
}

// WithCircuitBreaker sets the tshop service circuit breaker.
func WithCircuitBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	return func(c *config.Config) {
		svc := c.Services[config.DefaultServiceID]
		svc.CircuitBreaker = cb
		c.Services[config.DefaultServiceID] = svc
	}
}

// WithBackendTimeout sets the per-request timeout of the tshop service.
func WithBackendTimeout(d time.Duration) HarnessOption {
	return func(c *config.Config) {
		svc := c.Services[config.DefaultServiceID]
		svc.Timeout = d
		c.Services[config.DefaultServiceID] = svc
	}
}

// WithHandlerTimeout sets the server's handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *config.Config) {
		c.Server.HandlerTimeout = d
	}
}

// WithMaxSessions caps the number of open screen sessions.
func WithMaxSessions(n int) HarnessOption {
	return func(c *config.Config) {
		c.Sessions.MaxSessions = n
	}
}

// NewTestHarness loads the shipped screen definitions, checks them against
// the tshop OpenAPI document, and serves the router on an httptest server.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	mb := newMockBackend(t)

	cfg := config.Defaults()
	cfg.Definitions.Directories = []string{filepath.Join(repoRoot(), "definitions")}
	cfg.BackendURL = mb.URL()
	cfg.Server.HandlerTimeout = 10 * time.Second
	cfg.Services = map[string]config.ServiceConfig{
		config.DefaultServiceID: {
			BaseURL:        mb.URL(),
			Timeout:        5 * time.Second,
			AcceptLanguage: "vi",
			Retry:          config.RetryConfig{MaxAttempts: 1, IdempotentOnly: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	oaIndex := openapi.NewIndex()
	if err := oaIndex.Load([]openapi.SpecSource{{
		ServiceID: config.DefaultServiceID,
		SpecPath:  filepath.Join(testdataDir(), "specs", "tshop-api.yaml"),
	}}); err != nil {
		t.Fatalf("loading OpenAPI index: %v", err)
	}

	defs, err := definition.NewLoader().LoadAll(cfg.Definitions.Directories)
	if err != nil {
		t.Fatalf("loading definitions: %v", err)
	}
	if verrs := definition.NewValidator().Validate(defs, oaIndex); len(verrs) > 0 {
		for _, ve := range verrs {
			t.Errorf("definition validation: %s", ve.Error())
		}
		t.FailNow()
	}
	registry := definition.NewRegistry(defs)

	metrics := observability.InitMetrics(prometheus.NewRegistry())
	logger := zap.NewNop()

	backends := backend.NewRegistry(cfg.Services,
		backend.WithLogger(logger),
		backend.WithMetrics(metrics),
	)
	sessions := session.NewMemoryStore(cfg.Sessions.TTL,
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
		session.WithMetrics(metrics),
	)

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Definitions: registry,
		Backends: transport.BackendResolverFunc(func(serviceID, basePath string) (screen.Backend, error) {
			return backends.Client(serviceID, basePath)
		}),
		Sessions: sessions,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return registry.ScreenCount() > 0 },
			OpenAPILoaded:     func() bool { return oaIndex.Len(config.DefaultServiceID) > 0 },
			Backend:           backends,
			Sessions:          sessions,
		},
		Clock: func() time.Time { return Today },
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestHarness{
		t:        t,
		server:   srv,
		Backend:  mb,
		Registry: registry,
		OAIndex:  oaIndex,
		Backends: backends,
		Sessions: sessions,
		Metrics:  metrics,
		Config:   cfg,
	}
}

// URL returns the admin server's base URL.
func (h *TestHarness) URL() string {
	return h.server.URL
}

// Response is a decoded admin server response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Descriptor decodes the body as a screen descriptor.
func (r *Response) Descriptor(t *testing.T) model.ScreenDescriptor {
	t.Helper()
	var d model.ScreenDescriptor
	if err := json.Unmarshal(r.Body, &d); err != nil {
		t.Fatalf("decoding descriptor: %v (body: %s)", err, r.Body)
	}
	return d
}

// Error decodes the body as an error response.
func (r *Response) Error(t *testing.T) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(r.Body, &resp); err != nil {
		t.Fatalf("decoding error response: %v (body: %s)", err, r.Body)
	}
	if resp.Error == nil {
		t.Fatalf("error response without an error envelope: %s", r.Body)
	}
	return resp
}

// AssertStatus fails the test when the response status differs.
func (r *Response) AssertStatus(t *testing.T, want int) {
	t.Helper()
	if r.StatusCode != want {
		t.Fatalf("status = %d, want %d (body: %s)", r.StatusCode, want, r.Body)
	}
}

// Do sends a request to the admin server. body, when non-nil, is sent as
// JSON. headers are set verbatim.
func (h *TestHarness) Do(method, path string, body any, headers ...string) *Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("building request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("reading response: %v", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
}

// Open opens a session on a screen and returns its first descriptor.
func (h *TestHarness) Open(screenID string, headers ...string) model.ScreenDescriptor {
	h.t.Helper()
	resp := h.Do(http.MethodPost, "/ui/screens/"+screenID+"/sessions", nil, headers...)
	resp.AssertStatus(h.t, http.StatusCreated)
	return resp.Descriptor(h.t)
}

// Session returns a client for one open session.
func (h *TestHarness) Session(id string) *SessionClient {
	return &SessionClient{h: h, base: "/ui/sessions/" + id}
}

// SessionClient issues the per-session screen calls.
type SessionClient struct {
	h    *TestHarness
	base string
}

// Get returns the current descriptor.
func (c *SessionClient) Get() *Response {
	return c.h.Do(http.MethodGet, c.base, nil)
}

// Refresh reloads the current page.
func (c *SessionClient) Refresh(headers ...string) *Response {
	return c.h.Do(http.MethodPost, c.base+"/refresh", nil, headers...)
}

// Navigate presses a pagination control.
func (c *SessionClient) Navigate(action string) *Response {
	return c.h.Do(http.MethodPost, c.base+"/navigate", map[string]any{"action": action})
}

// GoTo jumps to an entered page number.
func (c *SessionClient) GoTo(page int) *Response {
	return c.h.Do(http.MethodPost, c.base+"/navigate", map[string]any{"action": "page", "page": page})
}

// PageSize selects a page size.
func (c *SessionClient) PageSize(size int) *Response {
	return c.h.Do(http.MethodPut, c.base+"/page-size", map[string]any{"size": size})
}

// Input types value into a form field.
func (c *SessionClient) Input(field, value string) *Response {
	return c.h.Do(http.MethodPatch, c.base+"/form", map[string]any{"field": field, "value": value})
}

// Fill types every value into the form, failing the test on rejection.
func (c *SessionClient) Fill(t *testing.T, values map[string]string) {
	t.Helper()
	for field, value := range values {
		c.Input(field, value).AssertStatus(t, http.StatusOK)
	}
}

// ResetForm clears the form draft.
func (c *SessionClient) ResetForm() *Response {
	return c.h.Do(http.MethodPost, c.base+"/form/reset", nil)
}

// Submit saves the form draft.
func (c *SessionClient) Submit(headers ...string) *Response {
	return c.h.Do(http.MethodPost, c.base+"/submit", nil, headers...)
}

// Edit loads a table row into the form.
func (c *SessionClient) Edit(row int) *Response {
	return c.h.Do(http.MethodPost, fmt.Sprintf("%s/rows/%d/edit", c.base, row), nil)
}

// Delete deletes a table row, answering the confirmation with confirmed.
func (c *SessionClient) Delete(row int, confirmed bool) *Response {
	return c.h.Do(http.MethodPost, fmt.Sprintf("%s/rows/%d/delete", c.base, row), map[string]any{"confirmed": confirmed})
}

// Close ends the session.
func (c *SessionClient) Close() *Response {
	return c.h.Do(http.MethodDelete, c.base, nil)
}

// FieldValue returns the displayed value of a form field.
func FieldValue(d model.ScreenDescriptor, field string) string {
	for _, f := range d.Form.Fields {
		if f.Field == field {
			return f.Value
		}
	}
	return ""
}

// Control returns the pagination control with the given id.
func Control(d model.ScreenDescriptor, id string) (model.ActionDescriptor, bool) {
	if d.Pagination == nil {
		return model.ActionDescriptor{}, false
	}
	for _, c := range d.Pagination.Controls {
		if c.ID == id {
			return c, true
		}
	}
	return model.ActionDescriptor{}, false
}

// PageFixture slices records into a tshop page response. page is
// one-based; the response reports it zero-based as the service does.
func PageFixture(records []map[string]any, page, size int) map[string]any {
	total := (len(records) + size - 1) / size
	start := (page - 1) * size
	end := min(start+size, len(records))
	content := []map[string]any{}
	if start < end {
		content = cloneAll(records[start:end])
	}
	return map[string]any{
		"content":    content,
		"pageable":   map[string]any{"pageNumber": page - 1, "pageSize": size},
		"first":      page <= 1,
		"last":       page >= total,
		"totalPages": total,
	}
}

// AccessoryFixture returns an accessory record without an id.
func AccessoryFixture(plate, name, price string) map[string]any {
	return map[string]any{
		"licensePlate": plate,
		"repairDate":   "2024-01-01",
		"name":         name,
		"price":        price,
	}
}

// CarFixture returns a car record.
func CarFixture(plate, repairDate, customer string) map[string]any {
	return map[string]any{
		"licensePlate": plate,
		"repairDate":   repairDate,
		"customerName": customer,
		"catalogs":     "service",
		"carMaker":     "Toyota",
	}
}

// ErrorFixture returns a backend error body.
func ErrorFixture(code, message string) map[string]any {
	return map[string]any{"code": code, "message": message}
}

func repoRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..")
}

func testdataDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "testdata")
}

func decodeJSON(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
}
