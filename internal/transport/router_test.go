package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tshop/admin/internal/config"
	"github.com/tshop/admin/internal/definition"
	"github.com/tshop/admin/internal/observability"
	"github.com/tshop/admin/internal/screen"
	"github.com/tshop/admin/internal/session"
	"github.com/tshop/admin/model"
)

// memBackend is an in-memory accessories collection.
type memBackend struct {
	mu      sync.Mutex
	records []model.Resource
	nextID  int
	finds   int
	findErr error

	// gate, when set, blocks FindAll until closed.
	gate    chan struct{}
	entered chan struct{}
}

func newMemBackend(n int) *memBackend {
	b := &memBackend{nextID: 1}
	for i := 0; i < n; i++ {
		b.add(model.Resource{"name": fmt.Sprintf("part-%d", i+1), "price": json.Number("1000")})
	}
	return b
}

func (b *memBackend) add(r model.Resource) model.Resource {
	r = r.Clone()
	r["id"] = json.Number(fmt.Sprint(b.nextID))
	b.nextID++
	b.records = append(b.records, r)
	return r
}

func (b *memBackend) FindAll(_ context.Context, page, size int) (model.Page, error) {
	if b.gate != nil {
		close(b.entered)
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finds++
	if b.findErr != nil {
		return model.Page{}, b.findErr
	}
	total := (len(b.records) + size - 1) / size
	if total == 0 {
		total = 1
	}
	start := (page - 1) * size
	end := min(start+size, len(b.records))
	var content []model.Resource
	if start < end {
		content = b.records[start:end]
	}
	return model.Page{
		Content:    content,
		Pageable:   model.Pageable{PageNumber: page - 1, PageSize: size},
		First:      page <= 1,
		Last:       page >= total,
		TotalPages: total,
	}, nil
}

func (b *memBackend) Create(_ context.Context, r model.Resource) (model.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.add(r), nil
}

func (b *memBackend) Update(_ context.Context, id string, r model.Resource) (model.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, rec := range b.records {
		if rec.String("id") == id {
			b.records[i] = r.Clone()
			return r, nil
		}
	}
	return nil, &model.TransportError{Op: "update", Method: http.MethodPut, StatusCode: http.StatusNotFound}
}

func (b *memBackend) UpdateByKey(context.Context, model.Resource) (model.Resource, error) {
	return nil, fmt.Errorf("not supported")
}

func (b *memBackend) Delete(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, rec := range b.records {
		if rec.String("id") == id {
			b.records = append(b.records[:i], b.records[i+1:]...)
			return true, nil
		}
	}
	return false, &model.TransportError{Op: "delete", Method: http.MethodDelete, StatusCode: http.StatusNotFound}
}

func (b *memBackend) DeleteByKey(context.Context, map[string]any) (bool, error) {
	return false, fmt.Errorf("not supported")
}

func (b *memBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

func testDomain() model.DomainDefinition {
	return model.DomainDefinition{
		Domain:     "tshop",
		Version:    "1.0.0",
		Navigation: model.NavigationDefinition{Label: "tshop", Icon: "garage"},
		Screens: []model.ScreenDefinition{
			{
				ID: "accessories", Title: "Accessories", Route: "/accessories",
				ServiceID: "tshop", BasePath: "/accessories",
				Identity: model.IdentityDefinition{Strategy: model.IdentitySynthetic, Field: "id"},
				Fields: []model.FieldDefinition{
					{Field: "id", Type: model.FieldTypeHidden},
					{Field: "name", Label: "Name"},
					{Field: "price", Label: "Price", Type: model.FieldTypeNumber, Numeric: true},
				},
				PageSizes:       []int{2, 5},
				DefaultPageSize: 2,
			},
			{
				ID: "add-new-car", Title: "Add car", Route: "/cars/new", Mode: model.ScreenModeCreateOnly,
				ServiceID: "tshop", BasePath: "/car",
				Fields: []model.FieldDefinition{{Field: "licensePlate"}},
			},
		},
	}
}

type testEnv struct {
	router  http.Handler
	backend *memBackend
	store   *session.MemoryStore
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T, records int) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://admin.tshop.test"}
	cfg.Server.HandlerTimeout = 5 * time.Second

	be := newMemBackend(records)
	m := observability.InitMetrics(prometheus.NewRegistry())
	store := session.NewMemoryStore(time.Minute, session.WithMetrics(m))
	reg := definition.NewRegistry([]model.DomainDefinition{testDomain()})

	router := NewRouter(Dependencies{
		Config:      cfg,
		Metrics:     m,
		Definitions: reg,
		Sessions:    store,
		Backends: BackendResolverFunc(func(serviceID, basePath string) (screen.Backend, error) {
			if serviceID != "tshop" {
				return nil, fmt.Errorf("unknown service %q", serviceID)
			}
			return be, nil
		}),
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return reg.ScreenCount() > 0 },
			Sessions:          store,
		},
	})
	return &testEnv{router: router, backend: be, store: store, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) open(t *testing.T, screenID string) model.ScreenDescriptor {
	t.Helper()
	w := e.do(t, http.MethodPost, "/ui/screens/"+screenID+"/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("open %s: status = %d, body = %s", screenID, w.Code, w.Body.String())
	}
	return decodeDescriptor(t, w)
}

func decodeDescriptor(t *testing.T, w *httptest.ResponseRecorder) model.ScreenDescriptor {
	t.Helper()
	var d model.ScreenDescriptor
	if err := json.NewDecoder(w.Body).Decode(&d); err != nil {
		t.Fatalf("decoding descriptor: %v", err)
	}
	return d
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("error response without an error envelope")
	}
	return resp
}

func TestNewRouter_health(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodGet, "/ui/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body observability.HealthResponse
	json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestNewRouter_ready(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodGet, "/ui/ready", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
}

func TestNewRouter_metrics(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_navigation(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodGet, "/ui/navigation", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var tree model.NavigationTree
	json.NewDecoder(w.Body).Decode(&tree)
	if len(tree.Items) != 1 || len(tree.Items[0].Children) != 2 {
		t.Fatalf("navigation = %+v", tree)
	}
	if tree.Items[0].Children[0].ID != "accessories" {
		t.Errorf("first screen = %q", tree.Items[0].Children[0].ID)
	}
}

func TestOpenSession_loadsFirstPage(t *testing.T) {
	env := newTestEnv(t, 5)
	d := env.open(t, "accessories")

	if d.SessionID == "" || d.ScreenID != "accessories" {
		t.Errorf("descriptor ids = %q/%q", d.SessionID, d.ScreenID)
	}
	if d.Busy {
		t.Error("screen reported busy after open")
	}
	if d.Table == nil || len(d.Table.Rows) != 2 {
		t.Fatalf("table = %+v", d.Table)
	}
	if p := d.Pagination; p.Page != 1 || p.Size != 2 || p.TotalPages != 3 {
		t.Errorf("pagination = %+v", p)
	}
	if env.store.Len() != 1 {
		t.Errorf("sessions = %d, want 1", env.store.Len())
	}
	if v := testutil.ToFloat64(env.metrics.ScreenSessionsActive); v != 1 {
		t.Errorf("active sessions gauge = %v, want 1", v)
	}
}

func TestOpenSession_createOnlySkipsLoad(t *testing.T) {
	env := newTestEnv(t, 5)
	d := env.open(t, "add-new-car")
	if d.Table != nil || d.Pagination != nil {
		t.Errorf("create-only screen rendered a table: %+v", d)
	}
	if env.backend.finds != 0 {
		t.Errorf("FindAll called %d times", env.backend.finds)
	}
}

func TestOpenSession_unknownScreen(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodPost, "/ui/screens/parts/sessions", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != model.ErrNotFound {
		t.Errorf("code = %q", resp.Error.Code)
	}
}

func TestOpenSession_backendDown(t *testing.T) {
	env := newTestEnv(t, 0)
	env.backend.findErr = &model.TransportError{Op: "findAll", Method: http.MethodGet, Err: fmt.Errorf("connection refused")}

	w := env.do(t, http.MethodPost, "/ui/screens/accessories/sessions", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Error.Code != model.ErrBackendUnavailable {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if resp.Screen == nil || resp.Screen.Busy {
		t.Fatalf("error response screen = %+v, want unlocked screen", resp.Screen)
	}
	if env.store.Len() != 1 {
		t.Error("session should stay open so the browser can retry")
	}

	env.backend.findErr = nil
	w = env.do(t, http.MethodPost, "/ui/sessions/"+resp.Screen.SessionID+"/refresh", nil)
	if w.Code != http.StatusOK {
		t.Errorf("retry refresh status = %d", w.Code)
	}
}

func TestSession_navigateAndPageSize(t *testing.T) {
	env := newTestEnv(t, 5)
	id := env.open(t, "accessories").SessionID
	base := "/ui/sessions/" + id

	w := env.do(t, http.MethodPost, base+"/navigate", navigateRequest{Action: "next"})
	if w.Code != http.StatusOK {
		t.Fatalf("navigate status = %d, body = %s", w.Code, w.Body.String())
	}
	d := decodeDescriptor(t, w)
	if d.Pagination.Page != 2 {
		t.Errorf("page = %d, want 2", d.Pagination.Page)
	}

	w = env.do(t, http.MethodPost, base+"/navigate", navigateRequest{Action: "last"})
	d = decodeDescriptor(t, w)
	if d.Pagination.Page != 3 || len(d.Table.Rows) != 1 {
		t.Errorf("last page = %d rows = %d", d.Pagination.Page, len(d.Table.Rows))
	}
	for _, c := range d.Pagination.Controls {
		if (c.ID == "next" || c.ID == "last") && c.Enabled {
			t.Errorf("control %s enabled on the last page", c.ID)
		}
	}

	w = env.do(t, http.MethodPut, base+"/page-size", pageSizeRequest{Size: 5})
	d = decodeDescriptor(t, w)
	if d.Pagination.Size != 5 {
		t.Errorf("size = %d, want 5", d.Pagination.Size)
	}

	w = env.do(t, http.MethodPost, base+"/navigate", navigateRequest{Action: "sideways"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad action status = %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPut, base+"/page-size", pageSizeRequest{Size: 0})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero size status = %d, want 422", w.Code)
	}
}

func TestSession_formInputAndSubmit(t *testing.T) {
	env := newTestEnv(t, 1)
	id := env.open(t, "accessories").SessionID
	base := "/ui/sessions/" + id

	w := env.do(t, http.MethodPatch, base+"/form", inputRequest{Field: "name", Value: "Brake pad"})
	if w.Code != http.StatusOK {
		t.Fatalf("input status = %d, body = %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPatch, base+"/form", inputRequest{Field: "price", Value: "150000"})
	d := decodeDescriptor(t, w)
	for _, f := range d.Form.Fields {
		if f.Field == "price" && f.Value == "150000" {
			t.Errorf("price not grouped: %q", f.Value)
		}
	}

	w = env.do(t, http.MethodPost, base+"/submit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", w.Code, w.Body.String())
	}
	d = decodeDescriptor(t, w)
	if d.Notice != "Saved" {
		t.Errorf("notice = %q", d.Notice)
	}
	if env.backend.count() != 2 {
		t.Errorf("records = %d, want 2", env.backend.count())
	}
	if d.Form.Mode != model.FormModeCreate {
		t.Errorf("form mode after save = %q", d.Form.Mode)
	}

	w = env.do(t, http.MethodPatch, base+"/form", inputRequest{Field: "colour", Value: "red"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown field status = %d, want 422", w.Code)
	}
}

func TestSession_editAndReset(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.open(t, "accessories").SessionID
	base := "/ui/sessions/" + id

	w := env.do(t, http.MethodPost, base+"/rows/1/edit", nil)
	d := decodeDescriptor(t, w)
	if d.Form.Mode != model.FormModeUpdate {
		t.Errorf("mode after edit = %q", d.Form.Mode)
	}

	w = env.do(t, http.MethodPost, base+"/form/reset", nil)
	d = decodeDescriptor(t, w)
	if d.Form.Mode != model.FormModeCreate {
		t.Errorf("mode after reset = %q", d.Form.Mode)
	}

	if w := env.do(t, http.MethodPost, base+"/rows/9/edit", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing row status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, base+"/rows/x/edit", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad row status = %d, want 400", w.Code)
	}
}

func TestSession_deleteRow(t *testing.T) {
	env := newTestEnv(t, 3)
	id := env.open(t, "accessories").SessionID
	base := "/ui/sessions/" + id

	w := env.do(t, http.MethodPost, base+"/rows/0/delete", deleteRequest{Confirmed: false})
	if w.Code != http.StatusOK {
		t.Fatalf("declined delete status = %d, want 200", w.Code)
	}
	if env.backend.count() != 3 {
		t.Fatal("declined delete removed a record")
	}

	findsBefore := env.backend.finds
	w = env.do(t, http.MethodPost, base+"/rows/0/delete", deleteRequest{Confirmed: true})
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}
	d := decodeDescriptor(t, w)
	if d.Notice != "Deleted" {
		t.Errorf("notice = %q", d.Notice)
	}
	if env.backend.count() != 2 {
		t.Errorf("records = %d, want 2", env.backend.count())
	}
	if n := env.backend.finds - findsBefore; n != 1 {
		t.Errorf("reloads after delete = %d, want 1", n)
	}
}

func TestSession_busyScreenRejectsFlows(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.open(t, "accessories").SessionID
	base := "/ui/sessions/" + id

	env.backend.gate = make(chan struct{})
	env.backend.entered = make(chan struct{})
	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- env.do(t, http.MethodPost, base+"/refresh", nil) }()
	<-env.backend.entered

	w := env.do(t, http.MethodPost, base+"/navigate", navigateRequest{Action: "next"})
	if w.Code != http.StatusConflict {
		t.Errorf("status while busy = %d, want 409", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Error.Code != model.ErrScreenBusy || resp.Screen == nil || !resp.Screen.Busy {
		t.Errorf("busy response = %+v", resp)
	}

	close(env.backend.gate)
	if w := <-done; w.Code != http.StatusOK {
		t.Errorf("refresh status = %d", w.Code)
	}
	env.backend.gate = nil
}

func TestSession_closeAndUnknown(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.open(t, "accessories").SessionID

	if w := env.do(t, http.MethodGet, "/ui/sessions/"+id, nil); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/ui/sessions/"+id, nil); w.Code != http.StatusNoContent {
		t.Errorf("close status = %d, want 204", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/ui/sessions/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after close status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/ui/sessions/nope/refresh", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", w.Code)
	}
}

func TestSession_badBody(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.open(t, "accessories").SessionID

	req := httptest.NewRequest(http.MethodPost, "/ui/sessions/"+id+"/navigate", strings.NewReader(`{"action":`))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/ui/sessions/"+id+"/navigate", strings.NewReader(`{"action":"next","speed":9}`))
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", w.Code)
	}
}

func TestNewRouter_recordsHTTPMetrics(t *testing.T) {
	env := newTestEnv(t, 0)
	env.do(t, http.MethodGet, "/ui/navigation", nil)

	if n := testutil.CollectAndCount(env.metrics.HTTPRequestsTotal); n == 0 {
		t.Error("no HTTP request metric recorded")
	}
}

func TestNewRouter_correlationIDEchoed(t *testing.T) {
	env := newTestEnv(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/ui/navigation", nil)
	req.Header.Set("X-Correlation-Id", "abc-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Correlation-Id"); got != "abc-123" {
		t.Errorf("X-Correlation-Id = %q, want abc-123", got)
	}
}
