package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// Backend operations, named after the collection and endpoint.
const (
	OpAccessoriesFindAll = "accessories.findAll"
	OpAccessoriesCreate  = "accessories.create"
	OpAccessoriesUpdate  = "accessories.update"
	OpAccessoriesDelete  = "accessories.delete"
	OpCarFindAll         = "car.findAll"
	OpCarCreate          = "car.create"
	OpCarUpdate          = "car.update"
	OpCarDelete          = "car.delete"
)

// APIPrefix is the path every collection is served under.
const APIPrefix = "/api/v1"

// MockBackend is an in-memory tshop REST service. It keeps accessories
// keyed by a generated id and cars keyed by licensePlate and repairDate,
// records every request, and lets tests queue canned responses per
// operation.
type MockBackend struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	accessories []map[string]any
	cars        []map[string]any
	nextID      int
	received    map[string][]*RecordedRequest
	canned      map[string][]*mockResponse
	gates       map[string]chan struct{}
	entered     map[string]chan struct{}
}

// RecordedRequest captures the details of a request received by the mock backend.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	RawBody     []byte
	ReceivedAt  time.Time
}

type mockResponse struct {
	status int
	body   any
	raw    string
	delay  time.Duration
}

func newMockBackend(t *testing.T) *MockBackend {
	t.Helper()

	mb := &MockBackend{
		t:        t,
		nextID:   1,
		received: make(map[string][]*RecordedRequest),
		canned:   make(map[string][]*mockResponse),
		gates:    make(map[string]chan struct{}),
		entered:  make(map[string]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+APIPrefix+"/accessories/findAll", mb.handle(OpAccessoriesFindAll, mb.findAccessories))
	mux.HandleFunc("POST "+APIPrefix+"/accessories/create", mb.handle(OpAccessoriesCreate, mb.createAccessory))
	mux.HandleFunc("PUT "+APIPrefix+"/accessories/update/{id}", mb.handle(OpAccessoriesUpdate, mb.updateAccessory))
	mux.HandleFunc("DELETE "+APIPrefix+"/accessories/delete/{id}", mb.handle(OpAccessoriesDelete, mb.deleteAccessory))
	mux.HandleFunc("GET "+APIPrefix+"/car/findAll", mb.handle(OpCarFindAll, mb.findCars))
	mux.HandleFunc("POST "+APIPrefix+"/car/create", mb.handle(OpCarCreate, mb.createCar))
	mux.HandleFunc("PUT "+APIPrefix+"/car/update", mb.handle(OpCarUpdate, mb.upsertCar))
	mux.HandleFunc("DELETE "+APIPrefix+"/car/delete", mb.handle(OpCarDelete, mb.deleteCar))

	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)
	return mb
}

// URL returns the API base URL of the mock backend.
func (mb *MockBackend) URL() string {
	return mb.server.URL + APIPrefix
}

// SeedAccessory stores an accessory and returns it with its generated id.
func (mb *MockBackend) SeedAccessory(a map[string]any) map[string]any {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.addAccessory(a)
}

// SeedAccessories stores n generated accessories.
func (mb *MockBackend) SeedAccessories(n int) {
	for i := 0; i < n; i++ {
		mb.SeedAccessory(AccessoryFixture(fmt.Sprintf("51A-%05d", i+1), fmt.Sprintf("Part %d", i+1), "150000"))
	}
}

// SeedCar stores a car.
func (mb *MockBackend) SeedCar(c map[string]any) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.cars = append(mb.cars, clone(c))
}

// Accessories returns a copy of the stored accessories.
func (mb *MockBackend) Accessories() []map[string]any {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return cloneAll(mb.accessories)
}

// Cars returns a copy of the stored cars.
func (mb *MockBackend) Cars() []map[string]any {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return cloneAll(mb.cars)
}

// RespondWith queues a canned JSON response for the next call to op. Queued
// responses are used once each, in order.
func (mb *MockBackend) RespondWith(op string, status int, body any) {
	mb.queue(op, &mockResponse{status: status, body: body})
}

// RespondRaw queues a canned response with a verbatim body.
func (mb *MockBackend) RespondRaw(op string, status int, raw string) {
	mb.queue(op, &mockResponse{status: status, raw: raw})
}

// RespondSlowly queues a normal response for op that is delayed by d.
func (mb *MockBackend) RespondSlowly(op string, d time.Duration) {
	mb.queue(op, &mockResponse{delay: d})
}

func (mb *MockBackend) queue(op string, r *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.canned[op] = append(mb.canned[op], r)
}

// Hold makes the next call to op block until the returned release is
// called. entered is closed once the call has arrived.
func (mb *MockBackend) Hold(op string) (entered <-chan struct{}, release func()) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	gate := make(chan struct{})
	in := make(chan struct{})
	mb.gates[op] = gate
	mb.entered[op] = in
	var once sync.Once
	return in, func() { once.Do(func() { close(gate) }) }
}

// Requests returns the requests received for op.
func (mb *MockBackend) Requests(op string) []*RecordedRequest {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]*RecordedRequest(nil), mb.received[op]...)
}

// CallCount returns how many requests op received.
func (mb *MockBackend) CallCount(op string) int {
	return len(mb.Requests(op))
}

// LastRequest returns the most recent request for op, or nil.
func (mb *MockBackend) LastRequest(op string) *RecordedRequest {
	reqs := mb.Requests(op)
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// Reset forgets recorded requests and canned responses.
func (mb *MockBackend) Reset() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.received = make(map[string][]*RecordedRequest)
	mb.canned = make(map[string][]*mockResponse)
}

type opHandler func(w http.ResponseWriter, r *http.Request, body map[string]any)

func (mb *MockBackend) handle(op string, h opHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}

		query := make(map[string]string)
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				query[k] = v[0]
			}
		}

		mb.mu.Lock()
		mb.received[op] = append(mb.received[op], &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			QueryParams: query,
			Headers:     r.Header.Clone(),
			Body:        body,
			RawBody:     raw,
			ReceivedAt:  time.Now(),
		})
		var canned *mockResponse
		if q := mb.canned[op]; len(q) > 0 {
			canned, mb.canned[op] = q[0], q[1:]
		}
		gate, in := mb.gates[op], mb.entered[op]
		delete(mb.gates, op)
		delete(mb.entered, op)
		mb.mu.Unlock()

		if gate != nil {
			close(in)
			<-gate
		}
		if canned != nil {
			if canned.delay > 0 {
				time.Sleep(canned.delay)
			}
			if canned.status != 0 {
				writeCanned(w, canned)
				return
			}
		}
		h(w, r, body)
	}
}

func writeCanned(w http.ResponseWriter, c *mockResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c.status)
	switch {
	case c.raw != "":
		io.WriteString(w, c.raw)
	case c.body != nil:
		json.NewEncoder(w).Encode(c.body)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// pageParams reads the one-based page and the size of a findAll call.
func pageParams(r *http.Request) (page, size int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	size, _ = strconv.Atoi(r.URL.Query().Get("size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	return page, size
}

func (mb *MockBackend) findAccessories(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	page, size := pageParams(r)
	mb.mu.Lock()
	defer mb.mu.Unlock()
	writeJSON(w, http.StatusOK, PageFixture(mb.accessories, page, size))
}

func (mb *MockBackend) findCars(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	page, size := pageParams(r)
	mb.mu.Lock()
	defer mb.mu.Unlock()
	writeJSON(w, http.StatusOK, PageFixture(mb.cars, page, size))
}

func (mb *MockBackend) addAccessory(a map[string]any) map[string]any {
	a = clone(a)
	a["id"] = mb.nextID
	mb.nextID++
	mb.accessories = append(mb.accessories, a)
	return a
}

func (mb *MockBackend) createAccessory(w http.ResponseWriter, _ *http.Request, body map[string]any) {
	if body == nil {
		writeJSON(w, http.StatusBadRequest, ErrorFixture("BAD_REQUEST", "body required"))
		return
	}
	if _, ok := body["id"]; ok {
		writeJSON(w, http.StatusBadRequest, ErrorFixture("BAD_REQUEST", "id must not be sent on create"))
		return
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	writeJSON(w, http.StatusOK, mb.addAccessory(body))
}

func (mb *MockBackend) updateAccessory(w http.ResponseWriter, r *http.Request, body map[string]any) {
	id := r.PathValue("id")
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i, a := range mb.accessories {
		if fmt.Sprint(a["id"]) == id {
			saved := clone(body)
			saved["id"] = a["id"]
			mb.accessories[i] = saved
			writeJSON(w, http.StatusOK, saved)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, ErrorFixture("NOT_FOUND", "accessory "+id+" not found"))
}

func (mb *MockBackend) deleteAccessory(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	id := r.PathValue("id")
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i, a := range mb.accessories {
		if fmt.Sprint(a["id"]) == id {
			mb.accessories = append(mb.accessories[:i], mb.accessories[i+1:]...)
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func carKey(c map[string]any) string {
	return fmt.Sprint(c["licensePlate"]) + "|" + fmt.Sprint(c["repairDate"])
}

func (mb *MockBackend) createCar(w http.ResponseWriter, _ *http.Request, body map[string]any) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, c := range mb.cars {
		if carKey(c) == carKey(body) {
			writeJSON(w, http.StatusConflict, ErrorFixture("CONFLICT", "car already exists"))
			return
		}
	}
	mb.cars = append(mb.cars, clone(body))
	writeJSON(w, http.StatusOK, body)
}

// upsertCar saves by natural key: an unknown key is inserted.
func (mb *MockBackend) upsertCar(w http.ResponseWriter, _ *http.Request, body map[string]any) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i, c := range mb.cars {
		if carKey(c) == carKey(body) {
			mb.cars[i] = clone(body)
			writeJSON(w, http.StatusOK, body)
			return
		}
	}
	mb.cars = append(mb.cars, clone(body))
	writeJSON(w, http.StatusOK, body)
}

func (mb *MockBackend) deleteCar(w http.ResponseWriter, _ *http.Request, body map[string]any) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i, c := range mb.cars {
		if carKey(c) == carKey(body) {
			mb.cars = append(mb.cars[:i], mb.cars[i+1:]...)
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAll(in []map[string]any) []map[string]any {
	out := make([]map[string]any, len(in))
	for i, m := range in {
		out[i] = clone(m)
	}
	return out
}
