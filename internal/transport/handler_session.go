package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tshop/admin/internal/definition"
	"github.com/tshop/admin/internal/numfmt"
	"github.com/tshop/admin/internal/observability"
	"github.com/tshop/admin/internal/screen"
	"github.com/tshop/admin/internal/session"
	"github.com/tshop/admin/model"
)

// maxBodyBytes bounds a screen request body.
const maxBodyBytes = 64 << 10

type navigateRequest struct {
	Action string `json:"action"`
	Page   int    `json:"page"`
}

type pageSizeRequest struct {
	Size int `json:"size"`
}

type inputRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type deleteRequest struct {
	Confirmed bool `json:"confirmed"`
}

type sessionHandlers struct {
	deps Dependencies
	defs *definition.Registry
	fmt  *numfmt.Formatter
}

func newSessionHandlers(deps Dependencies) *sessionHandlers {
	return &sessionHandlers{
		deps: deps,
		defs: deps.Definitions,
		fmt:  numfmt.New(deps.Config.UI.Locale),
	}
}

// open starts a session on a screen. Managed screens load their first page
// before the response; a failed load still leaves the session open so the
// browser can retry with refresh.
func (h *sessionHandlers) open(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "screenId")
	def, ok := h.defs.GetScreen(screenID)
	if !ok {
		WriteNotFound(w, fmt.Sprintf("Screen %q not found", screenID))
		return
	}
	be, err := h.deps.Backends.Backend(def.ServiceID, def.BasePath)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	id := session.NewID()
	logger := observability.LoggerFrom(r.Context(), h.deps.Logger)
	scr := screen.New(def, be,
		screen.WithSessionID(id),
		screen.WithFormatter(h.fmt),
		screen.WithLogger(h.deps.Logger),
		screen.WithMetrics(h.deps.Metrics),
		screen.WithSettle(screen.Settle{Max: h.deps.Config.UI.SettleMax, MinBusy: h.deps.Config.UI.MinBusy}),
		screen.WithClock(h.deps.Clock),
	)
	sess := &session.Session{ID: id, Screen: scr}
	if err := h.deps.Sessions.Create(r.Context(), sess); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	logger.Info("session opened", zap.String("session_id", id), zap.String("screen_id", def.ID))

	if def.HasTable() {
		if _, err := scr.Refresh(r.Context()); err != nil {
			h.fail(w, r, err, scr)
			return
		}
	}
	WriteJSON(w, http.StatusCreated, scr.Descriptor())
}

func (h *sessionHandlers) get(w http.ResponseWriter, r *http.Request) {
	scr, ok := h.screen(w, r)
	if !ok {
		return
	}
	h.ok(w, scr)
}

func (h *sessionHandlers) close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if err := h.deps.Sessions.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	observability.LoggerFrom(r.Context(), h.deps.Logger).Info("session closed", zap.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	scr, ok := h.screen(w, r)
	if !ok {
		return
	}
	if _, err := scr.Refresh(r.Context()); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	h.ok(w, scr)
}

func (h *sessionHandlers) navigate(w http.ResponseWriter, r *http.Request) {
	scr, ok := h.screen(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	if _, err := scr.Navigate(r.Context(), screen.NavAction(req.Action), req.Page); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	h.ok(w, scr)
}

func (h *sessionHandlers) pageSize(w http.ResponseWriter, r *http.Request) {
	scr, ok := h.screen(w, r)
	if !ok {
		return
	}
	var req pageSizeRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	if _, err := scr.SetPageSize(r.Context(), req.Size); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	h.ok(w, scr)
}

func (h *sessionHandlers) input(w http.ResponseWriter, r *http.Request) {
	scr, ok := h.screen(w, r)
	if !ok {
		return
	}
	var req inputRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	if err := scr.Input(req.Field, req.Value); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	h.ok(w, scr)
}

func (h *sessionHandlers) resetForm(w http.ResponseWriter, r *http.Request) {
	scr, ok := h.screen(w, r)
	if !ok {
		return
	}
	if err := scr.ResetForm(); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	h.ok(w, scr)
}

func (h *sessionHandlers) submit(w http.ResponseWriter, r *http.Request) {
	scr, ok := h.screen(w, r)
	if !ok {
		return
	}
	if _, err := scr.Submit(r.Context()); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	h.ok(w, scr)
}

func (h *sessionHandlers) edit(w http.ResponseWriter, r *http.Request) {
	scr, ok := h.screen(w, r)
	if !ok {
		return
	}
	row, err := rowParam(r)
	if err != nil {
		h.fail(w, r, err, scr)
		return
	}
	if err := scr.Edit(row); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	h.ok(w, scr)
}

// deleteRow runs the delete flow with the browser's answer to the
// confirmation dialog. A declined delete is not an error.
func (h *sessionHandlers) deleteRow(w http.ResponseWriter, r *http.Request) {
	scr, ok := h.screen(w, r)
	if !ok {
		return
	}
	row, err := rowParam(r)
	if err != nil {
		h.fail(w, r, err, scr)
		return
	}
	var req deleteRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err, scr)
		return
	}
	err = scr.Delete(r.Context(), row, screen.Answer(req.Confirmed))
	if err != nil && !errors.Is(err, model.ErrUserDeclined) {
		h.fail(w, r, err, scr)
		return
	}
	h.ok(w, scr)
}

// screen resolves the session in the URL, writing a 404 when it is gone.
func (h *sessionHandlers) screen(w http.ResponseWriter, r *http.Request) (*screen.Screen, bool) {
	sess, err := h.deps.Sessions.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.fail(w, r, err, nil)
		return nil, false
	}
	return sess.Screen, true
}

func (h *sessionHandlers) ok(w http.ResponseWriter, scr *screen.Screen) {
	WriteJSON(w, http.StatusOK, scr.Descriptor())
}

// fail writes err with the screen's current state, so the browser always
// re-renders controls that are no longer locked.
func (h *sessionHandlers) fail(w http.ResponseWriter, r *http.Request, err error, scr *screen.Screen) {
	ee := *Envelope(err)
	ee.TraceID = observability.TraceIDFromContext(r.Context())

	logger := observability.LoggerFrom(r.Context(), h.deps.Logger)
	status := StatusFor(&ee)
	if status >= http.StatusInternalServerError {
		logger.Error("screen request failed", zap.String("code", ee.Code), zap.Error(err))
	} else {
		logger.Warn("screen request rejected", zap.String("code", ee.Code), zap.Error(err))
	}

	var desc *model.ScreenDescriptor
	if scr != nil {
		d := scr.Descriptor()
		desc = &d
	}
	WriteJSON(w, status, model.ErrorResponse{Error: &ee, Screen: desc})
}

// decodeBody decodes a JSON request body into v. An empty body leaves v at
// its zero value.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return model.NewBadRequestError(fmt.Sprintf("Invalid request body: %v", err))
	}
	return nil
}

func rowParam(r *http.Request) (int, error) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil || row < 0 {
		return 0, model.NewBadRequestError(fmt.Sprintf("Invalid row %q", chi.URLParam(r, "row")))
	}
	return row, nil
}
