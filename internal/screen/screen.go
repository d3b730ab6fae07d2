// Package screen implements the paginated resource admin controller: one
// Screen per open session owns its pagination cursor, rendered table, form
// draft and control lock, and drives the backend through list, upsert and
// delete flows.
package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tshop/admin/internal/numfmt"
	"github.com/tshop/admin/internal/observability"
	"github.com/tshop/admin/model"
)

// Action IDs reported in descriptors.
const (
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionSubmit = "submit"
	ActionReset  = "reset"
)

// Flow names used in metrics and spans.
const (
	FlowRefresh  = "refresh"
	FlowNavigate = "navigate"
	FlowPageSize = "page_size"
	FlowSubmit   = "submit"
	FlowDelete   = "delete"
)

// defaultDeleteMessage is asked when a screen defines no confirmation.
const defaultDeleteMessage = "Do you want to delete this record?"

// Backend is the REST contract a screen drives.
type Backend interface {
	FindAll(ctx context.Context, page, size int) (model.Page, error)
	Create(ctx context.Context, r model.Resource) (model.Resource, error)
	Update(ctx context.Context, id string, r model.Resource) (model.Resource, error)
	UpdateByKey(ctx context.Context, r model.Resource) (model.Resource, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByKey(ctx context.Context, key map[string]any) (bool, error)
}

// Confirmer gates destructive row actions.
type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, message string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, message string) bool {
	return f(ctx, message)
}

// Answer returns a Confirmer that always gives the same answer.
func Answer(confirmed bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) bool { return confirmed })
}

// Option configures a Screen.
type Option func(*Screen)

// WithSessionID tags logs and spans with the owning session.
func WithSessionID(id string) Option {
	return func(s *Screen) { s.sessionID = id }
}

// WithFormatter sets the numeric formatter.
func WithFormatter(f *numfmt.Formatter) Option {
	return func(s *Screen) { s.fmt = f }
}

// WithLogger sets the screen's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Screen) { s.logger = l }
}

// WithMetrics sets the metrics flows record into.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Screen) { s.metrics = m }
}

// WithSettle sets the cosmetic pause taken by Submit.
func WithSettle(st Settle) Option {
	return func(s *Screen) { s.settle = st }
}

// WithClock sets the clock that decides the session date.
func WithClock(now func() time.Time) Option {
	return func(s *Screen) { s.now = now }
}

// Screen is one open management screen. Flows that touch the network are
// serialized by the screen lock; a second flow started while one is in
// progress fails with model.ErrFlowInProgress. It is safe for concurrent
// use.
type Screen struct {
	def       model.ScreenDefinition
	backend   Backend
	sessionID string
	fmt       *numfmt.Formatter
	logger    *zap.Logger
	metrics   *observability.Metrics
	settle    Settle
	now       func() time.Time

	lock Lock

	mu         sync.Mutex
	pagination Pagination
	table      *Table
	draft      *Draft
	notice     string
}

// New creates a screen for the definition. It does not load anything;
// callers open a managed screen with Refresh.
func New(def model.ScreenDefinition, backend Backend, opts ...Option) *Screen {
	s := &Screen{
		def:     def,
		backend: backend,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fmt == nil {
		s.fmt = numfmt.New(numfmt.DefaultLocale)
	}
	s.logger = s.logger.With(zap.String("screen_id", def.ID))
	if s.sessionID != "" {
		s.logger = s.logger.With(zap.String("session_id", s.sessionID))
	}
	s.pagination = NewPagination(def.InitialPageSize())
	s.table = NewTable(def, s.fmt)
	s.draft = NewDraft(def, s.fmt, s.now())
	return s
}

// Definition returns the screen's definition.
func (s *Screen) Definition() model.ScreenDefinition {
	return s.def
}

// Busy reports whether a flow is in progress.
func (s *Screen) Busy() bool {
	return s.lock.Held()
}

// Cursor returns the current pagination cursor.
func (s *Screen) Cursor() model.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagination.Cursor
}

// Refresh reloads the page at the current cursor.
func (s *Screen) Refresh(ctx context.Context) (model.Page, error) {
	var page model.Page
	err := s.run(ctx, FlowRefresh, func(ctx context.Context, _ time.Time) error {
		var err error
		page, err = s.reload(ctx, s.Cursor())
		return err
	})
	return page, err
}

// Navigate moves the cursor to the page a pagination control targets and
// reloads. entered is only used by NavPage. The cursor keeps the target when
// the fetch fails, so a later Refresh asks for the same page again.
func (s *Screen) Navigate(ctx context.Context, action NavAction, entered int) (model.Page, error) {
	s.mu.Lock()
	target, err := s.pagination.Target(action, entered)
	s.mu.Unlock()
	if err != nil {
		return model.Page{}, model.NewBadRequestError(err.Error())
	}

	var page model.Page
	err = s.run(ctx, FlowNavigate, func(ctx context.Context, _ time.Time) error {
		s.mu.Lock()
		s.pagination.Cursor.Page = target
		cur := s.pagination.Cursor
		s.mu.Unlock()

		var err error
		page, err = s.reload(ctx, cur)
		return err
	}, observability.AttrPage.Int(target))
	return page, err
}

// SetPageSize sets the cursor's page size and reloads the current page.
func (s *Screen) SetPageSize(ctx context.Context, size int) (model.Page, error) {
	if size < 1 {
		return model.Page{}, model.NewValidationError([]model.FieldError{
			{Field: "size", Code: "RANGE", Message: "page size must be positive"},
		})
	}

	var page model.Page
	err := s.run(ctx, FlowPageSize, func(ctx context.Context, _ time.Time) error {
		s.mu.Lock()
		s.pagination.Cursor.Size = size
		cur := s.pagination.Cursor
		s.mu.Unlock()

		var err error
		page, err = s.reload(ctx, cur)
		return err
	}, observability.AttrPageSize.Int(size))
	return page, err
}

// Input applies a keystroke to a form field.
func (s *Screen) Input(field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock.Held() {
		return model.ErrFlowInProgress
	}
	return s.draft.Input(field, value)
}

// ResetForm returns the form to its defaults.
func (s *Screen) ResetForm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock.Held() {
		return model.ErrFlowInProgress
	}
	s.draft.Reset()
	s.notice = ""
	return nil
}

// Edit copies the snapshot of a rendered row into the form. It makes no
// network call.
func (s *Screen) Edit(row int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock.Held() {
		return model.ErrFlowInProgress
	}
	r, ok := s.table.Row(row)
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("Row %d not found", row))
	}
	s.draft.Fill(r)
	s.notice = ""
	return nil
}

// Submit saves the form draft. On success the list is reloaded at the
// current cursor and the form is reset; on failure the draft is kept.
// Cancelling ctx does not abort a save that has started; the backend
// client's timeout bounds it.
func (s *Screen) Submit(ctx context.Context) (model.Resource, error) {
	var saved model.Resource
	err := s.run(context.WithoutCancel(ctx), FlowSubmit, func(ctx context.Context, started time.Time) error {
		s.mu.Lock()
		if errs := s.draft.Validate(); len(errs) > 0 {
			s.mu.Unlock()
			return model.NewValidationError(errs)
		}
		rec := s.draft.Record()
		s.mu.Unlock()

		var err error
		if saved, err = s.save(ctx, rec); err != nil {
			return err
		}
		s.logger.Info("screen: record saved", zap.String("id", saved.String(s.def.Identity.Field)))
		s.logger.Debug("screen: saved record", zap.Any("record", observability.RedactBody(saved)))

		var reloadErr error
		if s.def.HasTable() {
			_, reloadErr = s.reload(ctx, s.Cursor())
		}
		s.settle.Wait(ctx, started)

		s.mu.Lock()
		s.draft.Reset()
		s.notice = "Saved"
		s.mu.Unlock()
		return reloadErr
	})
	return saved, err
}

// save routes the record to the endpoint its identity strategy selects.
func (s *Screen) save(ctx context.Context, rec model.Resource) (model.Resource, error) {
	switch {
	case !s.def.HasTable():
		if f := s.def.Identity.Field; f != "" {
			delete(rec, f)
		}
		return s.backend.Create(ctx, rec)
	case s.def.Identity.Strategy == model.IdentityNaturalKey:
		return s.backend.UpdateByKey(ctx, rec)
	default:
		field := s.def.Identity.Field
		if rec.Has(field) {
			return s.backend.Update(ctx, rec.String(field), rec)
		}
		delete(rec, field)
		return s.backend.Create(ctx, rec)
	}
}

// Delete asks confirm, then deletes the record rendered in row. A declined
// confirmation returns model.ErrUserDeclined without any network call. A
// successful delete reloads the list exactly once; a failed one leaves the
// table as it was. Like Submit, the delete and its reload outlive a
// cancelled ctx.
func (s *Screen) Delete(ctx context.Context, row int, confirm Confirmer) error {
	if s.lock.Held() {
		s.metrics.RecordScreenLockReject(s.def.ID)
		return model.ErrFlowInProgress
	}
	s.mu.Lock()
	rec, ok := s.table.Row(row)
	s.mu.Unlock()
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("Row %d not found", row))
	}

	msg := defaultDeleteMessage
	if c := s.def.DeleteConfirmation; c != nil && c.Message != "" {
		msg = c.Message
	}
	if confirm == nil || !confirm.Confirm(ctx, msg) {
		s.metrics.RecordScreenFlow(s.def.ID, FlowDelete, outcome(model.ErrUserDeclined), 0)
		return model.ErrUserDeclined
	}

	return s.run(context.WithoutCancel(ctx), FlowDelete, func(ctx context.Context, _ time.Time) error {
		ok, err := s.remove(ctx, rec)
		if !ok {
			if err == nil {
				err = errors.New("screen: delete was not acknowledged")
			}
			return err
		}
		s.logger.Info("screen: record deleted", zap.Any("key", s.keyOf(rec)))

		_, err = s.reload(ctx, s.Cursor())
		if err == nil {
			s.mu.Lock()
			s.notice = "Deleted"
			s.mu.Unlock()
		}
		return err
	})
}

func (s *Screen) remove(ctx context.Context, rec model.Resource) (bool, error) {
	if s.def.Identity.Strategy == model.IdentityNaturalKey {
		return s.backend.DeleteByKey(ctx, s.keyOf(rec))
	}
	return s.backend.Delete(ctx, rec.String(s.def.Identity.Field))
}

// keyOf returns the identity of a record: the id field or the natural key
// fields in declaration order.
func (s *Screen) keyOf(rec model.Resource) map[string]any {
	if s.def.Identity.Strategy == model.IdentityNaturalKey {
		key := make(map[string]any, len(s.def.Identity.NaturalKey))
		for _, f := range s.def.Identity.NaturalKey {
			key[f] = rec[f]
		}
		return key
	}
	return map[string]any{s.def.Identity.Field: rec[s.def.Identity.Field]}
}

// reload fetches a page and, on success, re-renders the table and adopts
// the pagination the backend reports. On failure nothing changes.
func (s *Screen) reload(ctx context.Context, cur model.Cursor) (model.Page, error) {
	page, err := s.backend.FindAll(ctx, cur.Page, cur.Size)
	if err != nil {
		return model.Page{}, err
	}
	s.mu.Lock()
	s.table.Render(page.Content)
	s.pagination.Apply(page)
	s.mu.Unlock()

	s.logger.Debug("screen: page loaded",
		zap.Int("page", cur.Page),
		zap.Int("size", cur.Size),
		zap.Int("rows", len(page.Content)),
		zap.Int("total_pages", page.TotalPages),
	)
	return page, nil
}

// run executes fn while holding the screen lock. The lock is released on
// every exit path, panics included.
func (s *Screen) run(ctx context.Context, flow string, fn func(context.Context, time.Time) error, attrs ...attribute.KeyValue) (err error) {
	attrs = append(attrs,
		observability.AttrScreenID.String(s.def.ID),
		observability.AttrFlow.String(flow),
	)
	if s.sessionID != "" {
		attrs = append(attrs, observability.AttrSessionID.String(s.sessionID))
	}
	ctx, span := observability.StartSpan(ctx, "screen."+flow, attrs...)
	started := time.Now()
	defer func() {
		span.SetAttributes(observability.AttrFlowResult.String(outcome(err)))
		observability.EndSpanWithError(span, err)
	}()

	// Taken under mu so Input, Edit and ResetForm see the lock either
	// before or after their own write, never in between.
	s.mu.Lock()
	release, err := s.lock.Acquire()
	s.mu.Unlock()
	if err != nil {
		s.metrics.RecordScreenLockReject(s.def.ID)
		return err
	}
	defer release()

	err = fn(ctx, started)
	s.metrics.RecordScreenFlow(s.def.ID, flow, outcome(err), time.Since(started))
	if err != nil && outcome(err) == "failed" {
		observability.RequestLogger(ctx, s.logger).Warn("screen: flow failed", zap.String("flow", flow), zap.Error(err))
	}
	return err
}

// outcome classifies a flow result for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, model.ErrUserDeclined) {
		return "declined"
	}
	var env *model.ErrorEnvelope
	if errors.As(err, &env) && env.Code == model.ErrValidationError {
		return "invalid"
	}
	return "failed"
}

// Notice returns the last flow's user-facing message.
func (s *Screen) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// Descriptor returns a consistent snapshot of the whole screen. While a
// flow is in progress every control reports disabled.
func (s *Screen) Descriptor() model.ScreenDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	busy := s.lock.Held()

	d := model.ScreenDescriptor{
		SessionID: s.sessionID,
		ScreenID:  s.def.ID,
		Title:     s.def.Title,
		Busy:      busy,
		Form:      s.formDescriptor(busy),
		Notice:    s.notice,
	}
	if s.def.HasTable() {
		d.Table = s.table.Descriptor(busy)
		d.Pagination = s.pagination.Descriptor(s.def.PageSizeOptions(), busy)
	}
	return d
}

func (s *Screen) formDescriptor(busy bool) model.FormDescriptor {
	fd := model.FormDescriptor{
		Mode:   s.draft.Mode(),
		Fields: make([]model.FieldDescriptor, 0, len(s.def.Fields)),
		Actions: []model.ActionDescriptor{
			{ID: ActionSubmit, Label: "Save", Icon: "save", Enabled: !busy},
			{ID: ActionReset, Label: "Reset", Icon: "refresh", Enabled: !busy},
		},
	}
	for _, f := range s.def.Fields {
		typ := f.Type
		if typ == "" {
			typ = model.FieldTypeText
		}
		field := model.FieldDescriptor{
			Field:    f.Field,
			Label:    f.Label,
			Type:     typ,
			Value:    s.draft.Value(f.Field),
			Disabled: busy,
		}
		if f.MaxToday {
			field.Max = s.draft.Today()
		}
		fd.Fields = append(fd.Fields, field)
	}
	return fd
}
