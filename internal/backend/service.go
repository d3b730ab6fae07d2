// Package backend speaks the tshop REST contract: paginated findAll,
// create, update and delete endpoints under one base path per resource,
// with per-service circuit breaking and retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tshop/admin/internal/config"
	"github.com/tshop/admin/internal/observability"
	"github.com/tshop/admin/model"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// Service is the shared connection to one backend service. Every screen
// bound to the service reuses its HTTP client and circuit breaker.
type Service struct {
	id      string
	cfg     config.ServiceConfig
	client  *http.Client
	breaker *CircuitBreaker
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient replaces the service's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithLogger sets the logger used for backend call logs.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics the service records into.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the connection to one backend service.
func NewService(id string, cfg config.ServiceConfig, opts ...Option) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Service{
		id:  id,
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics := s.metrics
	s.breaker.OnStateChange(func(st BreakerState) {
		metrics.SetBackendCircuitBreakerState(id, st.gaugeValue())
	})
	metrics.SetBackendCircuitBreakerState(id, BreakerClosed.gaugeValue())
	return s
}

// ID returns the service ID.
func (s *Service) ID() string {
	return s.id
}

// Resource returns a client for the resource collection mounted at
// basePath, e.g. "/accessories".
func (s *Service) Resource(basePath string) *Client {
	return &Client{svc: s, base: s.cfg.BaseURL + basePath}
}

// HealthCheck reports the service unhealthy while its breaker is open.
func (s *Service) HealthCheck(_ context.Context) error {
	if st := s.breaker.State(); st == BreakerOpen {
		return fmt.Errorf("backend %s: %w", s.id, ErrCircuitOpen)
	}
	return nil
}

// BreakerState returns the state of the service's circuit breaker.
func (s *Service) BreakerState() BreakerState {
	return s.breaker.State()
}

// exchange sends one logical request, retrying it per the service's retry
// policy. When out is non-nil the 2xx response body is decoded into it.
func (s *Service) exchange(ctx context.Context, op, method, url string, body any, out any) error {
	ctx, span := observability.StartSpan(ctx, "backend."+op,
		observability.AttrServiceID.String(s.id),
		observability.AttrOperation.String(op),
	)

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			err = &model.TransportError{Op: op, Method: method, URL: url, Err: fmt.Errorf("marshal body: %w", err)}
			observability.EndSpanWithError(span, err)
			return err
		}
	}

	logger := observability.RequestLogger(ctx, s.logger)
	if m, ok := body.(map[string]any); ok {
		logger.Debug("backend: request payload", zap.String("operation", op), zap.Any("body", observability.RedactBody(m)))
	} else if r, ok := body.(model.Resource); ok {
		logger.Debug("backend: request payload", zap.String("operation", op), zap.Any("body", observability.RedactBody(r)))
	}

	attempt := 0
	run := func() error {
		attempt++
		err := s.once(ctx, op, method, url, payload, out)
		if err == nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		s.metrics.RecordBackendRetry(s.id)
		logger.Debug("backend: retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(run, backoff.WithContext(s.retryPolicy(method), ctx), notify)
	if err != nil {
		if _, ok := model.IsTransportError(err); !ok {
			err = &model.TransportError{Op: op, Method: method, URL: url, Err: err}
		}
		logger.Warn("backend: call failed",
			zap.String("operation", op),
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err),
		)
	}
	observability.EndSpanWithError(span, err)
	return err
}

// once performs a single HTTP round trip behind the circuit breaker.
func (s *Service) once(ctx context.Context, op, method, url string, payload []byte, out any) error {
	fail := func(status int, err error) error {
		return &model.TransportError{Op: op, Method: method, URL: url, StatusCode: status, Err: err}
	}

	if err := s.breaker.Allow(); err != nil {
		return fail(0, err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fail(0, fmt.Errorf("build request: %w", err))
	}
	s.setHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		s.metrics.RecordBackendRequest(s.id, op, 0, time.Since(start))
		return fail(0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	s.metrics.RecordBackendRequest(s.id, op, resp.StatusCode, time.Since(start))
	switch {
	case resp.StatusCode >= 500:
		s.breaker.RecordFailure()
	case resp.StatusCode < 400:
		s.breaker.RecordSuccess()
	}
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	observability.RequestLogger(ctx, s.logger).Debug("backend: response",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, nil)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (s *Service) setHeaders(ctx context.Context, h http.Header) {
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	h.Set("Accept-Language", sanitizeHeader(model.LocaleFrom(ctx, s.cfg.AcceptLanguage)))
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
	}
	observability.InjectTraceHeaders(ctx, h)
}

func (s *Service) retryPolicy(method string) backoff.BackOff {
	rc := s.cfg.Retry
	if rc.MaxAttempts <= 1 || (rc.IdempotentOnly && !isIdempotentMethod(method)) {
		return &backoff.StopBackOff{}
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	if rc.BackoffInitial > 0 {
		eb.InitialInterval = rc.BackoffInitial
	}
	eb.Multiplier = 2
	if rc.BackoffMultiplier > 0 {
		eb.Multiplier = rc.BackoffMultiplier
	}
	eb.MaxInterval = 2 * time.Second
	if rc.BackoffMax > 0 {
		eb.MaxInterval = rc.BackoffMax
	}
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithMaxRetries(eb, uint64(rc.MaxAttempts-1))
}

// retryable reports whether a failed attempt may be repeated: network
// failures and gateway-class statuses are, an open breaker and client
// errors are not.
func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	te, ok := model.IsTransportError(err)
	if !ok {
		return false
	}
	switch te.StatusCode {
	case 0:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return te.Err == nil
	}
	return false
}

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// sanitizeHeader strips CR and LF to prevent header injection.
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

// Registry holds one Service per configured backend service.
type Registry struct {
	services map[string]*Service
}

// NewRegistry creates a Service for every configured service.
func NewRegistry(services map[string]config.ServiceConfig, opts ...Option) *Registry {
	r := &Registry{services: make(map[string]*Service, len(services))}
	for id, cfg := range services {
		r.services[id] = NewService(id, cfg, opts...)
	}
	return r
}

// Service returns the service with the given ID.
func (r *Registry) Service(id string) (*Service, bool) {
	s, ok := r.services[id]
	return s, ok
}

// Client returns a resource client for a screen's service and base path.
func (r *Registry) Client(serviceID, basePath string) (*Client, error) {
	s, ok := r.services[serviceID]
	if !ok {
		return nil, fmt.Errorf("backend: service %q not configured", serviceID)
	}
	return s.Resource(basePath), nil
}

// HealthCheck fails when any service's breaker is open.
func (r *Registry) HealthCheck(ctx context.Context) error {
	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := r.services[id].HealthCheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
