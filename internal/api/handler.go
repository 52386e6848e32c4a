package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vnmchuo/costs-service/internal/auth"
	"github.com/vnmchuo/costs-service/internal/pricing"
	"github.com/vnmchuo/costs-service/pkg/ratelimit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AppendRecorder counts append attempts.
type AppendRecorder interface {
	RecordAppend(kind, outcome string)
}

type nopAppendRecorder struct{}

func (nopAppendRecorder) RecordAppend(string, string) {}

type Handler struct {
	resolver *pricing.Resolver
	plans    pricing.PlanRegistry
	prices   pricing.PriceCatalog
	limiter  *ratelimit.Limiter
	appends  AppendRecorder
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
}

type Options struct {
	Plans   pricing.PlanRegistry
	Prices  pricing.PriceCatalog
	Limiter *ratelimit.Limiter // nil disables write rate limiting
	Metrics interface {
		pricing.Recorder
		AppendRecorder
	}
	Tracer trace.Tracer
	Logger *zap.Logger
}

func NewHandler(opts Options) *Handler {
	var (
		recorder pricing.Recorder
		appends  AppendRecorder = nopAppendRecorder{}
	)
	if opts.Metrics != nil {
		recorder = opts.Metrics
		appends = opts.Metrics
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		resolver: pricing.NewResolver(opts.Plans, opts.Prices, recorder),
		plans:    opts.Plans,
		prices:   opts.Prices,
		limiter:  opts.Limiter,
		appends:  appends,
		tracer:   opts.Tracer,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "costs-service"})
}

func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
}

// asOf reads the optional RFC3339 asOf query parameter, defaulting to now.
func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		return h.now(), true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil && strings.Contains(raw, " ") {
		// An unescaped "+02:00" offset arrives as " 02:00".
		t, err = time.Parse(time.RFC3339, strings.Replace(raw, " ", "+", 1))
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid 'asOf' date format (use RFC3339, with '+' escaped as %2B)",
		})
		return time.Time{}, false
	}
	return t, true
}

// allowWrite applies the per-key write budget.
func (h *Handler) allowWrite(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	ctx := r.Context()
	decision, err := h.limiter.AllowWrite(ctx, auth.GetAPIKeyID(ctx))
	if err != nil {
		h.logger.Warn("rate limiter unavailable", zap.Error(err), zap.String("request_id", auth.GetRequestID(ctx)))
	}
	if err != nil || !decision.Allowed {
		secs := strconv.Itoa(int(decision.RetryAfter(time.Minute) / time.Second))
		w.Header().Set("Retry-After", secs)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": secs + "s",
		})
		return false
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, pricing.Message(err))

	fields := []zap.Field{
		zap.Error(err),
		zap.String("request_id", auth.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}

	switch {
	case errors.Is(err, pricing.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": pricing.Message(err)})
	case errors.Is(err, pricing.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": pricing.Message(err)})
	case errors.Is(err, pricing.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": pricing.Message(err)})
	case errors.Is(err, pricing.ErrUnconfigured):
		h.logger.Warn("provider has no platform plan", fields...)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": pricing.Message(err),
			"code":  "unconfigured",
		})
	case errors.Is(err, pricing.ErrStoreUnavailable):
		h.logger.Warn("store unavailable", fields...)
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Service unavailable"})
	default:
		h.logger.Error("request failed", fields...)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

func (h *Handler) startSpan(r *http.Request, name string, attrs ...attribute.KeyValue) (*http.Request, trace.Span) {
	ctx, span := h.tracer.Start(r.Context(), name)
	span.SetAttributes(attribute.String("request_id", auth.GetRequestID(ctx)))
	span.SetAttributes(attrs...)
	return r.WithContext(ctx), span
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func appendOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, pricing.ErrConflict):
		return "conflict"
	case errors.Is(err, pricing.ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}
