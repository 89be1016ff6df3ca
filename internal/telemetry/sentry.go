// Package telemetry traces service operations with Sentry.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/knowtext/internal/domain"
	"github.com/cloo-solutions/knowtext/internal/logger"
	"github.com/getsentry/sentry-go"
)

const serviceName = "knowtext"

type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush function.
// Without a DSN both are no-ops.
func Init(cfg Config, log *logger.Logger) (func(), error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.DSN == "" {
		return func() {}, nil
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			if ctx.Span.Name == "GET /health" {
				return 0.0
			}
			var emptySpanID sentry.SpanID
			if ctx.Span.ParentSpanID != emptySpanID {
				if ctx.Span.Sampled.Bool() {
					return 1.0
				}
				return 0.0
			}
			return cfg.TracesSampleRate
		}),
	})
	if err != nil {
		log.Warn("sentry init failed, continuing without tracing", "error", err)
		return func() {}, nil
	}

	shutdown := func() {
		sentry.Flush(5 * time.Second)
	}

	log.Info("sentry tracing initialized", "environment", cfg.Environment, "sample_rate", cfg.TracesSampleRate)
	return shutdown, nil
}

// SpanAttributes tags a knowledge text service span.
type SpanAttributes struct {
	TenantID        string
	KnowledgeTextID string
	Operation       string
}

// Span wraps sentry.Span. The zero value is a no-op.
type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError records err on the span. Caller errors such as validation
// failures or missing records only set the span status; anything else is
// also captured as an exception.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	status, expected := spanStatusFor(err)
	s.inner.Status = status
	if expected {
		return
	}
	if hub := sentry.GetHubFromContext(s.inner.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

// spanStatusFor maps an error to a span status and reports whether the
// error is an expected outcome of a caller request.
func spanStatusFor(err error) (sentry.SpanStatus, bool) {
	if errors.Is(err, context.Canceled) {
		return sentry.SpanStatusCanceled, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sentry.SpanStatusDeadlineExceeded, false
	}
	switch domain.CodeOf(err) {
	case domain.ErrCodeValidation:
		return sentry.SpanStatusInvalidArgument, true
	case domain.ErrCodeNotFound:
		return sentry.SpanStatusNotFound, true
	case domain.ErrCodeAlreadyExists:
		return sentry.SpanStatusAlreadyExists, true
	case domain.ErrCodeInvalidOperation:
		return sentry.SpanStatusFailedPrecondition, true
	case domain.ErrCodeUnavailable:
		return sentry.SpanStatusUnavailable, false
	}
	return sentry.SpanStatusInternalError, false
}

func setAttributes(span *sentry.Span, attrs SpanAttributes) {
	if span == nil {
		return
	}

	if attrs.TenantID != "" {
		span.SetTag("tenant_id", attrs.TenantID)
	}
	if attrs.KnowledgeTextID != "" {
		span.SetTag("knowledge_text_id", attrs.KnowledgeTextID)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}
}

// StartSpan opens a child of the span in ctx, or a new transaction when
// there is none (CLI commands and background jobs).
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	setAttributes(span, attrs)

	return span.Context(), &Span{inner: span}
}

func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
}

func AddBreadcrumb(ctx context.Context, category, message string) {
	breadcrumb := &sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(breadcrumb, nil)
	} else {
		sentry.AddBreadcrumb(breadcrumb)
	}
}
