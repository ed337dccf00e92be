package logger

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	tenantIDKey  contextKey = "tenant_id"
	runIDKey     contextKey = "run_id"
	triggerKey   contextKey = "trigger"
)

// WithContext returns a new context carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger carried by ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID tags ctx and its logger with an HTTP request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return WithContext(ctx, FromContext(ctx).With(zap.String("request_id", requestID)))
}

// WithTenantID tags ctx and its logger with the tenant being synced
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	return WithContext(ctx, FromContext(ctx).With(zap.Stringer("tenant_id", tenantID)))
}

// WithRunID tags ctx and its logger with a sync run id
func WithRunID(ctx context.Context, runID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	return WithContext(ctx, FromContext(ctx).With(zap.Stringer("run_id", runID)))
}

// WithTrigger records what started the current run (http, scheduler, cli)
func WithTrigger(ctx context.Context, trigger string) context.Context {
	ctx = context.WithValue(ctx, triggerKey, trigger)
	return WithContext(ctx, FromContext(ctx).With(zap.String("trigger", trigger)))
}

// GetRequestID returns the request id carried by ctx
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// GetTenantID returns the tenant id carried by ctx, or uuid.Nil
func GetTenantID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(tenantIDKey).(uuid.UUID)
	return id
}

// GetRunID returns the sync run id carried by ctx, or uuid.Nil
func GetRunID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(runIDKey).(uuid.UUID)
	return id
}

// GetTrigger returns the trigger carried by ctx
func GetTrigger(ctx context.Context) string {
	trigger, _ := ctx.Value(triggerKey).(string)
	return trigger
}

// ContextLogger logs through the context logger and adds the active
// trace and span ids to every entry.
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L returns a ContextLogger for ctx.
// Usage: logger.L(ctx).Info("fetched page", zap.Int("items", n))
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx)}
}

func (cl *ContextLogger) traced() *zap.Logger {
	sc := trace.SpanContextFromContext(cl.ctx)
	if !sc.IsValid() {
		return cl.logger
	}
	return cl.logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// With returns a child ContextLogger with extra fields
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...)}
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.traced().Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.traced().Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.traced().Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.traced().Error(msg, fields...) }

// Zap returns the traced *zap.Logger
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.traced()
}
