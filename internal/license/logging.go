package license

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"p4portal/internal/infrastructure"
)

// logOperation logs operation start/end with duration and trace correlation.
func (e *Engine) logOperation(ctx context.Context, operation string, start time.Time, err error) {
	logger := infrastructure.LoggerWithContext(ctx)
	duration := time.Since(start)
	traceID := infrastructure.TraceIDFromContext(ctx)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("license.operation", operation),
			attribute.Float64("license.duration_ms", float64(duration.Milliseconds())),
			attribute.Bool("license.success", err == nil),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.Duration("duration", duration),
		slog.String("trace_id", traceID),
		slog.String("component", "license_engine"),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		logger.LogAttrs(ctx, slog.LevelError, "License operation failed", attrs...)
	} else {
		logger.LogAttrs(ctx, slog.LevelInfo, "License operation completed", attrs...)
	}
}

// logAction logs a specific action with structured data and trace correlation.
func (e *Engine) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	logger := infrastructure.LoggerWithContext(ctx)
	traceID := infrastructure.TraceIDFromContext(ctx)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		infrastructure.AddSpanEvent(ctx, "license."+action, map[string]interface{}{
			"action":    action,
			"result":    result,
			"component": "license_engine",
		})
	}

	allAttrs := []slog.Attr{
		slog.String("component", "license_engine"),
		slog.String("action", action),
		slog.String("result", result),
		slog.String("trace_id", traceID),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(ctx, level, result, allAttrs...)
}

func (e *Engine) logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	e.logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func (e *Engine) logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	e.logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

// maskTenantID masks a tenant identifier so logs stay correlatable without
// exposing the full id.
func maskTenantID(id string) string {
	if len(id) <= 8 {
		return "****"
	}
	return id[:4] + "****" + id[len(id)-4:]
}

// hashSubject produces a short stable hash of an identifier for audit
// correlation across log streams.
func hashSubject(id string) string {
	if id == "" {
		return ""
	}
	h := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%x", h)[:16]
}
