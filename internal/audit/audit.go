// Package audit defines the audit logging contract consumed by the license
// engine and its collaborators, plus the sinks the portal ships with.
package audit

import (
	"context"
	"log/slog"
)

// Sink records audit events. Implementations are synchronous and may fail;
// callers decide whether a failed record is fatal for their operation. The
// engine records an entry on issuance, on every Tampered/Malformed
// validation verdict, and on every effective revocation.
type Sink interface {
	Record(ctx context.Context, component, action, subject, message string, isError bool) error
}

// SlogSink writes audit entries to the structured log.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink builds a sink over the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger.With(slog.String("log_type", "audit"))}
}

// Record implements Sink.
func (s *SlogSink) Record(ctx context.Context, component, action, subject, message string, isError bool) error {
	level := slog.LevelInfo
	if isError {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, message,
		slog.String("component", component),
		slog.String("action", action),
		slog.String("subject", subject),
		slog.Bool("is_error", isError),
	)
	return nil
}

// MultiSink fans a record out to every sink, returning the first error after
// attempting all of them.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ctx context.Context, component, action, subject, message string, isError bool) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Record(ctx, component, action, subject, message, isError); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
