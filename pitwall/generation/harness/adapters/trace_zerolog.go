package adapters

import (
	"context"
	"time"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
	"github.com/rs/zerolog"
)

type spanLoggerKey struct{}

// ZerologTracer implements the Tracer interface using zerolog.
type ZerologTracer struct {
	logger zerolog.Logger
}

// NewZerologTracer creates a new zerolog tracer.
func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{logger: logger}
}

// StartSpan opens a span; the returned func closes it and records duration and error.
func (t *ZerologTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	lc := t.loggerFrom(ctx).With().Str("span", name)
	for k, v := range attrs {
		lc = lc.Interface(k, v)
	}
	spanLogger := lc.Logger()

	ctx = context.WithValue(ctx, spanLoggerKey{}, spanLogger)
	start := time.Now()
	spanLogger.Debug().Str("event", "span_start").Msg("span started")

	return ctx, func(err error) {
		event := spanLogger.Debug()
		if err != nil {
			event = spanLogger.Warn().Err(err)
		}
		event.Str("event", "span_end").Dur("duration", time.Since(start)).Msg("span finished")
	}
}

// Event logs a point event inside the current span, if any.
func (t *ZerologTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	l := t.loggerFrom(ctx)
	event := l.Info()
	for k, v := range attrs {
		event = event.Interface(k, v)
	}
	event.Str("event", name).Msg("trace event")
}

func (t *ZerologTracer) loggerFrom(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(spanLoggerKey{}).(zerolog.Logger); ok {
		return l
	}
	return t.logger
}

var _ ports.Tracer = (*ZerologTracer)(nil)
