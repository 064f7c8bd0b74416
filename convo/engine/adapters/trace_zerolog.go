package adapters

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// spanLoggerKey keys the span-scoped logger stored in the context.
type spanLoggerKey struct{}

// ZerologTracer implements the Tracer interface on top of zerolog: spans are
// start/end log lines carrying their attrs, events log through the span's
// logger when one is in the context.
type ZerologTracer struct {
	logger zerolog.Logger
}

// NewZerologTracer creates a tracer writing through the given logger.
func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{logger: logger}
}

// StartSpan opens a span and returns the derived context plus its end func.
func (t *ZerologTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	spanLogger := t.logger.With().Str("span", name).Logger()
	for k, v := range attrs {
		spanLogger = spanLogger.With().Interface(k, v).Logger()
	}

	ctx = context.WithValue(ctx, spanLoggerKey{}, spanLogger)
	startTime := time.Now()

	spanLogger.Debug().Msg("span started")

	finish := func(err error) {
		event := spanLogger.Info()
		if err != nil {
			event = spanLogger.Warn().Err(err)
		}
		event.Dur("duration", time.Since(startTime)).Msg("span finished")
	}
	return ctx, finish
}

// Event logs a point event against the surrounding span, or the base logger
// when called outside any span.
func (t *ZerologTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	logger, ok := ctx.Value(spanLoggerKey{}).(zerolog.Logger)
	if !ok {
		logger = t.logger
	}

	event := logger.Debug()
	for k, v := range attrs {
		event = event.Interface(k, v)
	}
	event.Str("event", name).Msg("trace event")
}

// Ensure ZerologTracer implements the Tracer interface.
var _ ports.Tracer = (*ZerologTracer)(nil)
