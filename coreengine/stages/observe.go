package stages

import (
	"context"
	"time"

	"github.com/adaptive-learning-os/challengecore/coreengine/observability"
	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrument opens a tracing span for one stage execution and returns a
// completion callback that records metrics, span status, and structured logs.
// Every stage Run wraps its body between instrument and the callback.
func instrument(ctx context.Context, stageName string, logger Logger, sess *session.Session) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "stage."+stageName,
		trace.WithAttributes(
			attribute.String("challenge.stage", stageName),
			attribute.String("challenge.session_id", sess.SessionID),
			attribute.Int("challenge.attempt_count", sess.AttemptCount),
		),
	)

	start := time.Now()
	logger.Info(stageName+"_started", "session_id", sess.SessionID)

	return ctx, func(err error) {
		durationMS := int(time.Since(start).Milliseconds())
		span.SetAttributes(attribute.Int("duration_ms", durationMS))

		if err != nil {
			observability.RecordStageExecution(stageName, "error", durationMS)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error(stageName+"_error",
				"session_id", sess.SessionID,
				"error", err.Error(),
				"duration_ms", durationMS,
			)
		} else {
			observability.RecordStageExecution(stageName, "success", durationMS)
			span.SetStatus(codes.Ok, "success")
			logger.Info(stageName+"_completed",
				"session_id", sess.SessionID,
				"duration_ms", durationMS,
				"status", string(sess.Status),
			)
		}
		span.End()
	}
}
