package workflow

import (
	"context"
	"errors"
	"log/slog"

	"mediaferry/internal/logging"
	"mediaferry/internal/notifications"
	"mediaferry/internal/stage"
	"mediaferry/internal/stageexec"
)

// notify publishes an event. Delivery failures never affect the run.
func (m *Manager) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not send notification", logging.String("event", string(event)))
			return
		}
		logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notification provider settings"),
			logging.String(logging.FieldImpact, "the run continues without this notification"),
			logging.Error(err),
		)
	}
}

func (m *Manager) notifyStageComplete(ctx context.Context, logger *slog.Logger, batch stageexec.BatchResult, success bool) {
	m.notify(ctx, logger, notifications.EventStageCompleted, notifications.Payload{
		"stage":     batch.Stage.Label(),
		"success":   success,
		"duration":  batch.Duration,
		"processed": batch.Processed(),
		"failed":    batch.Failed,
	})
}

func (m *Manager) notifyRunError(ctx context.Context, logger *slog.Logger, id stage.ID, message string) {
	if message == "" {
		message = "stage reported failures"
	}
	m.notify(ctx, logger, notifications.EventRunError, notifications.Payload{
		"stage": id.Label(),
		"error": message,
	})
}
