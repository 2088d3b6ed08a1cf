package notifications

import (
	"context"
	"log/slog"
)

type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyUser(ctx context.Context, ev UserEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification."+ev.Type,
		"user_id", ev.UserID,
		"request_id", ev.RequestID,
		"occurred_at", ev.OccurredAt,
	)
	return nil
}
