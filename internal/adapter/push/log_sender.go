package push

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
)

// LogSender stands in for the push API when delivery is disabled. Every
// message is logged and reported as delivered.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a dry-run sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("push disabled, message not sent",
		"title", msg.Notification.Title,
		"body", msg.Notification.Body,
		"sound", msg.Notification.Sound,
		"topic", msg.Topic,
		"has_token", msg.Token != "",
	)
	return nil
}
