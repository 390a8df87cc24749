package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/dradenvandewind/registration-api/internal/core/registration"
)

// LogSender はコードをログに出力するだけの開発用 Notifier です。
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender は LogSender を生成します。
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send はコードをログに出力します。
func (s *LogSender) Send(_ context.Context, n registration.Notification) error {
	s.logger.Info("activation code",
		zap.String("to", n.Address),
		zap.String("code", n.Code),
		zap.Time("expires_at", n.ExpiresAt),
	)
	return nil
}
