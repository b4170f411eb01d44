package service

import (
	"context"

	"go.uber.org/zap"
)

// Notifier dispatches security tokens to users. Actual email delivery is an
// external concern; the default implementation only logs.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
	SendEmailConfirmation(ctx context.Context, email, token string) error
}

// LogNotifier writes notifications to the structured log instead of sending
// email. TODO: replace with an SMTP-backed notifier once the mail gateway is
// provisioned.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	n.logger.Info("password reset token issued",
		zap.String("email", email),
		zap.String("token", token),
	)
	return nil
}

func (n *LogNotifier) SendEmailConfirmation(ctx context.Context, email, token string) error {
	n.logger.Info("email confirmation token issued",
		zap.String("email", email),
		zap.String("token", token),
	)
	return nil
}
