package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Kind identifies the message template the delivery collaborator should use.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindVerified      Kind = "verified"
	KindPasswordReset Kind = "password_reset"
	KindResetDone     Kind = "reset_done"
)

// Sender delivers account emails. Delivery is fire-and-forget from the
// core's perspective; a failed send must never fail the operation that
// triggered it.
type Sender interface {
	Send(ctx context.Context, kind Kind, username, email, token string) error
}

// LogSender is the default collaborator: it records the send instead of
// delivering it. Real deployments swap in an SMTP- or provider-backed
// implementation.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, kind Kind, username, email, token string) error {
	s.log.Info("email dispatched",
		zap.String("kind", string(kind)),
		zap.String("username", username),
		zap.String("email", email),
		zap.Bool("has_token", token != ""))
	return nil
}
