package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/codezest-academy/codezest-notifications/internal/model"
	"github.com/codezest-academy/codezest-notifications/pkg/config"
)

// Email delivers notifications over SMTP using go-mail.
type Email struct {
	cfg      config.SMTPConfig
	resolver ContactResolver
	logger   *zap.Logger
}

var _ Provider = (*Email)(nil)

func NewEmail(cfg config.SMTPConfig, resolver ContactResolver, logger *zap.Logger) *Email {
	return &Email{cfg: cfg, resolver: resolver, logger: logger}
}

func (e *Email) Channel() model.Channel { return model.ChannelEmail }

func (e *Email) Deliver(ctx context.Context, env *model.Envelope) error {
	addr, err := e.resolver.ResolveEmail(ctx, env.UserID)
	if err != nil {
		if errors.Is(err, ErrUnknownRecipient) {
			return Terminal("no email address for user %s", env.UserID)
		}
		return fmt.Errorf("resolve email for user %s: %w", env.UserID, err)
	}

	m := mail.NewMsg()
	if err := m.From(e.cfg.From); err != nil {
		return Terminal("invalid from address %q: %v", e.cfg.From, err)
	}
	if err := m.To(addr); err != nil {
		return Terminal("invalid recipient %q: %v", addr, err)
	}
	m.Subject(env.Title)
	m.SetBodyString(mail.TypeTextPlain, env.Body)

	c, err := mail.NewClient(e.cfg.Host,
		mail.WithPort(e.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.cfg.Username),
		mail.WithPassword(e.cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return fmt.Errorf("create mail client: %w", err)
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		// SMTP rejections for a bad mailbox are permanent; everything else
		// on the wire is worth another attempt.
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return Terminal("smtp rejected message: %v", err)
		}
		return Retryable("smtp send failed: %v", err)
	}

	e.logger.Debug("email delivered",
		zap.String("envelope_id", env.ID.String()),
		zap.String("user_id", env.UserID),
	)
	return nil
}
