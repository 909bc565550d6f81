package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/codezest-academy/codezest-notifications/internal/model"
	"github.com/codezest-academy/codezest-notifications/pkg/config"
)

// SMS delivers notifications through an HTTP SMS gateway.
type SMS struct {
	cfg      config.SMSConfig
	resolver ContactResolver
	client   *http.Client
	logger   *zap.Logger
}

var _ Provider = (*SMS)(nil)

func NewSMS(cfg config.SMSConfig, resolver ContactResolver, logger *zap.Logger) *SMS {
	return &SMS{
		cfg:      cfg,
		resolver: resolver,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

func (s *SMS) Channel() model.Channel { return model.ChannelSMS }

func (s *SMS) Deliver(ctx context.Context, env *model.Envelope) error {
	phone, err := s.resolver.ResolvePhone(ctx, env.UserID)
	if err != nil {
		if errors.Is(err, ErrUnknownRecipient) {
			return Terminal("no phone number for user %s", env.UserID)
		}
		return fmt.Errorf("resolve phone for user %s: %w", env.UserID, err)
	}

	payload := map[string]string{
		"to":   phone,
		"text": env.Body,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Terminal("marshal sms payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return Terminal("build sms request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Retryable("sms gateway unreachable: %v", err)
	}
	defer resp.Body.Close()

	return classifyGatewayStatus("sms", resp.StatusCode)
}

// classifyGatewayStatus maps gateway HTTP status codes onto the delivery
// outcome: 2xx delivered, 429/5xx transient, other 4xx permanent.
func classifyGatewayStatus(gateway string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return Retryable("%s gateway rate limited", gateway)
	case code >= 500:
		return Retryable("%s gateway returned %d", gateway, code)
	default:
		return Terminal("%s gateway rejected request with %d", gateway, code)
	}
}
