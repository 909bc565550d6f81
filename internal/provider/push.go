package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/codezest-academy/codezest-notifications/internal/model"
	"github.com/codezest-academy/codezest-notifications/pkg/config"
)

// Push delivers notifications through an HTTP push gateway. Device token
// fan-out happens gateway-side; we address the user id directly.
type Push struct {
	cfg    config.PushConfig
	client *http.Client
	logger *zap.Logger
}

var _ Provider = (*Push)(nil)

func NewPush(cfg config.PushConfig, logger *zap.Logger) *Push {
	return &Push{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

func (p *Push) Channel() model.Channel { return model.ChannelPush }

func (p *Push) Deliver(ctx context.Context, env *model.Envelope) error {
	payload := map[string]string{
		"user_id": env.UserID,
		"title":   env.Title,
		"body":    env.Body,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Terminal("marshal push payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return Terminal("build push request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Retryable("push gateway unreachable: %v", err)
	}
	defer resp.Body.Close()

	return classifyGatewayStatus("push", resp.StatusCode)
}
