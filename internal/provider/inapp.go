package provider

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/codezest-academy/codezest-notifications/internal/model"
	"github.com/codezest-academy/codezest-notifications/pkg/util"
)

// InboxWriter persists an in-app notification for later reading. The
// envelope id keys a unique constraint so redelivery cannot write twice.
// Implemented by repository.InboxRepository.
type InboxWriter interface {
	Insert(ctx context.Context, envelopeID, userID, title, body string) error
}

// InApp 站内通知：投递即写入用户收件箱表
type InApp struct {
	inbox  InboxWriter
	logger *zap.Logger
}

var _ Provider = (*InApp)(nil)

func NewInApp(inbox InboxWriter, logger *zap.Logger) *InApp {
	return &InApp{inbox: inbox, logger: logger}
}

func (p *InApp) Channel() model.Channel { return model.ChannelInApp }

func (p *InApp) Deliver(ctx context.Context, env *model.Envelope) error {
	err := p.inbox.Insert(ctx, env.ID.String(), env.UserID, env.Title, env.Body)
	if err == nil {
		return nil
	}

	// 唯一约束冲突说明这条通知已经写过（租约过期后的重复投递），按成功处理
	if strings.Contains(err.Error(), "duplicate key") {
		p.logger.Info("inbox row already exists, treating redelivery as success",
			zap.String("envelope_id", env.ID.String()),
		)
		return nil
	}

	if retryable, kind := util.IsRetryableError(err); retryable {
		return Retryable("inbox write failed (%s): %v", kind, err)
	}
	return Terminal("inbox write failed: %v", err)
}
