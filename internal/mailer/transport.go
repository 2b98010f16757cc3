package mailer

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Sender is the mail transport contract: one message, one attempt.
// It returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (string, error)
}

// LogTransport accepts every message and only logs it. Used when no
// provider credentials are configured.
type LogTransport struct{}

// Send logs msg and returns a random message id.
func (LogTransport) Send(_ context.Context, msg *domain.EmailMessage) (string, error) {
	id := "log-" + uuid.New().String()
	logger.Info("email accepted by log transport",
		"message_id", id,
		"campaign_id", msg.CampaignID,
		"email", msg.To,
		"subject", msg.Subject,
	)
	return id, nil
}
