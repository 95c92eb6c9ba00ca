package collab

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
)

// Mailbox pulls unread inbound messages. Implementations own the mail
// protocol session and all MIME decoding; the core only consumes the decoded
// result. PullUnread is a bounded-latency call: retries belong to the
// implementation, not the caller.
type Mailbox interface {
	PullUnread(ctx context.Context) ([]domain.InboundEmail, error)
}

// disabledMailbox is used when no mailbox integration is configured. Ingest
// passes still run (they pick up unprocessed tickets) but pull nothing.
type disabledMailbox struct {
	logger *zap.Logger
}

// NewDisabledMailbox builds a mailbox that always returns an empty batch.
func NewDisabledMailbox(logger *zap.Logger) Mailbox {
	return &disabledMailbox{logger: logger}
}

func (m *disabledMailbox) PullUnread(context.Context) ([]domain.InboundEmail, error) {
	m.logger.Debug("mailbox integration not configured; nothing pulled")
	return nil, nil
}
