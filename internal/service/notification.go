package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
)

// NotificationService turns domain events into team-facing notifications:
// structured log lines always, webhook posts when a URL is configured.
// Notification failures are logged and swallowed; they never affect the
// operation that raised the event.
type NotificationService struct {
	cfg    config.NotificationConfig
	client *http.Client
	logger *zap.Logger
}

// NewNotificationService constructs the service and registers its handlers
// on the dispatcher.
func NewNotificationService(cfg config.NotificationConfig, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	s := &NotificationService{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	dispatcher.Subscribe(events.EventTicketCreated, s.onTicketCreated)
	dispatcher.Subscribe(events.EventTicketProcessed, s.onTicketProcessed)
	dispatcher.Subscribe(events.EventSlaBreached, s.onSlaBreached)
	dispatcher.Subscribe(events.EventResponseSent, s.onResponseSent)
	return s
}

func (s *NotificationService) onTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	s.logger.Info("new ticket",
		zap.String("ticket_id", event.TicketID),
		zap.String("sender", payload.SenderEmail),
		zap.String("subject", payload.Subject))
	return s.post(ctx, fmt.Sprintf("New ticket from %s: %s", payload.SenderEmail, payload.Subject), event)
}

func (s *NotificationService) onTicketProcessed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketProcessedPayload)
	if !ok {
		return nil
	}
	if payload.Urgency != domain.UrgencyHigh || !s.cfg.NotifyOnUrgent {
		return nil
	}
	s.logger.Info("urgent ticket classified",
		zap.String("ticket_id", event.TicketID),
		zap.String("category", string(payload.Category)))
	return s.post(ctx, fmt.Sprintf("Urgent %s ticket awaiting review", payload.Category), event)
}

func (s *NotificationService) onSlaBreached(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SlaBreachedPayload)
	if !ok {
		return nil
	}
	s.logger.Warn("sla breached",
		zap.String("ticket_id", event.TicketID),
		zap.Time("deadline", payload.Deadline),
		zap.String("urgency", string(payload.Urgency)))
	return s.post(ctx, "SLA deadline breached", event)
}

func (s *NotificationService) onResponseSent(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ResponseSentPayload)
	if !ok {
		return nil
	}
	s.logger.Info("response sent",
		zap.String("ticket_id", event.TicketID),
		zap.String("recipient", payload.Recipient),
		zap.Bool("sla_breached", payload.SlaBreached))
	return nil
}

// post delivers a webhook notification when a URL is configured.
func (s *NotificationService) post(ctx context.Context, text string, event events.Event) error {
	if s.cfg.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"text":      text,
		"ticket_id": event.TicketID,
		"event":     string(event.Type),
		"timestamp": event.Timestamp,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook notification failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn("webhook notification rejected", zap.Int("status", resp.StatusCode))
	}
	return nil
}
