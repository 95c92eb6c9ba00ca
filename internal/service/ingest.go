package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/collab"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/pkg/util"
)

// IngestReport summarizes one ingestion pass.
type IngestReport struct {
	Fetched    int `json:"fetched"`
	NewTickets int `json:"new_tickets"`
	FollowUps  int `json:"follow_ups"`
	Duplicates int `json:"duplicates"`
	Processed  int `json:"processed"`
	Errors     int `json:"errors"`
}

// IngestService runs the fetch-correlate-classify pipeline. A single-flight
// guard keyed by mailbox keeps manual triggers and scheduled ticks from
// running the pipeline concurrently against the same inbox.
type IngestService struct {
	mailbox    collab.Mailbox
	classifier collab.Classifier
	correlator *Correlator
	lifecycle  *LifecycleService
	tickets    repository.TicketRepository
	guard      persistence.InflightGuard
	mailboxID  string
	logger     *zap.Logger
	now        func() time.Time
}

// IngestDependencies bundles collaborators for the IngestService.
type IngestDependencies struct {
	Mailbox    collab.Mailbox
	Classifier collab.Classifier
	Correlator *Correlator
	Lifecycle  *LifecycleService
	TicketRepo repository.TicketRepository
	Guard      persistence.InflightGuard
	MailboxID  string
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewIngestService constructs the ingest service.
func NewIngestService(deps IngestDependencies) *IngestService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &IngestService{
		mailbox:    deps.Mailbox,
		classifier: deps.Classifier,
		correlator: deps.Correlator,
		lifecycle:  deps.Lifecycle,
		tickets:    deps.TicketRepo,
		guard:      deps.Guard,
		mailboxID:  deps.MailboxID,
		logger:     deps.Logger,
		now:        now,
	}
}

// FetchAndProcess runs one full ingestion pass under the single-flight
// guard. A pass already in flight returns INGEST_BUSY without touching the
// mailbox. Per-message and per-ticket failures are logged and skipped; one
// malformed email never aborts the pass.
func (s *IngestService) FetchAndProcess(ctx context.Context) (*IngestReport, error) {
	acquired, err := s.guard.TryAcquire(ctx, s.mailboxID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, util.NewIngestBusy(s.mailboxID)
	}
	defer func() {
		if err := s.guard.Release(ctx, s.mailboxID); err != nil {
			s.logger.Warn("failed to release ingest guard",
				zap.String("mailbox", s.mailboxID), zap.Error(err))
		}
	}()

	report := &IngestReport{}
	started := s.now()

	inbound, err := s.mailbox.PullUnread(ctx)
	if err != nil {
		return nil, err
	}
	report.Fetched = len(inbound)

	for _, msg := range inbound {
		result, err := s.correlator.Correlate(ctx, msg)
		if err != nil {
			report.Errors++
			s.logger.Error("correlation failed",
				zap.String("message_id", msg.MessageID), zap.Error(err))
			continue
		}
		switch {
		case result.Duplicate:
			report.Duplicates++
		case result.IsNew:
			report.NewTickets++
		default:
			report.FollowUps++
		}
	}

	processed, errs := s.processUnclassified(ctx)
	report.Processed = processed
	report.Errors += errs

	s.logger.Info("ingestion pass complete",
		zap.String("mailbox", s.mailboxID),
		zap.Int("fetched", report.Fetched),
		zap.Int("new_tickets", report.NewTickets),
		zap.Int("follow_ups", report.FollowUps),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("processed", report.Processed),
		zap.Int("errors", report.Errors),
		zap.Duration("elapsed", s.now().Sub(started)))
	return report, nil
}

// processUnclassified classifies every ticket awaiting AI analysis,
// including follow-ups that reset the processed flag. Fail-open per ticket.
func (s *IngestService) processUnclassified(ctx context.Context) (int, int) {
	pending, err := s.tickets.ListUnprocessed(ctx)
	if err != nil {
		s.logger.Error("failed to list unprocessed tickets", zap.Error(err))
		return 0, 1
	}

	processed, errs := 0, 0
	for i := range pending {
		ticket := &pending[i]
		result, err := s.classifyTicket(ctx, ticket)
		if err != nil {
			errs++
			s.logger.Error("classification failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if _, err := s.lifecycle.RecordAiResult(ctx, ticket.ID, *result); err != nil {
			// Sent or otherwise finalized between listing and recording;
			// skip rather than fail the pass.
			if util.HasCode(err, util.CodeInvalidTransition) {
				continue
			}
			errs++
			s.logger.Error("failed to record analysis",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, errs
}

func (s *IngestService) classifyTicket(ctx context.Context, ticket *domain.Ticket) (*domain.AiResult, error) {
	body := latestIncomingBody(ctx, s.lifecycle, ticket.ID)
	return s.classifier.Classify(ctx, collab.ClassifyInput{
		SenderEmail: ticket.SenderEmail,
		Subject:     ticket.Subject,
		Body:        body,
		ReceivedAt:  ticket.ReceivedAt,
	})
}

// latestIncomingBody pulls the newest inbound message text so follow-ups
// are classified against what the customer actually said last. Empty on
// lookup failure; the classifier still has sender and subject.
func latestIncomingBody(ctx context.Context, lifecycle *LifecycleService, ticketID string) string {
	messages, err := lifecycle.Messages(ctx, ticketID)
	if err != nil {
		return ""
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsIncoming {
			return messages[i].Body
		}
	}
	return ""
}
