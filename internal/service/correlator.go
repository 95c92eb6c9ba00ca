package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/pkg/util"
)

// SubjectLookback bounds how far back a same-sender subject match may reach
// when an inbound message carries no usable reference headers.
const SubjectLookback = 72 * time.Hour

// CorrelationResult reports where an inbound message landed.
type CorrelationResult struct {
	TicketID  string
	IsNew     bool
	Duplicate bool
}

// Correlator folds inbound messages into existing tickets or opens new ones.
type Correlator struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// CorrelatorDependencies bundles collaborators for the Correlator.
type CorrelatorDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewCorrelator constructs the correlator.
func NewCorrelator(deps CorrelatorDependencies) *Correlator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Correlator{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        now,
	}
}

// Correlate decides whether msg belongs to an existing ticket or starts a
// new one, records the message, and returns the destination. Reprocessing
// the same message id is a no-op: no duplicate ticket, no duplicate row.
func (c *Correlator) Correlate(ctx context.Context, msg domain.InboundEmail) (*CorrelationResult, error) {
	// Dedupe first: a message id we have already stored, either as a
	// ticket header or a message row, means this is a re-delivery.
	if existing, err := c.tickets.FindByMessageID(ctx, msg.MessageID); err == nil {
		return &CorrelationResult{TicketID: existing.ID, Duplicate: true}, nil
	} else if !repository.IsNotFound(err) {
		return nil, err
	}
	if ticketID, err := c.messages.FindTicketIDByMessageID(ctx, msg.MessageID); err == nil {
		return &CorrelationResult{TicketID: ticketID, Duplicate: true}, nil
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	ticket, err := c.findThread(ctx, msg)
	if err != nil {
		return nil, err
	}

	if ticket != nil {
		return c.appendToTicket(ctx, ticket, msg)
	}
	return c.openTicket(ctx, msg)
}

// findThread locates the ticket an inbound message continues, or nil for a
// new conversation. Reference headers win; otherwise a normalized-subject
// match from the same sender within the lookback window.
func (c *Correlator) findThread(ctx context.Context, msg domain.InboundEmail) (*domain.Ticket, error) {
	refs := referenceIDs(msg)
	if len(refs) > 0 {
		ticket, err := c.tickets.FindByReferences(ctx, refs)
		if err == nil {
			return ticket, nil
		}
		if !repository.IsNotFound(err) {
			return nil, err
		}
	}

	since := msg.ReceivedAt.Add(-SubjectLookback)
	candidates, err := c.tickets.ListBySenderSince(ctx, msg.SenderEmail, since)
	if err != nil {
		return nil, err
	}
	return bestCandidate(candidates, msg), nil
}

func (c *Correlator) appendToTicket(ctx context.Context, ticket *domain.Ticket, msg domain.InboundEmail) (*CorrelationResult, error) {
	messageID := msg.MessageID
	message := &domain.TicketMessage{
		TicketID:    ticket.ID,
		SenderEmail: msg.SenderEmail,
		Subject:     msg.Subject,
		Body:        msg.Body,
		IsIncoming:  true,
		MessageID:   &messageID,
		InReplyTo:   msg.InReplyTo,
	}
	if err := c.messages.Create(ctx, message); err != nil {
		// A concurrent re-delivery inserted the row first; already recorded.
		if util.HasCode(err, util.CodeDuplicateMessage) {
			return &CorrelationResult{TicketID: ticket.ID, Duplicate: true}, nil
		}
		return nil, err
	}

	// A follow-up reopens the review cycle: the draft no longer answers the
	// latest message, so the ticket goes back through AI processing.
	if _, err := c.tickets.Mutate(ctx, ticket.ID, func(t *domain.Ticket) error {
		t.MessageID = msg.MessageID
		t.InReplyTo = msg.InReplyTo
		t.AIProcessed = false
		t.ApprovalStatus = domain.ApprovalPending
		t.ApprovedBy = nil
		t.ApprovedAt = nil
		return nil
	}); err != nil {
		return nil, err
	}

	return &CorrelationResult{TicketID: ticket.ID, IsNew: false}, nil
}

func (c *Correlator) openTicket(ctx context.Context, msg domain.InboundEmail) (*CorrelationResult, error) {
	threadID := msg.MessageID
	if len(msg.References) > 0 {
		threadID = msg.References[0]
	} else if msg.InReplyTo != nil && *msg.InReplyTo != "" {
		threadID = *msg.InReplyTo
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = c.now()
	}

	ticket := &domain.Ticket{
		SenderEmail:    msg.SenderEmail,
		Subject:        msg.Subject,
		ReceivedAt:     receivedAt,
		ThreadID:       threadID,
		MessageID:      msg.MessageID,
		InReplyTo:      msg.InReplyTo,
		ApprovalStatus: domain.ApprovalPending,
	}
	if err := c.tickets.Create(ctx, ticket); err != nil {
		// The uniqueness constraint on message_id resolves the
		// check-then-create race: the loser attaches to the winner's ticket.
		if util.HasCode(err, util.CodeDuplicateMessage) {
			if winner, ferr := c.tickets.FindByMessageID(ctx, msg.MessageID); ferr == nil {
				return &CorrelationResult{TicketID: winner.ID, Duplicate: true}, nil
			}
			return nil, err
		}
		return nil, err
	}

	messageID := msg.MessageID
	message := &domain.TicketMessage{
		TicketID:    ticket.ID,
		SenderEmail: msg.SenderEmail,
		Subject:     msg.Subject,
		Body:        msg.Body,
		IsIncoming:  true,
		MessageID:   &messageID,
		InReplyTo:   msg.InReplyTo,
	}
	if err := c.messages.Create(ctx, message); err != nil && !util.HasCode(err, util.CodeDuplicateMessage) {
		return nil, err
	}

	c.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			SenderEmail: ticket.SenderEmail,
			Subject:     ticket.Subject,
			ReceivedAt:  ticket.ReceivedAt,
		},
	})

	return &CorrelationResult{TicketID: ticket.ID, IsNew: true}, nil
}

func (c *Correlator) publish(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now()
	}
	_ = c.dispatcher.Publish(ctx, event)
}

// referenceIDs collects the usable threading ids from the message headers.
func referenceIDs(msg domain.InboundEmail) []string {
	var refs []string
	if msg.InReplyTo != nil && *msg.InReplyTo != "" {
		refs = append(refs, *msg.InReplyTo)
	}
	for _, ref := range msg.References {
		ref = strings.TrimSpace(ref)
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// NormalizeSubject strips reply/forward prefixes, case-folds and trims, so
// "RE: Fwd: Help" and "help" correlate.
func NormalizeSubject(subject string) string {
	normalized := strings.TrimSpace(strings.ToLower(subject))
	for {
		stripped := normalized
		for _, prefix := range []string{"re:", "fwd:", "fw:"} {
			stripped = strings.TrimSpace(strings.TrimPrefix(stripped, prefix))
		}
		if stripped == normalized {
			return normalized
		}
		normalized = stripped
	}
}

// bestCandidate picks the ticket an unreferenced message most plausibly
// continues: a normalized-subject match from the candidate list, most
// recently received wins. Pure so the tie-break policy is testable without
// storage.
func bestCandidate(candidates []domain.Ticket, msg domain.InboundEmail) *domain.Ticket {
	subject := NormalizeSubject(msg.Subject)
	if subject == "" {
		return nil
	}

	var best *domain.Ticket
	for i := range candidates {
		candidate := &candidates[i]
		if NormalizeSubject(candidate.Subject) != subject {
			continue
		}
		if best == nil || candidate.ReceivedAt.After(best.ReceivedAt) {
			best = candidate
		}
	}
	return best
}
