package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/collab"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/pkg/util"
)

// lifecycleState is the ticket's position in the review workflow, derived
// from approval status and sent marker. Persisted fields stay the source of
// truth; states exist to drive the transition table.
type lifecycleState string

const (
	stateNew      lifecycleState = "NEW"
	statePending  lifecycleState = "PENDING"
	stateApproved lifecycleState = "APPROVED"
	stateRejected lifecycleState = "REJECTED"
	stateSent     lifecycleState = "SENT"
)

// allowedTransitions whitelists the legal state changes. Anything not listed
// fails with INVALID_TRANSITION and leaves the ticket untouched.
//
// NEW leaves only through AI processing: a ticket cannot be approved,
// rejected, or sent before it carries an analyzed draft. APPROVED and
// REJECTED reopen to PENDING when the draft is edited or a follow-up resets
// the review; SENT is final.
var allowedTransitions = map[lifecycleState][]lifecycleState{
	stateNew:      {statePending},
	statePending:  {stateApproved, stateRejected},
	stateApproved: {stateSent, statePending},
	stateRejected: {statePending},
	stateSent:     {},
}

func stateOf(t *domain.Ticket) lifecycleState {
	if t.SentAt != nil {
		return stateSent
	}
	switch t.ApprovalStatus {
	case domain.ApprovalApproved:
		return stateApproved
	case domain.ApprovalRejected:
		return stateRejected
	}
	if !t.AIProcessed {
		return stateNew
	}
	return statePending
}

func canTransition(from, to lifecycleState) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func invalidTransition(from, to lifecycleState) error {
	return util.NewInvalidTransition(
		fmt.Sprintf("cannot transition from %s to %s", from, to),
		map[string]any{"from": string(from), "to": string(to)})
}

// LifecycleService owns every state change on a ticket. All mutations run
// under the repository's per-ticket exclusive section, so concurrent
// callers serialize and exactly one of two racing approvals wins.
type LifecycleService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	members    repository.TeamMemberRepository
	sla        *SlaService
	deliverer  collab.Deliverer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// LifecycleDependencies bundles collaborators for the LifecycleService.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	MemberRepo  repository.TeamMemberRepository
	Sla         *SlaService
	Deliverer   collab.Deliverer
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewLifecycleService constructs the lifecycle service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		members:    deps.MemberRepo,
		sla:        deps.Sla,
		deliverer:  deps.Deliverer,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        now,
	}
}

// RecordAiResult stores the AI analysis and the derived SLA deadline in one
// atomic step, so no observer sees an urgency without its deadline. Only
// unsent, unprocessed-or-reopened tickets accept a result.
func (s *LifecycleService) RecordAiResult(ctx context.Context, ticketID string, result domain.AiResult) (*domain.Ticket, error) {
	policy, err := s.sla.Policy(ctx)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) error {
		if t.SentAt != nil {
			return util.NewInvalidTransition("ticket already sent",
				map[string]any{"from": string(stateSent)})
		}
		deadline := ComputeDeadline(result.Urgency, t.ReceivedAt, policy)

		category := result.Category
		urgency := result.Urgency
		summary := result.Summary
		fixSteps := result.FixSteps
		draft := result.DraftResponse

		t.Category = &category
		t.Urgency = &urgency
		t.Summary = &summary
		t.FixSteps = &fixSteps
		t.DraftResponse = &draft
		t.AIProcessed = true
		t.ApprovalStatus = domain.ApprovalPending
		t.SlaDeadline = &deadline
		t.SlaBreached = IsBreached(s.now(), &deadline, t.SentAt)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketProcessed,
		TicketID: ticket.ID,
		Payload: events.TicketProcessedPayload{
			Category: result.Category,
			Urgency:  result.Urgency,
			Deadline: ticket.SlaDeadline,
		},
	})
	return ticket, nil
}

// Approve moves a pending draft to APPROVED, recording who and when.
func (s *LifecycleService) Approve(ctx context.Context, ticketID, approvedBy string) (*domain.Ticket, error) {
	ticket, err := s.transition(ctx, ticketID, stateApproved, func(t *domain.Ticket) {
		now := s.now()
		t.ApprovalStatus = domain.ApprovalApproved
		t.ApprovedBy = &approvedBy
		t.ApprovedAt = &now
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketApproved,
		TicketID: ticket.ID,
		Payload:  events.ApprovalPayload{ApprovedBy: approvedBy, ApprovedAt: *ticket.ApprovedAt},
	})
	return ticket, nil
}

// Reject moves a pending draft to REJECTED.
func (s *LifecycleService) Reject(ctx context.Context, ticketID, rejectedBy string) (*domain.Ticket, error) {
	ticket, err := s.transition(ctx, ticketID, stateRejected, func(t *domain.Ticket) {
		now := s.now()
		t.ApprovalStatus = domain.ApprovalRejected
		t.ApprovedBy = &rejectedBy
		t.ApprovedAt = &now
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketRejected,
		TicketID: ticket.ID,
		Payload:  events.ApprovalPayload{ApprovedBy: rejectedBy, ApprovedAt: *ticket.ApprovedAt},
	})
	return ticket, nil
}

// Reopen returns an approved or rejected (but unsent) ticket to PENDING,
// clearing the previous review.
func (s *LifecycleService) Reopen(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, statePending, func(t *domain.Ticket) {
		t.ApprovalStatus = domain.ApprovalPending
		t.ApprovedBy = nil
		t.ApprovedAt = nil
	})
}

// UpdateDraft replaces the draft response text on an unsent ticket. Editing
// an approved or rejected draft reopens the review.
func (s *LifecycleService) UpdateDraft(ctx context.Context, ticketID, draft string) (*domain.Ticket, error) {
	if strings.TrimSpace(draft) == "" {
		return nil, util.NewValidationError("draft response must not be empty", nil)
	}
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) error {
		if t.SentAt != nil {
			return invalidTransition(stateSent, statePending)
		}
		t.DraftResponse = &draft
		t.ApprovalStatus = domain.ApprovalPending
		t.ApprovedBy = nil
		t.ApprovedAt = nil
		return nil
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

// Send delivers the approved draft to the customer and marks the ticket
// sent. The whole step runs inside the per-ticket exclusive section so two
// racing sends cannot both deliver: the loser fails its state check before
// touching the deliverer. The sent marker is written only after the
// deliverer reports success; a failure rolls the step back and the ticket
// stays APPROVED for retry.
func (s *LifecycleService) Send(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var outbound collab.OutboundEmail
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) error {
		if from := stateOf(t); !canTransition(from, stateSent) {
			return invalidTransition(from, stateSent)
		}
		if t.DraftResponse == nil || *t.DraftResponse == "" {
			return util.NewValidationError("ticket has no draft response to send", nil)
		}

		subject := t.Subject
		if NormalizeSubject(subject) != "" && !hasReplyPrefix(subject) {
			subject = "Re: " + subject
		}
		inReplyTo := t.MessageID
		outbound = collab.OutboundEmail{
			To:        t.SenderEmail,
			Subject:   subject,
			Body:      *t.DraftResponse,
			InReplyTo: &inReplyTo,
		}
		if err := s.deliverer.Deliver(ctx, outbound); err != nil {
			s.logger.Error("delivery failed",
				zap.String("ticket_id", ticketID),
				zap.String("recipient", t.SenderEmail),
				zap.Error(err))
			return util.NewDeliveryFailed(err)
		}

		now := s.now()
		t.SlaBreached = IsBreached(now, t.SlaDeadline, nil)
		t.SentAt = &now
		return nil
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	message := &domain.TicketMessage{
		TicketID:    ticket.ID,
		SenderEmail: outbound.To,
		Subject:     outbound.Subject,
		Body:        outbound.Body,
		IsIncoming:  false,
		InReplyTo:   outbound.InReplyTo,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		s.logger.Warn("sent but failed to record outgoing message",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	s.publish(ctx, events.Event{
		Type:     events.EventResponseSent,
		TicketID: ticket.ID,
		Payload: events.ResponseSentPayload{
			SentAt:      *ticket.SentAt,
			Recipient:   ticket.SenderEmail,
			SlaBreached: ticket.SlaBreached,
		},
	})
	return ticket, nil
}

// Assign sets or clears the ticket's owner. A nil memberID unassigns.
// Assignment never touches the approval state machine.
func (s *LifecycleService) Assign(ctx context.Context, ticketID string, memberID *string) (*domain.Ticket, error) {
	if memberID != nil {
		member, err := s.members.GetByID(ctx, *memberID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, util.NewNotFound("team member", map[string]any{"member_id": *memberID})
			}
			return nil, err
		}
		if !member.Active {
			return nil, util.NewValidationError("team member is inactive",
				map[string]any{"member_id": *memberID})
		}
	}

	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) error {
		if memberID == nil {
			t.AssignedTo = nil
			t.AssignedAt = nil
			return nil
		}
		now := s.now()
		t.AssignedTo = memberID
		t.AssignedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Payload:  events.TicketAssignedPayload{MemberID: memberID},
	})
	return ticket, nil
}

// Get returns a ticket by id.
func (s *LifecycleService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

// Messages returns the ticket's conversation in chronological order.
func (s *LifecycleService) Messages(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	if _, err := s.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.messages.ListByTicket(ctx, ticketID)
}

// List returns tickets matching the filter.
func (s *LifecycleService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, filter)
}

// History returns every ticket from a sender, newest first.
func (s *LifecycleService) History(ctx context.Context, sender string) ([]domain.Ticket, error) {
	return s.tickets.ListBySender(ctx, sender)
}

// transition applies a guarded state change: the target must be reachable
// from the ticket's current state, checked and applied inside the exclusive
// section.
func (s *LifecycleService) transition(ctx context.Context, ticketID string, to lifecycleState, apply func(*domain.Ticket)) (*domain.Ticket, error) {
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) error {
		if from := stateOf(t); !canTransition(from, to) {
			return invalidTransition(from, to)
		}
		apply(t)
		return nil
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func hasReplyPrefix(subject string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:")
}
