package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
)

func newCorrelatorFixture(t *testing.T) (*Correlator, *repository.MemoryTicketRepository, *repository.MemoryTicketMessageRepository) {
	t.Helper()
	tickets := repository.NewMemoryTicketRepository()
	messages := repository.NewMemoryTicketMessageRepository()
	correlator := NewCorrelator(CorrelatorDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      zap.NewNop(),
		Now:         fixedClock(baseTime),
	})
	return correlator, tickets, messages
}

func inbound(sender, subject, messageID string, receivedAt time.Time) domain.InboundEmail {
	return domain.InboundEmail{
		SenderEmail: sender,
		Subject:     subject,
		Body:        "body of " + messageID,
		MessageID:   messageID,
		ReceivedAt:  receivedAt,
	}
}

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Cannot log in", "cannot log in"},
		{"reply prefix", "Re: Cannot log in", "cannot log in"},
		{"forward prefix", "Fwd: Cannot log in", "cannot log in"},
		{"stacked prefixes", "RE: FWD: re: Cannot log in", "cannot log in"},
		{"whitespace", "  Re:   Cannot log in  ", "cannot log in"},
		{"empty", "", ""},
		{"prefix only", "Re:", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSubject(tt.input))
		})
	}
}

func TestBestCandidateNewestWins(t *testing.T) {
	older := domain.Ticket{ID: "old", Subject: "Login broken", ReceivedAt: baseTime.Add(-48 * time.Hour)}
	newer := domain.Ticket{ID: "new", Subject: "Re: Login broken", ReceivedAt: baseTime.Add(-time.Hour)}
	other := domain.Ticket{ID: "other", Subject: "Billing question", ReceivedAt: baseTime}

	msg := inbound("c@example.com", "RE: login broken", "<x>", baseTime)
	best := bestCandidate([]domain.Ticket{older, other, newer}, msg)
	require.NotNil(t, best)
	assert.Equal(t, "new", best.ID)
}

func TestBestCandidateEmptySubjectNeverMatches(t *testing.T) {
	candidates := []domain.Ticket{{ID: "t", Subject: "", ReceivedAt: baseTime}}
	msg := inbound("c@example.com", "Re:", "<x>", baseTime)
	assert.Nil(t, bestCandidate(candidates, msg))
}

func TestCorrelateOpensNewTicket(t *testing.T) {
	correlator, tickets, messages := newCorrelatorFixture(t)
	ctx := context.Background()

	result, err := correlator.Correlate(ctx, inbound("c@example.com", "Help", "<m1>", baseTime))
	require.NoError(t, err)
	assert.True(t, result.IsNew)
	assert.False(t, result.Duplicate)

	ticket, err := tickets.GetByID(ctx, result.TicketID)
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", ticket.SenderEmail)
	assert.Equal(t, domain.ApprovalPending, ticket.ApprovalStatus)
	assert.False(t, ticket.AIProcessed)

	msgs, err := messages.ListByTicket(ctx, result.TicketID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsIncoming)
}

func TestCorrelateDuplicateMessageIsNoOp(t *testing.T) {
	correlator, tickets, messages := newCorrelatorFixture(t)
	ctx := context.Background()

	first, err := correlator.Correlate(ctx, inbound("c@example.com", "Help", "<m1>", baseTime))
	require.NoError(t, err)

	replay, err := correlator.Correlate(ctx, inbound("c@example.com", "Help", "<m1>", baseTime))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.TicketID, replay.TicketID)

	open, err := tickets.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	msgs, err := messages.ListByTicket(ctx, first.TicketID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestCorrelateFollowUpByReference(t *testing.T) {
	correlator, tickets, messages := newCorrelatorFixture(t)
	ctx := context.Background()

	first, err := correlator.Correlate(ctx, inbound("c@example.com", "Help", "<m1>", baseTime))
	require.NoError(t, err)

	// Mark processed and approved so the reset is observable.
	approver := "agent@desk"
	approvedAt := baseTime.Add(time.Hour)
	_, err = tickets.Mutate(ctx, first.TicketID, func(ticket *domain.Ticket) error {
		ticket.AIProcessed = true
		ticket.ApprovalStatus = domain.ApprovalApproved
		ticket.ApprovedBy = &approver
		ticket.ApprovedAt = &approvedAt
		return nil
	})
	require.NoError(t, err)

	inReplyTo := "<m1>"
	followUp := domain.InboundEmail{
		SenderEmail: "c@example.com",
		Subject:     "Re: Help",
		Body:        "still broken",
		MessageID:   "<m2>",
		InReplyTo:   &inReplyTo,
		ReceivedAt:  baseTime.Add(2 * time.Hour),
	}
	result, err := correlator.Correlate(ctx, followUp)
	require.NoError(t, err)
	assert.False(t, result.IsNew)
	assert.Equal(t, first.TicketID, result.TicketID)

	ticket, err := tickets.GetByID(ctx, first.TicketID)
	require.NoError(t, err)
	assert.False(t, ticket.AIProcessed, "follow-up reopens AI processing")
	assert.Equal(t, domain.ApprovalPending, ticket.ApprovalStatus)
	assert.Nil(t, ticket.ApprovedBy)
	assert.Equal(t, "<m2>", ticket.MessageID)

	msgs, err := messages.ListByTicket(ctx, first.TicketID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestCorrelateSubjectMatchWithinLookback(t *testing.T) {
	correlator, _, _ := newCorrelatorFixture(t)
	ctx := context.Background()

	first, err := correlator.Correlate(ctx, inbound("c@example.com", "Printer on fire", "<m1>", baseTime))
	require.NoError(t, err)

	// No reference headers, same sender, normalized subject matches.
	result, err := correlator.Correlate(ctx, inbound("c@example.com", "RE: printer on fire", "<m2>", baseTime.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.False(t, result.IsNew)
	assert.Equal(t, first.TicketID, result.TicketID)
}

func TestCorrelateSubjectMatchOutsideLookbackOpensNew(t *testing.T) {
	correlator, _, _ := newCorrelatorFixture(t)
	ctx := context.Background()

	first, err := correlator.Correlate(ctx, inbound("c@example.com", "Printer on fire", "<m1>", baseTime))
	require.NoError(t, err)

	late := inbound("c@example.com", "Re: Printer on fire", "<m2>", baseTime.Add(SubjectLookback+time.Hour))
	result, err := correlator.Correlate(ctx, late)
	require.NoError(t, err)
	assert.True(t, result.IsNew)
	assert.NotEqual(t, first.TicketID, result.TicketID)
}

func TestCorrelateDifferentSenderOpensNew(t *testing.T) {
	correlator, _, _ := newCorrelatorFixture(t)
	ctx := context.Background()

	first, err := correlator.Correlate(ctx, inbound("a@example.com", "Same subject", "<m1>", baseTime))
	require.NoError(t, err)

	result, err := correlator.Correlate(ctx, inbound("b@example.com", "Same subject", "<m2>", baseTime.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, result.IsNew)
	assert.NotEqual(t, first.TicketID, result.TicketID)
}
