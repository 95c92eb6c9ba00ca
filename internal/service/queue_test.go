package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
)

func queueTicket(id string, urgency *domain.Urgency, deadline *time.Time, receivedAt time.Time) domain.Ticket {
	return domain.Ticket{
		ID:             id,
		SenderEmail:    id + "@example.com",
		Subject:        id,
		ReceivedAt:     receivedAt,
		MessageID:      "<" + id + ">",
		Urgency:        urgency,
		SlaDeadline:    deadline,
		ApprovalStatus: domain.ApprovalPending,
	}
}

func collect(seq func(yield func(domain.Ticket) bool)) []string {
	var ids []string
	for t := range seq {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestBuildQueueOrdering(t *testing.T) {
	now := baseTime.Add(6 * time.Hour)
	high, medium, low := domain.UrgencyHigh, domain.UrgencyMedium, domain.UrgencyLow

	breachedAt := baseTime.Add(4 * time.Hour)        // past
	atRiskAt := now.Add(time.Hour)                   // inside 2h window
	safeSoon := now.Add(5 * time.Hour)               // on track, earlier deadline
	safeLater := now.Add(10 * time.Hour)             // on track, later deadline
	breachedEarlier := baseTime.Add(2 * time.Hour)   // breached, earlier deadline

	tickets := []domain.Ticket{
		queueTicket("safe-later", &low, &safeLater, baseTime),
		queueTicket("no-deadline-old", nil, nil, baseTime.Add(-time.Hour)),
		queueTicket("at-risk", &medium, &atRiskAt, baseTime),
		queueTicket("breached-late", &high, &breachedAt, baseTime),
		queueTicket("safe-soon", &low, &safeSoon, baseTime),
		queueTicket("breached-early", &high, &breachedEarlier, baseTime),
		queueTicket("no-deadline-new", nil, nil, baseTime),
	}

	got := collect(BuildQueue(tickets, now, 0))
	want := []string{
		"breached-early", // breached bucket, earlier deadline first
		"breached-late",
		"at-risk",
		"safe-soon", // on-track, same urgency, earlier deadline
		"safe-later",
		"no-deadline-old", // deadline-less last, oldest received first
		"no-deadline-new",
	}
	assert.Equal(t, want, got)
}

func TestBuildQueueUrgencyBeforeDeadlineWithinBucket(t *testing.T) {
	now := baseTime
	high, low := domain.UrgencyHigh, domain.UrgencyLow

	lowSoon := now.Add(3 * time.Hour)
	highLater := now.Add(4 * time.Hour)
	tickets := []domain.Ticket{
		queueTicket("low-soon", &low, &lowSoon, baseTime),
		queueTicket("high-later", &high, &highLater, baseTime),
	}

	got := collect(BuildQueue(tickets, now, 0))
	assert.Equal(t, []string{"high-later", "low-soon"}, got)
}

func TestBuildQueueLimit(t *testing.T) {
	now := baseTime
	high := domain.UrgencyHigh
	d1, d2, d3 := now.Add(1*time.Hour), now.Add(2*time.Hour), now.Add(3*time.Hour)
	tickets := []domain.Ticket{
		queueTicket("c", &high, &d3, baseTime),
		queueTicket("a", &high, &d1, baseTime),
		queueTicket("b", &high, &d2, baseTime),
	}

	got := collect(BuildQueue(tickets, now, 2))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestBuildQueueIsRestartableAndDoesNotMutateInput(t *testing.T) {
	now := baseTime
	high, low := domain.UrgencyHigh, domain.UrgencyLow
	d1, d2 := now.Add(time.Hour), now.Add(2*time.Hour)
	tickets := []domain.Ticket{
		queueTicket("second", &low, &d2, baseTime),
		queueTicket("first", &high, &d1, baseTime),
	}

	seq := BuildQueue(tickets, now, 0)
	assert.Equal(t, []string{"first", "second"}, collect(seq))
	assert.Equal(t, []string{"first", "second"}, collect(seq), "sequence can be ranged twice")

	assert.Equal(t, "second", tickets[0].ID, "input order untouched")

	// Early break stops the yield without affecting a later pass.
	var firstOnly []string
	for ticket := range seq {
		firstOnly = append(firstOnly, ticket.ID)
		break
	}
	assert.Equal(t, []string{"first"}, firstOnly)
	assert.Equal(t, []string{"first", "second"}, collect(seq))
}

func TestQueueServiceNext(t *testing.T) {
	tickets := repository.NewMemoryTicketRepository()
	now := baseTime.Add(6 * time.Hour)
	svc := NewQueueService(QueueDependencies{
		TicketRepo: tickets,
		Logger:     zap.NewNop(),
		Now:        fixedClock(now),
	})
	ctx := context.Background()

	high := domain.UrgencyHigh
	breached := baseTime.Add(4 * time.Hour)
	require.NoError(t, tickets.Create(ctx, &domain.Ticket{
		SenderEmail: "a@x.com", Subject: "s1", ReceivedAt: baseTime, MessageID: "<q1>",
		Urgency: &high, SlaDeadline: &breached, ApprovalStatus: domain.ApprovalPending,
	}))

	// Sent tickets never appear in the queue.
	sentAt := baseTime.Add(time.Hour)
	require.NoError(t, tickets.Create(ctx, &domain.Ticket{
		SenderEmail: "b@x.com", Subject: "s2", ReceivedAt: baseTime, MessageID: "<q2>",
		ApprovalStatus: domain.ApprovalApproved, SentAt: &sentAt,
	}))

	queue, err := svc.Next(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "<q1>", queue[0].MessageID)
	assert.True(t, queue[0].SlaBreached || IsBreached(now, queue[0].SlaDeadline, nil))
}
