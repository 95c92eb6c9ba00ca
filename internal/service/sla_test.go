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

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newSlaFixture(t *testing.T, now time.Time) (*SlaService, *repository.MemoryTicketRepository, *repository.MemorySettingsRepository) {
	t.Helper()
	tickets := repository.NewMemoryTicketRepository()
	settings := repository.NewMemorySettingsRepository()
	svc := NewSlaService(SlaDependencies{
		TicketRepo:   tickets,
		SettingsRepo: settings,
		Dispatcher:   events.NewInMemoryDispatcher(),
		Logger:       zap.NewNop(),
		Now:          fixedClock(now),
	})
	return svc, tickets, settings
}

func TestComputeDeadline(t *testing.T) {
	policy := domain.DefaultSlaPolicy()

	tests := []struct {
		name    string
		urgency domain.Urgency
		want    time.Time
	}{
		{"high gets 4 hours", domain.UrgencyHigh, baseTime.Add(4 * time.Hour)},
		{"medium gets 8 hours", domain.UrgencyMedium, baseTime.Add(8 * time.Hour)},
		{"low gets 24 hours", domain.UrgencyLow, baseTime.Add(24 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDeadline(tt.urgency, baseTime, policy)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestIsBreached(t *testing.T) {
	deadline := baseTime.Add(4 * time.Hour)
	sent := baseTime.Add(time.Hour)

	tests := []struct {
		name     string
		now      time.Time
		deadline *time.Time
		sentAt   *time.Time
		want     bool
	}{
		{"one minute before deadline", deadline.Add(-time.Minute), &deadline, nil, false},
		{"exactly at deadline", deadline, &deadline, nil, false},
		{"one minute past deadline", deadline.Add(time.Minute), &deadline, nil, true},
		{"no deadline never breaches", deadline.Add(48 * time.Hour), nil, nil, false},
		{"sent ticket never breaches", deadline.Add(time.Hour), &deadline, &sent, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBreached(tt.now, tt.deadline, tt.sentAt))
		})
	}
}

func TestIsAtRisk(t *testing.T) {
	deadline := baseTime.Add(4 * time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before window", deadline.Add(-3 * time.Hour), false},
		{"just inside window", deadline.Add(-AtRiskWindow).Add(time.Minute), true},
		{"exactly at window edge", deadline.Add(-AtRiskWindow), true},
		{"just outside window", deadline.Add(-AtRiskWindow).Add(-time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAtRisk(tt.now, &deadline, nil))
		})
	}

	t.Run("breached ticket is not merely at risk", func(t *testing.T) {
		assert.False(t, IsAtRisk(deadline.Add(time.Minute), &deadline, nil))
		assert.True(t, IsBreached(deadline.Add(time.Minute), &deadline, nil))
	})
}

func TestPolicyReadsSettingsFresh(t *testing.T) {
	svc, _, settings := newSlaFixture(t, baseTime)
	ctx := context.Background()

	policy, err := svc.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSlaHoursHigh, policy.HighHours)

	require.NoError(t, settings.Set(ctx, "sla_hours_high", "2"))

	policy, err = svc.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, policy.HighHours)
	assert.Equal(t, domain.DefaultSlaHoursMedium, policy.MediumHours)
}

func TestRefreshAllRecomputesAndCountsChanges(t *testing.T) {
	now := baseTime.Add(5 * time.Hour)
	svc, tickets, _ := newSlaFixture(t, now)
	ctx := context.Background()

	high := domain.UrgencyHigh
	staleDeadline := baseTime.Add(4 * time.Hour)
	require.NoError(t, tickets.Create(ctx, &domain.Ticket{
		SenderEmail:    "a@example.com",
		Subject:        "prod down",
		ReceivedAt:     baseTime,
		MessageID:      "<m1>",
		Urgency:        &high,
		AIProcessed:    true,
		ApprovalStatus: domain.ApprovalPending,
		SlaDeadline:    &staleDeadline,
		SlaBreached:    false,
	}))

	// Unprocessed ticket has no urgency, nothing to recompute.
	require.NoError(t, tickets.Create(ctx, &domain.Ticket{
		SenderEmail:    "b@example.com",
		Subject:        "question",
		ReceivedAt:     baseTime,
		MessageID:      "<m2>",
		ApprovalStatus: domain.ApprovalPending,
	}))

	updated, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	open, err := tickets.ListOpen(ctx)
	require.NoError(t, err)
	for _, ticket := range open {
		if ticket.MessageID == "<m1>" {
			assert.True(t, ticket.SlaBreached)
		}
	}

	// Second pass is a no-op.
	updated, err = svc.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestRefreshAllPublishesBreachEventOnce(t *testing.T) {
	now := baseTime.Add(5 * time.Hour)
	tickets := repository.NewMemoryTicketRepository()
	settings := repository.NewMemorySettingsRepository()
	dispatcher := events.NewInMemoryDispatcher()

	var breaches int
	dispatcher.Subscribe(events.EventSlaBreached, func(context.Context, events.Event) error {
		breaches++
		return nil
	})

	svc := NewSlaService(SlaDependencies{
		TicketRepo:   tickets,
		SettingsRepo: settings,
		Dispatcher:   dispatcher,
		Logger:       zap.NewNop(),
		Now:          fixedClock(now),
	})

	ctx := context.Background()
	high := domain.UrgencyHigh
	deadline := baseTime.Add(4 * time.Hour)
	require.NoError(t, tickets.Create(ctx, &domain.Ticket{
		SenderEmail:    "a@example.com",
		Subject:        "help",
		ReceivedAt:     baseTime,
		MessageID:      "<m1>",
		Urgency:        &high,
		AIProcessed:    true,
		ApprovalStatus: domain.ApprovalPending,
		SlaDeadline:    &deadline,
	}))

	_, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	_, err = svc.RefreshAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, breaches)
}

func TestSummaryBuckets(t *testing.T) {
	now := baseTime.Add(5 * time.Hour)
	svc, tickets, _ := newSlaFixture(t, now)
	ctx := context.Background()

	high, medium, low := domain.UrgencyHigh, domain.UrgencyMedium, domain.UrgencyLow
	breachedDeadline := baseTime.Add(4 * time.Hour)
	atRiskDeadline := now.Add(time.Hour)
	safeDeadline := now.Add(20 * time.Hour)

	for _, ticket := range []*domain.Ticket{
		{SenderEmail: "a@x.com", Subject: "s1", ReceivedAt: baseTime, MessageID: "<s1>", Urgency: &high, SlaDeadline: &breachedDeadline, ApprovalStatus: domain.ApprovalPending},
		{SenderEmail: "b@x.com", Subject: "s2", ReceivedAt: baseTime, MessageID: "<s2>", Urgency: &medium, SlaDeadline: &atRiskDeadline, ApprovalStatus: domain.ApprovalPending},
		{SenderEmail: "c@x.com", Subject: "s3", ReceivedAt: baseTime, MessageID: "<s3>", Urgency: &low, SlaDeadline: &safeDeadline, ApprovalStatus: domain.ApprovalPending},
	} {
		require.NoError(t, tickets.Create(ctx, ticket))
	}

	// Rejected tickets drop out of the active view.
	rejected := &domain.Ticket{SenderEmail: "d@x.com", Subject: "s4", ReceivedAt: baseTime, MessageID: "<s4>", ApprovalStatus: domain.ApprovalRejected}
	require.NoError(t, tickets.Create(ctx, rejected))

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalActive)
	assert.Equal(t, 1, summary.Breached)
	assert.Equal(t, 1, summary.AtRisk)
	assert.Equal(t, 1, summary.OnTrack)
	assert.Equal(t, 1, summary.ByUrgency.High)
	assert.Equal(t, 1, summary.ByUrgency.Medium)
	assert.Equal(t, 1, summary.ByUrgency.Low)
}
