package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/collab"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/pkg/util"
)

type fakeMailbox struct {
	mu      sync.Mutex
	batches [][]domain.InboundEmail
	block   chan struct{}
}

func (m *fakeMailbox) PullUnread(ctx context.Context) ([]domain.InboundEmail, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.batches) == 0 {
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

type fakeClassifier struct {
	mu       sync.Mutex
	calls    int
	failFor  map[string]bool
	result   domain.AiResult
}

func (c *fakeClassifier) Classify(_ context.Context, input collab.ClassifyInput) (*domain.AiResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failFor[input.Subject] {
		return nil, errors.New("model timeout")
	}
	result := c.result
	return &result, nil
}

type ingestFixture struct {
	svc        *IngestService
	mailbox    *fakeMailbox
	classifier *fakeClassifier
	tickets    *repository.MemoryTicketRepository
	guard      persistence.InflightGuard
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	tickets := repository.NewMemoryTicketRepository()
	messages := repository.NewMemoryTicketMessageRepository()
	dispatcher := events.NewInMemoryDispatcher()
	logger := zap.NewNop()
	clock := fixedClock(baseTime.Add(time.Minute))

	sla := NewSlaService(SlaDependencies{
		TicketRepo:   tickets,
		SettingsRepo: repository.NewMemorySettingsRepository(),
		Logger:       logger,
		Now:          clock,
	})
	lifecycle := NewLifecycleService(LifecycleDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		MemberRepo:  repository.NewMemoryTeamMemberRepository(),
		Sla:         sla,
		Deliverer:   &fakeDeliverer{},
		Dispatcher:  dispatcher,
		Logger:      logger,
		Now:         clock,
	})
	correlator := NewCorrelator(CorrelatorDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Now:         clock,
	})

	mailbox := &fakeMailbox{}
	classifier := &fakeClassifier{
		failFor: map[string]bool{},
		result: domain.AiResult{
			Category:      domain.CategoryTechnical,
			Urgency:       domain.UrgencyMedium,
			Summary:       "summary",
			FixSteps:      "steps",
			DraftResponse: "Good day,\n\nDraft.\n\nSupport Team",
		},
	}
	guard := persistence.NewMemoryInflightGuard()

	svc := NewIngestService(IngestDependencies{
		Mailbox:    mailbox,
		Classifier: classifier,
		Correlator: correlator,
		Lifecycle:  lifecycle,
		TicketRepo: tickets,
		Guard:      guard,
		MailboxID:  "support-inbox",
		Logger:     logger,
		Now:        clock,
	})
	return &ingestFixture{svc: svc, mailbox: mailbox, classifier: classifier, tickets: tickets, guard: guard}
}

func TestFetchAndProcessFullPass(t *testing.T) {
	f := newIngestFixture(t)
	f.mailbox.batches = [][]domain.InboundEmail{{
		inbound("a@example.com", "Broken export", "<i1>", baseTime),
		inbound("b@example.com", "Invoice question", "<i2>", baseTime),
	}}

	report, err := f.svc.FetchAndProcess(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 2, report.NewTickets)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 0, report.Errors)

	unprocessed, err := f.tickets.ListUnprocessed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unprocessed)
}

func TestFetchAndProcessCountsDuplicates(t *testing.T) {
	f := newIngestFixture(t)
	f.mailbox.batches = [][]domain.InboundEmail{
		{inbound("a@example.com", "Broken export", "<i1>", baseTime)},
		{inbound("a@example.com", "Broken export", "<i1>", baseTime)},
	}

	ctx := context.Background()
	_, err := f.svc.FetchAndProcess(ctx)
	require.NoError(t, err)

	report, err := f.svc.FetchAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 0, report.NewTickets)

	open, err := f.tickets.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestFetchAndProcessClassifierFailureIsIsolated(t *testing.T) {
	f := newIngestFixture(t)
	f.classifier.failFor["Flaky one"] = true
	f.mailbox.batches = [][]domain.InboundEmail{{
		inbound("a@example.com", "Flaky one", "<i1>", baseTime),
		inbound("b@example.com", "Healthy one", "<i2>", baseTime),
	}}

	report, err := f.svc.FetchAndProcess(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Errors)

	// The failed ticket stays queued for the next pass.
	unprocessed, err := f.tickets.ListUnprocessed(context.Background())
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, "Flaky one", unprocessed[0].Subject)
}

func TestFetchAndProcessSingleFlight(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	// A pass is in flight: the marker is held.
	acquired, err := f.guard.TryAcquire(ctx, "support-inbox")
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = f.svc.FetchAndProcess(ctx)
	assert.True(t, util.HasCode(err, util.CodeIngestBusy))

	// Marker released: the next pass runs normally.
	require.NoError(t, f.guard.Release(ctx, "support-inbox"))
	_, err = f.svc.FetchAndProcess(ctx)
	require.NoError(t, err)
}

func TestFetchAndProcessReleasesGuardOnMailboxError(t *testing.T) {
	f := newIngestFixture(t)
	// No batches and a blocked channel closed immediately: simulate pull error
	// via a cancelled context instead.
	f.mailbox.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.FetchAndProcess(ctx)
	require.Error(t, err)

	// The guard must not stay wedged after the failure.
	acquired, err := f.guard.TryAcquire(context.Background(), "support-inbox")
	require.NoError(t, err)
	assert.True(t, acquired)
}
