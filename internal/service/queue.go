package service

import (
	"context"
	"iter"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
)

// queueRank buckets open tickets for triage ordering. Lower sorts first.
const (
	rankBreached = iota
	rankAtRisk
	rankOnTrack
)

func rankOf(t *domain.Ticket, now time.Time) int {
	switch {
	case IsBreached(now, t.SlaDeadline, t.SentAt):
		return rankBreached
	case IsAtRisk(now, t.SlaDeadline, t.SentAt):
		return rankAtRisk
	}
	return rankOnTrack
}

// QueueLess is the triage ordering: breached before at-risk before on-track,
// then higher urgency, then earlier deadline; tickets with no deadline sort
// last within their bucket, oldest received first. Pure, so the policy is
// testable against fixed clocks.
func QueueLess(a, b *domain.Ticket, now time.Time) bool {
	ra, rb := rankOf(a, now), rankOf(b, now)
	if ra != rb {
		return ra < rb
	}
	ua, ub := domain.UrgencyRank(a.Urgency), domain.UrgencyRank(b.Urgency)
	if ua != ub {
		return ua > ub
	}
	switch {
	case a.SlaDeadline != nil && b.SlaDeadline != nil:
		if !a.SlaDeadline.Equal(*b.SlaDeadline) {
			return a.SlaDeadline.Before(*b.SlaDeadline)
		}
	case a.SlaDeadline != nil:
		return true
	case b.SlaDeadline != nil:
		return false
	}
	return a.ReceivedAt.Before(b.ReceivedAt)
}

// BuildQueue orders tickets for triage and yields them lazily. The input is
// not mutated; the returned sequence is finite and can be ranged over more
// than once. limit <= 0 means no limit.
func BuildQueue(tickets []domain.Ticket, now time.Time, limit int) iter.Seq[domain.Ticket] {
	ordered := make([]domain.Ticket, len(tickets))
	copy(ordered, tickets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return QueueLess(&ordered[i], &ordered[j], now)
	})
	if limit > 0 && limit < len(ordered) {
		ordered = ordered[:limit]
	}
	return func(yield func(domain.Ticket) bool) {
		for _, t := range ordered {
			if !yield(t) {
				return
			}
		}
	}
}

// QueueService serves the triage queue over the open-ticket set.
type QueueService struct {
	tickets repository.TicketRepository
	logger  *zap.Logger
	now     func() time.Time
}

// QueueDependencies bundles collaborators for the QueueService.
type QueueDependencies struct {
	TicketRepo repository.TicketRepository
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewQueueService constructs the queue service.
func NewQueueService(deps QueueDependencies) *QueueService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &QueueService{tickets: deps.TicketRepo, logger: deps.Logger, now: now}
}

// Next returns up to limit open tickets in triage order.
func (s *QueueService) Next(ctx context.Context, limit int) ([]domain.Ticket, error) {
	open, err := s.tickets.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	queue := make([]domain.Ticket, 0, len(open))
	for t := range BuildQueue(open, now, limit) {
		queue = append(queue, t)
	}
	return queue, nil
}
