package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
)

// AtRiskWindow is how close to the deadline an unsent ticket counts as
// at-risk. Fixed across urgency tiers; see DESIGN.md for the open question
// about scaling it per tier.
const AtRiskWindow = 2 * time.Hour

// Settings keys for the stored SLA policy.
const (
	settingSlaHoursHigh   = "sla_hours_high"
	settingSlaHoursMedium = "sla_hours_medium"
	settingSlaHoursLow    = "sla_hours_low"
)

// ComputeDeadline derives the response deadline for an urgency level.
func ComputeDeadline(urgency domain.Urgency, receivedAt time.Time, policy domain.SlaPolicy) time.Time {
	return receivedAt.Add(policy.Budget(urgency))
}

// IsBreached reports whether the deadline passed with no response sent.
// Once sent, breach status freezes: a late send is reported historically,
// never as a live breach.
func IsBreached(now time.Time, deadline *time.Time, sentAt *time.Time) bool {
	if deadline == nil || sentAt != nil {
		return false
	}
	return now.After(*deadline)
}

// IsAtRisk reports whether the deadline is within AtRiskWindow of now, not
// yet sent and not yet breached. Breached takes precedence.
func IsAtRisk(now time.Time, deadline *time.Time, sentAt *time.Time) bool {
	if deadline == nil || sentAt != nil {
		return false
	}
	if IsBreached(now, deadline, sentAt) {
		return false
	}
	return !deadline.After(now.Add(AtRiskWindow))
}

// SlaSummary aggregates deadline health over active tickets.
type SlaSummary struct {
	TotalActive int `json:"total_active"`
	Breached    int `json:"breached"`
	AtRisk      int `json:"at_risk"`
	OnTrack     int `json:"on_track"`
	ByUrgency   struct {
		High   int `json:"high"`
		Medium int `json:"medium"`
		Low    int `json:"low"`
	} `json:"by_urgency"`
}

// SlaService computes deadlines and keeps breach flags fresh.
type SlaService struct {
	tickets    repository.TicketRepository
	settings   repository.SettingsRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	defaults   domain.SlaPolicy
	now        func() time.Time
}

// SlaDependencies bundles collaborators for SlaService.
type SlaDependencies struct {
	TicketRepo   repository.TicketRepository
	SettingsRepo repository.SettingsRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Defaults     domain.SlaPolicy
	Now          func() time.Time
}

// NewSlaService constructs the service.
func NewSlaService(deps SlaDependencies) *SlaService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	defaults := deps.Defaults
	if defaults == (domain.SlaPolicy{}) {
		defaults = domain.DefaultSlaPolicy()
	}
	return &SlaService{
		tickets:    deps.TicketRepo,
		settings:   deps.SettingsRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		defaults:   defaults,
		now:        now,
	}
}

// Policy reads the live SLA policy from settings, falling back to defaults
// per key. It is read on every deadline computation, never cached, so a
// settings update applies immediately to subsequent computations.
func (s *SlaService) Policy(ctx context.Context) (domain.SlaPolicy, error) {
	stored, err := s.settings.GetAll(ctx, []string{settingSlaHoursHigh, settingSlaHoursMedium, settingSlaHoursLow})
	if err != nil {
		return domain.SlaPolicy{}, err
	}
	policy := s.defaults
	if v, ok := stored[settingSlaHoursHigh]; ok {
		if hours, err := strconv.Atoi(v); err == nil {
			policy.HighHours = hours
		}
	}
	if v, ok := stored[settingSlaHoursMedium]; ok {
		if hours, err := strconv.Atoi(v); err == nil {
			policy.MediumHours = hours
		}
	}
	if v, ok := stored[settingSlaHoursLow]; ok {
		if hours, err := strconv.Atoi(v); err == nil {
			policy.LowHours = hours
		}
	}
	return policy, nil
}

// DeadlineFor computes the deadline for a ticket under the live policy.
func (s *SlaService) DeadlineFor(ctx context.Context, urgency domain.Urgency, receivedAt time.Time) (time.Time, error) {
	policy, err := s.Policy(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return ComputeDeadline(urgency, receivedAt, policy), nil
}

// RefreshAll recomputes deadline and breach flags for every active ticket in
// one pass. Stored deadlines are rewritten to the live policy only here;
// normal reads never rewrite them. Returns the number of tickets updated.
func (s *SlaService) RefreshAll(ctx context.Context) (int, error) {
	policy, err := s.Policy(ctx)
	if err != nil {
		return 0, err
	}
	active, err := s.tickets.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	updated := 0
	for i := range active {
		ticket := &active[i]
		if ticket.Urgency == nil {
			continue
		}

		deadline := ComputeDeadline(*ticket.Urgency, ticket.ReceivedAt, policy)
		breached := IsBreached(now, &deadline, ticket.SentAt)

		changed := ticket.SlaDeadline == nil || !ticket.SlaDeadline.Equal(deadline) || ticket.SlaBreached != breached
		if !changed {
			continue
		}

		newlyBreached := breached && !ticket.SlaBreached
		fresh, err := s.tickets.Mutate(ctx, ticket.ID, func(t *domain.Ticket) error {
			if t.Urgency == nil {
				return nil
			}
			d := ComputeDeadline(*t.Urgency, t.ReceivedAt, policy)
			t.SlaDeadline = &d
			t.SlaBreached = IsBreached(now, &d, t.SentAt)
			return nil
		})
		if err != nil {
			s.logger.Warn("sla refresh failed for ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		updated++

		if newlyBreached && fresh.SlaDeadline != nil && fresh.Urgency != nil {
			s.publish(ctx, events.Event{
				Type:     events.EventSlaBreached,
				TicketID: fresh.ID,
				Payload: events.SlaBreachedPayload{
					Deadline: *fresh.SlaDeadline,
					Urgency:  *fresh.Urgency,
				},
			})
		}
	}
	return updated, nil
}

// Summary aggregates current SLA health for the dashboard widget.
func (s *SlaService) Summary(ctx context.Context) (*SlaSummary, error) {
	active, err := s.tickets.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &SlaSummary{TotalActive: len(active)}
	for i := range active {
		ticket := &active[i]
		switch {
		case IsBreached(now, ticket.SlaDeadline, ticket.SentAt):
			summary.Breached++
		case IsAtRisk(now, ticket.SlaDeadline, ticket.SentAt):
			summary.AtRisk++
		default:
			summary.OnTrack++
		}
		if ticket.Urgency != nil {
			switch *ticket.Urgency {
			case domain.UrgencyHigh:
				summary.ByUrgency.High++
			case domain.UrgencyMedium:
				summary.ByUrgency.Medium++
			case domain.UrgencyLow:
				summary.ByUrgency.Low++
			}
		}
	}
	return summary, nil
}

func (s *SlaService) publish(ctx context.Context, event events.Event) {
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
