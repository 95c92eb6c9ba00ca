package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/pkg/util"
)

// In-memory repository implementations. They back unit tests and let the
// service run without a configured Postgres DSN. Semantics mirror the
// postgres implementations: Mutate serializes per ticket, message creation
// dedupes on message_id, missing rows return pgx.ErrNoRows.

// MemoryTicketRepository is a map-backed TicketRepository.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
	locks   map[string]*sync.Mutex
}

// NewMemoryTicketRepository builds an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]*domain.Ticket),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tickets {
		if existing.MessageID == ticket.MessageID {
			return util.NewDuplicateMessage(ticket.MessageID)
		}
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	r.locks[ticket.ID] = &sync.Mutex{}
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

// Mutate applies fn under the ticket's own mutex, the in-memory equivalent
// of a row-level lock.
func (r *MemoryTicketRepository) Mutate(_ context.Context, id string, fn func(*domain.Ticket) error) (*domain.Ticket, error) {
	r.mu.RLock()
	lock, ok := r.locks[id]
	r.mu.RUnlock()
	if !ok {
		return nil, pgx.ErrNoRows
	}

	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	current := r.tickets[id]
	clone := *current
	r.mu.RUnlock()

	if err := fn(&clone); err != nil {
		return nil, err
	}
	clone.UpdatedAt = time.Now()

	r.mu.Lock()
	stored := clone
	r.tickets[id] = &stored
	r.mu.Unlock()

	result := clone
	return &result, nil
}

func (r *MemoryTicketRepository) FindByMessageID(_ context.Context, messageID string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ticket := range r.tickets {
		if ticket.MessageID == messageID {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryTicketRepository) FindByReferences(_ context.Context, refs []string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.Ticket
	for _, ticket := range r.tickets {
		for _, ref := range refs {
			if ticket.MessageID == ref || ticket.ThreadID == ref {
				if best == nil || ticket.ReceivedAt.After(best.ReceivedAt) {
					best = ticket
				}
			}
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	clone := *best
	return &clone, nil
}

func (r *MemoryTicketRepository) ListBySenderSince(_ context.Context, sender string, since time.Time) ([]domain.Ticket, error) {
	return r.filter(func(t *domain.Ticket) bool {
		return strings.EqualFold(t.SenderEmail, sender) && !t.ReceivedAt.Before(since)
	}), nil
}

func (r *MemoryTicketRepository) ListBySender(_ context.Context, sender string) ([]domain.Ticket, error) {
	return r.filter(func(t *domain.Ticket) bool {
		return strings.EqualFold(t.SenderEmail, sender)
	}), nil
}

func (r *MemoryTicketRepository) ListOpen(_ context.Context) ([]domain.Ticket, error) {
	return r.filter(func(t *domain.Ticket) bool { return t.Open() }), nil
}

func (r *MemoryTicketRepository) ListActive(_ context.Context) ([]domain.Ticket, error) {
	return r.filter(func(t *domain.Ticket) bool { return t.Active() }), nil
}

func (r *MemoryTicketRepository) ListUnprocessed(_ context.Context) ([]domain.Ticket, error) {
	return r.filter(func(t *domain.Ticket) bool { return !t.AIProcessed }), nil
}

func (r *MemoryTicketRepository) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	matches := r.filter(func(t *domain.Ticket) bool {
		if filter.SenderEmail != nil && !strings.EqualFold(t.SenderEmail, *filter.SenderEmail) {
			return false
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.ApprovalStatus) {
			return false
		}
		if filter.OpenOnly && !t.Open() {
			return false
		}
		if filter.Breached != nil && t.SlaBreached != *filter.Breached {
			return false
		}
		if filter.AssignedTo != nil {
			if t.AssignedTo == nil || *t.AssignedTo != *filter.AssignedTo {
				return false
			}
		}
		return true
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matches) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end], nil
}

func (r *MemoryTicketRepository) filter(pred func(*domain.Ticket) bool) []domain.Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if pred(ticket) {
			result = append(result, *ticket)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	return result
}

func containsStatus(statuses []domain.ApprovalStatus, status domain.ApprovalStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// MemoryTicketMessageRepository is a map-backed TicketMessageRepository.
type MemoryTicketMessageRepository struct {
	mu       sync.RWMutex
	messages []domain.TicketMessage
	byMsgID  map[string]string
}

// NewMemoryTicketMessageRepository builds an empty store.
func NewMemoryTicketMessageRepository() *MemoryTicketMessageRepository {
	return &MemoryTicketMessageRepository{byMsgID: make(map[string]string)}
}

func (r *MemoryTicketMessageRepository) Create(_ context.Context, msg *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.MessageID != nil {
		if _, exists := r.byMsgID[*msg.MessageID]; exists {
			return util.NewDuplicateMessage(*msg.MessageID)
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	r.messages = append(r.messages, *msg)
	if msg.MessageID != nil {
		r.byMsgID[*msg.MessageID] = msg.TicketID
	}
	return nil
}

func (r *MemoryTicketMessageRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.TicketMessage
	for _, msg := range r.messages {
		if msg.TicketID == ticketID {
			result = append(result, msg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryTicketMessageRepository) FindTicketIDByMessageID(_ context.Context, messageID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticketID, ok := r.byMsgID[messageID]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return ticketID, nil
}

// MemoryTeamMemberRepository is a map-backed TeamMemberRepository.
type MemoryTeamMemberRepository struct {
	mu      sync.RWMutex
	members map[string]domain.TeamMember
}

// NewMemoryTeamMemberRepository builds an empty store.
func NewMemoryTeamMemberRepository() *MemoryTeamMemberRepository {
	return &MemoryTeamMemberRepository{members: make(map[string]domain.TeamMember)}
}

func (r *MemoryTeamMemberRepository) Create(_ context.Context, member *domain.TeamMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	now := time.Now()
	member.CreatedAt = now
	member.UpdatedAt = now
	r.members[member.ID] = *member
	return nil
}

func (r *MemoryTeamMemberRepository) GetByID(_ context.Context, id string) (*domain.TeamMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	member, ok := r.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &member, nil
}

func (r *MemoryTeamMemberRepository) List(_ context.Context, activeOnly bool) ([]domain.TeamMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.TeamMember
	for _, member := range r.members {
		if activeOnly && !member.Active {
			continue
		}
		result = append(result, member)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// MemorySettingsRepository is a map-backed SettingsRepository.
type MemorySettingsRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySettingsRepository builds an empty store.
func NewMemorySettingsRepository() *MemorySettingsRepository {
	return &MemorySettingsRepository{values: make(map[string]string)}
}

func (r *MemorySettingsRepository) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	return value, ok, nil
}

func (r *MemorySettingsRepository) GetAll(_ context.Context, keys []string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := r.values[key]; ok {
			result[key] = value
		}
	}
	return result, nil
}

func (r *MemorySettingsRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}
