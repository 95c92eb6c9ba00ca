package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/pkg/util"
)

// TicketFilter captures listing parameters for the API surface.
type TicketFilter struct {
	SenderEmail *string
	Statuses    []domain.ApprovalStatus
	Categories  []domain.Category
	Urgencies   []domain.Urgency
	Breached    *bool
	AssignedTo  *string
	OpenOnly    bool
	SearchTerm  *string
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
//
// Mutate is the per-ticket exclusive section required by the lifecycle
// service: the callback observes the current row under a row-level lock and
// its changes are written back atomically, so concurrent transitions against
// the same id serialize.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Mutate(ctx context.Context, id string, fn func(*domain.Ticket) error) (*domain.Ticket, error)
	FindByMessageID(ctx context.Context, messageID string) (*domain.Ticket, error)
	FindByReferences(ctx context.Context, refs []string) (*domain.Ticket, error)
	ListBySenderSince(ctx context.Context, sender string, since time.Time) ([]domain.Ticket, error)
	ListBySender(ctx context.Context, sender string) ([]domain.Ticket, error)
	ListOpen(ctx context.Context) ([]domain.Ticket, error)
	ListActive(ctx context.Context) ([]domain.Ticket, error)
	ListUnprocessed(ctx context.Context) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

const ticketColumns = `id, sender_email, subject, received_at, thread_id, message_id, in_reply_to,
               category, urgency, summary, fix_steps, draft_response, ai_processed,
               approval_status, approved_by, approved_at, sent_at,
               assigned_to, assigned_at, sla_deadline, sla_breached, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (sender_email, subject, received_at, thread_id, message_id, in_reply_to,
                             category, urgency, summary, fix_steps, draft_response, ai_processed,
                             approval_status, sla_deadline, sla_breached)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.SenderEmail,
		ticket.Subject,
		ticket.ReceivedAt,
		ticket.ThreadID,
		ticket.MessageID,
		ticket.InReplyTo,
		ticket.Category,
		ticket.Urgency,
		ticket.Summary,
		ticket.FixSteps,
		ticket.DraftResponse,
		ticket.AIProcessed,
		ticket.ApprovalStatus,
		ticket.SlaDeadline,
		ticket.SlaBreached,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		// Unique violation on message_id means a concurrent delivery of the
		// same message already created this ticket.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return util.NewDuplicateMessage(ticket.MessageID)
		}
		return err
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicketRow(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) FindByMessageID(ctx context.Context, messageID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE message_id=$1`
	return scanTicketRow(r.pool.QueryRow(ctx, query, messageID))
}

func (r *ticketRepository) FindByReferences(ctx context.Context, refs []string) (*domain.Ticket, error) {
	if len(refs) == 0 {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE message_id = ANY($1) OR thread_id = ANY($1)
        ORDER BY received_at DESC LIMIT 1`
	return scanTicketRow(r.pool.QueryRow(ctx, query, refs))
}

// Mutate runs fn against the row under SELECT ... FOR UPDATE and writes the
// result back in the same transaction.
func (r *ticketRepository) Mutate(ctx context.Context, id string, fn func(*domain.Ticket) error) (*domain.Ticket, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	ticket, err := scanTicketRow(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := fn(ticket); err != nil {
		return nil, err
	}

	const update = `
        UPDATE tickets SET category=$1, urgency=$2, summary=$3, fix_steps=$4, draft_response=$5,
            ai_processed=$6, approval_status=$7, approved_by=$8, approved_at=$9, sent_at=$10,
            assigned_to=$11, assigned_at=$12, sla_deadline=$13, sla_breached=$14,
            message_id=$15, in_reply_to=$16, updated_at=NOW()
        WHERE id=$17`
	cmd, err := tx.Exec(ctx, update,
		ticket.Category,
		ticket.Urgency,
		ticket.Summary,
		ticket.FixSteps,
		ticket.DraftResponse,
		ticket.AIProcessed,
		ticket.ApprovalStatus,
		ticket.ApprovedBy,
		ticket.ApprovedAt,
		ticket.SentAt,
		ticket.AssignedTo,
		ticket.AssignedAt,
		ticket.SlaDeadline,
		ticket.SlaBreached,
		ticket.MessageID,
		ticket.InReplyTo,
		ticket.ID,
	)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, pgx.ErrNoRows
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListBySenderSince(ctx context.Context, sender string, since time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE sender_email=$1 AND received_at >= $2
        ORDER BY received_at DESC`
	return r.list(ctx, query, sender, since)
}

func (r *ticketRepository) ListBySender(ctx context.Context, sender string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE sender_email=$1 ORDER BY received_at DESC`
	return r.list(ctx, query, sender)
}

func (r *ticketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE sent_at IS NULL`
	return r.list(ctx, query)
}

func (r *ticketRepository) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE sent_at IS NULL AND approval_status <> 'REJECTED'`
	return r.list(ctx, query)
}

func (r *ticketRepository) ListUnprocessed(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE ai_processed = FALSE ORDER BY received_at ASC`
	return r.list(ctx, query)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.SenderEmail != nil {
		args = append(args, *filter.SenderEmail)
		clauses = append(clauses, fmt.Sprintf("sender_email=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("approval_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, cat := range filter.Categories {
			args = append(args, cat)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Urgencies) > 0 {
		placeholders := make([]string, len(filter.Urgencies))
		for i, urg := range filter.Urgencies {
			args = append(args, urg)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("urgency IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Breached != nil {
		args = append(args, *filter.Breached)
		clauses = append(clauses, fmt.Sprintf("sla_breached=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.OpenOnly {
		clauses = append(clauses, "sent_at IS NULL")
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(sender_email) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY received_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	return r.list(ctx, query, args...)
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicketRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.SenderEmail,
		&ticket.Subject,
		&ticket.ReceivedAt,
		&ticket.ThreadID,
		&ticket.MessageID,
		&ticket.InReplyTo,
		&ticket.Category,
		&ticket.Urgency,
		&ticket.Summary,
		&ticket.FixSteps,
		&ticket.DraftResponse,
		&ticket.AIProcessed,
		&ticket.ApprovalStatus,
		&ticket.ApprovedBy,
		&ticket.ApprovedAt,
		&ticket.SentAt,
		&ticket.AssignedTo,
		&ticket.AssignedAt,
		&ticket.SlaDeadline,
		&ticket.SlaBreached,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
