package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/pkg/util"
)

// TicketMessageRepository manages ticket thread messages. Messages are
// append-only; the unique constraint on message_id makes the correlator's
// check-then-create race-free against concurrent re-delivery.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
	FindTicketIDByMessageID(ctx context.Context, messageID string) (string, error)
}

const uniqueViolationCode = "23505"

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

// Create inserts a message row. A unique violation on message_id is
// translated to the duplicate-message domain error so callers can treat
// re-delivery as already recorded.
func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, sender_email, subject, body, is_incoming, message_id, in_reply_to)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.SenderEmail,
		msg.Subject,
		msg.Body,
		msg.IsIncoming,
		msg.MessageID,
		msg.InReplyTo,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			id := ""
			if msg.MessageID != nil {
				id = *msg.MessageID
			}
			return util.NewDuplicateMessage(id)
		}
		return err
	}
	return nil
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, sender_email, subject, body, is_incoming, message_id, in_reply_to, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderEmail,
			&msg.Subject,
			&msg.Body,
			&msg.IsIncoming,
			&msg.MessageID,
			&msg.InReplyTo,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *ticketMessageRepository) FindTicketIDByMessageID(ctx context.Context, messageID string) (string, error) {
	const query = `SELECT ticket_id FROM ticket_messages WHERE message_id=$1`
	var ticketID string
	if err := r.pool.QueryRow(ctx, query, messageID).Scan(&ticketID); err != nil {
		return "", err
	}
	return ticketID, nil
}
