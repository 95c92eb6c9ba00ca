package domain

import "time"

// TicketMessage is one entry in a ticket's conversation thread. Rows are
// append-only and immutable once created; ordering is by CreatedAt, which is
// the ordering the correlator preserves even when messages arrive out of
// header order.
type TicketMessage struct {
	ID          string
	TicketID    string
	SenderEmail string
	Subject     string
	Body        string
	IsIncoming  bool

	// Email headers for threading and dedupe. MessageID is unique across
	// the mailbox; re-delivery of the same message is a no-op.
	MessageID *string
	InReplyTo *string

	CreatedAt time.Time
}
