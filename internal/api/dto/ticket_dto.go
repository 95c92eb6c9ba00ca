package dto

import "time"

// TicketSummary is the list-view projection of a ticket.
type TicketSummary struct {
	ID             string     `json:"id"`
	SenderEmail    string     `json:"sender_email"`
	Subject        string     `json:"subject"`
	ReceivedAt     time.Time  `json:"received_at"`
	Category       *string    `json:"category,omitempty"`
	Urgency        *string    `json:"urgency,omitempty"`
	AIProcessed    bool       `json:"ai_processed"`
	ApprovalStatus string     `json:"approval_status"`
	AssignedTo     *string    `json:"assigned_to,omitempty"`
	SlaDeadline    *time.Time `json:"sla_deadline,omitempty"`
	SlaBreached    bool       `json:"sla_breached"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TicketDetailResponse is the full ticket view including AI analysis and
// conversation.
type TicketDetailResponse struct {
	TicketSummary
	ThreadID      string                  `json:"thread_id"`
	MessageID     string                  `json:"message_id"`
	Summary       *string                 `json:"summary,omitempty"`
	FixSteps      *string                 `json:"fix_steps,omitempty"`
	DraftResponse *string                 `json:"draft_response,omitempty"`
	ApprovedBy    *string                 `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time              `json:"approved_at,omitempty"`
	AssignedAt    *time.Time              `json:"assigned_at,omitempty"`
	Messages      []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse is one message in a ticket conversation.
type TicketMessageResponse struct {
	ID          string    `json:"id"`
	SenderEmail string    `json:"sender_email"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	IsIncoming  bool      `json:"is_incoming"`
	CreatedAt   time.Time `json:"created_at"`
}

// ApprovalRequest carries the reviewer identity for approve/reject.
type ApprovalRequest struct {
	Approver string `json:"approver"`
}

// AssignRequest sets or clears the ticket owner. Null member_id unassigns.
type AssignRequest struct {
	MemberID *string `json:"member_id"`
}

// BulkRequest applies one action to many tickets.
type BulkRequest struct {
	IDs    []string `json:"ids"`
	Action string   `json:"action"`
	Actor  string   `json:"actor"`
}

// UpdateDraftRequest replaces the draft response text.
type UpdateDraftRequest struct {
	DraftResponse string `json:"draft_response"`
}
