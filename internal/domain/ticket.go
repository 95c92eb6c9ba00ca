package domain

import "time"

// ApprovalStatus enumerates the human-review workflow states for a draft
// response.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Category enumerates AI-assigned ticket categories.
type Category string

const (
	CategoryBilling        Category = "Billing"
	CategoryTechnical      Category = "Technical"
	CategoryLoginAccess    Category = "Login / Access"
	CategoryFeatureRequest Category = "Feature Request"
	CategoryGeneralInquiry Category = "General Inquiry"
	CategoryOther          Category = "Other"
)

// Urgency enumerates AI-assessed urgency levels.
type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

// UrgencyRank orders urgency levels for queue sorting. Higher sorts first;
// unset urgency ranks below Low.
func UrgencyRank(u *Urgency) int {
	if u == nil {
		return 0
	}
	switch *u {
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

// Ticket is the aggregate for a customer email conversation, from first
// inbound message through sent resolution (or rejection).
//
// Invariants maintained by the lifecycle service:
//   - SentAt is non-nil only when ApprovalStatus is APPROVED
//   - ApprovedBy/ApprovedAt are non-nil iff ApprovalStatus is not PENDING
//   - SlaDeadline is non-nil only when Urgency is non-nil
type Ticket struct {
	ID          string
	SenderEmail string
	Subject     string
	ReceivedAt  time.Time

	// Email threading. MessageID is the id of the most recent inbound
	// message folded into the ticket's headers; ThreadID groups the
	// conversation.
	ThreadID  string
	MessageID string
	InReplyTo *string

	// AI analysis, nil until processed.
	Category      *Category
	Urgency       *Urgency
	Summary       *string
	FixSteps      *string
	DraftResponse *string
	AIProcessed   bool

	// Approval workflow. Nothing is sent without human approval.
	ApprovalStatus ApprovalStatus
	ApprovedBy     *string
	ApprovedAt     *time.Time
	SentAt         *time.Time

	// Assignment is orthogonal to the approval state machine.
	AssignedTo *string
	AssignedAt *time.Time

	// SLA tracking, derived from urgency and policy.
	SlaDeadline *time.Time
	SlaBreached bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the ticket still awaits a sent response.
func (t *Ticket) Open() bool {
	return t.SentAt == nil
}

// Active reports whether the ticket participates in SLA views: not yet sent
// and not rejected.
func (t *Ticket) Active() bool {
	return t.SentAt == nil && t.ApprovalStatus != ApprovalRejected
}
