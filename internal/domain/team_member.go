package domain

import "time"

// TeamMember is an assignment target for tickets. Inactive members stay
// visible in history but are excluded from new-assignment candidates.
type TeamMember struct {
	ID        string
	Name      string
	Email     string
	Role      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
