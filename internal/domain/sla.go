package domain

import "time"

// Default per-urgency SLA budgets, applied when no policy has been stored.
const (
	DefaultSlaHoursHigh   = 4
	DefaultSlaHoursMedium = 8
	DefaultSlaHoursLow    = 24
)

// SlaPolicy maps each urgency level to an hour budget. It is process-wide
// configuration: mutated only through an explicit settings update and read
// on every deadline computation.
type SlaPolicy struct {
	HighHours   int
	MediumHours int
	LowHours    int
}

// DefaultSlaPolicy returns the built-in budgets (High=4h, Medium=8h, Low=24h).
func DefaultSlaPolicy() SlaPolicy {
	return SlaPolicy{
		HighHours:   DefaultSlaHoursHigh,
		MediumHours: DefaultSlaHoursMedium,
		LowHours:    DefaultSlaHoursLow,
	}
}

// Budget returns the response budget for an urgency level.
func (p SlaPolicy) Budget(u Urgency) time.Duration {
	switch u {
	case UrgencyHigh:
		return time.Duration(p.HighHours) * time.Hour
	case UrgencyMedium:
		return time.Duration(p.MediumHours) * time.Hour
	default:
		return time.Duration(p.LowHours) * time.Hour
	}
}
