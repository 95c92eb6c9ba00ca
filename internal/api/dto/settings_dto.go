package dto

// SlaPolicyRequest sets the per-urgency response budgets in hours.
type SlaPolicyRequest struct {
	HighHours   int `json:"high_hours"`
	MediumHours int `json:"medium_hours"`
	LowHours    int `json:"low_hours"`
}

// SlaPolicyResponse echoes the stored policy.
type SlaPolicyResponse struct {
	HighHours   int `json:"high_hours"`
	MediumHours int `json:"medium_hours"`
	LowHours    int `json:"low_hours"`
}

// SchedulerRequest updates the background fetch loop.
type SchedulerRequest struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}
