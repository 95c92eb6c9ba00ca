package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/pkg/util"
)

// Settings keys for the scheduler runtime configuration.
const (
	settingSchedulerEnabled  = "scheduler_enabled"
	settingSchedulerInterval = "scheduler_interval_minutes"
)

// Bounds on a stored SLA budget, in hours.
const (
	minSlaHours = 1
	maxSlaHours = 168
)

// Bounds on the scheduler interval, in minutes.
const (
	MinSchedulerInterval = 1
	MaxSchedulerInterval = 60
)

// SchedulerSettings is the stored scheduler state.
type SchedulerSettings struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}

// SchedulerConfigurator receives settings changes so a running scheduler
// picks them up without a restart.
type SchedulerConfigurator interface {
	Configure(enabled bool, intervalMinutes int)
}

// SettingsService manages the stored SLA policy and scheduler knobs.
type SettingsService struct {
	settings  repository.SettingsRepository
	scheduler SchedulerConfigurator
	logger    *zap.Logger
	defaults  domain.SlaPolicy
}

// SettingsDependencies bundles collaborators for the SettingsService.
type SettingsDependencies struct {
	SettingsRepo repository.SettingsRepository
	Scheduler    SchedulerConfigurator
	Logger       *zap.Logger
	Defaults     domain.SlaPolicy
}

// NewSettingsService constructs the settings service.
func NewSettingsService(deps SettingsDependencies) *SettingsService {
	defaults := deps.Defaults
	if defaults == (domain.SlaPolicy{}) {
		defaults = domain.DefaultSlaPolicy()
	}
	return &SettingsService{
		settings:  deps.SettingsRepo,
		scheduler: deps.Scheduler,
		logger:    deps.Logger,
		defaults:  defaults,
	}
}

// SlaPolicy returns the stored policy with defaults filled per missing key.
func (s *SettingsService) SlaPolicy(ctx context.Context) (domain.SlaPolicy, error) {
	policy := s.defaults
	stored, err := s.settings.GetAll(ctx, []string{
		settingSlaHoursHigh, settingSlaHoursMedium, settingSlaHoursLow,
	})
	if err != nil {
		return policy, err
	}
	if v, ok := parseHours(stored[settingSlaHoursHigh]); ok {
		policy.HighHours = v
	}
	if v, ok := parseHours(stored[settingSlaHoursMedium]); ok {
		policy.MediumHours = v
	}
	if v, ok := parseHours(stored[settingSlaHoursLow]); ok {
		policy.LowHours = v
	}
	return policy, nil
}

// SetSlaPolicy validates and stores a new policy. All three budgets are
// validated before any key is written, so a bad request changes nothing.
func (s *SettingsService) SetSlaPolicy(ctx context.Context, policy domain.SlaPolicy) error {
	for _, budget := range []struct {
		name  string
		hours int
	}{
		{"high", policy.HighHours},
		{"medium", policy.MediumHours},
		{"low", policy.LowHours},
	} {
		if budget.hours < minSlaHours || budget.hours > maxSlaHours {
			return util.NewSlaPolicyInvalid(
				fmt.Sprintf("%s budget must be between %d and %d hours", budget.name, minSlaHours, maxSlaHours),
				map[string]any{"budget": budget.name, "hours": budget.hours})
		}
	}

	for key, hours := range map[string]int{
		settingSlaHoursHigh:   policy.HighHours,
		settingSlaHoursMedium: policy.MediumHours,
		settingSlaHoursLow:    policy.LowHours,
	} {
		if err := s.settings.Set(ctx, key, strconv.Itoa(hours)); err != nil {
			return err
		}
	}

	s.logger.Info("sla policy updated",
		zap.Int("high_hours", policy.HighHours),
		zap.Int("medium_hours", policy.MediumHours),
		zap.Int("low_hours", policy.LowHours))
	return nil
}

// Scheduler returns the stored scheduler settings, defaulting to disabled
// at the minimum interval.
func (s *SettingsService) Scheduler(ctx context.Context) (SchedulerSettings, error) {
	out := SchedulerSettings{Enabled: false, IntervalMinutes: MinSchedulerInterval}
	stored, err := s.settings.GetAll(ctx, []string{settingSchedulerEnabled, settingSchedulerInterval})
	if err != nil {
		return out, err
	}
	if v, ok := stored[settingSchedulerEnabled]; ok {
		out.Enabled = v == "true"
	}
	if v, ok := stored[settingSchedulerInterval]; ok {
		if minutes, err := strconv.Atoi(v); err == nil {
			out.IntervalMinutes = clampInterval(minutes)
		}
	}
	return out, nil
}

// SetScheduler stores the scheduler state, clamping the interval into range,
// and pushes the change to the running scheduler. Disabling does not cancel
// a pass already in flight.
func (s *SettingsService) SetScheduler(ctx context.Context, enabled bool, intervalMinutes int) (SchedulerSettings, error) {
	intervalMinutes = clampInterval(intervalMinutes)

	if err := s.settings.Set(ctx, settingSchedulerEnabled, strconv.FormatBool(enabled)); err != nil {
		return SchedulerSettings{}, err
	}
	if err := s.settings.Set(ctx, settingSchedulerInterval, strconv.Itoa(intervalMinutes)); err != nil {
		return SchedulerSettings{}, err
	}

	if s.scheduler != nil {
		s.scheduler.Configure(enabled, intervalMinutes)
	}
	s.logger.Info("scheduler settings updated",
		zap.Bool("enabled", enabled),
		zap.Int("interval_minutes", intervalMinutes))
	return SchedulerSettings{Enabled: enabled, IntervalMinutes: intervalMinutes}, nil
}

func clampInterval(minutes int) int {
	if minutes < MinSchedulerInterval {
		return MinSchedulerInterval
	}
	if minutes > MaxSchedulerInterval {
		return MaxSchedulerInterval
	}
	return minutes
}

func parseHours(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours < minSlaHours || hours > maxSlaHours {
		return 0, false
	}
	return hours, true
}
