package governor

import (
	"time"

	"github.com/stablevoice/governor/adapt"
	"github.com/stablevoice/governor/memory"
)

// StabilityPreferences are the user-facing switches persisted under the
// stabilityPreferences record.
type StabilityPreferences struct {
	PreferStability      bool `json:"prefer_stability"`
	NotificationsEnabled bool `json:"notifications_enabled"`
}

// Config is the full governor configuration: the memory pool, the
// adaptation timers, and the persisted user preferences.
type Config struct {
	Memory      memory.Config        `json:"memory"`
	Adapt       adapt.Config         `json:"adapt"`
	Preferences StabilityPreferences `json:"preferences"`
}

// DefaultConfig returns the standard-device configuration: 150MB pool,
// 5s evaluate and 60s maintenance timers.
func DefaultConfig() Config {
	return Config{
		Memory: memory.DefaultConfig(),
		Adapt:  adapt.DefaultConfig(),
		Preferences: StabilityPreferences{
			NotificationsEnabled: true,
		},
	}
}

// ConstrainedConfig returns the low-tier configuration: tighter timers,
// stricter pressure thresholds, stability preferred.
func ConstrainedConfig() Config {
	cfg := DefaultConfig()
	cfg.Adapt = adapt.ConstrainedConfig()
	cfg.Memory.Thresholds = memory.ConservativePressureThresholds()
	cfg.Preferences.PreferStability = true
	return cfg
}

// Validate checks the pool sizing and timer settings.
func (c Config) Validate() error {
	if err := c.Memory.Validate(); err != nil {
		return err
	}
	return c.Adapt.Validate()
}

// Partial is a sparse configuration update. Nil fields keep their
// current value.
type Partial struct {
	TotalMemoryBytes       *uint64        `json:"total_memory_bytes,omitempty"`
	EvaluateInterval       *time.Duration `json:"evaluate_interval,omitempty"`
	MaintenanceInterval    *time.Duration `json:"maintenance_interval,omitempty"`
	MaxAdaptationsPerHour  *int           `json:"max_adaptations_per_hour,omitempty"`
	PreferStability        *bool          `json:"prefer_stability,omitempty"`
	NotificationsEnabled   *bool          `json:"notifications_enabled,omitempty"`
	ConservativeThresholds *bool          `json:"conservative_thresholds,omitempty"`
}

// Apply merges a partial update onto the configuration and returns the
// result. The receiver is not modified.
func (c Config) Apply(p Partial) Config {
	out := c
	if p.TotalMemoryBytes != nil {
		out.Memory.TotalBytes = *p.TotalMemoryBytes
	}
	if p.EvaluateInterval != nil {
		out.Adapt.EvaluateInterval = *p.EvaluateInterval
	}
	if p.MaintenanceInterval != nil {
		out.Adapt.MaintenanceInterval = *p.MaintenanceInterval
	}
	if p.MaxAdaptationsPerHour != nil {
		out.Adapt.MaxAdaptationsPerHour = *p.MaxAdaptationsPerHour
	}
	if p.PreferStability != nil {
		out.Preferences.PreferStability = *p.PreferStability
	}
	if p.NotificationsEnabled != nil {
		out.Preferences.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.ConservativeThresholds != nil {
		if *p.ConservativeThresholds {
			out.Memory.Thresholds = memory.ConservativePressureThresholds()
		} else {
			out.Memory.Thresholds = memory.DefaultPressureThresholds()
		}
	}
	return out
}
