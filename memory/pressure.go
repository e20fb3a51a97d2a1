package memory

// PressureLevel is a coarse classification of pool utilization. It is
// derived from the pool on demand, never stored.
type PressureLevel int

const (
	PressureNormal PressureLevel = iota
	PressureModerate
	PressureHigh
	PressureCritical
)

func (l PressureLevel) String() string {
	switch l {
	case PressureNormal:
		return "normal"
	case PressureModerate:
		return "moderate"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Impact describes how user-visible reacting to this level is.
func (l PressureLevel) Impact() string {
	switch l {
	case PressureModerate:
		return "minimal"
	case PressureHigh:
		return "noticeable"
	case PressureCritical:
		return "significant"
	default:
		return "none"
	}
}

// Recommendations returns the recommended actions for this level.
func (l PressureLevel) Recommendations() []string {
	switch l {
	case PressureModerate:
		return []string{"compress caches", "defer background work"}
	case PressureHigh:
		return []string{"compress caches", "evict low-priority allocations", "reduce quality profile"}
	case PressureCritical:
		return []string{"emergency cleanup", "switch to emergency profile", "disable non-essential features"}
	default:
		return nil
	}
}

// PressureThresholds are the usage ratios at which each level begins.
type PressureThresholds struct {
	Moderate float64 `json:"moderate"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// DefaultPressureThresholds returns the standard thresholds.
func DefaultPressureThresholds() PressureThresholds {
	return PressureThresholds{
		Moderate: 0.70,
		High:     0.80,
		Critical: 0.90,
	}
}

// ConservativePressureThresholds reacts earlier, for devices where
// stability is preferred over headroom.
func ConservativePressureThresholds() PressureThresholds {
	return PressureThresholds{
		Moderate: 0.60,
		High:     0.70,
		Critical: 0.85,
	}
}

// Classify maps a usage ratio to a pressure level. It is monotonically
// non-decreasing in the ratio.
func (t PressureThresholds) Classify(usageRatio float64) PressureLevel {
	switch {
	case usageRatio >= t.Critical:
		return PressureCritical
	case usageRatio >= t.High:
		return PressureHigh
	case usageRatio >= t.Moderate:
		return PressureModerate
	default:
		return PressureNormal
	}
}
