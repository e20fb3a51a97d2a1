// Package adapt implements the adaptation rule engine: an ordered,
// rate-limited set of condition/action rules evaluated on a timer
// against live device metrics and allocation-tracker state.
package adapt

import (
	"fmt"
	"time"

	"github.com/stablevoice/governor/memory"
	"github.com/stablevoice/governor/monitoring"
)

// Metric names a live value a rule condition is evaluated against.
type Metric string

const (
	MetricMemory      Metric = "memory"           // pool usage percent
	MetricCPU         Metric = "cpu"              // CPU percent
	MetricBattery     Metric = "battery"          // drain percent per hour
	MetricFrameRate   Metric = "framerate"        // 1000 / avg frame time
	MetricDeviceAge   Metric = "device_age"       // banded estimate, years
	MetricInteraction Metric = "user_interaction" // avg UI response ms
)

// Operator compares a metric value against the condition value.
type Operator string

const (
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
	OpEquals      Operator = "eq"
	OpBetween     Operator = "between"
)

// Condition is the trigger half of a rule. A MinDurationMS above zero
// means the condition must have held continuously for that long.
type Condition struct {
	Metric        Metric   `json:"metric" yaml:"metric"`
	Operator      Operator `json:"operator" yaml:"operator"`
	Value         float64  `json:"value" yaml:"value"`
	UpperValue    float64  `json:"upper_value,omitempty" yaml:"upper_value,omitempty"`
	MinDurationMS int64    `json:"min_duration_ms,omitempty" yaml:"min_duration_ms,omitempty"`
}

// MinDuration returns the debounce duration.
func (c Condition) MinDuration() time.Duration {
	return time.Duration(c.MinDurationMS) * time.Millisecond
}

// Met reports whether value satisfies the condition operator.
func (c Condition) Met(value float64) bool {
	switch c.Operator {
	case OpGreaterThan:
		return value > c.Value
	case OpLessThan:
		return value < c.Value
	case OpEquals:
		return value == c.Value
	case OpBetween:
		return value >= c.Value && value <= c.UpperValue
	default:
		return false
	}
}

// ActionKind names what an applied rule does.
type ActionKind string

const (
	ActionChangeProfile ActionKind = "change_profile"
	ActionAdjustAudio   ActionKind = "adjust_audio"
	ActionAdjustUI      ActionKind = "adjust_ui"
	ActionAdjustMemory  ActionKind = "adjust_memory"
	ActionAdjustNetwork ActionKind = "adjust_network"
)

// Action is the effect half of a rule. Target is a profile id for
// change_profile, a level/complexity/aggression for the adjust kinds,
// and "optimize" or "standard" for adjust_network.
type Action struct {
	Kind         ActionKind `json:"kind" yaml:"kind"`
	Target       string     `json:"target,omitempty" yaml:"target,omitempty"`
	Notification string     `json:"notification,omitempty" yaml:"notification,omitempty"`
}

// Rule is a single condition/action pair. Stability rules are evaluated
// before all others; within each class, lower Priority goes first.
type Rule struct {
	ID        string    `json:"id" yaml:"id"`
	Condition Condition `json:"condition" yaml:"condition"`
	Action    Action    `json:"action" yaml:"action"`
	Priority  int       `json:"priority" yaml:"priority"`
	Stability bool      `json:"stability_rule" yaml:"stability_rule"`
}

// Validate checks the rule's static configuration.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("adapt: rule id cannot be empty")
	}
	switch r.Condition.Metric {
	case MetricMemory, MetricCPU, MetricBattery, MetricFrameRate, MetricDeviceAge, MetricInteraction:
	default:
		return fmt.Errorf("adapt: rule %s: unknown metric %q", r.ID, r.Condition.Metric)
	}
	switch r.Condition.Operator {
	case OpGreaterThan, OpLessThan, OpEquals:
	case OpBetween:
		if r.Condition.UpperValue < r.Condition.Value {
			return fmt.Errorf("adapt: rule %s: between upper value below lower value", r.ID)
		}
	default:
		return fmt.Errorf("adapt: rule %s: unknown operator %q", r.ID, r.Condition.Operator)
	}
	switch r.Action.Kind {
	case ActionChangeProfile, ActionAdjustAudio, ActionAdjustUI, ActionAdjustMemory, ActionAdjustNetwork:
	default:
		return fmt.Errorf("adapt: rule %s: unknown action kind %q", r.ID, r.Action.Kind)
	}
	if r.Action.Target == "" {
		return fmt.Errorf("adapt: rule %s: action target cannot be empty", r.ID)
	}
	if r.Condition.MinDurationMS < 0 {
		return fmt.Errorf("adapt: rule %s: min duration cannot be negative", r.ID)
	}
	return nil
}

// metricValue maps a metric name to its live value.
func metricValue(m Metric, sample monitoring.Sample, status memory.Status) (float64, error) {
	switch m {
	case MetricMemory:
		return status.Pool.UsageRatio() * 100, nil
	case MetricCPU:
		return sample.CPUPct, nil
	case MetricBattery:
		return sample.BatteryDrainPctPerHour, nil
	case MetricFrameRate:
		if sample.AvgFrameTimeMS <= 0 {
			return 0, fmt.Errorf("adapt: frame time unavailable")
		}
		return 1000 / sample.AvgFrameTimeMS, nil
	case MetricDeviceAge:
		return deviceAgeEstimate(sample.EstimatedRAMMB), nil
	case MetricInteraction:
		return sample.UIResponseMS, nil
	default:
		return 0, fmt.Errorf("adapt: unknown metric %q", m)
	}
}

// deviceAgeEstimate bands installed RAM into an approximate device age
// in years. Coarse on purpose: rules only compare against whole years.
func deviceAgeEstimate(ramMB uint64) float64 {
	switch {
	case ramMB >= 6144:
		return 1
	case ramMB >= 4096:
		return 2
	case ramMB >= 3072:
		return 3
	case ramMB >= 2048:
		return 5
	default:
		return 7
	}
}
