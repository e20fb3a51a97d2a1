// Package monitoring defines the device metrics interface consumed by the
// governor and the Prometheus instrumentation it publishes.
package monitoring

import (
	"runtime"
)

// DeviceTier is a coarse classification of device capability.
type DeviceTier int

const (
	TierLow DeviceTier = iota
	TierMedium
	TierHigh
)

func (t DeviceTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Sample is a point-in-time reading of device health. The governor never
// probes hardware itself; it consumes samples through MetricsSource.
type Sample struct {
	CPUPct                 float64    `json:"cpu_pct"`
	AvgFrameTimeMS         float64    `json:"avg_frame_time_ms"`
	BatteryDrainPctPerHour float64    `json:"battery_drain_pct_per_hour"`
	UIResponseMS           float64    `json:"ui_response_ms"`
	EstimatedRAMMB         uint64     `json:"estimated_ram_mb"`
	DeviceTier             DeviceTier `json:"device_tier"`
	IsLowEnd               bool       `json:"is_low_end"`
}

// MetricsSource supplies point-in-time device readings.
type MetricsSource interface {
	Sample() Sample
}

// SourceFunc adapts a function to the MetricsSource interface.
type SourceFunc func() Sample

func (f SourceFunc) Sample() Sample { return f() }

// RuntimeSource is a best-effort local probe built on the Go runtime.
// It only fills the fields the runtime can see; frame time, battery,
// and UI latency stay zero. Intended for the CLI and examples, not
// production metric feeds.
type RuntimeSource struct{}

func (RuntimeSource) Sample() Sample {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	ramMB := m.Sys / (1024 * 1024)
	tier := TierHigh
	switch {
	case ramMB < 2048:
		tier = TierLow
	case ramMB < 4096:
		tier = TierMedium
	}

	return Sample{
		EstimatedRAMMB: ramMB,
		DeviceTier:     tier,
		IsLowEnd:       tier == TierLow,
	}
}
