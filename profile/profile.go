// Package profile defines quality profiles — named bundles of audio, UI,
// memory, and network settings selected as a unit — and the registry the
// adaptation engine picks them from.
package profile

// AudioSettings controls capture and playback fidelity.
type AudioSettings struct {
	SampleRate       int    `json:"sample_rate"`
	BitRate          int    `json:"bit_rate"`
	Channels         int    `json:"channels"`
	Format           string `json:"format"`
	CompressionLevel string `json:"compression_level"`
	BufferSizeMB     int    `json:"buffer_size_mb"`
	VoiceEnhancement bool   `json:"voice_enhancement"`
	NoiseReduction   bool   `json:"noise_reduction"`
}

// UISettings controls rendering complexity.
type UISettings struct {
	AnimationComplexity     string `json:"animation_complexity"`
	ImageQuality            string `json:"image_quality"`
	RenderPriority          string `json:"render_priority"`
	Virtualization          bool   `json:"virtualization"`
	MaxConcurrentAnimations int    `json:"max_concurrent_animations"`
	TouchResponseDelayMS    int    `json:"touch_response_delay_ms"`
}

// MemorySettings controls the app's memory envelope.
type MemorySettings struct {
	MaxAppMemoryMB     int     `json:"max_app_memory_mb"`
	CacheSizeMB        int     `json:"cache_size_mb"`
	AggressiveCleanup  bool    `json:"aggressive_cleanup"`
	CompressionLevel   string  `json:"compression_level"`
	StabilityBufferPct float64 `json:"stability_buffer_pct"`
}

// NetworkSettings controls request concurrency and transport behavior.
type NetworkSettings struct {
	MaxConcurrentRequests int  `json:"max_concurrent_requests"`
	TimeoutMS             int  `json:"timeout_ms"`
	RetryAttempts         int  `json:"retry_attempts"`
	Compression           bool `json:"compression"`
	Batching              bool `json:"batching"`
}

// Thresholds are the warning levels the rule engine compares against
// while this profile is active.
type Thresholds struct {
	FrameRateTarget          float64 `json:"frame_rate_target"`
	MemoryWarningPct         float64 `json:"memory_warning_pct"`
	CPUWarningPct            float64 `json:"cpu_warning_pct"`
	BatteryWarningPctPerHour float64 `json:"battery_warning_pct_per_hour"`
}

// Profile is an immutable settings bundle. Adjustments always work on a
// clone; the registry catalog is never mutated in place.
type Profile struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Audio      AudioSettings   `json:"audio"`
	UI         UISettings      `json:"ui"`
	Memory     MemorySettings  `json:"memory"`
	Network    NetworkSettings `json:"network"`
	Thresholds Thresholds      `json:"thresholds"`
}

// Clone returns a copy of the profile. All fields are value types, so a
// shallow copy is a deep copy.
func (p Profile) Clone() Profile { return p }
