package profile

import (
	"github.com/stablevoice/governor/monitoring"
)

// Catalog profile ids.
const (
	Conservative = "conservative"
	Balanced     = "balanced"
	Performance  = "performance"
	Emergency    = "emergency"
)

// Registry is the fixed catalog of quality profiles.
type Registry struct {
	profiles map[string]Profile
	order    []string
}

// NewRegistry builds the built-in catalog.
func NewRegistry() *Registry {
	r := &Registry{
		profiles: make(map[string]Profile),
		order:    []string{Conservative, Balanced, Performance, Emergency},
	}
	for _, p := range builtinProfiles() {
		r.profiles[p.ID] = p
	}
	return r
}

// ByID returns a copy of the named profile.
func (r *Registry) ByID(id string) (Profile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

// IDs returns the catalog ids in stable order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SelectInitial picks the starting profile from the device tier. A
// stability preference downgrades a performance pick to balanced.
func (r *Registry) SelectInitial(tier monitoring.DeviceTier, isLowEnd, preferStability bool) string {
	var id string
	switch {
	case tier == monitoring.TierLow || isLowEnd:
		id = Conservative
	case tier == monitoring.TierMedium:
		id = Balanced
	default:
		id = Performance
	}
	if preferStability && id == Performance {
		id = Balanced
	}
	return id
}

func builtinProfiles() []Profile {
	return []Profile{
		{
			ID:   Conservative,
			Name: "Conservative",
			Audio: AudioSettings{
				SampleRate:       11025,
				BitRate:          32000,
				Channels:         1,
				Format:           "aac",
				CompressionLevel: "high",
				BufferSizeMB:     2,
				VoiceEnhancement: false,
				NoiseReduction:   false,
			},
			UI: UISettings{
				AnimationComplexity:     "none",
				ImageQuality:            "low",
				RenderPriority:          "battery",
				Virtualization:          true,
				MaxConcurrentAnimations: 0,
				TouchResponseDelayMS:    100,
			},
			Memory: MemorySettings{
				MaxAppMemoryMB:     100,
				CacheSizeMB:        10,
				AggressiveCleanup:  true,
				CompressionLevel:   "high",
				StabilityBufferPct: 0.30,
			},
			Network: NetworkSettings{
				MaxConcurrentRequests: 1,
				TimeoutMS:             20000,
				RetryAttempts:         1,
				Compression:           true,
				Batching:              true,
			},
			Thresholds: Thresholds{
				FrameRateTarget:          24,
				MemoryWarningPct:         60,
				CPUWarningPct:            50,
				BatteryWarningPctPerHour: 8,
			},
		},
		{
			ID:   Balanced,
			Name: "Balanced",
			Audio: AudioSettings{
				SampleRate:       22050,
				BitRate:          64000,
				Channels:         1,
				Format:           "aac",
				CompressionLevel: "medium",
				BufferSizeMB:     4,
				VoiceEnhancement: true,
				NoiseReduction:   false,
			},
			UI: UISettings{
				AnimationComplexity:     "reduced",
				ImageQuality:            "medium",
				RenderPriority:          "balanced",
				Virtualization:          true,
				MaxConcurrentAnimations: 2,
				TouchResponseDelayMS:    50,
			},
			Memory: MemorySettings{
				MaxAppMemoryMB:     150,
				CacheSizeMB:        25,
				AggressiveCleanup:  false,
				CompressionLevel:   "medium",
				StabilityBufferPct: 0.20,
			},
			Network: NetworkSettings{
				MaxConcurrentRequests: 3,
				TimeoutMS:             12000,
				RetryAttempts:         2,
				Compression:           true,
				Batching:              false,
			},
			Thresholds: Thresholds{
				FrameRateTarget:          30,
				MemoryWarningPct:         70,
				CPUWarningPct:            65,
				BatteryWarningPctPerHour: 12,
			},
		},
		{
			ID:   Performance,
			Name: "Performance",
			Audio: AudioSettings{
				SampleRate:       44100,
				BitRate:          128000,
				Channels:         2,
				Format:           "aac",
				CompressionLevel: "low",
				BufferSizeMB:     8,
				VoiceEnhancement: true,
				NoiseReduction:   true,
			},
			UI: UISettings{
				AnimationComplexity:     "full",
				ImageQuality:            "high",
				RenderPriority:          "smoothness",
				Virtualization:          false,
				MaxConcurrentAnimations: 8,
				TouchResponseDelayMS:    0,
			},
			Memory: MemorySettings{
				MaxAppMemoryMB:     250,
				CacheSizeMB:        50,
				AggressiveCleanup:  false,
				CompressionLevel:   "low",
				StabilityBufferPct: 0.10,
			},
			Network: NetworkSettings{
				MaxConcurrentRequests: 6,
				TimeoutMS:             8000,
				RetryAttempts:         3,
				Compression:           false,
				Batching:              false,
			},
			Thresholds: Thresholds{
				FrameRateTarget:          60,
				MemoryWarningPct:         80,
				CPUWarningPct:            80,
				BatteryWarningPctPerHour: 20,
			},
		},
		{
			ID:   Emergency,
			Name: "Emergency",
			Audio: AudioSettings{
				SampleRate:       8000,
				BitRate:          16000,
				Channels:         1,
				Format:           "aac",
				CompressionLevel: "high",
				BufferSizeMB:     1,
				VoiceEnhancement: false,
				NoiseReduction:   false,
			},
			UI: UISettings{
				AnimationComplexity:     "none",
				ImageQuality:            "low",
				RenderPriority:          "survival",
				Virtualization:          true,
				MaxConcurrentAnimations: 0,
				TouchResponseDelayMS:    200,
			},
			Memory: MemorySettings{
				MaxAppMemoryMB:     60,
				CacheSizeMB:        5,
				AggressiveCleanup:  true,
				CompressionLevel:   "high",
				StabilityBufferPct: 0.40,
			},
			Network: NetworkSettings{
				MaxConcurrentRequests: 1,
				TimeoutMS:             30000,
				RetryAttempts:         0,
				Compression:           true,
				Batching:              true,
			},
			Thresholds: Thresholds{
				FrameRateTarget:          15,
				MemoryWarningPct:         50,
				CPUWarningPct:            40,
				BatteryWarningPctPerHour: 5,
			},
		},
	}
}
