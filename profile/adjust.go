package profile

// AudioLevel selects an audio adjustment mapping.
type AudioLevel string

const (
	AudioLow    AudioLevel = "low"
	AudioMedium AudioLevel = "medium"
	AudioHigh   AudioLevel = "high"
)

// UIComplexity selects a UI adjustment mapping.
type UIComplexity string

const (
	UISimple UIComplexity = "simple"
	UINormal UIComplexity = "normal"
	UIFull   UIComplexity = "full"
)

// MemoryAggression selects a memory adjustment mapping.
type MemoryAggression string

const (
	MemoryLow    MemoryAggression = "low"
	MemoryMedium MemoryAggression = "medium"
	MemoryHigh   MemoryAggression = "high"
)

// AdjustAudio replaces the audio sub-bundle per the fixed level mapping.
// All other fields are untouched.
func AdjustAudio(p Profile, level AudioLevel) Profile {
	out := p.Clone()
	switch level {
	case AudioLow:
		out.Audio.SampleRate = 16000
		out.Audio.BitRate = 64000
		out.Audio.CompressionLevel = "high"
		out.Audio.VoiceEnhancement = false
		out.Audio.NoiseReduction = false
	case AudioMedium:
		out.Audio.SampleRate = 22050
		out.Audio.BitRate = 96000
		out.Audio.CompressionLevel = "medium"
		out.Audio.VoiceEnhancement = true
		out.Audio.NoiseReduction = false
	case AudioHigh:
		out.Audio.SampleRate = 44100
		out.Audio.BitRate = 128000
		out.Audio.CompressionLevel = "low"
		out.Audio.VoiceEnhancement = true
		out.Audio.NoiseReduction = true
	}
	return out
}

// AdjustUI replaces the UI sub-bundle per the fixed complexity mapping.
func AdjustUI(p Profile, complexity UIComplexity) Profile {
	out := p.Clone()
	switch complexity {
	case UISimple:
		out.UI.AnimationComplexity = "none"
		out.UI.ImageQuality = "low"
		out.UI.Virtualization = true
		out.UI.MaxConcurrentAnimations = 0
		out.UI.TouchResponseDelayMS = 100
	case UINormal:
		out.UI.AnimationComplexity = "reduced"
		out.UI.ImageQuality = "medium"
		out.UI.Virtualization = true
		out.UI.MaxConcurrentAnimations = 2
		out.UI.TouchResponseDelayMS = 50
	case UIFull:
		out.UI.AnimationComplexity = "full"
		out.UI.ImageQuality = "high"
		out.UI.Virtualization = false
		out.UI.MaxConcurrentAnimations = 8
		out.UI.TouchResponseDelayMS = 0
	}
	return out
}

// AdjustMemory replaces the memory sub-bundle per the fixed aggression
// mapping.
func AdjustMemory(p Profile, aggression MemoryAggression) Profile {
	out := p.Clone()
	switch aggression {
	case MemoryLow:
		out.Memory.AggressiveCleanup = false
		out.Memory.CompressionLevel = "low"
		out.Memory.CacheSizeMB = 50
	case MemoryMedium:
		out.Memory.AggressiveCleanup = true
		out.Memory.CompressionLevel = "medium"
		out.Memory.CacheSizeMB = 25
	case MemoryHigh:
		out.Memory.AggressiveCleanup = true
		out.Memory.CompressionLevel = "high"
		out.Memory.CacheSizeMB = 10
	}
	return out
}

// AdjustNetwork switches the network sub-bundle between the optimized
// (constrained) and standard mappings.
func AdjustNetwork(p Profile, optimize bool) Profile {
	out := p.Clone()
	if optimize {
		out.Network.MaxConcurrentRequests = 2
		out.Network.TimeoutMS = 15000
		out.Network.RetryAttempts = 1
		out.Network.Compression = true
		out.Network.Batching = true
	} else {
		out.Network.MaxConcurrentRequests = 4
		out.Network.TimeoutMS = 10000
		out.Network.RetryAttempts = 2
		out.Network.Compression = false
		out.Network.Batching = false
	}
	return out
}
