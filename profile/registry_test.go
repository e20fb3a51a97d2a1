package profile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablevoice/governor/monitoring"
)

func TestCatalog(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{Conservative, Balanced, Performance, Emergency}, r.IDs())

	for _, id := range r.IDs() {
		p, ok := r.ByID(id)
		require.True(t, ok, "catalog must contain %s", id)
		assert.Equal(t, id, p.ID)
		assert.NotEmpty(t, p.Name)
		assert.Positive(t, p.Audio.SampleRate)
		assert.Positive(t, p.Memory.MaxAppMemoryMB)
	}

	_, ok := r.ByID("turbo")
	assert.False(t, ok)
}

func TestCatalogFootprintOrdering(t *testing.T) {
	r := NewRegistry()

	conservative, _ := r.ByID(Conservative)
	balanced, _ := r.ByID(Balanced)
	performance, _ := r.ByID(Performance)
	emergency, _ := r.ByID(Emergency)

	assert.Less(t, conservative.Audio.SampleRate, balanced.Audio.SampleRate)
	assert.Less(t, balanced.Audio.SampleRate, performance.Audio.SampleRate)
	assert.Less(t, conservative.Audio.BitRate, balanced.Audio.BitRate)
	assert.Less(t, balanced.Audio.BitRate, performance.Audio.BitRate)

	assert.Less(t, emergency.Memory.MaxAppMemoryMB, conservative.Memory.MaxAppMemoryMB)
	assert.Less(t, conservative.Memory.MaxAppMemoryMB, balanced.Memory.MaxAppMemoryMB)
	assert.Less(t, balanced.Memory.MaxAppMemoryMB, performance.Memory.MaxAppMemoryMB)
}

func TestSelectInitial(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		tier            monitoring.DeviceTier
		isLowEnd        bool
		preferStability bool
		want            string
	}{
		{monitoring.TierLow, false, false, Conservative},
		{monitoring.TierMedium, true, false, Conservative},
		{monitoring.TierHigh, true, false, Conservative},
		{monitoring.TierMedium, false, false, Balanced},
		{monitoring.TierHigh, false, false, Performance},
		{monitoring.TierHigh, false, true, Balanced},
		{monitoring.TierMedium, false, true, Balanced},
		{monitoring.TierLow, false, true, Conservative},
	}
	for _, tc := range cases {
		got := r.SelectInitial(tc.tier, tc.isLowEnd, tc.preferStability)
		assert.Equal(t, tc.want, got,
			"tier=%s lowEnd=%v preferStability=%v", tc.tier, tc.isLowEnd, tc.preferStability)
	}
}

func TestAdjustAudioTouchesOnlyAudio(t *testing.T) {
	r := NewRegistry()
	base, _ := r.ByID(Performance)

	got := AdjustAudio(base, AudioLow)
	assert.Equal(t, 16000, got.Audio.SampleRate)
	assert.Equal(t, 64000, got.Audio.BitRate)
	assert.Equal(t, "high", got.Audio.CompressionLevel)

	// Everything outside the audio bundle is untouched.
	assert.Equal(t, base.UI, got.UI)
	assert.Equal(t, base.Memory, got.Memory)
	assert.Equal(t, base.Network, got.Network)
	assert.Equal(t, base.Thresholds, got.Thresholds)
	assert.Equal(t, base.ID, got.ID)

	// Fields the mapping does not name keep their values.
	assert.Equal(t, base.Audio.Channels, got.Audio.Channels)
	assert.Equal(t, base.Audio.Format, got.Audio.Format)
	assert.Equal(t, base.Audio.BufferSizeMB, got.Audio.BufferSizeMB)
}

func TestAdjustUITouchesOnlyUI(t *testing.T) {
	r := NewRegistry()
	base, _ := r.ByID(Balanced)

	got := AdjustUI(base, UISimple)
	assert.Equal(t, "none", got.UI.AnimationComplexity)
	assert.Equal(t, 0, got.UI.MaxConcurrentAnimations)

	assert.Equal(t, base.Audio, got.Audio)
	assert.Equal(t, base.Memory, got.Memory)
	assert.Equal(t, base.Network, got.Network)
	assert.Equal(t, base.UI.RenderPriority, got.UI.RenderPriority)
}

func TestAdjustMemoryTouchesOnlyMemory(t *testing.T) {
	r := NewRegistry()
	base, _ := r.ByID(Balanced)

	got := AdjustMemory(base, MemoryHigh)
	assert.True(t, got.Memory.AggressiveCleanup)
	assert.Equal(t, "high", got.Memory.CompressionLevel)
	assert.Equal(t, 10, got.Memory.CacheSizeMB)

	assert.Equal(t, base.Audio, got.Audio)
	assert.Equal(t, base.UI, got.UI)
	assert.Equal(t, base.Network, got.Network)
	assert.Equal(t, base.Memory.MaxAppMemoryMB, got.Memory.MaxAppMemoryMB)
	assert.Equal(t, base.Memory.StabilityBufferPct, got.Memory.StabilityBufferPct)
}

func TestAdjustNetworkTouchesOnlyNetwork(t *testing.T) {
	r := NewRegistry()
	base, _ := r.ByID(Performance)

	got := AdjustNetwork(base, true)
	assert.Equal(t, 2, got.Network.MaxConcurrentRequests)
	assert.True(t, got.Network.Compression)
	assert.True(t, got.Network.Batching)

	assert.Equal(t, base.Audio, got.Audio)
	assert.Equal(t, base.UI, got.UI)
	assert.Equal(t, base.Memory, got.Memory)

	restored := AdjustNetwork(got, false)
	assert.Equal(t, 4, restored.Network.MaxConcurrentRequests)
	assert.False(t, restored.Network.Compression)
}

func TestAdjustDoesNotMutateCatalog(t *testing.T) {
	r := NewRegistry()
	before, _ := r.ByID(Performance)

	_ = AdjustAudio(before, AudioLow)
	_ = AdjustMemory(before, MemoryHigh)

	after, _ := r.ByID(Performance)
	assert.Equal(t, before, after, "catalog profiles are immutable")
}

func TestProfileJSONRoundTrip(t *testing.T) {
	r := NewRegistry()
	in, _ := r.ByID(Emergency)

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Profile
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}
