package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablevoice/governor/adapt"
	"github.com/stablevoice/governor/memory"
	"github.com/stablevoice/governor/monitoring"
	"github.com/stablevoice/governor/profile"
	"github.com/stablevoice/governor/store"
)

const mb = 1024 * 1024

func tierSource(tier monitoring.DeviceTier, lowEnd bool) monitoring.MetricsSource {
	return monitoring.SourceFunc(func() monitoring.Sample {
		return monitoring.Sample{
			CPUPct:         20,
			AvgFrameTimeMS: 16,
			UIResponseMS:   50,
			EstimatedRAMMB: 8192,
			DeviceTier:     tier,
			IsLowEnd:       lowEnd,
		}
	})
}

func newGovernor(t *testing.T, cfg Config, st store.Store, src monitoring.MetricsSource) *Governor {
	t.Helper()
	g, err := New(context.Background(), cfg, Deps{Source: src, Store: st})
	require.NoError(t, err)
	return g
}

func TestNewRequiresSource(t *testing.T) {
	_, err := New(context.Background(), DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestInitialProfileByTier(t *testing.T) {
	cases := []struct {
		name   string
		tier   monitoring.DeviceTier
		lowEnd bool
		prefer bool
		want   string
	}{
		{"low tier", monitoring.TierLow, false, false, profile.Conservative},
		{"low end flag", monitoring.TierHigh, true, false, profile.Conservative},
		{"medium tier", monitoring.TierMedium, false, false, profile.Balanced},
		{"high tier", monitoring.TierHigh, false, false, profile.Performance},
		{"high tier prefers stability", monitoring.TierHigh, false, true, profile.Balanced},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Preferences.PreferStability = tc.prefer
			g := newGovernor(t, cfg, nil, tierSource(tc.tier, tc.lowEnd))
			assert.Equal(t, tc.want, g.GetCurrentProfile().ID)
		})
	}
}

func TestPersistedPreferencesOverrideConfig(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	require.NoError(t, store.SetJSON(ctx, st, store.KeyStabilityPreferences,
		StabilityPreferences{PreferStability: true, NotificationsEnabled: false}))

	g := newGovernor(t, DefaultConfig(), st, tierSource(monitoring.TierHigh, false))

	assert.Equal(t, profile.Balanced, g.GetCurrentProfile().ID,
		"persisted stability preference downgrades the performance pick")
	assert.True(t, g.Config().Preferences.PreferStability)
	assert.False(t, g.Config().Preferences.NotificationsEnabled)
}

func TestPersistedProfileWinsOverTierSelection(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()

	emergency, ok := profile.NewRegistry().ByID(profile.Emergency)
	require.True(t, ok)
	require.NoError(t, store.SetJSON(ctx, st, store.KeyCurrentProfile, emergency))

	g := newGovernor(t, DefaultConfig(), st, tierSource(monitoring.TierHigh, false))
	assert.Equal(t, profile.Emergency, g.GetCurrentProfile().ID)
}

func TestCorruptPersistedRecordsFallBackToDefaults(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	require.NoError(t, st.Set(ctx, store.KeyMemoryConfig, []byte("{not json")))
	require.NoError(t, st.Set(ctx, store.KeyStabilityPreferences, []byte("{not json")))

	g := newGovernor(t, DefaultConfig(), st, tierSource(monitoring.TierMedium, false))

	assert.Equal(t, DefaultConfig().Memory.TotalBytes, g.Config().Memory.TotalBytes)
	assert.Equal(t, profile.Balanced, g.GetCurrentProfile().ID)
}

func TestSetStabilityPreferencesPersists(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	g := newGovernor(t, DefaultConfig(), st, tierSource(monitoring.TierMedium, false))

	prefs := StabilityPreferences{PreferStability: true, NotificationsEnabled: true}
	require.NoError(t, g.SetStabilityPreferences(ctx, prefs))

	var loaded StabilityPreferences
	require.NoError(t, store.GetJSON(ctx, st, store.KeyStabilityPreferences, &loaded))
	assert.Equal(t, prefs, loaded)
}

func TestOptimizeNowCompresses(t *testing.T) {
	g := newGovernor(t, DefaultConfig(), nil, tierSource(monitoring.TierMedium, false))

	require.True(t, g.Allocate("transcript", 20*mb, memory.KindTranscription, memory.PriorityMedium, false))

	result := g.OptimizeNow(context.Background())

	assert.True(t, result.CompressionApplied)
	assert.Equal(t, uint64(6*mb), result.BytesFreed)
	assert.Zero(t, result.AllocationsEvicted)
	assert.Contains(t, result.AffectedFeatures, "cached content compressed")

	history := g.GetAdaptationHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "manual-optimize", history[0].TriggerRuleID)
	assert.Greater(t, history[0].MeasuredImprovementPct, 0.0)

	status := g.GetMemoryStatus()
	assert.Equal(t, uint64(14*mb), status.Pool.UsedBytes)
}

func TestOptimizeNowEvictsUnderHighPressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Memory = memory.Config{
		TotalBytes:           100 * mb,
		ReservedBytes:        5 * mb,
		StabilityBufferBytes: 5 * mb,
		Thresholds:           memory.DefaultPressureThresholds(),
	}
	g := newGovernor(t, cfg, nil, tierSource(monitoring.TierMedium, false))

	// Stability-optimized allocations resist compression, so pressure
	// stays high after the compress pass.
	require.True(t, g.Allocate("a", 45*mb, memory.KindCache, memory.PriorityLow, true))
	require.True(t, g.Allocate("b", 40*mb, memory.KindCache, memory.PriorityLow, true))
	require.Equal(t, memory.PressureHigh, g.GetMemoryStatus().Pressure)

	result := g.OptimizeNow(context.Background())

	assert.False(t, result.CompressionApplied)
	assert.Equal(t, 1, result.AllocationsEvicted)
	assert.GreaterOrEqual(t, result.BytesFreed, uint64(15*mb))
	assert.Contains(t, result.AffectedFeatures, "low-priority caches evicted")
	assert.Less(t, g.GetMemoryStatus().Pool.UsageRatio(), 0.80)
}

func TestOptimizeNowSpendsAdaptationBudget(t *testing.T) {
	ctx := context.Background()
	g := newGovernor(t, DefaultConfig(), nil, tierSource(monitoring.TierMedium, false))

	for i := 0; i < 3; i++ {
		g.OptimizeNow(ctx)
	}
	require.Len(t, g.GetAdaptationHistory(), 3)

	// A rule the ambient 20% CPU sample satisfies immediately.
	require.NoError(t, g.engine.SetRules([]adapt.Rule{{
		ID:        "hot-cpu",
		Condition: adapt.Condition{Metric: adapt.MetricCPU, Operator: adapt.OpGreaterThan, Value: 10},
		Action:    adapt.Action{Kind: adapt.ActionChangeProfile, Target: profile.Emergency},
	}}))
	g.engine.EvaluateTick(ctx)

	assert.Len(t, g.GetAdaptationHistory(), 3,
		"manual optimizations count toward the hourly adaptation budget")
	assert.Equal(t, profile.Balanced, g.GetCurrentProfile().ID)
}

func TestGetPerformanceReport(t *testing.T) {
	g := newGovernor(t, DefaultConfig(), nil, tierSource(monitoring.TierMedium, false))

	require.True(t, g.Allocate("transcript", 20*mb, memory.KindTranscription, memory.PriorityMedium, false))
	g.OptimizeNow(context.Background())

	report := g.GetPerformanceReport()

	assert.Equal(t, profile.Balanced, report.CurrentProfile.ID)
	assert.Equal(t, 1, report.AdaptationsToday)
	assert.InDelta(t, 4.0, report.AvgImprovementPct, 0.01, "6MB of 150MB is 4%")
	assert.Contains(t, report.ActiveOptimizations, "reduced audio quality")
	assert.Contains(t, report.ActiveOptimizations, "simplified animations")
	assert.NotContains(t, report.ActiveOptimizations, "aggressive memory cleanup")
}

func TestStartStopIdempotent(t *testing.T) {
	g := newGovernor(t, DefaultConfig(), store.NewMemStore(), tierSource(monitoring.TierMedium, false))

	ctx := context.Background()
	g.StopMonitoring() // before start, no-op

	require.NoError(t, g.Start(ctx))
	require.NoError(t, g.Start(ctx), "second start is a no-op")

	g.StopMonitoring()
	g.StopMonitoring()

	require.NoError(t, g.Start(ctx), "restart after stop")
	g.StopMonitoring()
}

func TestHistorySurvivesRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()

	g1 := newGovernor(t, DefaultConfig(), st, tierSource(monitoring.TierMedium, false))
	require.True(t, g1.Allocate("transcript", 20*mb, memory.KindTranscription, memory.PriorityMedium, false))
	g1.OptimizeNow(ctx)
	require.NoError(t, g1.Start(ctx))
	g1.StopMonitoring()

	g2 := newGovernor(t, DefaultConfig(), st, tierSource(monitoring.TierMedium, false))
	history := g2.GetAdaptationHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "manual-optimize", history[0].TriggerRuleID)
	assert.True(t, history[0].Timestamp.After(time.Now().Add(-time.Minute)))
}

func TestConfigApplyPartial(t *testing.T) {
	cfg := DefaultConfig()

	total := uint64(80 * mb)
	interval := 2 * time.Second
	maxPerHour := 5
	prefer := true
	conservative := true

	applied := cfg.Apply(Partial{
		TotalMemoryBytes:       &total,
		EvaluateInterval:       &interval,
		MaxAdaptationsPerHour:  &maxPerHour,
		PreferStability:        &prefer,
		ConservativeThresholds: &conservative,
	})

	assert.Equal(t, total, applied.Memory.TotalBytes)
	assert.Equal(t, interval, applied.Adapt.EvaluateInterval)
	assert.Equal(t, maxPerHour, applied.Adapt.MaxAdaptationsPerHour)
	assert.True(t, applied.Preferences.PreferStability)
	assert.Equal(t, memory.ConservativePressureThresholds(), applied.Memory.Thresholds)

	// Untouched fields keep their values, and the receiver is unchanged.
	assert.Equal(t, cfg.Adapt.MaintenanceInterval, applied.Adapt.MaintenanceInterval)
	assert.Equal(t, DefaultConfig().Memory.TotalBytes, cfg.Memory.TotalBytes)
}

func TestConstrainedConfig(t *testing.T) {
	cfg := ConstrainedConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3*time.Second, cfg.Adapt.EvaluateInterval)
	assert.Equal(t, 30*time.Second, cfg.Adapt.MaintenanceInterval)
	assert.True(t, cfg.Preferences.PreferStability)
	assert.Equal(t, memory.ConservativePressureThresholds(), cfg.Memory.Thresholds)
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	g := newGovernor(t, DefaultConfig(), nil, tierSource(monitoring.TierMedium, false))

	require.True(t, g.Allocate("note", 5*mb, memory.KindAudio, memory.PriorityCritical, false))
	assert.False(t, g.Allocate("note", 5*mb, memory.KindAudio, memory.PriorityCritical, false),
		"duplicate id is rejected")

	status := g.GetMemoryStatus()
	assert.Equal(t, uint64(5*mb), status.Pool.UsedBytes)
	assert.Equal(t, 1, status.AllocationCount)

	assert.True(t, g.Deallocate("note"))
	assert.False(t, g.Deallocate("note"))
	assert.Zero(t, g.GetMemoryStatus().Pool.UsedBytes)
}
