package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = 1024 * 1024

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	cfg := Config{
		TotalBytes:           150 * mb,
		ReservedBytes:        15 * mb,
		StabilityBufferBytes: 30 * mb,
		Thresholds:           DefaultPressureThresholds(),
	}
	require.NoError(t, cfg.Validate())
	return NewTracker(cfg, nil, nil)
}

// checkPoolInvariant asserts the two pool accounting invariants.
func checkPoolInvariant(t *testing.T, tr *Tracker) {
	t.Helper()
	status := tr.Status()
	p := status.Pool

	assert.Equal(t, p.TotalBytes,
		p.UsedBytes+p.AvailableBytes+p.ReservedBytes+p.StabilityBufferBytes,
		"pool counters must sum to total")

	var sum uint64
	tr.mu.Lock()
	for _, a := range tr.allocations {
		sum += a.SizeBytes
	}
	tr.mu.Unlock()
	assert.Equal(t, sum, p.UsedBytes, "used bytes must equal sum of live allocations")
}

func TestAllocateDeallocate(t *testing.T) {
	tr := newTestTracker(t)

	require.True(t, tr.Allocate("recording", 10*mb, KindAudio, PriorityCritical, false))
	require.True(t, tr.Allocate("preview", 5*mb, KindImage, PriorityLow, false))
	checkPoolInvariant(t, tr)

	status := tr.Status()
	assert.Equal(t, 2, status.AllocationCount)
	assert.Equal(t, uint64(15*mb), status.Pool.UsedBytes)

	// Duplicate ids and zero sizes are rejected outright.
	assert.False(t, tr.Allocate("recording", 1*mb, KindAudio, PriorityCritical, false))
	assert.False(t, tr.Allocate("", 1*mb, KindCache, PriorityLow, false))
	assert.False(t, tr.Allocate("empty", 0, KindCache, PriorityLow, false))

	require.True(t, tr.Deallocate("preview"))
	checkPoolInvariant(t, tr)
	assert.Equal(t, 1, tr.Status().AllocationCount)

	// Unknown id is a no-op, not an error.
	assert.False(t, tr.Deallocate("preview"))
	assert.False(t, tr.Deallocate("never-existed"))
	checkPoolInvariant(t, tr)
}

func TestPoolInvariantUnderChurn(t *testing.T) {
	tr := newTestTracker(t)

	kinds := []Kind{KindCache, KindImage, KindTranscription, KindMetadata, KindUI}
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for i, id := range ids {
		tr.Allocate(id, uint64(i+1)*mb, kinds[i%len(kinds)], Priority(i%4), i%3 == 0)
		checkPoolInvariant(t, tr)
	}
	for _, id := range []string{"b", "e", "g"} {
		tr.Deallocate(id)
		checkPoolInvariant(t, tr)
	}
	tr.Compress()
	checkPoolInvariant(t, tr)
	tr.Evict(4*mb, PriorityHigh)
	checkPoolInvariant(t, tr)
	tr.EmergencyCleanup(100 * mb)
	checkPoolInvariant(t, tr)
}

// Scenario: 150MB pool with 15MB reserved and a 30MB stability buffer
// leaves 105MB allocatable. Ten 10MB stability-optimized cache chunks
// fit; an eleventh fails because nothing is recoverable.
func TestAllocateExhaustionWithProtectedSet(t *testing.T) {
	tr := newTestTracker(t)

	for i := 0; i < 10; i++ {
		id := "chunk_" + string(rune('0'+i))
		require.True(t, tr.Allocate(id, 10*mb, KindCache, PriorityMedium, true), "chunk %d should fit", i)
	}
	checkPoolInvariant(t, tr)
	assert.Equal(t, uint64(100*mb), tr.Status().Pool.UsedBytes)

	assert.False(t, tr.Allocate("chunk_10", 10*mb, KindCache, PriorityMedium, true),
		"11th chunk must be rejected: stability-optimized set is unrecoverable")
	checkPoolInvariant(t, tr)
	assert.Equal(t, 10, tr.Status().AllocationCount)
}

func TestAllocateRecoversByEvictingLowerPriority(t *testing.T) {
	tr := newTestTracker(t)

	// Fill the 105MB allocatable region with low-priority UI buffers.
	for i := 0; i < 10; i++ {
		require.True(t, tr.Allocate("ui_"+string(rune('0'+i)), 10*mb, KindUI, PriorityLow, false))
	}
	assert.Equal(t, uint64(5*mb), tr.Status().Pool.AvailableBytes)

	// A high-priority request evicts low-priority buffers to fit.
	require.True(t, tr.Allocate("capture", 20*mb, KindAudio, PriorityHigh, false))
	checkPoolInvariant(t, tr)

	status := tr.Status()
	assert.Less(t, status.AllocationCount, 11)
	_, ok := tr.Allocation("capture")
	assert.True(t, ok)
}

func TestClassifyPressureBoundaries(t *testing.T) {
	tr := newTestTracker(t)

	cases := []struct {
		used, total uint64
		want        PressureLevel
	}{
		{699, 1000, PressureNormal},
		{700, 1000, PressureModerate},
		{799, 1000, PressureModerate},
		{800, 1000, PressureHigh},
		{899, 1000, PressureHigh},
		{900, 1000, PressureCritical},
		{1000, 1000, PressureCritical},
		{0, 1000, PressureNormal},
		{1, 0, PressureNormal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tr.ClassifyPressure(tc.used, tc.total),
			"used=%d total=%d", tc.used, tc.total)
	}
}

func TestClassifyPressureMonotonic(t *testing.T) {
	tr := newTestTracker(t)

	previous := PressureNormal
	for used := uint64(0); used <= 1000; used++ {
		level := tr.ClassifyPressure(used, 1000)
		assert.GreaterOrEqual(t, level, previous, "pressure must not decrease as usage grows (used=%d)", used)
		previous = level
	}
}

func TestConservativeThresholds(t *testing.T) {
	tr := newTestTracker(t)
	tr.SetThresholds(ConservativePressureThresholds())

	assert.Equal(t, PressureModerate, tr.ClassifyPressure(600, 1000))
	assert.Equal(t, PressureHigh, tr.ClassifyPressure(700, 1000))
	assert.Equal(t, PressureCritical, tr.ClassifyPressure(850, 1000))
}

func TestStatusRecommendations(t *testing.T) {
	tr := newTestTracker(t)

	assert.Empty(t, tr.Status().Recommendations)

	// 105MB of 150MB is exactly 70%: moderate.
	require.True(t, tr.Allocate("bulk", 105*mb, KindCache, PriorityMedium, false))
	status := tr.Status()
	assert.Equal(t, PressureModerate, status.Pressure)
	assert.NotEmpty(t, status.Recommendations)
}

func TestPressureCallbackFiresOnTransition(t *testing.T) {
	tr := newTestTracker(t)

	var (
		mu    sync.Mutex
		fired []PressureLevel
	)
	done := make(chan struct{}, 4)
	tr.RegisterPressureCallback(PressureModerate, func(s Status) {
		mu.Lock()
		fired = append(fired, s.Pressure)
		mu.Unlock()
		done <- struct{}{}
	})

	require.True(t, tr.Allocate("bulk", 105*mb, KindCache, PriorityMedium, false))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pressure callback was not fired")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired, 1)
	assert.Equal(t, PressureModerate, fired[0])
}

func TestReleaseHookCalledOnDeallocate(t *testing.T) {
	tr := newTestTracker(t)

	type release struct {
		id   string
		kind Kind
	}
	released := make(chan release, 1)
	tr.SetReleaseHook(func(id string, kind Kind) {
		released <- release{id, kind}
	})

	require.True(t, tr.Allocate("thumb", 2*mb, KindImage, PriorityLow, false))
	require.True(t, tr.Deallocate("thumb"))

	select {
	case r := <-released:
		assert.Equal(t, "thumb", r.id)
		assert.Equal(t, KindImage, r.kind)
	case <-time.After(2 * time.Second):
		t.Fatal("release hook was not invoked")
	}
}

func TestSweepOlderThan(t *testing.T) {
	tr := newTestTracker(t)

	base := time.Now()
	tr.now = func() time.Time { return base }

	require.True(t, tr.Allocate("old_cache", 10*mb, KindCache, PriorityLow, false))
	require.True(t, tr.Allocate("old_stable", 10*mb, KindCache, PriorityLow, true))
	require.True(t, tr.Allocate("old_audio", 10*mb, KindAudio, PriorityHigh, false))
	require.True(t, tr.Allocate("old_critical", 10*mb, KindMetadata, PriorityCritical, false))

	// 45 minutes later: past the 30m allowance but inside the doubled
	// stability allowance.
	tr.now = func() time.Time { return base.Add(45 * time.Minute) }
	freed, removed := tr.SweepOlderThan(30 * time.Minute)
	assert.Equal(t, uint64(10*mb), freed)
	assert.Equal(t, 1, removed)
	checkPoolInvariant(t, tr)

	_, ok := tr.Allocation("old_cache")
	assert.False(t, ok)
	for _, id := range []string{"old_stable", "old_audio", "old_critical"} {
		_, ok := tr.Allocation(id)
		assert.True(t, ok, "%s must survive the sweep", id)
	}

	// Two hours later the stability allowance has expired too; audio
	// and critical allocations are still never swept.
	tr.now = func() time.Time { return base.Add(2 * time.Hour) }
	freed, removed = tr.SweepOlderThan(30 * time.Minute)
	assert.Equal(t, uint64(10*mb), freed)
	assert.Equal(t, 1, removed)

	_, ok = tr.Allocation("old_audio")
	assert.True(t, ok)
	_, ok = tr.Allocation("old_critical")
	assert.True(t, ok)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.ReservedBytes = bad.TotalBytes
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.TotalBytes = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Thresholds = PressureThresholds{Moderate: 0.9, High: 0.8, Critical: 0.7}
	assert.Error(t, bad.Validate())
}
