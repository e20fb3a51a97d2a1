package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stablevoice/governor/monitoring"
)

// Config configures the allocation tracker's pool and thresholds.
type Config struct {
	TotalBytes           uint64             `json:"total_bytes"`
	ReservedBytes        uint64             `json:"reserved_bytes"`
	StabilityBufferBytes uint64             `json:"stability_buffer_bytes"`
	Thresholds           PressureThresholds `json:"thresholds"`
}

// DefaultConfig returns the standard on-device pool: 150MB total with
// 15MB reserved and a 30MB stability buffer.
func DefaultConfig() Config {
	return Config{
		TotalBytes:           150 * 1024 * 1024,
		ReservedBytes:        15 * 1024 * 1024,
		StabilityBufferBytes: 30 * 1024 * 1024,
		Thresholds:           DefaultPressureThresholds(),
	}
}

// Validate checks pool sizing and threshold ordering.
func (c Config) Validate() error {
	if c.TotalBytes == 0 {
		return fmt.Errorf("memory: total bytes must be positive")
	}
	if c.ReservedBytes+c.StabilityBufferBytes >= c.TotalBytes {
		return fmt.Errorf("memory: reserved (%d) + stability buffer (%d) leaves no allocatable space in pool of %d",
			c.ReservedBytes, c.StabilityBufferBytes, c.TotalBytes)
	}
	t := c.Thresholds
	if !(t.Moderate > 0 && t.Moderate < t.High && t.High < t.Critical && t.Critical <= 1.0) {
		return fmt.Errorf("memory: thresholds must satisfy 0 < moderate < high < critical <= 1, got %+v", t)
	}
	return nil
}

// Status is a point-in-time snapshot of the tracker.
type Status struct {
	Pool            Pool          `json:"pool"`
	Pressure        PressureLevel `json:"pressure"`
	AllocationCount int           `json:"allocation_count"`
	Recommendations []string      `json:"recommendations"`
}

// ReleaseHook is invoked after an allocation is removed, so the hosting
// application can drop any buffers or cache entries tied to the id.
type ReleaseHook func(id string, kind Kind)

// Tracker owns the logical pool and the table of live allocations. All
// mutation goes through its mutex; the evaluate and maintenance timers
// and application Allocate/Deallocate calls serialize here.
type Tracker struct {
	mu sync.Mutex

	pool        Pool
	allocations map[string]*Allocation
	thresholds  PressureThresholds
	strategy    CompressionStrategy

	lastLevel PressureLevel
	callbacks map[PressureLevel][]func(Status)

	releaseHook ReleaseHook

	logger  *slog.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewTracker creates a tracker over the configured pool. The config must
// have been validated by the caller; a zero config gets defaults.
func NewTracker(cfg Config, logger *slog.Logger, metrics *monitoring.Metrics) *Tracker {
	if cfg.TotalBytes == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		pool: Pool{
			TotalBytes:           cfg.TotalBytes,
			AvailableBytes:       cfg.TotalBytes - cfg.ReservedBytes - cfg.StabilityBufferBytes,
			ReservedBytes:        cfg.ReservedBytes,
			StabilityBufferBytes: cfg.StabilityBufferBytes,
		},
		allocations: make(map[string]*Allocation),
		thresholds:  cfg.Thresholds,
		strategy:    DefaultCompressionStrategy(),
		callbacks:   make(map[PressureLevel][]func(Status)),
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// SetThresholds replaces the pressure thresholds.
func (t *Tracker) SetThresholds(thresholds PressureThresholds) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.thresholds = thresholds
}

// SetCompressionStrategy replaces the compression ratio policy.
func (t *Tracker) SetCompressionStrategy(strategy CompressionStrategy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if strategy != nil {
		t.strategy = strategy
	}
}

// SetReleaseHook registers the side-cleanup callback fired when an
// allocation is removed for any reason.
func (t *Tracker) SetReleaseHook(hook ReleaseHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseHook = hook
}

// RegisterPressureCallback registers a callback fired when the classified
// pressure level transitions to the given level.
func (t *Tracker) RegisterPressureCallback(level PressureLevel, fn func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks[level] = append(t.callbacks[level], fn)
}

// Allocate records a new named claim of sizeBytes. If the pool lacks
// space it runs the recovery chain (compress, evict, emergency cleanup)
// first. Returns false, never panics, when space cannot be freed.
func (t *Tracker) Allocate(id string, sizeBytes uint64, kind Kind, priority Priority, stabilityOptimized bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == "" || sizeBytes == 0 {
		return false
	}
	if _, exists := t.allocations[id]; exists {
		return false
	}

	if t.pool.AvailableBytes < sizeBytes {
		needed := sizeBytes - t.pool.AvailableBytes
		freed := t.recoverLocked(needed, priority)
		if t.pool.AvailableBytes < sizeBytes {
			if t.metrics != nil {
				t.metrics.AllocationsRejected.Inc()
			}
			t.logger.Warn("allocation rejected after recovery",
				slog.String("id", id),
				slog.String("kind", kind.String()),
				slog.Uint64("size_bytes", sizeBytes),
				slog.Uint64("recovered_bytes", freed),
				slog.Uint64("available_bytes", t.pool.AvailableBytes),
			)
			return false
		}
	}

	t.allocations[id] = &Allocation{
		ID:                 id,
		Kind:               kind,
		SizeBytes:          sizeBytes,
		Priority:           priority,
		CreatedAt:          t.now(),
		StabilityOptimized: stabilityOptimized,
		// The active audio capture buffer is never compressed or evicted.
		Compressible: kind != KindAudio && !stabilityOptimized,
		Evictable:    kind != KindAudio && priority != PriorityCritical,
	}
	t.pool.UsedBytes += sizeBytes
	t.pool.AvailableBytes -= sizeBytes

	if t.metrics != nil {
		t.metrics.AllocationsTotal.Inc()
	}
	t.afterMutationLocked()
	return true
}

// Deallocate removes the allocation with the given id. Unknown ids are a
// no-op and return false.
func (t *Tracker) Deallocate(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	alloc, ok := t.allocations[id]
	if !ok {
		return false
	}
	t.removeLocked(alloc)
	t.afterMutationLocked()
	return true
}

// Status returns a snapshot of the pool, pressure level, and the
// recommended actions for that level. Pure read.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Tracker) statusLocked() Status {
	level := t.thresholds.Classify(t.pool.UsageRatio())
	return Status{
		Pool:            t.pool,
		Pressure:        level,
		AllocationCount: len(t.allocations),
		Recommendations: level.Recommendations(),
	}
}

// ClassifyPressure maps a used/total pair to a pressure level using the
// tracker's thresholds. Deterministic and monotonic in the ratio.
func (t *Tracker) ClassifyPressure(usedBytes, totalBytes uint64) PressureLevel {
	if totalBytes == 0 {
		return PressureNormal
	}
	t.mu.Lock()
	thresholds := t.thresholds
	t.mu.Unlock()
	return thresholds.Classify(float64(usedBytes) / float64(totalBytes))
}

// Allocation returns a copy of the named allocation record.
func (t *Tracker) Allocation(id string) (Allocation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	alloc, ok := t.allocations[id]
	if !ok {
		return Allocation{}, false
	}
	return *alloc, true
}

// SweepOlderThan removes evictable, non-critical allocations older than
// maxAge. Stability-optimized allocations get double the allowance.
// Audio and critical-priority allocations are never swept.
func (t *Tracker) SweepOlderThan(maxAge time.Duration) (bytesFreed uint64, removed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now()
	for _, alloc := range t.sortedAllocationsLocked() {
		if !alloc.Evictable || alloc.Kind == KindAudio || alloc.Priority == PriorityCritical {
			continue
		}
		allowance := maxAge
		if alloc.StabilityOptimized {
			allowance = 2 * maxAge
		}
		if cutoff.Sub(alloc.CreatedAt) <= allowance {
			continue
		}
		bytesFreed += alloc.SizeBytes
		removed++
		t.removeLocked(alloc)
	}

	if removed > 0 {
		t.logger.Info("maintenance sweep removed stale allocations",
			slog.Int("removed", removed),
			slog.Uint64("bytes_freed", bytesFreed),
		)
		t.afterMutationLocked()
	}
	return bytesFreed, removed
}

// removeLocked deletes the record, returns its bytes to the pool, and
// fires the release hook on its own goroutine.
func (t *Tracker) removeLocked(alloc *Allocation) {
	delete(t.allocations, alloc.ID)
	t.pool.UsedBytes -= alloc.SizeBytes
	t.pool.AvailableBytes += alloc.SizeBytes

	if hook := t.releaseHook; hook != nil {
		id, kind := alloc.ID, alloc.Kind
		go func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("release hook panicked",
						slog.String("id", id), slog.Any("panic", r))
				}
			}()
			hook(id, kind)
		}()
	}
}

// afterMutationLocked refreshes gauges and fires pressure callbacks on
// level transitions.
func (t *Tracker) afterMutationLocked() {
	level := t.thresholds.Classify(t.pool.UsageRatio())

	if t.metrics != nil {
		t.metrics.PoolUsageRatio.Set(t.pool.UsageRatio())
		t.metrics.PressureLevel.Set(float64(level))
		t.metrics.AllocationsActive.Set(float64(len(t.allocations)))
	}

	if level == t.lastLevel {
		return
	}
	previous := t.lastLevel
	t.lastLevel = level

	if level > PressureNormal {
		t.logger.Warn("memory pressure level changed",
			slog.String("from", previous.String()),
			slog.String("to", level.String()),
			slog.Float64("usage_ratio", t.pool.UsageRatio()),
		)
	}

	status := t.statusLocked()
	for _, fn := range t.callbacks[level] {
		go func(cb func(Status)) {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("pressure callback panicked", slog.Any("panic", r))
				}
			}()
			cb(status)
		}(fn)
	}
}
