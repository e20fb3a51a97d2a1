package memory

import (
	"log/slog"
	"math"
	"sort"
	"time"
)

// CompressionStrategy decides how much of an allocation's recorded size
// a compression pass reclaims. This is accounting policy, not codec
// work: the governor tracks the cheaper representation's size, the
// hosting application performs any actual re-encoding.
type CompressionStrategy interface {
	// Ratio returns the fraction of the allocation's size freed by
	// compressing it, in [0, 1).
	Ratio(kind Kind) float64
}

// RatioTable is a CompressionStrategy backed by a per-kind table.
// Kinds absent from the table fall back to 0.10.
type RatioTable map[Kind]float64

func (rt RatioTable) Ratio(kind Kind) float64 {
	if r, ok := rt[kind]; ok {
		return r
	}
	return 0.10
}

// DefaultCompressionStrategy returns the standard policy ratios.
func DefaultCompressionStrategy() CompressionStrategy {
	return RatioTable{
		KindTranscription: 0.30,
		KindMetadata:      0.40,
		KindCache:         0.50,
	}
}

// Emergency cleanup retention policy.
const (
	cacheKeepFraction   = 0.30
	cacheKeepMinimum    = 5
	imageKeepCount      = 3
	transcriptionWindow = time.Hour
)

// Compress shrinks every compressible allocation by its kind ratio and
// returns the total bytes reclaimed. Audio and already-compressed
// allocations are skipped.
func (t *Tracker) Compress() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	freed := t.compressLocked()
	if freed > 0 {
		t.afterMutationLocked()
	}
	return freed
}

func (t *Tracker) compressLocked() uint64 {
	var freed uint64
	for _, alloc := range t.sortedAllocationsLocked() {
		if !alloc.Compressible || alloc.Compressed || alloc.Kind == KindAudio {
			continue
		}
		saved := uint64(math.Round(float64(alloc.SizeBytes) * t.strategy.Ratio(alloc.Kind)))
		if saved == 0 || saved >= alloc.SizeBytes {
			continue
		}
		alloc.SizeBytes -= saved
		alloc.Compressed = true
		t.pool.UsedBytes -= saved
		t.pool.AvailableBytes += saved
		freed += saved

		if t.metrics != nil {
			t.metrics.CompressionsTotal.Inc()
			t.metrics.BytesFreedTotal.Add(float64(saved))
		}
	}

	if freed > 0 {
		t.logger.Debug("compressed allocations", slog.Uint64("bytes_freed", freed))
	}
	return freed
}

// Evict removes evictable allocations until targetBytes are reclaimed or
// candidates run out. Candidates whose priority rank is at or above the
// protected priority are never removed, and stability-optimized
// allocations are only removed at low priority.
func (t *Tracker) Evict(targetBytes uint64, protected Priority) (bytesFreed uint64, evicted int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bytesFreed, evicted = t.evictLocked(targetBytes, protected)
	if evicted > 0 {
		t.afterMutationLocked()
	}
	return bytesFreed, evicted
}

func (t *Tracker) evictLocked(targetBytes uint64, protected Priority) (uint64, int) {
	candidates := make([]*Allocation, 0, len(t.allocations))
	for _, alloc := range t.allocations {
		if alloc.Evictable {
			candidates = append(candidates, alloc)
		}
	}

	// Non-stability-optimized first, then ascending priority, then oldest.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.StabilityOptimized != b.StabilityOptimized {
			return !a.StabilityOptimized
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	var freed uint64
	var count int
	for _, alloc := range candidates {
		if freed >= targetBytes {
			break
		}
		if alloc.Priority >= protected {
			continue
		}
		if alloc.StabilityOptimized && alloc.Priority != PriorityLow {
			continue
		}
		freed += alloc.SizeBytes
		count++
		t.removeLocked(alloc)

		if t.metrics != nil {
			t.metrics.EvictionsTotal.Inc()
			t.metrics.BytesFreedTotal.Add(float64(alloc.SizeBytes))
		}
	}

	if count > 0 {
		t.logger.Info("evicted allocations",
			slog.Int("evicted", count),
			slog.Uint64("bytes_freed", freed),
			slog.String("protected_priority", protected.String()),
		)
	}
	return freed, count
}

// EmergencyCleanup is the last-resort pass: old non-critical caches,
// then image previews, then stale transcription entries. It never
// touches audio, critical-priority, or stability-optimized allocations.
func (t *Tracker) EmergencyCleanup(targetBytes uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	freed := t.emergencyCleanupLocked(targetBytes)
	if freed > 0 {
		t.afterMutationLocked()
	}
	return freed
}

func (t *Tracker) emergencyCleanupLocked(targetBytes uint64) uint64 {
	var freed uint64

	// Non-critical caches, keeping the most recent 30% (at least 5).
	caches := t.cleanupCandidatesLocked(KindCache)
	keep := int(math.Ceil(float64(len(caches)) * cacheKeepFraction))
	if keep < cacheKeepMinimum {
		keep = cacheKeepMinimum
	}
	freed += t.removeOldestLocked(caches, keep, targetBytes-freed)
	if freed >= targetBytes {
		return freed
	}

	// Image previews, keeping the 3 most recent.
	images := t.cleanupCandidatesLocked(KindImage)
	freed += t.removeOldestLocked(images, imageKeepCount, targetBytes-freed)
	if freed >= targetBytes {
		return freed
	}

	// Transcription entries outside the current-session window.
	cutoff := t.now().Add(-transcriptionWindow)
	for _, alloc := range t.cleanupCandidatesLocked(KindTranscription) {
		if freed >= targetBytes {
			break
		}
		if alloc.CreatedAt.After(cutoff) {
			continue
		}
		freed += alloc.SizeBytes
		t.removeLocked(alloc)
		if t.metrics != nil {
			t.metrics.BytesFreedTotal.Add(float64(alloc.SizeBytes))
		}
	}

	if freed > 0 {
		t.logger.Warn("emergency cleanup reclaimed bytes", slog.Uint64("bytes_freed", freed))
	}
	return freed
}

// cleanupCandidatesLocked returns removable allocations of the given
// kind, newest first.
func (t *Tracker) cleanupCandidatesLocked(kind Kind) []*Allocation {
	candidates := make([]*Allocation, 0)
	for _, alloc := range t.allocations {
		if alloc.Kind != kind || alloc.Priority == PriorityCritical || alloc.StabilityOptimized {
			continue
		}
		candidates = append(candidates, alloc)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID > candidates[j].ID
	})
	return candidates
}

// removeOldestLocked removes entries beyond the kept newest prefix,
// oldest first, until target bytes are reclaimed.
func (t *Tracker) removeOldestLocked(newestFirst []*Allocation, keep int, target uint64) uint64 {
	if len(newestFirst) <= keep {
		return 0
	}
	var freed uint64
	removable := newestFirst[keep:]
	for i := len(removable) - 1; i >= 0; i-- {
		if freed >= target {
			break
		}
		alloc := removable[i]
		freed += alloc.SizeBytes
		t.removeLocked(alloc)
		if t.metrics != nil {
			t.metrics.BytesFreedTotal.Add(float64(alloc.SizeBytes))
		}
	}
	return freed
}

// recoverLocked runs the recovery chain for an allocation that does not
// fit: compress, then evict below the requesting priority, then
// emergency cleanup. Stops as soon as enough space is free.
func (t *Tracker) recoverLocked(needed uint64, requested Priority) uint64 {
	freed := t.compressLocked()
	if freed >= needed {
		return freed
	}

	evicted, _ := t.evictLocked(needed-freed, requested)
	freed += evicted
	if freed >= needed {
		return freed
	}

	freed += t.emergencyCleanupLocked(needed - freed)
	return freed
}

// sortedAllocationsLocked returns the live allocations ordered by
// creation time then id, for deterministic iteration.
func (t *Tracker) sortedAllocationsLocked() []*Allocation {
	out := make([]*Allocation, 0, len(t.allocations))
	for _, alloc := range t.allocations {
		out = append(out, alloc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
