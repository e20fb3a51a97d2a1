// Package governor is an in-process adaptive resource governor for a
// voice-notes application on constrained devices. It tracks logical
// memory allocations, classifies pressure, and runs a rule-driven
// control loop that trades quality (audio fidelity, UI complexity,
// network concurrency) for stability.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stablevoice/governor/adapt"
	"github.com/stablevoice/governor/memory"
	"github.com/stablevoice/governor/monitoring"
	"github.com/stablevoice/governor/profile"
	"github.com/stablevoice/governor/store"
)

// Deps are the governor's external collaborators. Source is required;
// a nil Store disables persistence and a nil Logger falls back to
// slog.Default().
type Deps struct {
	Source   monitoring.MetricsSource
	Store    store.Store
	Notifier adapt.Notifier
	Logger   *slog.Logger
	Metrics  *monitoring.Metrics
	Rules    []adapt.Rule
}

// Governor wires the allocation tracker, profile registry, and
// adaptation engine together behind one facade and owns the persisted
// records.
type Governor struct {
	cfg      Config
	tracker  *memory.Tracker
	registry *profile.Registry
	engine   *adapt.Engine
	st       store.Store
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// New builds a governor. Persisted memory configuration and stability
// preferences override the passed config when present; missing or
// corrupt records are logged and the defaults used.
func New(ctx context.Context, cfg Config, deps Deps) (*Governor, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("governor: metrics source is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	cfg = loadPersistedConfig(ctx, cfg, deps.Store, deps.Logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Adapt.NotificationsEnabled = cfg.Preferences.NotificationsEnabled

	tracker := memory.NewTracker(cfg.Memory, deps.Logger, deps.Metrics)
	registry := profile.NewRegistry()

	engine, err := adapt.NewEngine(cfg.Adapt, adapt.Deps{
		Tracker:  tracker,
		Registry: registry,
		Source:   deps.Source,
		Store:    deps.Store,
		Notifier: deps.Notifier,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	if deps.Rules != nil {
		if err := engine.SetRules(deps.Rules); err != nil {
			return nil, err
		}
	}

	// Initial profile from the device tier, then let any persisted
	// profile win over it.
	sample := deps.Source.Sample()
	initialID := registry.SelectInitial(sample.DeviceTier, sample.IsLowEnd, cfg.Preferences.PreferStability)
	if initial, ok := registry.ByID(initialID); ok {
		engine.SetCurrentProfile(initial)
	}
	engine.LoadPersisted(ctx)

	g := &Governor{
		cfg:      cfg,
		tracker:  tracker,
		registry: registry,
		engine:   engine,
		st:       deps.Store,
		logger:   deps.Logger,
	}

	g.logger.Info("governor initialized",
		slog.String("initial_profile", engine.CurrentProfile().ID),
		slog.String("device_tier", sample.DeviceTier.String()),
		slog.Uint64("pool_total_bytes", cfg.Memory.TotalBytes),
	)
	return g, nil
}

// loadPersistedConfig overlays the memoryConfig and stabilityPreferences
// records onto cfg. First run has neither record; that is not an error.
func loadPersistedConfig(ctx context.Context, cfg Config, st store.Store, logger *slog.Logger) Config {
	if st == nil {
		return cfg
	}

	var mc memory.Config
	switch err := store.GetJSON(ctx, st, store.KeyMemoryConfig, &mc); {
	case err == nil:
		if verr := mc.Validate(); verr == nil {
			cfg.Memory = mc
		} else {
			logger.Warn("persisted memory config invalid, using defaults", slog.String("error", verr.Error()))
		}
	case !errors.Is(err, store.ErrNotFound):
		logger.Warn("failed to load memory config", slog.String("error", err.Error()))
	}

	var prefs StabilityPreferences
	switch err := store.GetJSON(ctx, st, store.KeyStabilityPreferences, &prefs); {
	case err == nil:
		cfg.Preferences = prefs
	case !errors.Is(err, store.ErrNotFound):
		logger.Warn("failed to load stability preferences", slog.String("error", err.Error()))
	}
	return cfg
}

// Start launches the evaluate and maintenance loops. Starting a running
// governor is a no-op.
func (g *Governor) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil
	}
	if err := g.engine.Start(ctx); err != nil {
		return err
	}
	g.running = true
	return nil
}

// StopMonitoring halts both loops and flushes history. Safe to call
// repeatedly, including before Start.
func (g *Governor) StopMonitoring() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return
	}
	g.running = false
	g.engine.Stop()
}

// Allocate records a named memory claim against the pool, running the
// recovery chain when space is short. Returns false when the claim
// cannot be satisfied.
func (g *Governor) Allocate(id string, sizeBytes uint64, kind memory.Kind, priority memory.Priority, stabilityOptimized bool) bool {
	return g.tracker.Allocate(id, sizeBytes, kind, priority, stabilityOptimized)
}

// Deallocate releases a named claim. Unknown ids return false.
func (g *Governor) Deallocate(id string) bool {
	return g.tracker.Deallocate(id)
}

// Tracker exposes the allocation tracker for hosts that register
// pressure callbacks or release hooks.
func (g *Governor) Tracker() *memory.Tracker { return g.tracker }

// Config returns the effective configuration after persisted overlays.
func (g *Governor) Config() Config { return g.cfg }

// GetMemoryStatus returns the pool snapshot, pressure level, and the
// recommended actions for that level.
func (g *Governor) GetMemoryStatus() memory.Status {
	return g.tracker.Status()
}

// GetCurrentProfile returns the active quality profile.
func (g *Governor) GetCurrentProfile() profile.Profile {
	return g.engine.CurrentProfile()
}

// GetAdaptationHistory returns the adaptation log, newest last.
func (g *Governor) GetAdaptationHistory() []adapt.Entry {
	return g.engine.History()
}

// SetStabilityPreferences updates and persists the user preferences.
// Notification enablement takes effect on the next engine tick only
// after a restart; the persisted record wins on the next New.
func (g *Governor) SetStabilityPreferences(ctx context.Context, prefs StabilityPreferences) error {
	g.mu.Lock()
	g.cfg.Preferences = prefs
	g.mu.Unlock()

	if g.st == nil {
		return nil
	}
	return store.SetJSON(ctx, g.st, store.KeyStabilityPreferences, prefs)
}

// SaveMemoryConfig persists the pool configuration for the next run.
func (g *Governor) SaveMemoryConfig(ctx context.Context) error {
	if g.st == nil {
		return nil
	}
	return store.SetJSON(ctx, g.st, store.KeyMemoryConfig, g.cfg.Memory)
}

// PerformanceReport summarizes the governor's recent work.
type PerformanceReport struct {
	CurrentProfile      profile.Profile `json:"current_profile"`
	AdaptationsToday    int             `json:"adaptations_today"`
	AvgImprovementPct   float64         `json:"avg_improvement_pct"`
	ActiveOptimizations []string        `json:"active_optimizations"`
	Recommendations     []string        `json:"recommendations"`
}

// GetPerformanceReport summarizes the last 24 hours of adaptations and
// the optimizations the active profile carries.
func (g *Governor) GetPerformanceReport() PerformanceReport {
	current := g.engine.CurrentProfile()
	today := g.engine.HistorySince(24 * time.Hour)

	var sum float64
	measured := 0
	for _, e := range today {
		if e.MeasuredImprovementPct > 0 {
			sum += e.MeasuredImprovementPct
			measured++
		}
	}
	avg := 0.0
	if measured > 0 {
		avg = sum / float64(measured)
	}

	return PerformanceReport{
		CurrentProfile:      current,
		AdaptationsToday:    len(today),
		AvgImprovementPct:   avg,
		ActiveOptimizations: activeOptimizations(current),
		Recommendations:     g.tracker.Status().Recommendations,
	}
}

// activeOptimizations names the resource-saving settings the profile
// has switched on.
func activeOptimizations(p profile.Profile) []string {
	var out []string
	if p.Audio.SampleRate < 44100 {
		out = append(out, "reduced audio quality")
	}
	if p.UI.AnimationComplexity == "none" || p.UI.AnimationComplexity == "reduced" {
		out = append(out, "simplified animations")
	}
	if p.UI.Virtualization {
		out = append(out, "list virtualization")
	}
	if p.Memory.AggressiveCleanup {
		out = append(out, "aggressive memory cleanup")
	}
	if p.Network.Batching {
		out = append(out, "network request batching")
	}
	return out
}

// OptimizeResult reports what a manual optimization pass reclaimed.
type OptimizeResult struct {
	BytesFreed         uint64   `json:"bytes_freed"`
	AllocationsEvicted int      `json:"allocations_evicted"`
	CompressionApplied bool     `json:"compression_applied"`
	AffectedFeatures   []string `json:"affected_features"`
}

// OptimizeNow runs a compression pass immediately, bypassing the rule
// engine, and evicts low-priority allocations if pressure stays high
// afterwards. The result is appended to the adaptation history.
func (g *Governor) OptimizeNow(ctx context.Context) OptimizeResult {
	result := OptimizeResult{}

	freed := g.tracker.Compress()
	result.BytesFreed += freed
	result.CompressionApplied = freed > 0
	if result.CompressionApplied {
		result.AffectedFeatures = append(result.AffectedFeatures, "cached content compressed")
	}

	status := g.tracker.Status()
	if status.Pressure >= memory.PressureHigh {
		// Bring usage back under the high-water mark.
		target := status.Pool.UsedBytes - uint64(float64(status.Pool.TotalBytes)*0.70)
		evictedBytes, evicted := g.tracker.Evict(target, memory.PriorityHigh)
		result.BytesFreed += evictedBytes
		result.AllocationsEvicted = evicted
		if evicted > 0 {
			result.AffectedFeatures = append(result.AffectedFeatures, "low-priority caches evicted")
		}
	}

	current := g.engine.CurrentProfile()
	g.engine.AppendHistory(adapt.Entry{
		Timestamp:              time.Now(),
		FromProfileID:          current.ID,
		ToProfileID:            current.ID,
		TriggerRuleID:          "manual-optimize",
		MeasuredImprovementPct: improvementPct(result.BytesFreed, status.Pool.TotalBytes),
	})

	g.logger.Info("manual optimization completed",
		slog.Uint64("bytes_freed", result.BytesFreed),
		slog.Int("evicted", result.AllocationsEvicted),
		slog.Bool("compressed", result.CompressionApplied),
	)
	return result
}

func improvementPct(freed, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(freed) / float64(total) * 100
}
