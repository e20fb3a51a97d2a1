package adapt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stablevoice/governor/memory"
	"github.com/stablevoice/governor/monitoring"
	"github.com/stablevoice/governor/profile"
	"github.com/stablevoice/governor/store"
)

// adaptationsKey is the rate-limiter key for the global hourly budget.
const adaptationsKey = "adaptations"

// State is the engine's position in its Idle -> Evaluating -> Applying
// loop.
type State int

const (
	StateIdle State = iota
	StateEvaluating
	StateApplying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateApplying:
		return "applying"
	default:
		return "unknown"
	}
}

// Config configures the engine's timers and budget.
type Config struct {
	EvaluateInterval      time.Duration `json:"evaluate_interval"`
	MaintenanceInterval   time.Duration `json:"maintenance_interval"`
	MaxAdaptationsPerHour int           `json:"max_adaptations_per_hour"`
	MaxAllocationAge      time.Duration `json:"max_allocation_age"`
	NotificationsEnabled  bool          `json:"notifications_enabled"`
}

// DefaultConfig returns the standard timer settings.
func DefaultConfig() Config {
	return Config{
		EvaluateInterval:      5 * time.Second,
		MaintenanceInterval:   60 * time.Second,
		MaxAdaptationsPerHour: 3,
		MaxAllocationAge:      30 * time.Minute,
		NotificationsEnabled:  true,
	}
}

// ConstrainedConfig tightens the timers for low-tier devices.
func ConstrainedConfig() Config {
	cfg := DefaultConfig()
	cfg.EvaluateInterval = 3 * time.Second
	cfg.MaintenanceInterval = 30 * time.Second
	return cfg
}

// Validate checks timer and budget sanity.
func (c Config) Validate() error {
	if c.EvaluateInterval <= 0 || c.MaintenanceInterval <= 0 {
		return fmt.Errorf("adapt: intervals must be positive")
	}
	if c.MaxAdaptationsPerHour < 1 {
		return fmt.Errorf("adapt: max adaptations per hour must be at least 1")
	}
	if c.MaxAllocationAge <= 0 {
		return fmt.Errorf("adapt: max allocation age must be positive")
	}
	return nil
}

// Deps are the engine's collaborators. Tracker, Registry, and Source
// are required; the rest default to no-ops.
type Deps struct {
	Tracker  *memory.Tracker
	Registry *profile.Registry
	Source   monitoring.MetricsSource
	Store    store.Store
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *monitoring.Metrics
}

// Engine evaluates the rule set on a timer and applies at most one rule
// per tick, capped per hour by the rate limiter.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	rules    []Rule
	tracker  *memory.Tracker
	registry *profile.Registry
	source   monitoring.MetricsSource
	st       store.Store
	notifier Notifier
	limiter  *RateLimiter
	history  *History

	current          profile.Profile
	firstTrue        map[string]time.Time
	state            State
	notifiedThisTick bool

	running bool
	stopCh  chan struct{}

	logger  *slog.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewEngine creates an engine with the default rule set, starting on
// the balanced profile until the caller selects another.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Tracker == nil || deps.Registry == nil || deps.Source == nil {
		return nil, fmt.Errorf("adapt: tracker, registry, and metrics source are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{Logger: deps.Logger}
	}

	initial, _ := deps.Registry.ByID(profile.Balanced)

	e := &Engine{
		cfg:       cfg,
		tracker:   deps.Tracker,
		registry:  deps.Registry,
		source:    deps.Source,
		st:        deps.Store,
		notifier:  deps.Notifier,
		limiter:   NewRateLimiter(cfg.MaxAdaptationsPerHour, time.Hour),
		history:   NewHistory(),
		current:   initial,
		firstTrue: make(map[string]time.Time),
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       time.Now,
	}
	if err := e.SetRules(DefaultRules()); err != nil {
		return nil, err
	}
	return e, nil
}

// SetRules validates and installs a rule set, sorted for evaluation.
func (e *Engine) SetRules(rules []Rule) error {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	for _, r := range sorted {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	SortRules(sorted)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = sorted
	return nil
}

// Rules returns a copy of the installed rule set in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// CurrentProfile returns the active profile.
func (e *Engine) CurrentProfile() profile.Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// SetCurrentProfile replaces the active profile, for initial selection
// and manual overrides.
func (e *Engine) SetCurrentProfile(p profile.Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = p
	e.metrics.SetActiveProfile(p.ID, e.registry.IDs())
}

// History returns a copy of the adaptation log.
func (e *Engine) History() []Entry { return e.history.Entries() }

// HistorySince returns entries within the given window.
func (e *Engine) HistorySince(window time.Duration) []Entry {
	return e.history.Since(window)
}

// AppendHistory records an adaptation made outside the rule loop, such
// as a manual optimization, and persists the log. The entry counts
// against the hourly adaptation budget like any rule firing.
func (e *Engine) AppendHistory(entry Entry) {
	e.history.Append(entry)
	e.limiter.RecordAt(adaptationsKey, entry.Timestamp)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistLocked()
}

// State returns the engine's loop state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LoadPersisted restores history and the active profile from the store.
// Missing records are normal on first run; corrupt records are logged
// and skipped, in-memory defaults stay authoritative.
func (e *Engine) LoadPersisted(ctx context.Context) {
	if e.st == nil {
		return
	}

	var entries []Entry
	switch err := store.GetJSON(ctx, e.st, store.KeyAdaptationHistory, &entries); {
	case err == nil:
		e.history.Load(entries)
		for _, en := range e.history.Since(time.Hour) {
			e.limiter.RecordAt(adaptationsKey, en.Timestamp)
		}
	case !errors.Is(err, store.ErrNotFound):
		e.logger.Warn("failed to load adaptation history", slog.String("error", err.Error()))
	}

	var p profile.Profile
	switch err := store.GetJSON(ctx, e.st, store.KeyCurrentProfile, &p); {
	case err == nil:
		if _, ok := e.registry.ByID(p.ID); ok {
			e.SetCurrentProfile(p)
		} else {
			e.logger.Warn("persisted profile unknown, keeping default", slog.String("profile", p.ID))
		}
	case !errors.Is(err, store.ErrNotFound):
		e.logger.Warn("failed to load current profile", slog.String("error", err.Error()))
	}
}

// Start launches the evaluate and maintenance loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("adapt: engine already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})

	go e.evaluateLoop(ctx, e.stopCh)
	go e.maintenanceLoop(ctx, e.stopCh)

	e.logger.Info("adaptation engine started",
		slog.Duration("evaluate_interval", e.cfg.EvaluateInterval),
		slog.Duration("maintenance_interval", e.cfg.MaintenanceInterval),
		slog.Int("rules", len(e.rules)),
		slog.String("profile", e.current.ID),
	)
	return nil
}

// Stop halts both loops and flushes history once. Safe to call
// repeatedly.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.flush()
	e.logger.Info("adaptation engine stopped")
}

// flush writes history and the active profile synchronously.
func (e *Engine) flush() {
	if e.st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries := e.history.Entries()
	current := e.CurrentProfile()
	if err := store.SetJSON(ctx, e.st, store.KeyAdaptationHistory, entries); err != nil {
		e.logger.Error("final history flush failed", slog.String("error", err.Error()))
	}
	if err := store.SetJSON(ctx, e.st, store.KeyCurrentProfile, current); err != nil {
		e.logger.Error("final profile flush failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) evaluateLoop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.EvaluateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			e.EvaluateTick(ctx)
		}
	}
}

func (e *Engine) maintenanceLoop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			e.MaintenanceTick()
		}
	}
}

// MaintenanceTick sweeps stale allocations without consulting the rule
// set.
func (e *Engine) MaintenanceTick() {
	e.tracker.SweepOlderThan(e.cfg.MaxAllocationAge)
}

// EvaluateTick runs one pass over the rule set. The first rule whose
// condition holds is applied; at most one rule fires per tick, and the
// whole tick is skipped when the hourly budget is spent.
func (e *Engine) EvaluateTick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = StateEvaluating
	defer func() { e.state = StateIdle }()
	e.notifiedThisTick = false

	if !e.limiter.Allow(adaptationsKey) {
		e.logger.Debug("adaptation budget exhausted, skipping tick",
			slog.Int("recent", e.limiter.Count(adaptationsKey)),
			slog.Int("max_per_hour", e.cfg.MaxAdaptationsPerHour),
		)
		return
	}

	sample := e.source.Sample()
	status := e.tracker.Status()
	now := e.now()

	for _, rule := range e.rules {
		value, err := metricValue(rule.Condition.Metric, sample, status)
		if err != nil {
			// Remaining rules are skipped for this cycle; the next
			// tick starts over.
			e.logger.Error("rule evaluation failed",
				slog.String("rule", rule.ID),
				slog.String("error", err.Error()),
			)
			return
		}

		if !rule.Condition.Met(value) {
			delete(e.firstTrue, rule.ID)
			continue
		}

		if d := rule.Condition.MinDuration(); d > 0 {
			first, seen := e.firstTrue[rule.ID]
			if !seen {
				e.firstTrue[rule.ID] = now
				continue
			}
			if now.Sub(first) < d {
				continue
			}
		}

		applied, err := e.applyLocked(ctx, rule, status)
		if err != nil {
			e.logger.Error("rule action failed",
				slog.String("rule", rule.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		if applied {
			delete(e.firstTrue, rule.ID)
			return
		}
		// Action was a no-op (already at the target); keep evaluating.
	}
}

// applyLocked executes a rule's action against the current profile.
// Returns false with no error when the action would not change
// anything.
func (e *Engine) applyLocked(ctx context.Context, rule Rule, status memory.Status) (bool, error) {
	e.state = StateApplying

	from := e.current
	var to profile.Profile
	var improvement float64

	switch rule.Action.Kind {
	case ActionChangeProfile:
		next, ok := e.registry.ByID(rule.Action.Target)
		if !ok {
			return false, fmt.Errorf("adapt: rule %s targets unknown profile %q", rule.ID, rule.Action.Target)
		}
		if next.ID == from.ID {
			return false, nil
		}
		to = next
		if to.Memory.AggressiveCleanup {
			freed := e.tracker.Compress()
			improvement = freedPct(freed, status.Pool.TotalBytes)
		} else if from.Memory.MaxAppMemoryMB > to.Memory.MaxAppMemoryMB {
			improvement = float64(from.Memory.MaxAppMemoryMB-to.Memory.MaxAppMemoryMB) /
				float64(from.Memory.MaxAppMemoryMB) * 100
		}

	case ActionAdjustAudio:
		to = profile.AdjustAudio(from, profile.AudioLevel(rule.Action.Target))

	case ActionAdjustUI:
		to = profile.AdjustUI(from, profile.UIComplexity(rule.Action.Target))

	case ActionAdjustMemory:
		to = profile.AdjustMemory(from, profile.MemoryAggression(rule.Action.Target))
		if profile.MemoryAggression(rule.Action.Target) == profile.MemoryHigh {
			freed := e.tracker.Compress()
			improvement = freedPct(freed, status.Pool.TotalBytes)
		}

	case ActionAdjustNetwork:
		to = profile.AdjustNetwork(from, rule.Action.Target == "optimize")

	default:
		return false, fmt.Errorf("adapt: rule %s has unknown action kind %q", rule.ID, rule.Action.Kind)
	}

	if rule.Action.Kind != ActionChangeProfile && to == from {
		return false, nil
	}

	e.current = to

	notified := false
	if msg := rule.Action.Notification; msg != "" && e.cfg.NotificationsEnabled && !e.notifiedThisTick {
		if err := e.notifier.Notify(ctx, msg); err != nil {
			e.logger.Error("notification failed",
				slog.String("rule", rule.ID),
				slog.String("error", err.Error()),
			)
		} else {
			notified = true
			e.notifiedThisTick = true
		}
	}

	e.history.Append(Entry{
		Timestamp:              e.now(),
		FromProfileID:          from.ID,
		ToProfileID:            to.ID,
		TriggerRuleID:          rule.ID,
		UserNotified:           notified,
		MeasuredImprovementPct: improvement,
	})
	e.limiter.Record(adaptationsKey)

	if e.metrics != nil {
		e.metrics.AdaptationsTotal.WithLabelValues(rule.ID).Inc()
	}
	e.metrics.SetActiveProfile(to.ID, e.registry.IDs())

	e.logger.Info("adaptation applied",
		slog.String("rule", rule.ID),
		slog.String("from_profile", from.ID),
		slog.String("to_profile", to.ID),
		slog.Float64("improvement_pct", improvement),
	)

	e.persistLocked()
	return true, nil
}

// persistLocked saves history and the active profile fire-and-forget:
// a slow or failed write never stalls the tick.
func (e *Engine) persistLocked() {
	if e.st == nil {
		return
	}
	entries := e.history.Entries()
	current := e.current

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := store.SetJSON(ctx, e.st, store.KeyAdaptationHistory, entries); err != nil {
			e.logger.Error("history save failed, in-memory state remains authoritative",
				slog.String("error", err.Error()))
		}
		if err := store.SetJSON(ctx, e.st, store.KeyCurrentProfile, current); err != nil {
			e.logger.Error("profile save failed, in-memory state remains authoritative",
				slog.String("error", err.Error()))
		}
	}()
}

func freedPct(freed, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(freed) / float64(total) * 100
}
