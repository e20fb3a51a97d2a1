package adapt

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/stablevoice/governor/profile"
)

// DefaultRules returns the built-in rule set. IDs are stable so history
// entries stay meaningful across releases.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID: "memory-critical-emergency",
			Condition: Condition{
				Metric:   MetricMemory,
				Operator: OpGreaterThan,
				Value:    90,
			},
			Action: Action{
				Kind:         ActionChangeProfile,
				Target:       profile.Emergency,
				Notification: "Memory is critically low. Switched to emergency mode to keep the app responsive.",
			},
			Priority:  0,
			Stability: true,
		},
		{
			ID: "memory-high-reduce-audio",
			Condition: Condition{
				Metric:        MetricMemory,
				Operator:      OpGreaterThan,
				Value:         80,
				MinDurationMS: 10000,
			},
			Action: Action{
				Kind:         ActionAdjustAudio,
				Target:       string(profile.AudioLow),
				Notification: "Reduced audio quality to free up memory.",
			},
			Priority:  1,
			Stability: true,
		},
		{
			ID: "device-old-conservative",
			Condition: Condition{
				Metric:   MetricDeviceAge,
				Operator: OpGreaterThan,
				Value:    4,
			},
			Action: Action{
				Kind:   ActionChangeProfile,
				Target: profile.Conservative,
			},
			Priority:  2,
			Stability: true,
		},
		{
			ID: "framerate-low-simplify-ui",
			Condition: Condition{
				Metric:        MetricFrameRate,
				Operator:      OpLessThan,
				Value:         20,
				MinDurationMS: 5000,
			},
			Action: Action{
				Kind:         ActionAdjustUI,
				Target:       string(profile.UISimple),
				Notification: "Simplified animations to keep the screen smooth.",
			},
			Priority: 1,
		},
		{
			ID: "cpu-high-memory-cleanup",
			Condition: Condition{
				Metric:        MetricCPU,
				Operator:      OpGreaterThan,
				Value:         85,
				MinDurationMS: 10000,
			},
			Action: Action{
				Kind:   ActionAdjustMemory,
				Target: string(profile.MemoryHigh),
			},
			Priority: 2,
		},
		{
			ID: "battery-drain-network-optimize",
			Condition: Condition{
				Metric:   MetricBattery,
				Operator: OpGreaterThan,
				Value:    15,
			},
			Action: Action{
				Kind:         ActionAdjustNetwork,
				Target:       "optimize",
				Notification: "Reduced background network activity to save battery.",
			},
			Priority: 3,
		},
		{
			ID: "interaction-slow-simplify-ui",
			Condition: Condition{
				Metric:     MetricInteraction,
				Operator:   OpBetween,
				Value:      200,
				UpperValue: 10000,
			},
			Action: Action{
				Kind:   ActionAdjustUI,
				Target: string(profile.UISimple),
			},
			Priority: 4,
		},
	}
}

// SortRules orders rules for evaluation: stability-classified rules
// first, then ascending priority, then id for determinism.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Stability != rules[j].Stability {
			return rules[i].Stability
		}
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRulesFile reads a YAML rule set and validates every rule. Rules
// are returned in file order; the engine sorts on SetRules.
func LoadRulesFile(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("adapt: read rules file: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("adapt: parse rules file: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("adapt: rules file %s contains no rules", path)
	}

	seen := make(map[string]bool, len(f.Rules))
	for _, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("adapt: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return f.Rules, nil
}
