package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	governor "github.com/stablevoice/governor"
	"github.com/stablevoice/governor/memory"
	"github.com/stablevoice/governor/monitoring"
	"github.com/stablevoice/governor/store"
)

var (
	simulateDuration time.Duration
	simulateDB       string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the control loop against a synthetic ramping workload",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().DurationVar(&simulateDuration, "duration", 60*time.Second, "how long to run the simulation")
	simulateCmd.Flags().StringVar(&simulateDB, "db", "", "SQLite database path (in-memory when empty)")
}

// rampSource ramps CPU and frame time up over the run so the default
// rules fire in sequence.
type rampSource struct {
	start time.Time
	total time.Duration
}

func (r *rampSource) Sample() monitoring.Sample {
	progress := float64(time.Since(r.start)) / float64(r.total)
	if progress > 1 {
		progress = 1
	}

	return monitoring.Sample{
		CPUPct:                 20 + 70*progress,
		AvgFrameTimeMS:         16 + 84*progress, // 62fps down to 10fps
		BatteryDrainPctPerHour: 5 + 20*progress,
		UIResponseMS:           50 + 450*progress,
		EstimatedRAMMB:         2048,
		DeviceTier:             monitoring.TierMedium,
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openStore(simulateDB)
	if err != nil {
		return err
	}
	defer st.Close()

	cfg := governor.ConstrainedConfig()
	cfg.Adapt.EvaluateInterval = time.Second
	cfg.Adapt.MaintenanceInterval = 10 * time.Second

	g, err := governor.New(ctx, cfg, governor.Deps{
		Source:  &rampSource{start: time.Now(), total: simulateDuration},
		Store:   st,
		Metrics: monitoring.NewMetrics(),
	})
	if err != nil {
		return err
	}

	if err := g.Start(ctx); err != nil {
		return err
	}
	defer g.StopMonitoring()

	fmt.Fprintf(os.Stderr, "simulating for %s (profile %s)\n",
		simulateDuration, g.GetCurrentProfile().ID)

	// Grow the allocation table as the simulation runs so memory
	// pressure ramps alongside the synthetic metrics.
	pool := g.GetMemoryStatus().Pool
	chunk := pool.TotalBytes / 20

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.After(simulateDuration)

	seen := 0
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			report := g.GetPerformanceReport()
			fmt.Printf("\nfinal profile: %s\n", report.CurrentProfile.ID)
			fmt.Printf("adaptations: %d (avg improvement %.1f%%)\n",
				report.AdaptationsToday, report.AvgImprovementPct)
			for _, opt := range report.ActiveOptimizations {
				fmt.Printf("  active: %s\n", opt)
			}
			return nil
		case <-ticker.C:
			id := fmt.Sprintf("sim-chunk-%d", i)
			size := chunk + uint64(i%3)*chunk/4
			kind := memory.KindCache
			if i%3 == 0 {
				kind = memory.KindTranscription
			}
			ok := g.Allocate(id, size, kind, memory.PriorityMedium, false)

			status := g.GetMemoryStatus()
			fmt.Printf("t+%02ds alloc %s %s ok=%v usage=%.0f%% pressure=%s\n",
				i+1, id, humanize.IBytes(size), ok,
				status.Pool.UsageRatio()*100, status.Pressure)

			for _, entry := range g.GetAdaptationHistory()[seen:] {
				fmt.Printf("      ADAPTED %s: %s -> %s\n",
					entry.TriggerRuleID, entry.FromProfileID, entry.ToProfileID)
				seen++
			}
		}
	}
}

func openStore(path string) (store.Store, error) {
	if path == "" {
		return store.OpenMemory()
	}
	return store.Open(path)
}
