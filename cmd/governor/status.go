package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	governor "github.com/stablevoice/governor"
	"github.com/stablevoice/governor/adapt"
	"github.com/stablevoice/governor/memory"
	"github.com/stablevoice/governor/profile"
	"github.com/stablevoice/governor/store"
)

var statusDB string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted profile, preferences, and adaptation history",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDB, "db", "governor.db", "SQLite database path")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := store.Open(statusDB)
	if err != nil {
		return err
	}
	defer st.Close()

	var current profile.Profile
	switch err := store.GetJSON(ctx, st, store.KeyCurrentProfile, &current); {
	case err == nil:
		fmt.Printf("profile: %s (%s)\n", current.ID, current.Name)
		fmt.Printf("  audio: %d Hz @ %d bps\n", current.Audio.SampleRate, current.Audio.BitRate)
		fmt.Printf("  memory: %d MB app / %d MB cache\n",
			current.Memory.MaxAppMemoryMB, current.Memory.CacheSizeMB)
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("profile: none persisted")
	default:
		return err
	}

	var prefs governor.StabilityPreferences
	switch err := store.GetJSON(ctx, st, store.KeyStabilityPreferences, &prefs); {
	case err == nil:
		fmt.Printf("preferences: stability=%v notifications=%v\n",
			prefs.PreferStability, prefs.NotificationsEnabled)
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("preferences: none persisted")
	default:
		return err
	}

	var mc memory.Config
	switch err := store.GetJSON(ctx, st, store.KeyMemoryConfig, &mc); {
	case err == nil:
		fmt.Printf("pool: %s total, %s reserved, %s stability buffer\n",
			humanize.IBytes(mc.TotalBytes),
			humanize.IBytes(mc.ReservedBytes),
			humanize.IBytes(mc.StabilityBufferBytes))
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("pool: no persisted config")
	default:
		return err
	}

	var history []adapt.Entry
	switch err := store.GetJSON(ctx, st, store.KeyAdaptationHistory, &history); {
	case err == nil:
		fmt.Printf("history: %d entries\n", len(history))
		for _, e := range history {
			fmt.Printf("  %s  %s: %s -> %s (%.1f%% improvement)\n",
				humanize.Time(e.Timestamp), e.TriggerRuleID,
				e.FromProfileID, e.ToProfileID, e.MeasuredImprovementPct)
		}
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("history: empty")
	default:
		return err
	}

	return nil
}
