// Command governor runs the adaptive resource governor standalone: a
// simulated control loop for development, a status inspector for a
// persisted database, and a small HTTP server exposing status and
// Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Adaptive resource governor for voice-notes apps on constrained devices",
	Long: "governor tracks logical memory allocations, classifies pressure, and\n" +
		"applies rule-driven quality adaptations. This CLI simulates the control\n" +
		"loop, inspects persisted state, and serves status over HTTP.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}
