package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	governor "github.com/stablevoice/governor"
	"github.com/stablevoice/governor/monitoring"
)

var (
	serveAddr string
	serveDB   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the governor and expose status and metrics over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "listen address")
	serveCmd.Flags().StringVar(&serveDB, "db", "governor.db", "SQLite database path")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openStore(serveDB)
	if err != nil {
		return err
	}
	defer st.Close()

	metrics := monitoring.NewMetrics()
	g, err := governor.New(ctx, governor.DefaultConfig(), governor.Deps{
		Source:  monitoring.RuntimeSource{},
		Store:   st,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	if err := g.Start(ctx); err != nil {
		return err
	}
	defer g.StopMonitoring()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"memory":  g.GetMemoryStatus(),
			"profile": g.GetCurrentProfile(),
			"report":  g.GetPerformanceReport(),
		})
	})
	r.Get("/history", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(g.GetAdaptationHistory())
	})
	r.Post("/optimize", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(g.OptimizeNow(req.Context()))
	})
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    serveAddr,
		Handler: r,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "governor serving on %s (db %s)\n", serveAddr, serveDB)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
