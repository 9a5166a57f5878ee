package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/ecochamber/config"
	"github.com/pthm-cable/ecochamber/experiment"
	"github.com/pthm-cable/ecochamber/export"
	"github.com/pthm-cable/ecochamber/organism"
	"github.com/pthm-cable/ecochamber/telemetry"
)

const serviceName = "ecochamber"

// app holds everything a command needs around the session.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *experiment.Session
	store   *export.Store
	output  *telemetry.OutputManager
	server  *http.Server

	shutdownTracing func(context.Context) error
}

// setup loads configuration, applies flag overrides and builds the session
// with its exporter, metrics and tracing.
func setup(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	seed, _ := cmd.Flags().GetInt64("seed")
	dbPath, _ := cmd.Flags().GetString("db")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	logStats, _ := cmd.Flags().GetBool("log-stats")

	// JSON to stdout for structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Cfg()
	if seed != 0 {
		cfg.Seed = seed
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if dbPath != "" {
		cfg.Export.Path = dbPath
	}
	if outputDir != "" {
		cfg.Telemetry.OutputDir = outputDir
	}
	if metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = metricsAddr
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	var err error
	a.shutdownTracing, err = telemetry.SetupTracing(cmd.Context(), cfg.Telemetry.OTLPEndpoint, serviceName)
	if err != nil {
		return nil, err
	}

	cat, err := organism.FromConfig(cfg.Organisms)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, cat.Len())
	for _, k := range cat.Kinds() {
		names = append(names, cat.PropertiesOf(k).Name)
	}
	metrics := telemetry.NewMetrics(names)
	if cfg.Telemetry.MetricsAddr != "" {
		a.server = &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", cfg.Telemetry.MetricsAddr)
	}

	if a.output, err = telemetry.NewOutputManager(cfg.Telemetry.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output manager: %w", err)
	}
	if err := a.output.WriteConfig(cfg); err != nil {
		logger.Warn("failed to write config snapshot", "error", err)
	}

	runID := uuid.NewString()
	var adapter export.Adapter
	if cfg.Export.Path != "" {
		if a.store, err = export.OpenStore(cfg.Export.Path, runID); err != nil {
			return nil, err
		}
		adapter = a.store
	}

	a.session, err = experiment.New(experiment.Options{
		Config:  cfg,
		Catalog: cat,
		Adapter: adapter,
		Logger:  logger,
		Metrics: metrics,
		RunID:   runID,
		OnWindow: func(ws telemetry.WindowStats) {
			if logStats {
				logger.Info("stats", "window", ws)
			}
			if err := a.output.WriteWindow(ws); err != nil {
				logger.Warn("failed to write window", "error", err)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	logger.Info("session started",
		"run_id", runID,
		"seed", cfg.Seed,
		"db", cfg.Export.Path,
		"output_dir", a.output.Dir(),
	)
	ok = true
	return a, nil
}

// close tears down in reverse order. The session drains its export queue
// before the store is closed.
func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
	if err := a.output.Close(); err != nil {
		a.logger.Warn("closing output", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.server != nil {
		_ = a.server.Shutdown(ctx)
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("flushing traces", "error", err)
		}
	}
}

// printState writes a short human summary of the chamber.
func (a *app) printState(cmd *cobra.Command) {
	st := a.session.State()
	cat := a.session.Catalog()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "experiment %d  time %d  light %v\n", st.ExperimentID, st.Time, st.Light)
	fmt.Fprintf(out, "  O2  %.0f (sensor %.0f)\n", st.O2, st.O2Sensor)
	fmt.Fprintf(out, "  CO2 %.0f (sensor %.0f)\n", st.CO2, st.CO2Sensor)
	for _, k := range cat.Kinds() {
		p := cat.PropertiesOf(k)
		pop := st.Population(k)
		fmt.Fprintf(out, "  %-8s %d (food %.0f%%)\n", p.Label, pop.Count, pop.StoredFood)
	}
}
