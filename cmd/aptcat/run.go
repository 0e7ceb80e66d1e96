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

	"github.com/aptcat/engine/internal/adapter/httpadapter"
	"github.com/aptcat/engine/internal/api"
	"github.com/aptcat/engine/internal/backend/builtin"
	"github.com/aptcat/engine/internal/backend/subprocess"
	"github.com/aptcat/engine/internal/catalog"
	"github.com/aptcat/engine/internal/config"
	"github.com/aptcat/engine/internal/eventbus"
	"github.com/aptcat/engine/internal/executor"
	"github.com/aptcat/engine/internal/sink"
	"github.com/aptcat/engine/internal/telemetry"
	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	runCatalogDir     string
	runTargetURL      string
	runMode           string
	runServe          bool
	runSubprocessCmd  string
	runSubprocessArgs []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load a catalog and evaluate a target",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runCatalogDir, "catalog", "", "directory of YAML item definitions (overrides APTCAT_CATALOG_DIR)")
	runCmd.Flags().StringVar(&runTargetURL, "target", "", "target URL to evaluate (overrides APTCAT_TARGET_URL)")
	runCmd.Flags().StringVar(&runMode, "mode", "adaptive", "execution strategy: adaptive or exhaustive")
	runCmd.Flags().BoolVar(&runServe, "serve", false, "serve the debug/status HTTP surface for the duration of the run")
	runCmd.Flags().StringVar(&runSubprocessCmd, "subprocess-eval", "", "external command to register as an additional backend (item.preferred_backends: [subprocess] selects it)")
	runCmd.Flags().StringArrayVar(&runSubprocessArgs, "subprocess-arg", nil, "argument to pass to --subprocess-eval, repeatable")
}

func runRun(cmd *cobra.Command, _ []string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()
	if runCatalogDir != "" {
		cfg.Catalog.Dir = runCatalogDir
	}
	if runTargetURL != "" {
		cfg.Target.URL = runTargetURL
	}
	if cfg.Catalog.Dir == "" || cfg.Target.URL == "" {
		return fmt.Errorf("aptcat: --catalog and --target are required")
	}

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("aptcat: telemetry init: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	items, err := catalog.Load(cfg.Catalog.Dir)
	if err != nil {
		return fmt.Errorf("aptcat: %w", err)
	}
	log.Info().Int("items", len(items)).Str("dir", cfg.Catalog.Dir).Msg("catalog loaded")

	adapter := httpadapter.New(nil)
	ctx := cmd.Context()
	if err := adapter.Connect(ctx, contracts.TargetConfig{URL: cfg.Target.URL, Timeout: cfg.Target.Timeout}); err != nil {
		return fmt.Errorf("aptcat: connect target: %w", err)
	}
	defer adapter.Disconnect()

	bus := eventbus.New()
	results := sink.NewMemory()
	logRunEvents(bus)

	var durableSink *sink.Postgres
	if cfg.Database.URL != "" {
		durableSink, err = sink.NewPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("aptcat: connect result database: %w", err)
		}
		defer durableSink.Close()
		log.Info().Msg("postgres result sink connected")

		for _, item := range items {
			if err := durableSink.SaveCalibration(ctx, item); err != nil {
				log.Warn().Err(err).Str("item", item.ID).Msg("failed to persist item calibration")
			}
		}
	} else {
		log.Info().Msg("DATABASE_URL not set, results kept in-memory only")
	}

	backends := []contracts.Backend{builtin.New()}
	if runSubprocessCmd != "" {
		backends = append(backends, subprocess.New(runSubprocessCmd, runSubprocessArgs))
		log.Info().Str("command", runSubprocessCmd).Msg("subprocess backend registered")
	}
	eng := executor.New(backends, adapter, bus)

	var httpServer *http.Server
	if runServe {
		httpServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: api.NewRouter(results, bus),
		}
		go func() {
			log.Info().Int("port", cfg.Port).Msg("debug HTTP surface listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("debug HTTP surface failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("interrupted, cancelling run")
		cancel()
	}()

	plan := executor.Plan{Items: items, Config: cfg.Engine}

	var out models.ExecutionResults
	switch runMode {
	case "adaptive":
		out, err = eng.RunAdaptive(runCtx, plan)
	case "exhaustive":
		out, err = eng.RunExhaustive(runCtx, plan)
	default:
		err = fmt.Errorf("unknown mode %q (want adaptive or exhaustive)", runMode)
	}
	if err != nil {
		return fmt.Errorf("aptcat: run failed: %w", err)
	}

	if err := results.SaveEvaluation(context.Background(), out); err != nil {
		log.Warn().Err(err).Msg("failed to save evaluation to result sink")
	}
	if durableSink != nil {
		if err := durableSink.SaveEvaluation(context.Background(), out); err != nil {
			log.Warn().Err(err).Msg("failed to persist evaluation to postgres")
		}
		for _, tr := range out.TestResults {
			if err := durableSink.SaveTestResult(context.Background(), out.EvaluationID, tr); err != nil {
				log.Warn().Err(err).Msg("failed to persist test result to postgres")
			}
		}
		for _, dr := range out.IRTEstimates {
			if err := durableSink.SaveIRTEstimate(context.Background(), out.EvaluationID, dr); err != nil {
				log.Warn().Err(err).Msg("failed to persist irt estimate to postgres")
			}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func logRunEvents(bus *eventbus.Bus) {
	bus.SubscribeAll(func(ev eventbus.Event) {
		log.Debug().Str("event", string(ev.Type)).Interface("payload", ev.Payload).Msg("engine event")
	})
}
