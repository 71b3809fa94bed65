package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/latticefs/core/pkg/config"
	"github.com/latticefs/core/pkg/engine"
	"github.com/latticefs/core/pkg/log"
	"github.com/latticefs/core/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "latticefs",
	Short: "latticefs - a local-first file catalog and job engine",
	Long: `latticefs indexes a directory tree into a content-addressed catalog,
identifies duplicate content, and generates thumbnails, all driven by a
single embedded job runtime.

This CLI talks to the engine in-process; it is an operator tool, not a
client for a remote service.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("latticefs version %s\ncommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Directory holding the catalog, sync log, and thumbnail cache")
	rootCmd.PersistentFlags().Int("job-slots", 0, "Max concurrently running jobs (0 = default)")
	rootCmd.PersistentFlags().Int("task-fan-out", 0, "Max concurrent per-step tasks within a job (0 = default)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(identifyCmd)
	rootCmd.AddCommand(thumbnailCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// loadConfig builds a NodeConfig from the persistent flags, ignoring the
// zero-value overrides so config.Default()'s worker-pool sizing still
// applies unless the operator explicitly asked for something else.
func loadConfig(cmd *cobra.Command) config.NodeConfig {
	cfg := config.Default()

	dataDir, _ := cmd.Flags().GetString("data-dir")
	cfg.DataDir = dataDir

	if slots, _ := cmd.Flags().GetInt("job-slots"); slots > 0 {
		cfg.JobSlots = slots
	}
	if fanOut, _ := cmd.Flags().GetInt("task-fan-out"); fanOut > 0 {
		cfg.TaskFanOut = fanOut
	}
	return cfg
}

// openEngine constructs and starts an Engine for a short-lived CLI
// invocation. The caller must call stop() before returning.
func openEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	cfg := loadConfig(cmd)

	e, err := engine.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if err := e.Start(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return e, func() {
		cancel()
		if err := e.Stop(); err != nil {
			log.Logger.Error().Err(err).Msg("latticefs: error stopping engine")
		}
	}, nil
}

// serveCmd runs the engine as a long-lived process exposing the Prometheus
// metrics endpoint, analogous to the teacher's `cluster init` bringing up
// its own metrics HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and serve metrics until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		e, err := engine.New(cfg)
		if err != nil {
			return fmt.Errorf("construct engine: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := e.Start(ctx); err != nil {
			return fmt.Errorf("start engine: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		srv := &http.Server{Addr: cfg.MetricsListen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("latticefs: metrics server error")
			}
		}()
		log.Logger.Info().Str("addr", cfg.MetricsListen).Msg("latticefs: metrics endpoint listening")

		<-ctx.Done()
		fmt.Println("shutting down...")
		_ = srv.Close()
		return e.Stop()
	},
}
