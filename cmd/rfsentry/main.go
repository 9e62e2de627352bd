package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/rfsentry/rfsentry/internal/api"
	"github.com/rfsentry/rfsentry/internal/config"
	"github.com/rfsentry/rfsentry/internal/correlate"
	"github.com/rfsentry/rfsentry/internal/detect"
	"github.com/rfsentry/rfsentry/internal/ingest"
	"github.com/rfsentry/rfsentry/internal/metrics"
	"github.com/rfsentry/rfsentry/internal/normalize"
	"github.com/rfsentry/rfsentry/internal/sink"
	"github.com/rfsentry/rfsentry/internal/store"
)

var version = "0.3.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rfsentry",
	Short: "Passive Wi-Fi rogue-AP detection engine",
	Long: `rfsentry observes nearby access points over time and flags signatures
of active attacks against Wi-Fi clients: evil-twin SSID impersonation,
karma/MANA probe luring, and pineapple-style rogue hardware.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detection engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("rfsentry", version)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	// Environment overrides land after the file is validated, so they get
	// their own validation pass.
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting rfsentry",
		"version", version,
		"http_addr", cfg.HTTPAddr,
		"nats_url", cfg.NATSURL,
		"scan_subject", cfg.ScanSubject,
		"findings_subject", cfg.FindingsSubject,
		"max_networks", cfg.Store.MaxNetworks,
		"grace_cycles", cfg.Engine.GraceCycles)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("rfsentry"))
	if err != nil {
		logger.Error("Failed to connect to NATS", "url", cfg.NATSURL, "error", err)
		return err
	}
	defer nc.Close()
	logger.Info("Connected to NATS")

	m := metrics.New()
	obsStore := store.NewObservationStore(
		cfg.Store.MaxNetworks,
		cfg.Store.ChannelHistoryCap,
		cfg.Store.Retention(),
		cfg.Store.StaleAfter(),
		logger,
	)
	audit := store.NewFindingAudit(cfg.Engine.AuditCap)

	detectors := []detect.Detector{
		detect.NewEvilTwinDetector(cfg.EvilTwin, logger),
		detect.NewKarmaDetector(cfg.Karma, logger),
		detect.NewPineappleDetector(cfg.Pineapple, logger),
	}

	findingSink := sink.NewMultiSink(logger,
		sink.NewLogSink(logger),
		sink.NewNATSSink(nc, cfg.FindingsSubject, logger),
	)

	engine := correlate.NewEngine(
		normalize.New(logger),
		obsStore,
		detectors,
		findingSink,
		audit,
		cfg.Engine.GraceCycles,
		m,
		logger,
	)

	httpAPI := api.NewHTTPAPI(engine, obsStore, audit)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpAPI.Router(),
	}
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	subscriber := ingest.NewSubscriber(nc, engine, cfg.ScanSubject, "rfsentry", logger)
	runErr := subscriber.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	logger.Info("rfsentry stopped")
	return runErr
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
