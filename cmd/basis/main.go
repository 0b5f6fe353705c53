package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/basis/internal/control"
	"github.com/vietddude/basis/internal/core/config"
	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/chain"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	userID := flag.String("user", "", "User ID to operate on")
	action := flag.String("action", "serve", "Action: serve, sync, report")
	method := flag.String("method", "fifo", "Cost basis method: fifo, lifo")
	taxYear := flag.Int("tax-year", 0, "Tax year filter (0 = all)")
	fromBlock := flag.Uint64("from-block", 0, "Start block for sync")
	toBlock := flag.Uint64("to-block", 0, "End block for sync (0 = latest)")
	limit := flag.Int("limit", 0, "Max transactions per wallet (0 = adapter default)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	slog.Info("Logger initialized", "level", slogLevel.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer, err := control.NewSyncer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize syncer", "error", err)
		os.Exit(1)
	}
	defer syncer.Close()

	switch *action {
	case "sync":
		runSync(ctx, syncer, *userID, chain.TxQuery{
			FromBlock: *fromBlock,
			ToBlock:   *toBlock,
			Limit:     *limit,
		})
	case "report":
		runReport(ctx, syncer, *userID, control.ReportOptions{
			Method:  domain.Method(*method),
			TaxYear: *taxYear,
		})
	case "serve":
		serve(syncer, cfg.Server.Port)
	default:
		slog.Error("Unknown action", "action", *action)
		os.Exit(1)
	}
}

func runSync(ctx context.Context, syncer *control.Syncer, userID string, q chain.TxQuery) {
	if userID == "" {
		slog.Error("sync requires -user")
		os.Exit(1)
	}

	report, err := syncer.SyncUser(ctx, userID, q)
	if err != nil {
		slog.Error("Sync failed", "error", err)
		os.Exit(1)
	}

	for _, w := range report.Wallets {
		if w.Err != nil {
			slog.Warn("Wallet sync failed",
				"chain", w.Chain, "address", w.Address, "reason", w.Reason, "error", w.Err)
			continue
		}
		slog.Info("Wallet synced",
			"chain", w.Chain, "address", w.Address,
			"fetched", w.Fetched, "saved", w.Saved, "skipped", w.ParseFailures)
	}
	if failed := report.Failed(); len(failed) > 0 {
		slog.Warn("Sync finished with failures", "failed", len(failed), "total", len(report.Wallets))
		os.Exit(1)
	}
	slog.Info("Sync complete", "wallets", len(report.Wallets))
}

func runReport(ctx context.Context, syncer *control.Syncer, userID string, opts control.ReportOptions) {
	if userID == "" {
		slog.Error("report requires -user")
		os.Exit(1)
	}

	report, err := syncer.Report(ctx, userID, opts)
	if err != nil {
		slog.Error("Report failed", "error", err)
		os.Exit(1)
	}

	if report.UnpricedEntries > 0 {
		slog.Warn("Some transactions lacked price data and were treated as zero cost",
			"count", report.UnpricedEntries)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report.Results); err != nil {
		slog.Error("Failed to encode report", "error", err)
		os.Exit(1)
	}
}

func serve(syncer *control.Syncer, port int) {
	server := control.NewServer(syncer, port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Metrics server listening", "port", port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
		}
	}()

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("Stopped gracefully")
}
