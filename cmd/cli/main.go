package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/emirozbir/micro-triage/internal/agent"
	"github.com/emirozbir/micro-triage/internal/config"
	"github.com/emirozbir/micro-triage/internal/database"
	"github.com/emirozbir/micro-triage/internal/formatter"
	"github.com/emirozbir/micro-triage/internal/models"
	"github.com/emirozbir/micro-triage/internal/normalize"
	"github.com/emirozbir/micro-triage/internal/notify"
	"github.com/emirozbir/micro-triage/internal/ui"
)

func main() {
	input := flag.String("input", "", "JSON file with an array of raw alerts ('-' for stdin)")
	collect := flag.Bool("collect", false, "Collect alerts from the configured sources instead of -input")
	configPath := flag.String("config", "", "Path to config file")
	dbPath := flag.String("db", "", "SQLite archive to write results to (disabled when empty)")
	outputPath := flag.String("output", "", "Write the JSON report to this file")
	outputFormat := flag.String("format", "pretty", "Output format: 'pretty' or 'json'")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	notifyFlag := flag.Bool("notify", false, "Dispatch Slack messages, GitHub issues and emails for ticket-worthy alerts")
	digest := flag.Bool("digest", false, "Mail the archive digest from -db and exit")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")

	flag.Parse()

	if *input == "" && !*collect && !*digest {
		log.Fatal("Either -input, -collect or -digest is required")
	}
	if *digest && *dbPath == "" {
		log.Fatal("-digest requires -db")
	}
	if *outputFormat != "pretty" && *outputFormat != "json" {
		log.Fatalf("Unknown output format %q", *outputFormat)
	}

	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *notifyFlag {
		cfg.Notify.Enabled = true
	}

	var store agent.Store
	if *dbPath != "" {
		db, err := database.New(*dbPath)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer db.Close()
		store = db
	}

	// Initialize agent
	agentInstance, err := agent.NewAgent(cfg, logger, store)
	if err != nil {
		logger.Fatal("Failed to create agent", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *digest {
		err := agentInstance.SendDigest(ctx)
		switch {
		case errors.Is(err, notify.ErrDryRun):
			fmt.Println("📋 Digest rendered in dry-run mode, set EMAIL_USER, EMAIL_PASSWORD and EMAIL_RECIPIENTS to send it")
		case err != nil:
			logger.Fatal("Failed to send digest", zap.Error(err))
		default:
			fmt.Println("📧 Digest sent")
		}
		return
	}

	var raws []models.RawAlert
	if *collect {
		if !agentInstance.HasSources() {
			logger.Fatal("No collectors configured: set alertmanager.url or kubernetes.enabled")
		}
		raws, err = agentInstance.Collect(ctx)
		if err != nil && len(raws) == 0 {
			logger.Fatal("Collection failed", zap.Error(err))
		}
	} else {
		raws, err = readAlerts(*input)
		if err != nil {
			logger.Fatal("Failed to read alerts", zap.Error(err))
		}
		if err := normalize.ValidateAll(raws); err != nil {
			logger.Fatal("Invalid alerts", zap.Error(err))
		}
	}

	pretty := *outputFormat == "pretty"
	var progress ui.ProgressReporter = &agent.NoOpProgressReporter{}
	var sp *ui.SpinnerProgress
	if pretty {
		sp = ui.NewSpinnerProgress()
		sp.Start(fmt.Sprintf("Triaging %d alerts...", len(raws)))
		progress = sp
	}

	report, err := agentInstance.ProcessBatch(ctx, raws, progress)
	if sp != nil {
		sp.Done(fmt.Sprintf("%d alerts triaged", len(raws)))
	}
	if err != nil {
		logger.Warn("Batch completed with errors", zap.Error(err))
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal("Failed to marshal result", zap.Error(err))
	}
	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, output, 0o644); err != nil {
			logger.Fatal("Failed to write report", zap.Error(err))
		}
	}

	// Output result
	if !pretty {
		fmt.Println(string(output))
		return
	}

	outputFormatter := formatter.NewFormatter(!*noColor)
	fmt.Println(outputFormatter.FormatBatchResult(report.BatchResult))
	if report.Notifications != nil {
		fmt.Println(outputFormatter.FormatNotifications(*report.Notifications))
	}
	if *outputPath != "" {
		fmt.Printf("📄 Report written to %s\n", *outputPath)
	}
}

func readAlerts(path string) ([]models.RawAlert, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var raws []models.RawAlert
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return raws, nil
}
