package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/hiddenreplies/chat-annotator/annotate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	var callLog *annotate.CallLog
	defer func() { shutdown(logger, callLog) }()

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && !cfg.DryRun {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key, or use -dry-run)")
		shutdown(logger, callLog)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := annotate.ListInputFiles(cfg.InputPath)
	if err != nil {
		logger.Error("resolve input", zap.String("input", cfg.InputPath), zap.Error(err))
		shutdown(logger, callLog)
		os.Exit(2)
	}

	runID := uuid.New().String()
	if cfg.LogDB != "" {
		callLog, err = annotate.OpenCallLog(cfg.LogDB, runID, cfg.Model)
		if err != nil {
			logger.Error("open call log", zap.String("path", cfg.LogDB), zap.Error(err))
			shutdown(logger, callLog)
			os.Exit(1)
		}
	}

	var annotator annotate.BatchAnnotator
	if !cfg.DryRun {
		client := openai.NewClient(option.WithAPIKey(apiKey))
		annotator = annotate.NewOpenAIBatchAnnotator(&client, cfg.Model, logger)
	}

	pipeline := &annotate.Pipeline{
		Model:      cfg.Model,
		BatchSize:  cfg.BatchSize,
		NumWorkers: cfg.NumWorkers,
		DryRun:     cfg.DryRun,
		Resume:     cfg.Resume,
		Annotator:  annotator,
		Logger:     logger,
		CallLog:    callLog,
	}

	logger.Info("annotate start",
		zap.String("run_id", runID),
		zap.String("model", cfg.Model),
		zap.Int("files", len(files)),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Bool("resume", cfg.Resume))

	var allRows []annotate.LabelRecord
	for _, path := range files {
		outPath, rows, err := pipeline.ProcessFile(ctx, path)
		if err != nil {
			logger.Error("process file", zap.String("input", path), zap.Error(err))
			shutdown(logger, callLog)
			os.Exit(1)
		}
		logger.Info("wrote annotations", zap.String("output", outPath), zap.Int("records", len(rows)))
		allRows = append(allRows, rows...)
	}

	if cfg.CombinedCSV != "" {
		if err := annotate.WriteCombinedCSV(cfg.CombinedCSV, allRows); err != nil {
			logger.Error("write combined csv", zap.String("path", cfg.CombinedCSV), zap.Error(err))
			shutdown(logger, callLog)
			os.Exit(1)
		}
		logger.Info("combined csv written", zap.String("path", cfg.CombinedCSV), zap.Int("rows", len(allRows)))
	}

	logger.Info("annotate done", zap.String("run_id", runID), zap.Int("records", len(allRows)))
}

// shutdown flushes the logger and closes the call log. Fatal paths call it
// explicitly before os.Exit, which skips deferred calls.
func shutdown(logger *zap.Logger, callLog *annotate.CallLog) {
	_ = callLog.Close()
	_ = logger.Sync()
}
