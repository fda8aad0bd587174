package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hiddenreplies/chat-annotator/annotate"
)

type Config struct {
	InputPath   string
	Model       string
	BatchSize   int
	NumWorkers  int
	DryRun      bool
	Resume      bool
	CombinedCSV string
	LogDB       string
	APIKey      string
	ConfigFile  string
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -input")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch-size must be > 0")
	}
	if c.NumWorkers <= 0 {
		return errors.New("num-workers must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Model:      "gpt-4o-mini",
		BatchSize:  annotate.DefaultBatchSize,
		NumWorkers: 8,
		Resume:     true,
	}
}

// fileConfig mirrors the flag surface for the optional YAML config file.
// Explicitly set flags always win over file values.
type fileConfig struct {
	Input       *string `yaml:"input"`
	Model       *string `yaml:"model"`
	BatchSize   *int    `yaml:"batch_size"`
	NumWorkers  *int    `yaml:"num_workers"`
	DryRun      *bool   `yaml:"dry_run"`
	Resume      *bool   `yaml:"resume"`
	CombinedCSV *string `yaml:"combined_csv"`
	LogDB       *string `yaml:"log_db"`
	APIKey      *string `yaml:"api_key"`
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	noResume := false
	fs.StringVar(&cfg.InputPath, "input", cfg.InputPath, "Path to chat.json or a folder of chat export JSON files")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Messages per LLM call")
	fs.IntVar(&cfg.NumWorkers, "num-workers", cfg.NumWorkers, "Concurrent batches in flight")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Heuristics-only mode (no LLM calls)")
	fs.BoolVar(&noResume, "no-resume", false, "Ignore existing sentiment output and reprocess everything")
	fs.StringVar(&cfg.CombinedCSV, "combined-csv", cfg.CombinedCSV, "Optional path for a combined CSV of all labels")
	fs.StringVar(&cfg.LogDB, "log-db", cfg.LogDB, "Optional SQLite path for the batch call log")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Optional YAML config file (flags win over file values)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Resume = !noResume

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if cfg.ConfigFile != "" {
		if err := applyConfigFile(&cfg, cfg.ConfigFile, set); err != nil {
			return Config{}, err
		}
	}

	// An empty input must stay empty so Validate can reject it; Clean would
	// turn it into ".".
	if cfg.InputPath != "" {
		cfg.InputPath = filepath.Clean(cfg.InputPath)
	}
	return cfg, nil
}

func applyConfigFile(cfg *Config, path string, set map[string]bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}

	if fc.Input != nil && !set["input"] {
		cfg.InputPath = *fc.Input
	}
	if fc.Model != nil && !set["model"] {
		cfg.Model = *fc.Model
	}
	if fc.BatchSize != nil && !set["batch-size"] {
		cfg.BatchSize = *fc.BatchSize
	}
	if fc.NumWorkers != nil && !set["num-workers"] {
		cfg.NumWorkers = *fc.NumWorkers
	}
	if fc.DryRun != nil && !set["dry-run"] {
		cfg.DryRun = *fc.DryRun
	}
	if fc.Resume != nil && !set["no-resume"] {
		cfg.Resume = *fc.Resume
	}
	if fc.CombinedCSV != nil && !set["combined-csv"] {
		cfg.CombinedCSV = *fc.CombinedCSV
	}
	if fc.LogDB != nil && !set["log-db"] {
		cfg.LogDB = *fc.LogDB
	}
	if fc.APIKey != nil && !set["api-key"] {
		cfg.APIKey = os.ExpandEnv(*fc.APIKey)
	}
	return nil
}
