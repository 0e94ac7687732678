// main package for the sfx-batch CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/sfx-batch/internal/batch"
	"github.com/book-expert/sfx-batch/internal/config"
	"github.com/book-expert/sfx-batch/internal/core"
	"github.com/book-expert/sfx-batch/internal/elevenlabs"
	"github.com/book-expert/sfx-batch/internal/objectstore"
	"github.com/book-expert/sfx-batch/internal/prompts"
)

// Flag names.
const (
	flagPromptColumn    = "prompt-column"
	flagDurationColumn  = "duration-column"
	flagInfluenceColumn = "influence-column"
	flagDelimiter       = "delimiter"
	flagOutputDir       = "output-dir"
	flagAPIKey          = "api-key"
	flagDuration        = "duration"
	flagInfluence       = "influence"
	flagMaxRetries      = "max-retries"
	flagConfig          = "config"
	flagNATSURL         = "nats-url"
	flagNATSBucket      = "nats-bucket"
	flagVerbose         = "verbose"
	flagDebug           = "debug"
)

// Flag descriptions.
const (
	flagPromptColumnDesc    = "Name or 0-based index of the column containing prompts (required)"
	flagDurationColumnDesc  = "Optional column with per-prompt duration in seconds"
	flagInfluenceColumnDesc = "Optional column with per-prompt influence (0.0-1.0)"
	flagDelimiterDesc       = "Field delimiter of the input file"
	flagOutputDirDesc       = "Directory for the generated MP3 files"
	flagAPIKeyDesc          = "API key; overrides the " + envAPIKey + " environment variable"
	flagDurationDesc        = "Global sound effect duration in seconds (0.5-22.0)"
	flagInfluenceDesc       = "Global prompt influence (0.0-1.0)"
	flagMaxRetriesDesc      = "Maximum retry attempts for rate-limited calls (0-10)"
	flagConfigDesc          = "Path to a TOML config file (defaults to ./" + config.DefaultFileName + ")"
	flagNATSURLDesc         = "Optional NATS URL for mirroring audio to an object store"
	flagNATSBucketDesc      = "Object store bucket used with -nats-url"
	flagVerboseDesc         = "Enable verbose logging"
	flagDebugDesc           = "Enable debug logging for troubleshooting"
)

// Environment and file names.
const (
	envAPIKey          = "ELEVENLABS_API_KEY"
	logFileNameDefault = "sfx-batch.log"
	logFileNameVerbose = "sfx-batch-verbose.log"
)

// Error messages.
const (
	errUsage = "usage: sfx-batch [flags] <input-file>"
)

// Static errors.
var (
	errMissingInputFile    = errors.New("an input file argument is required")
	errMissingPromptColumn = errors.New("the -" + flagPromptColumn + " flag is required")
	errMissingAPIKey       = errors.New(
		"no API key: set " + envAPIKey + " or pass -" + flagAPIKey,
	)
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	inputPath       string
	promptColumn    string
	durationColumn  string
	influenceColumn string
	delimiter       string
	outputDir       string
	apiKey          string
	duration        float64
	influence       float64
	maxRetries      int
	configPath      string
	natsURL         string
	natsBucket      string
	verbose         bool
	debug           bool
	set             map[string]bool
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application entry point, returning an error on any fatal
// condition. Per-row failures are reported in the summary and do not make the
// run fatal.
func run() error {
	// A .env file is the lowest-precedence API key source; values already in
	// the environment win.
	_ = godotenv.Load()

	flags, err := parseFlags()
	if err != nil {
		flag.Usage()

		return err
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	log, err := setupLogger(cfg, flags.verbose)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	apiKey, err := resolveAPIKey(flags.apiKey, log)
	if err != nil {
		log.Error("%v", err)

		return err
	}

	return execute(cfg, flags, apiKey, log)
}

// parseFlags defines and parses the command-line flags, recording which were
// explicitly set so they can override config-file values.
func parseFlags() (appFlags, error) {
	var flags appFlags

	flag.StringVar(&flags.promptColumn, flagPromptColumn, "", flagPromptColumnDesc)
	flag.StringVar(&flags.durationColumn, flagDurationColumn, "", flagDurationColumnDesc)
	flag.StringVar(&flags.influenceColumn, flagInfluenceColumn, "", flagInfluenceColumnDesc)
	flag.StringVar(&flags.delimiter, flagDelimiter, "", flagDelimiterDesc)
	flag.StringVar(&flags.outputDir, flagOutputDir, "", flagOutputDirDesc)
	flag.StringVar(&flags.apiKey, flagAPIKey, "", flagAPIKeyDesc)
	flag.Float64Var(&flags.duration, flagDuration, 0, flagDurationDesc)
	flag.Float64Var(&flags.influence, flagInfluence, 0, flagInfluenceDesc)
	flag.IntVar(&flags.maxRetries, flagMaxRetries, 0, flagMaxRetriesDesc)
	flag.StringVar(&flags.configPath, flagConfig, "", flagConfigDesc)
	flag.StringVar(&flags.natsURL, flagNATSURL, "", flagNATSURLDesc)
	flag.StringVar(&flags.natsBucket, flagNATSBucket, "", flagNATSBucketDesc)
	flag.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	flag.BoolVar(&flags.debug, flagDebug, false, flagDebugDesc)
	flag.Parse()

	flags.set = make(map[string]bool)

	flag.Visit(func(f *flag.Flag) {
		flags.set[f.Name] = true
	})

	if flag.NArg() < 1 {
		return flags, fmt.Errorf("%s: %w", errUsage, errMissingInputFile)
	}

	flags.inputPath = flag.Arg(0)

	if flags.promptColumn == "" {
		return flags, fmt.Errorf("%s: %w", errUsage, errMissingPromptColumn)
	}

	return flags, nil
}

// loadConfig merges the three configuration layers: built-in defaults, the
// optional TOML file, and explicitly set flags on top.
func loadConfig(flags appFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.set[flagDelimiter] {
		cfg.Input.Delimiter = flags.delimiter
	}

	if flags.set[flagOutputDir] {
		cfg.Output.Directory = flags.outputDir
	}

	if flags.set[flagDuration] {
		cfg.Generation.DurationSeconds = flags.duration
	}

	if flags.set[flagInfluence] {
		cfg.Generation.Influence = flags.influence
	}

	if flags.set[flagMaxRetries] {
		cfg.Generation.MaxRetries = flags.maxRetries
	}

	if flags.set[flagNATSURL] {
		cfg.NATS.URL = flags.natsURL
	}

	if flags.set[flagNATSBucket] {
		cfg.NATS.AudioObjectStoreBucket = flags.natsBucket
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// setupLogger creates the run logger in the configured directory, falling back
// to the system temp directory.
func setupLogger(cfg *config.Config, verbose bool) (*logger.Logger, error) {
	logsDir := cfg.Paths.BaseLogsDir
	if logsDir == "" {
		logsDir = os.TempDir()
	}

	logFileName := logFileNameDefault
	if verbose {
		logFileName = logFileNameVerbose
	}

	log, err := logger.New(logsDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// resolveAPIKey applies the key precedence: flag, then environment (which a
// .env file may have populated).
func resolveAPIKey(flagValue string, log *logger.Logger) (string, error) {
	if flagValue != "" {
		log.Info("Using API key from -%s flag", flagAPIKey)

		return flagValue, nil
	}

	envValue := os.Getenv(envAPIKey)
	if envValue != "" {
		log.Info("Using API key from %s environment variable", envAPIKey)

		return envValue, nil
	}

	return "", errMissingAPIKey
}

// execute wires the generation client and optional object store into the
// processor and runs the batch.
func execute(
	cfg *config.Config,
	flags appFlags,
	apiKey string,
	log *logger.Logger,
) error {
	generator := elevenlabs.New(
		cfg.API.BaseURL,
		apiKey,
		cfg.Generation.MaxRetries,
		time.Duration(cfg.API.TimeoutSeconds)*time.Second,
		log,
	)

	store, closeStore, err := connectObjectStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	logParameters(cfg, flags, log)

	processor := batch.New(generator, store, batch.Options{
		InputPath:       flags.inputPath,
		OutputDir:       cfg.Output.Directory,
		Delimiter:       cfg.DelimiterRune(),
		PromptColumn:    flags.promptColumn,
		DurationColumn:  flags.durationColumn,
		InfluenceColumn: flags.influenceColumn,
		Defaults: prompts.Defaults{
			DurationSeconds: cfg.Generation.DurationSeconds,
			Influence:       cfg.Generation.Influence,
		},
		Debug: flags.debug,
	}, log)

	summary, err := processor.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf(
		"Generated %d sound effects, %d failed, %d skipped.\n",
		summary.Generated, summary.Failed, summary.Skipped,
	)

	return nil
}

// connectObjectStore connects the optional NATS mirror. With no URL configured
// it returns a nil store and a no-op closer.
func connectObjectStore(
	cfg *config.Config,
	log *logger.Logger,
) (core.ObjectStore, func(), error) {
	if cfg.NATS.URL == "" {
		return nil, func() {}, nil
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf(
			"failed to connect to NATS at %s: %w", cfg.NATS.URL, err,
		)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, err
	}

	log.Info("Mirroring audio to object store bucket '%s'", cfg.NATS.AudioObjectStoreBucket)

	return store, natsConnection.Close, nil
}

// logParameters echoes the effective run parameters once before processing.
func logParameters(cfg *config.Config, flags appFlags, log *logger.Logger) {
	log.Info("Processing input file: %s", flags.inputPath)
	log.Info("Output directory: %s", cfg.Output.Directory)
	log.Info("Delimiter: %q", cfg.Input.Delimiter)
	log.Info("Prompt column: %s", flags.promptColumn)

	if flags.durationColumn != "" {
		log.Info(
			"Duration column: %s (global %gs as fallback)",
			flags.durationColumn, cfg.Generation.DurationSeconds,
		)
	} else {
		log.Info("Global duration: %gs", cfg.Generation.DurationSeconds)
	}

	if flags.influenceColumn != "" {
		log.Info(
			"Influence column: %s (global %g as fallback)",
			flags.influenceColumn, cfg.Generation.Influence,
		)
	} else {
		log.Info("Global influence: %g", cfg.Generation.Influence)
	}

	log.Info("Max retries: %d", cfg.Generation.MaxRetries)
}
