package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/speakup/capture-service/internal/capture"
	"github.com/speakup/capture-service/internal/config"
	"github.com/speakup/capture-service/internal/metrics"
	"github.com/speakup/capture-service/internal/pipeline"
	"github.com/speakup/capture-service/internal/record"
	"github.com/speakup/capture-service/internal/scoring"
	"github.com/speakup/capture-service/internal/server"
	"github.com/speakup/capture-service/internal/session"
	"github.com/speakup/capture-service/internal/storage"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "capture-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	filePath := flag.String("file", "", "Submit an existing audio file instead of recording")
	questionID := flag.Int("question", 1, "Question ID for this answer")
	questionText := flag.String("text", "", "Question text sent to the scoring service")
	dateKey := flag.String("date", "", "Date key attached to the submission (YYYY-MM-DD)")
	identity := flag.String("identity", "", "Identity handle attached to the submission")
	recordFor := flag.Float64("record", 10, "Seconds of microphone audio to record when no file is given")
	helpTier := flag.Int("tier", 0, "Help tier already consumed for this question")
	retry := flag.Bool("retry", false, "Resume a partially failed submission once")
	flag.Parse()

	// Load credentials from .env if present (environment wins over config file)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("device_sample_rate", cfg.Capture.DeviceSampleRate),
		slog.Int("target_sample_rate", cfg.Capture.TargetSampleRate),
		slog.Float64("min_seconds", cfg.Limits.MinSeconds),
		slog.Float64("max_seconds", cfg.Limits.MaxSeconds),
		slog.String("scoring_endpoint", cfg.Scoring.Endpoint),
		slog.String("storage_endpoint", cfg.Storage.Endpoint),
		slog.String("persist_endpoint", cfg.Persist.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the submission on interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Initialize pipeline clients
	scoringClient, err := scoring.NewClient(scoring.Config{
		Endpoint: cfg.Scoring.Endpoint,
		APIKey:   cfg.Scoring.APIKey,
		Timeout:  cfg.Scoring.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create scoring client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		APIKey:   cfg.Storage.APIKey,
		Timeout:  cfg.Storage.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create storage client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recordClient, err := record.NewClient(record.Config{
		Endpoint:     cfg.Persist.Endpoint,
		FeedEndpoint: cfg.Persist.FeedEndpoint,
		APIKey:       cfg.Persist.APIKey,
		Timeout:      cfg.Persist.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create record client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pipe := pipeline.New(scoringClient, storageClient, recordClient, logger, appMetrics)

	// Initialize session manager; each question gets a fresh controller
	// backed by the default microphone.
	sessions := session.NewManager(cfg.Session.MaxHelpTier, func() *capture.Controller {
		mic := capture.NewMicSource(capture.MicConfig{
			SampleRate:   uint32(cfg.Capture.DeviceSampleRate),
			BufferFrames: uint32(cfg.Capture.BufferFrames),
		})
		return capture.NewController(mic, cfg.Capture.TargetSampleRate, logger, appMetrics)
	}, logger)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sessions, pipe, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	exitCode := run(ctx, cfg, logger, sessions, pipe, recordClient,
		*questionID, *questionText, *dateKey, *identity, *filePath, *recordFor, *helpTier, *retry)

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := pipe.GetStats()
	logger.Info("Final submission statistics",
		slog.Uint64("submissions", stats.Submissions),
		slog.Uint64("saved", stats.Saved),
		slog.Uint64("partial_failures", stats.PartialFailures),
	)

	logger.Info("Service stopped")
	os.Exit(exitCode)
}

// run drives one answer attempt end to end and returns the process exit code
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger,
	sessions *session.Manager, pipe *pipeline.Pipeline, recordClient *record.Client,
	questionID int, questionText, dateKey, identity, filePath string,
	recordFor float64, helpTier int, retry bool) int {

	sess := sessions.Session(questionID)
	for i := 0; i < helpTier; i++ {
		sess.RaiseHelp()
	}

	asset, err := acquireAsset(ctx, logger, sess.Controller, filePath, recordFor)
	if err != nil {
		logger.Error("Failed to acquire audio", slog.String("error", err.Error()))
		return 1
	}

	check := pipe.CheckDuration(asset.DurationSeconds, cfg.Limits.MinSeconds, cfg.Limits.MaxSeconds)
	switch check.Verdict {
	case pipeline.VerdictOutOfRange:
		logger.Error("Answer duration outside allowed range",
			slog.Float64("duration", *asset.DurationSeconds),
			slog.Float64("min", check.Min),
			slog.Float64("max", check.Max),
		)
		return 1
	case pipeline.VerdictUnknownDuration:
		logger.Warn("Answer duration unknown, submitting anyway")
	}

	sub := pipeline.Context{
		QuestionID:     questionID,
		QuestionText:   questionText,
		DateKey:        dateKey,
		IdentityHandle: identity,
		Asset:          asset,
	}

	out, err := pipe.Submit(ctx, sub)
	if err != nil && out != nil && retry {
		logger.Warn("Submission partially failed, retrying remaining stages",
			slog.String("failed_at", string(out.FailedAt)),
		)
		out, err = pipe.Resume(ctx, sub, out)
	}
	if err != nil {
		if out != nil {
			logger.Error("Submission incomplete",
				slog.String("failed_at", string(out.FailedAt)),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Error("Submission failed", slog.String("error", err.Error()))
		}
		return 1
	}

	sess.HandleOutcome(out)

	logger.Info("Answer submitted",
		slog.Int("question_id", questionID),
		slog.String("submission_id", out.SubmissionID),
		slog.String("audio_key", out.AudioKey),
		slog.Bool("session_locked", sess.Locked()),
	)

	if cfg.Persist.FeedEndpoint != "" && dateKey != "" {
		if feed, err := recordClient.ListFeed(ctx, dateKey); err != nil {
			logger.Warn("Feed refresh failed", slog.String("error", err.Error()))
		} else {
			fmt.Println(string(feed))
		}
	}

	return 0
}

// acquireAsset produces the WAV asset to submit, either from a local audio
// file or by recording from the default microphone.
func acquireAsset(ctx context.Context, logger *slog.Logger, ctrl *capture.Controller,
	filePath string, recordFor float64) (*capture.Asset, error) {

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read audio file: %w", err)
		}
		logger.Info("Submitting audio file", slog.String("path", filePath), slog.Int("bytes", len(data)))
		return ctrl.SelectFile(filePath, data)
	}

	logger.Info("Recording from microphone", slog.Float64("seconds", recordFor))
	if err := ctrl.StartCapture(); err != nil {
		if errors.Is(err, capture.ErrMicAccessDenied) {
			return nil, fmt.Errorf("microphone unavailable: %w", err)
		}
		return nil, err
	}

	select {
	case <-time.After(time.Duration(recordFor * float64(time.Second))):
	case <-ctx.Done():
		logger.Info("Recording interrupted, keeping audio captured so far")
	}

	return ctrl.StopCapture()
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
