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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/audio"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/classifier"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/config"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/delivery"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/metrics"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/outbox"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/pipeline"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/server"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/transcribe"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvPath    = ".env"
	serviceName       = "track-announcer"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", defaultEnvPath, "Path to .env file with credentials")
	listDevices := flag.Bool("list-devices", false, "List audio capture devices and exit")
	flag.Parse()

	if *listDevices {
		names, err := audio.ListCaptureDevices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list capture devices: %v\n", err)
			os.Exit(1)
		}
		for i, name := range names {
			fmt.Printf("%d: %s\n", i, name)
		}
		return
	}

	// A missing .env is fine; credentials may come from the environment or
	// the shared AWS config
	envErr := godotenv.Load(*envPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("Failed to load env file", slog.String("path", *envPath), "error", envErr)
	}

	logger.Info("Configuration loaded",
		slog.String("region", cfg.Recognition.Region),
		slog.String("language", cfg.Recognition.LanguageCode),
		slog.Int("sample_rate", cfg.Recognition.SampleRate),
		slog.Int("device_index", cfg.Audio.DeviceIndex),
		slog.Int("categories", len(cfg.Classifier.Categories)),
		slog.Int("intents", len(cfg.Classifier.Intents)),
		slog.Duration("debounce", cfg.Classifier.GetDebounceWindow()),
		slog.String("delivery_mode", cfg.Delivery.Mode),
		slog.String("queue_db", cfg.Delivery.QueueDB),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	appMetrics := metrics.NewMetrics()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Recognition.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client, err := transcribe.NewClient(cfg.TranscribeConfig(), awsCfg.Credentials, logger, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create recognition client: %w", err)
	}

	eventID := &delivery.EventID{}
	transport, route, err := delivery.New(cfg.TransportConfig(), eventID, logger)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	store, err := outbox.OpenStore(cfg.Delivery.QueueDB, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close outbox store", slog.String("error", err.Error()))
		}
	}()

	policy, err := outbox.ParsePolicy(cfg.Delivery.FlushPolicy)
	if err != nil {
		return err
	}
	ob := outbox.New(store, transport, outbox.Options{
		Route:   route,
		Policy:  policy,
		Logger:  logger,
		Metrics: appMetrics,
	})

	engine, err := classifier.NewEngine(cfg.EngineConfig(),
		classifier.WithLogger(logger),
		classifier.WithMetrics(appMetrics),
		classifier.WithEventID(eventID),
	)
	if err != nil {
		return fmt.Errorf("failed to create classification engine: %w", err)
	}

	sourceCfg := cfg.SourceConfig()
	p, err := pipeline.New(pipeline.Config{
		Connector: pipeline.ConnectorFunc(func(ctx context.Context, h transcribe.Handler) (pipeline.Session, error) {
			stream, err := client.Connect(ctx, h)
			if err != nil {
				return nil, err
			}
			return stream, nil
		}),
		NewCapture: func(sink audio.Sink) (pipeline.Capture, error) {
			src, err := audio.NewSource(sourceCfg, sink, logger, appMetrics)
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		Engine:    engine,
		Outbox:    ob,
		Transport: transport,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, p, ob, appMetrics)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("Service started, listening for announcements...")
	runErr := p.Run(ctx)

	st := p.Stats()
	logger.Info("Final pipeline statistics",
		slog.String("state", st.State),
		slog.Uint64("transcripts", st.Transcripts),
		slog.Uint64("messages", st.Messages),
		slog.Uint64("delivery_errors", st.DeliveryErrors),
	)
	if obStats, err := ob.Stats(context.Background()); err == nil {
		logger.Info("Final outbox statistics",
			slog.Int64("pending", obStats.Pending),
			slog.Int64("sent", obStats.Sent),
		)
	}

	return runErr
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
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
