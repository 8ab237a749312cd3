// Package app wires the CareerForge backend's components together: storage,
// the Gemini client, the Queue Broker, Job Service, one Worker Runtime per
// domain, the Webhook Dispatcher, and the Health Monitor. It is the shared
// core used by cmd/server and cmd/worker.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/careerforge/backend/internal/clients/gemini"
	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
	"github.com/careerforge/backend/internal/services/domain/enhancement"
	"github.com/careerforge/backend/internal/services/domain/evaluation"
	"github.com/careerforge/backend/internal/services/domain/generation"
	"github.com/careerforge/backend/internal/services/domain/parsing"
	domainadapter "github.com/careerforge/backend/internal/services/domain"
	"github.com/careerforge/backend/internal/services/health"
	"github.com/careerforge/backend/internal/services/jobservice"
	"github.com/careerforge/backend/internal/services/queuebroker"
	"github.com/careerforge/backend/internal/services/webhook"
	"github.com/careerforge/backend/internal/services/worker"
	"github.com/careerforge/backend/internal/storage/surrealdb"
)

// App holds every initialized component. cmd/server reads from it to build
// the HTTP surface; cmd/worker reads from it to run the worker runtimes.
type App struct {
	Config  *common.Config
	Logger  *common.Logger
	Storage interfaces.StorageManager

	GeminiClient interfaces.GeminiClient

	Broker     interfaces.QueueBroker
	JobService interfaces.JobService
	Dispatcher interfaces.WebhookDispatcher
	Monitor    interfaces.HealthMonitor

	runtimes map[string]*worker.Runtime

	StartupTime time.Time

	monitorCancel context.CancelFunc
}

func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration, initializes storage and clients, and
// constructs every service and worker runtime. configPath may be empty, in
// which case the default resolution logic (env var, binary-dir file,
// development fallback) is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("CAREERFORGE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "careerforge.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/careerforge.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerWithOutput(config.Logging.Level, logOutput(config))

	if missing := config.ValidateRequired(); len(missing) > 0 && config.IsProduction() {
		logger.Warn().Interface("missing", missing).Msg("app: required configuration missing in production")
	}

	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()

	var geminiClient interfaces.GeminiClient
	if config.Clients.Gemini.APIKey != "" {
		client, err := gemini.NewClient(ctx, config.Clients.Gemini.APIKey,
			gemini.WithModel(config.Clients.Gemini.Model),
			gemini.WithLogger(logger),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("app: failed to initialize Gemini client, enhancement/evaluation will be unavailable")
		} else {
			geminiClient = client
		}
	} else {
		logger.Warn().Msg("app: no Gemini API key configured, enhancement/evaluation will be unavailable")
	}

	broker := queuebroker.NewBroker(storageManager, logger, config)
	jobSvc := jobservice.New(storageManager, broker, logger, config)
	dispatcher := webhook.New(storageManager.WebhookStore(), jobSvc, &config.Webhook, logger)
	monitor := health.New(broker, logger)

	notifyOnTerminalEvents(jobSvc, dispatcher, logger)

	runtimes := map[string]*worker.Runtime{
		models.JobTypeParsing:         worker.New(broker, jobSvc, logger, config.JobManager.GetMaxConcurrent()),
		models.JobTypeEnhancement:     worker.New(broker, jobSvc, logger, config.JobManager.GetHeavyJobLimit()),
		models.JobTypeEvaluation:      worker.New(broker, jobSvc, logger, config.JobManager.GetHeavyJobLimit()),
		models.JobTypeGeneration:      worker.New(broker, jobSvc, logger, config.JobManager.GetMaxConcurrent()),
		models.JobTypeWebhookDelivery: worker.New(broker, jobSvc, logger, config.JobManager.GetMaxConcurrent()),
	}

	a := &App{
		Config:       config,
		Logger:       logger,
		Storage:      storageManager,
		GeminiClient: geminiClient,
		Broker:       broker,
		JobService:   jobSvc,
		Dispatcher:   dispatcher,
		Monitor:      monitor,
		runtimes:     runtimes,
		StartupTime:  startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("app: initialized")
	return a, nil
}

// logOutput resolves the configured log outputs to a single writer: the log
// file when "file" is configured with a path that can be opened, otherwise
// stdout. Output is never written to both at once.
func logOutput(config *common.Config) *os.File {
	for _, out := range config.Logging.Outputs {
		if strings.EqualFold(out, "file") && config.Logging.FilePath != "" {
			if err := os.MkdirAll(filepath.Dir(config.Logging.FilePath), 0o755); err == nil {
				if f, err := os.OpenFile(config.Logging.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
					return f
				}
			}
		}
	}
	return os.Stdout
}

// notifyOnTerminalEvents subscribes the Webhook Dispatcher to the Job
// Service's event stream, firing Notify for every job that reaches a
// terminal outcome. webhook_delivery jobs are excluded so a delivery's own
// lifecycle never triggers another round of deliveries.
func notifyOnTerminalEvents(jobSvc interfaces.JobService, dispatcher interfaces.WebhookDispatcher, logger *common.Logger) {
	jobSvc.Subscribe(func(evt models.JobEvent) {
		if evt.Job == nil || evt.Job.Type == models.JobTypeWebhookDelivery {
			return
		}
		var eventType string
		switch evt.Type {
		case models.JobEventCompleted:
			eventType = "job.completed"
		case models.JobEventFailed:
			eventType = "job.failed"
		case models.JobEventCancelled:
			eventType = "job.cancelled"
		default:
			return
		}
		if err := dispatcher.Notify(context.Background(), eventType, evt.Job.ExternalID, evt.Job); err != nil {
			logger.Warn().Err(err).Str("external_id", evt.Job.ExternalID).Str("event", eventType).Msg("app: webhook notify failed")
		}
	})
}

// newDomainProcessor builds a Domain Service adapter for jobType and
// wraps it in a domain.Processor bound to the Worker Runtime interface.
func newDomainProcessor(jobType string, storage interfaces.StorageManager, jobSvc interfaces.JobService, geminiClient interfaces.GeminiClient, logger *common.Logger) interfaces.Processor {
	switch jobType {
	case models.JobTypeParsing:
		extractor := parsing.NewPDFExtractor(logger)
		return domainadapter.NewProcessor(jobType, parsing.New(extractor, logger), storage, jobSvc, logger)
	case models.JobTypeEnhancement:
		return domainadapter.NewProcessor(jobType, enhancement.New(geminiClient, logger), storage, jobSvc, logger)
	case models.JobTypeEvaluation:
		return domainadapter.NewProcessor(jobType, evaluation.New(geminiClient, logger), storage, jobSvc, logger)
	case models.JobTypeGeneration:
		return domainadapter.NewProcessor(jobType, generation.New(logger), storage, jobSvc, logger)
	default:
		return nil
	}
}

// RunWorkers launches one Worker Runtime goroutine per job type and returns
// immediately; each goroutine runs until ctx is cancelled. webhook_delivery
// is bound to its own Dispatcher processor rather than a Domain Service
// adapter.
func (a *App) RunWorkers(ctx context.Context) {
	webhookStore := a.Storage.WebhookStore()
	dispatcher, _ := a.Dispatcher.(*webhook.Dispatcher)

	for _, jobType := range models.AllJobTypes {
		rt, ok := a.runtimes[jobType]
		if !ok {
			continue
		}
		var processor interfaces.Processor
		if jobType == models.JobTypeWebhookDelivery {
			processor = webhook.NewProcessor(dispatcher, webhookStore, a.Logger)
		} else {
			processor = newDomainProcessor(jobType, a.Storage, a.JobService, a.GeminiClient, a.Logger)
		}
		if processor == nil {
			continue
		}
		go func(jt string, r *worker.Runtime, p interfaces.Processor) {
			if err := r.Run(ctx, p); err != nil && ctx.Err() == nil {
				a.Logger.Error().Err(err).Str("job_type", jt).Msg("app: worker runtime exited")
			}
		}(jobType, rt, processor)
	}
}

// StartHealthMonitor launches the Health Monitor's periodic snapshot loop.
func (a *App) StartHealthMonitor(ctx context.Context) {
	monitorCtx, cancel := context.WithCancel(ctx)
	a.monitorCancel = cancel
	go a.Monitor.Start(monitorCtx, 30*time.Second)
}

// StartWebhookSweep launches the Webhook Dispatcher's retry-sweep backstop.
func (a *App) StartWebhookSweep(ctx context.Context) {
	if d, ok := a.Dispatcher.(*webhook.Dispatcher); ok {
		go d.Run(ctx, time.Minute)
	}
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.monitorCancel != nil {
		a.monitorCancel()
		a.monitorCancel = nil
	}
	if a.Broker != nil {
		_ = a.Broker.Close()
	}
	if a.Storage != nil {
		_ = a.Storage.Close()
		a.Storage = nil
	}
}
