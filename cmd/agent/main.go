// Command agent runs the console assistant worker. It registers with a
// LiveKit server, accepts room jobs dispatched for the configured agent
// name, and answers chat and lead traffic inside each room.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/livekit/protocol/livekit"
	"go.uber.org/zap"

	"github.com/voicedesk/agent-console/internal/assistant"
	"github.com/voicedesk/agent-console/internal/config"
	"github.com/voicedesk/agent-console/internal/faq"
	"github.com/voicedesk/agent-console/internal/leads"
	"github.com/voicedesk/agent-console/internal/lifecycle"
	"github.com/voicedesk/agent-console/internal/logging"
	"github.com/voicedesk/agent-console/pkg/agent"
)

func main() {
	app := kingpin.New("agent", "Console assistant worker - joins rooms and answers chat and lead submissions")
	configFile := app.Flag("config", "Path to YAML configuration file").String()
	serverURL := app.Flag("url", "LiveKit server URL").String()
	apiKey := app.Flag("api-key", "LiveKit API key").String()
	apiSecret := app.Flag("api-secret", "LiveKit API secret").String()
	agentName := app.Flag("agent-name", "Agent name used for dispatch").String()
	maxJobs := app.Flag("max-jobs", "Maximum concurrent jobs").Default("-1").Int()
	appConfigPath := app.Flag("app-config", "Path to a configuration record JSON file (overrides the built-in brand)").String()
	brand := app.Flag("brand", "Built-in record to serve when no file is given (au or flipmin)").String()
	faqPath := app.Flag("faq", "Path to the FAQ knowledge base JSON file").String()
	leadsPath := app.Flag("leads", "Path to the leads JSON file").String()
	logLevel := app.Flag("log-level", "Log level (debug, info, warn, error)").String()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{ConfigFile: *configFile}
	if *serverURL != "" {
		overrides.LiveKitURL = serverURL
	}
	if *apiKey != "" {
		overrides.LiveKitAPIKey = apiKey
	}
	if *apiSecret != "" {
		overrides.LiveKitAPISecret = apiSecret
	}
	if *agentName != "" {
		overrides.AgentName = agentName
	}
	if *maxJobs >= 0 {
		overrides.MaxJobs = maxJobs
	}
	if *appConfigPath != "" {
		overrides.AppConfigPath = appConfigPath
	}
	if *brand != "" {
		overrides.Brand = brand
	}
	if *faqPath != "" {
		overrides.FAQPath = faqPath
	}
	if *leadsPath != "" {
		overrides.LeadsPath = leadsPath
	}
	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	if cfg.LiveKitAPIKey == "" || cfg.LiveKitAPISecret == "" {
		logger.Fatal("LiveKit API key and secret are required")
	}

	record, err := cfg.ActiveRecord()
	if err != nil {
		logger.Fatal("invalid application configuration record", zap.Error(err))
	}

	handler := assistant.New(
		record,
		faq.NewStore(cfg.FAQPath, logger.Named("faq")),
		leads.NewStore(cfg.LeadsPath, logger.Named("leads")),
		logger.Named("assistant"),
	)

	worker := agent.NewWorker(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, handler, agent.WorkerOptions{
		AgentName: cfg.AgentName,
		Version:   "1.0.0",
		Namespace: cfg.Namespace,
		JobType:   livekit.JobType_JT_ROOM,
		MaxJobs:   cfg.MaxJobs,
		Permissions: &livekit.ParticipantPermission{
			CanSubscribe:   true,
			CanPublish:     true,
			CanPublishData: true,
		},
		Logger: agent.NewZapLogger(logger.Named("worker")),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := worker.Start(ctx); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}
	logger.Info("assistant worker registered",
		zap.String("agent_name", cfg.AgentName),
		zap.String("worker_id", worker.WorkerID()),
		zap.Int("max_jobs", cfg.MaxJobs))

	hooks := lifecycle.NewHooks(logger)
	hooks.AddHook(lifecycle.LogFlushHook(logger))
	hooks.Add("usage-summary", func(context.Context) error {
		handler.LogUsage()
		return nil
	})
	hooks.AddHook(lifecycle.Hook{
		Name: "worker",
		// Headroom beyond the drain timeout so the hook itself never
		// cuts the stop short.
		Timeout: cfg.ShutdownGracePeriod + 5*time.Second,
		Handler: func(context.Context) error {
			return worker.StopWithTimeout(cfg.ShutdownGracePeriod)
		},
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("received signal, shutting down",
		zap.String("signal", sig.String()),
		zap.Any("health", worker.Health()))
	cancel()

	if err := hooks.Run(context.Background()); err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
	}
}
