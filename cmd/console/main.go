// Command console serves the agent console HTTP API: the application
// configuration record, LiveKit connection details, FAQ lookups, lead
// capture, and fraud-case reporting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/voicedesk/agent-console/internal/api"
	"github.com/voicedesk/agent-console/internal/config"
	"github.com/voicedesk/agent-console/internal/faq"
	"github.com/voicedesk/agent-console/internal/fraudcases"
	"github.com/voicedesk/agent-console/internal/leads"
	"github.com/voicedesk/agent-console/internal/lifecycle"
	"github.com/voicedesk/agent-console/internal/logging"
	"github.com/voicedesk/agent-console/pkg/appconfig"
)

func main() {
	app := kingpin.New("console", "Agent console API server - serves branding configuration and session plumbing for the voice assistant front-end")
	configFile := app.Flag("config", "Path to YAML configuration file").String()
	listenAddr := app.Flag("addr", "HTTP listen address").String()
	appConfigPath := app.Flag("app-config", "Path to a configuration record JSON file (overrides the built-in brand)").String()
	brand := app.Flag("brand", "Built-in record to serve when no file is given (au or flipmin)").String()
	faqPath := app.Flag("faq", "Path to the FAQ knowledge base JSON file").String()
	leadsPath := app.Flag("leads", "Path to the leads JSON file").String()
	fraudDBPath := app.Flag("fraud-db", "Path to the fraud cases SQLite database").String()
	seedFraud := app.Flag("seed-fraud-cases", "Insert demo fraud cases on startup").Bool()
	logLevel := app.Flag("log-level", "Log level (debug, info, warn, error)").String()
	rateLimit := app.Flag("rate-limit", "Requests per minute per client IP (0 disables)").Default("-1").Int()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{ConfigFile: *configFile}
	if *listenAddr != "" {
		overrides.ListenAddr = listenAddr
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
	if *fraudDBPath != "" {
		overrides.FraudDBPath = fraudDBPath
	}
	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}
	if *rateLimit >= 0 {
		overrides.RateLimit = rateLimit
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	record, err := cfg.ActiveRecord()
	if err != nil {
		logger.Fatal("invalid application configuration record", zap.Error(err))
	}

	provider, err := appconfig.NewProvider(record)
	if err != nil {
		logger.Fatal("failed to construct configuration provider", zap.Error(err))
	}
	logger.Info("configuration record active",
		zap.String("company", record.CompanyName),
		zap.Bool("chat_input", record.SupportsChatInput))

	fraudStore, err := fraudcases.NewStore(cfg.FraudDBPath)
	if err != nil {
		logger.Fatal("failed to open fraud case store", zap.Error(err))
	}
	if *seedFraud {
		if err := fraudStore.Seed(context.Background()); err != nil {
			logger.Warn("failed to seed fraud cases", zap.Error(err))
		}
	}

	server := api.New(api.Options{
		Config:     cfg,
		Provider:   provider,
		FAQ:        faq.NewStore(cfg.FAQPath, logger.Named("faq")),
		Leads:      leads.NewStore(cfg.LeadsPath, logger.Named("leads")),
		FraudCases: fraudStore,
		Logger:     logger,
	})

	hooks := lifecycle.NewHooks(logger)
	hooks.AddHook(lifecycle.LogFlushHook(logger))
	hooks.Add("fraud-case-store", func(context.Context) error {
		return fraudStore.Close()
	})
	hooks.AddHook(lifecycle.Hook{
		Name:    "http-server",
		Timeout: cfg.ShutdownGracePeriod,
		Handler: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped unexpectedly", zap.Error(err))
		}
	}

	if err := hooks.Run(context.Background()); err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
	}
}
