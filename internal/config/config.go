// Package config resolves process configuration for the console and agent
// binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/voicedesk/agent-console/pkg/appconfig"
	"gopkg.in/yaml.v3"
)

// Brand names selecting a built-in application configuration record.
const (
	BrandAU      = "au"
	BrandFlipMin = "flipmin"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	ListenAddr          string        `yaml:"listen_addr"`
	LiveKitURL          string        `yaml:"-"`
	LiveKitAPIKey       string        `yaml:"-"`
	LiveKitAPISecret    string        `yaml:"-"`
	AppConfigPath       string        `yaml:"app_config"`
	Brand               string        `yaml:"brand"`
	FAQPath             string        `yaml:"faq_path"`
	LeadsPath           string        `yaml:"leads_path"`
	FraudDBPath         string        `yaml:"fraud_db_path"`
	SandboxURL          string        `yaml:"sandbox_url"`
	AgentName           string        `yaml:"agent_name"`
	Namespace           string        `yaml:"namespace"`
	MaxJobs             int           `yaml:"max_jobs"`
	LogLevel            string        `yaml:"log_level"`
	AllowedOrigins      []string      `yaml:"allowed_origins"`
	RateLimit           int           `yaml:"rate_limit"`
	ShutdownGracePeriod time.Duration `yaml:"-"`
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	ListenAddr          string      `yaml:"listen_addr"`
	LiveKit             yamlLiveKit `yaml:"livekit"`
	AppConfig           string      `yaml:"app_config"`
	Brand               string      `yaml:"brand"`
	FAQPath             string      `yaml:"faq_path"`
	LeadsPath           string      `yaml:"leads_path"`
	FraudDBPath         string      `yaml:"fraud_db_path"`
	SandboxURL          string      `yaml:"sandbox_url"`
	AgentName           string      `yaml:"agent_name"`
	Namespace           string      `yaml:"namespace"`
	MaxJobs             int         `yaml:"max_jobs"`
	LogLevel            string      `yaml:"log_level"`
	AllowedOrigins      []string    `yaml:"allowed_origins"`
	RateLimit           *int        `yaml:"rate_limit"`
	ShutdownGracePeriod string      `yaml:"shutdown_grace_period"`
}

// yamlLiveKit represents the livekit section in YAML.
type yamlLiveKit struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// CLIOverrides holds command-line flag overrides.
// Nil pointers mean the flag was not given.
type CLIOverrides struct {
	ConfigFile       string
	ListenAddr       *string
	LiveKitURL       *string
	LiveKitAPIKey    *string
	LiveKitAPISecret *string
	AppConfigPath    *string
	Brand            *string
	FAQPath          *string
	LeadsPath        *string
	FraudDBPath      *string
	AgentName        *string
	MaxJobs          *int
	LogLevel         *string
	RateLimit        *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		applyYAMLConfig(&cfg, yamlCfg)
	}

	applyEnvConfig(&cfg)

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		ListenAddr:          ":8080",
		LiveKitURL:          "http://localhost:7880",
		Brand:               BrandAU,
		FAQPath:             "faq.json",
		LeadsPath:           "leads.json",
		FraudDBPath:         "fraud_cases.db",
		SandboxURL:          "https://cloud-api.livekit.io",
		AgentName:           "console-assistant",
		MaxJobs:             1,
		LogLevel:            "info",
		AllowedOrigins:      []string{"*"},
		RateLimit:           60,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) {
	applyString(&cfg.ListenAddr, yamlCfg.ListenAddr)
	applyString(&cfg.LiveKitURL, yamlCfg.LiveKit.URL)
	applyString(&cfg.LiveKitAPIKey, yamlCfg.LiveKit.APIKey)
	applyString(&cfg.LiveKitAPISecret, yamlCfg.LiveKit.APISecret)
	applyString(&cfg.AppConfigPath, yamlCfg.AppConfig)
	applyString(&cfg.Brand, yamlCfg.Brand)
	applyString(&cfg.FAQPath, yamlCfg.FAQPath)
	applyString(&cfg.LeadsPath, yamlCfg.LeadsPath)
	applyString(&cfg.FraudDBPath, yamlCfg.FraudDBPath)
	applyString(&cfg.SandboxURL, yamlCfg.SandboxURL)
	applyString(&cfg.AgentName, yamlCfg.AgentName)
	applyString(&cfg.Namespace, yamlCfg.Namespace)
	applyString(&cfg.LogLevel, yamlCfg.LogLevel)

	if yamlCfg.MaxJobs > 0 {
		cfg.MaxJobs = yamlCfg.MaxJobs
	}
	if len(yamlCfg.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = yamlCfg.AllowedOrigins
	}
	if yamlCfg.RateLimit != nil && *yamlCfg.RateLimit >= 0 {
		cfg.RateLimit = *yamlCfg.RateLimit
	}
	if yamlCfg.ShutdownGracePeriod != "" {
		if d, err := time.ParseDuration(yamlCfg.ShutdownGracePeriod); err == nil {
			cfg.ShutdownGracePeriod = d
		}
	}
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	applyString(&cfg.ListenAddr, strings.TrimSpace(os.Getenv("CONSOLE_ADDR")))
	applyString(&cfg.LiveKitURL, strings.TrimSpace(os.Getenv("LIVEKIT_URL")))
	applyString(&cfg.LiveKitAPIKey, strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY")))
	applyString(&cfg.LiveKitAPISecret, strings.TrimSpace(os.Getenv("LIVEKIT_API_SECRET")))
	applyString(&cfg.AppConfigPath, strings.TrimSpace(os.Getenv("CONSOLE_APP_CONFIG")))
	applyString(&cfg.Brand, strings.TrimSpace(os.Getenv("CONSOLE_BRAND")))
	applyString(&cfg.FAQPath, strings.TrimSpace(os.Getenv("CONSOLE_FAQ")))
	applyString(&cfg.LeadsPath, strings.TrimSpace(os.Getenv("CONSOLE_LEADS")))
	applyString(&cfg.FraudDBPath, strings.TrimSpace(os.Getenv("CONSOLE_FRAUD_DB")))
	applyString(&cfg.SandboxURL, strings.TrimSpace(os.Getenv("CONSOLE_SANDBOX_URL")))
	applyString(&cfg.AgentName, strings.TrimSpace(os.Getenv("CONSOLE_AGENT_NAME")))
	applyString(&cfg.Namespace, strings.TrimSpace(os.Getenv("CONSOLE_NAMESPACE")))
	applyString(&cfg.LogLevel, strings.TrimSpace(os.Getenv("CONSOLE_LOG_LEVEL")))

	if origins := strings.TrimSpace(os.Getenv("CONSOLE_ORIGINS")); origins != "" {
		cfg.AllowedOrigins = splitOrigins(origins)
	}
	if raw := strings.TrimSpace(os.Getenv("CONSOLE_RATE_LIMIT")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.RateLimit = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("CONSOLE_MAX_JOBS")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MaxJobs = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	applyStringPtr(&cfg.ListenAddr, overrides.ListenAddr)
	applyStringPtr(&cfg.LiveKitURL, overrides.LiveKitURL)
	applyStringPtr(&cfg.LiveKitAPIKey, overrides.LiveKitAPIKey)
	applyStringPtr(&cfg.LiveKitAPISecret, overrides.LiveKitAPISecret)
	applyStringPtr(&cfg.AppConfigPath, overrides.AppConfigPath)
	applyStringPtr(&cfg.Brand, overrides.Brand)
	applyStringPtr(&cfg.FAQPath, overrides.FAQPath)
	applyStringPtr(&cfg.LeadsPath, overrides.LeadsPath)
	applyStringPtr(&cfg.FraudDBPath, overrides.FraudDBPath)
	applyStringPtr(&cfg.AgentName, overrides.AgentName)
	applyStringPtr(&cfg.LogLevel, overrides.LogLevel)

	if overrides.MaxJobs != nil && *overrides.MaxJobs > 0 {
		cfg.MaxJobs = *overrides.MaxJobs
	}
	if overrides.RateLimit != nil && *overrides.RateLimit >= 0 {
		cfg.RateLimit = *overrides.RateLimit
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if cfg.LiveKitURL == "" {
		return fmt.Errorf("LIVEKIT_URL cannot be empty")
	}
	if (cfg.LiveKitAPIKey == "") != (cfg.LiveKitAPISecret == "") {
		return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET must be supplied together")
	}
	if cfg.Brand != BrandAU && cfg.Brand != BrandFlipMin {
		return fmt.Errorf("brand must be %q or %q, got %q", BrandAU, BrandFlipMin, cfg.Brand)
	}
	if cfg.MaxJobs < 1 {
		return fmt.Errorf("max jobs must be >= 1")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate limit must be >= 0")
	}
	return nil
}

// ActiveRecord resolves the application configuration record for this
// process: the file named by AppConfigPath, or the built-in literal selected
// by Brand. The chosen source supplies the whole record; sources are never
// merged.
func (c Config) ActiveRecord() (appconfig.Config, error) {
	if c.AppConfigPath != "" {
		return appconfig.LoadFile(c.AppConfigPath)
	}
	if c.Brand == BrandFlipMin {
		return appconfig.FlipMin(), nil
	}
	return appconfig.Default(), nil
}

func applyString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func applyStringPtr(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

// splitOrigins parses a comma-separated origin list.
func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}
