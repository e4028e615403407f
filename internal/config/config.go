package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"datapipe/internal/models"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port           string
	Environment    string
	AllowedOrigins string

	// Storage: MongoDB when MONGODB_URI is set, otherwise DATABASE_URL (sqlite path or mysql://...)
	MongoURI    string
	DatabaseURL string
	RedisURL    string

	// OpenAI-compatible completion endpoint
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAITemperature float64
	CompletionTimeout time.Duration

	// Remote analytics task registration
	AnalyticsBaseURL string

	// Research provider (Skyvern-style API)
	SkyvernBaseURL  string
	SkyvernAPIKey   string
	WebhookBaseURL  string // public base URL the provider calls back
	WebhookSecret   string // HMAC key for signed webhook tokens
	ResearchTimeout time.Duration

	// Research retention sweep
	ResearchCleanupCron        string
	ResearchCompletedRetention time.Duration
	ResearchPendingRetention   time.Duration

	// Agents
	AgentToolsFile     string
	AgentToolsBaseURL  string // base URL tool calls are sent to (this service)
	AgentMaxIterations int
	AgentMaxExecution  time.Duration
	AgentToolTimeout   time.Duration
	AgentMemoryTokens  int

	// URL ingest
	ScraperBrowserFallback bool

	// Rate limits
	ApplyRateLimitPerMinute int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	port := getEnv("PORT", "5000")
	return &Config{
		Port:           port,
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),

		MongoURI:    getEnv("MONGODB_URI", ""),
		DatabaseURL: getEnv("DATABASE_URL", "datapipe.db"),
		RedisURL:    getEnv("REDIS_URL", ""),

		OpenAIBaseURL:     strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		OpenAITemperature: getFloatEnv("OPENAI_TEMPERATURE", 0.2),
		CompletionTimeout: getDurationEnv("COMPLETION_TIMEOUT", 60*time.Second),

		AnalyticsBaseURL: strings.TrimRight(getEnv("ANALYTICS_BASE_URL", "https://analytics.empromptu.ai"), "/"),

		SkyvernBaseURL:  strings.TrimRight(getEnv("SKYVERN_BASE_URL", "https://api.skyvern.com"), "/"),
		SkyvernAPIKey:   getEnv("SKYVERN_API_KEY", ""),
		WebhookBaseURL:  strings.TrimRight(getEnv("API_URL", "https://staging.impromptu-labs.com"), "/"),
		WebhookSecret:   getEnv("WEBHOOK_SECRET", ""),
		ResearchTimeout: getDurationEnv("RESEARCH_TIMEOUT", 60*time.Minute),

		ResearchCleanupCron:        getEnv("RESEARCH_CLEANUP_CRON", "*/30 * * * *"),
		ResearchCompletedRetention: getDurationEnv("RESEARCH_COMPLETED_RETENTION", 2*time.Hour),
		ResearchPendingRetention:   getDurationEnv("RESEARCH_PENDING_RETENTION", time.Hour),

		AgentToolsFile:     getEnv("AGENT_TOOLS_FILE", ""),
		AgentToolsBaseURL:  strings.TrimRight(getEnv("AGENT_TOOLS_BASE_URL", "http://localhost:"+port), "/"),
		AgentMaxIterations: getIntEnv("AGENT_MAX_ITERATIONS", 10),
		AgentMaxExecution:  getDurationEnv("AGENT_MAX_EXECUTION", 60*time.Second),
		AgentToolTimeout:   getDurationEnv("AGENT_TOOL_TIMEOUT", 30*time.Second),
		AgentMemoryTokens:  getIntEnv("AGENT_MEMORY_TOKENS", 2000),

		ScraperBrowserFallback: getBoolEnv("SCRAPER_BROWSER_FALLBACK", false),

		ApplyRateLimitPerMinute: getIntEnv("APPLY_RATE_LIMIT_PER_MINUTE", 30),
	}
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if c.ResearchCleanupCron != "" {
		if _, err := cron.ParseStandard(c.ResearchCleanupCron); err != nil {
			return fmt.Errorf("invalid RESEARCH_CLEANUP_CRON %q: %w", c.ResearchCleanupCron, err)
		}
	}
	if c.AgentMaxIterations <= 0 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS must be positive")
	}
	if c.MongoURI == "" && c.DatabaseURL == "" {
		return fmt.Errorf("either MONGODB_URI or DATABASE_URL must be set")
	}
	return nil
}

// ToolsFile is the on-disk format of the agent tool registry
type ToolsFile struct {
	Tools []models.ToolDefinition `yaml:"tools"`
}

// LoadTools loads agent tool definitions from a YAML file
func LoadTools(filePath string) ([]models.ToolDefinition, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools file: %w", err)
	}

	var file ToolsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tools YAML: %w", err)
	}

	for i, tool := range file.Tools {
		if tool.EndpointPath == "" || tool.Method == "" || tool.Description == "" {
			return nil, fmt.Errorf("tool %d (%s): endpoint_path, method and description are required", i, tool.Name)
		}
	}

	return file.Tools, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
