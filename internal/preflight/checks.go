package preflight

import (
	"context"
	"log"
	"time"

	"datapipe/internal/config"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Pinger is a dependency that must be reachable before the server starts
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	store Pinger
	cfg   *config.Config
}

// NewChecker creates a new preflight checker
func NewChecker(store Pinger, cfg *config.Config) *Checker {
	return &Checker{store: store, cfg: cfg}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkStoreConnection(ctx),
		c.checkCompletionAPI(),
		c.checkResearchProvider(),
		c.checkWebhookSecret(),
	}

	passed, failed, warnings := 0, 0, 0
	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)
	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func (c *Checker) checkStoreConnection(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Store Connection",
			Status:  "fail",
			Message: "Cannot reach the object store",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Store Connection",
		Status:  "pass",
		Message: "Object store reachable",
	}
}

// checkCompletionAPI fails without an API key since every prompt application needs the LLM
func (c *Checker) checkCompletionAPI() CheckResult {
	if c.cfg.OpenAIAPIKey == "" {
		return CheckResult{
			Name:    "Completion API",
			Status:  "fail",
			Message: "OPENAI_API_KEY is not set",
		}
	}
	return CheckResult{
		Name:    "Completion API",
		Status:  "pass",
		Message: "Using model " + c.cfg.OpenAIModel + " at " + c.cfg.OpenAIBaseURL,
	}
}

func (c *Checker) checkResearchProvider() CheckResult {
	if c.cfg.SkyvernAPIKey == "" {
		return CheckResult{
			Name:    "Research Provider",
			Status:  "warning",
			Message: "SKYVERN_API_KEY is not set, research endpoints are disabled",
		}
	}
	return CheckResult{
		Name:    "Research Provider",
		Status:  "pass",
		Message: "Configured at " + c.cfg.SkyvernBaseURL,
	}
}

// checkWebhookSecret requires signed research callbacks in production
func (c *Checker) checkWebhookSecret() CheckResult {
	if c.cfg.WebhookSecret != "" {
		return CheckResult{
			Name:    "Webhook Secret",
			Status:  "pass",
			Message: "Research callbacks are signed",
		}
	}
	if c.cfg.Environment == "production" && c.cfg.SkyvernAPIKey != "" {
		return CheckResult{
			Name:    "Webhook Secret",
			Status:  "fail",
			Message: "WEBHOOK_SECRET is required in production when research is enabled",
		}
	}
	return CheckResult{
		Name:    "Webhook Secret",
		Status:  "warning",
		Message: "WEBHOOK_SECRET is not set, research callbacks are unauthenticated",
	}
}
