package middleware

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Webhook callbacks (per IP), unauthenticated
	WebhookMax        int
	WebhookExpiration time.Duration

	// apply_prompt runs (per scope, Redis-backed)
	ApplyMax    int
	ApplyWindow time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		WebhookMax:        60,
		WebhookExpiration: 1 * time.Minute,

		ApplyMax:    30,
		ApplyWindow: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults.
// applyPerMinute comes from the service config; zero or less disables the apply limiter.
func LoadRateLimitConfig(applyPerMinute int) *RateLimitConfig {
	config := DefaultRateLimitConfig()
	config.ApplyMax = applyPerMinute

	if v := os.Getenv("RATE_LIMIT_GLOBAL_API"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.GlobalAPIMax = n
		}
	}

	if v := os.Getenv("RATE_LIMIT_WEBHOOK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WebhookMax = n
		}
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// WebhookRateLimiter limits provider callbacks, which carry no caller token
func WebhookRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebhookMax,
		Expiration: config.WebhookExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "webhook:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Webhook limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many webhook calls.",
				"retry_after": int(config.WebhookExpiration.Seconds()),
			})
		},
	})
}

// WindowCounter counts hits in a fixed window shared across instances
type WindowCounter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (remaining int64, exceeded bool, err error)
}

// ApplyRateLimiter caps apply_prompt runs per caller scope. Must run after ScopeMiddleware.
// A nil counter or a non-positive limit disables it; counter errors let the request through.
func ApplyRateLimiter(counter WindowCounter, config *RateLimitConfig) fiber.Handler {
	if counter == nil || config.ApplyMax <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		scope := Scope(c)
		remaining, exceeded, err := counter.CheckRateLimit(c.UserContext(), "ratelimit:apply:"+scope, int64(config.ApplyMax), config.ApplyWindow)
		if err != nil {
			log.Printf("⚠️  [RATE-LIMIT] Apply limiter unavailable: %v", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(config.ApplyMax))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if exceeded {
			log.Printf("⚠️  [RATE-LIMIT] Apply limit reached for scope on %s", c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many prompt applications. Please wait before trying again.",
				"retry_after": int(config.ApplyWindow.Seconds()),
			})
		}
		return c.Next()
	}
}
