package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// ScopeID returns a short, stable fingerprint of a caller token so tokens never reach the logs
func ScopeID(scope string) string {
	if scope == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(scope))
	return hex.EncodeToString(sum[:6])
}

// WithApply returns a logger with prompt-application context fields attached.
func WithApply(scope, sessionID, prompt string) *slog.Logger {
	return slog.With(
		"scope", ScopeID(scope),
		"session", ScopeID(sessionID),
		"prompt", truncate(prompt, 60),
	)
}

// WithComponent returns a logger tagged with a component name and caller scope.
func WithComponent(component, scope string) *slog.Logger {
	return slog.With(
		"component", component,
		"scope", ScopeID(scope),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
