package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"unicode/utf8"

	"datapipe/internal/models"
)

const (
	// SummaryMinLength is the value length in characters from which a summary is generated at entry creation
	SummaryMinLength = 1000

	// SummaryFallbackLength is the value length in characters above which templates receive the summary instead
	SummaryFallbackLength = 2000

	summaryPrompt = "Here is a document extracted from the web which may contain HTML fragments or other formatting tokens. Write a 30-word summary of this document."
	summaryKey    = "summary"
)

// Completer runs a prompt through the LLM and returns a JSON object with the requested keys
type Completer interface {
	Complete(ctx context.Context, prompt string, keys []string) (map[string]any, error)
}

// Summarizer produces short summaries of long entry values
type Summarizer struct {
	completer Completer
}

// NewSummarizer creates a summarizer backed by the given completer
func NewSummarizer(completer Completer) *Summarizer {
	return &Summarizer{completer: completer}
}

// Summarize returns a 30-word summary of text, or nil when text is short.
// A response without a summary key also yields nil.
func (s *Summarizer) Summarize(ctx context.Context, text string) (*string, error) {
	if s == nil || s.completer == nil || utf8.RuneCountInString(text) < SummaryMinLength {
		return nil, nil
	}

	result, err := s.completer.Complete(ctx, summaryPrompt+"\n\n"+text, []string{summaryKey})
	if err != nil {
		log.Printf("❌ [SUMMARY] Failed to summarize %d-char value: %v", len(text), err)
		return nil, err
	}
	raw, ok := result[summaryKey]
	if !ok || raw == nil {
		log.Printf("⚠️ [SUMMARY] Completion returned no summary key")
		return nil, nil
	}
	summary := Stringify(raw)
	return &summary, nil
}

// NewEntry builds an entry, attaching a summary when the value is long enough
func (s *Summarizer) NewEntry(ctx context.Context, keys []string, value string) (models.DataEntry, error) {
	summary, err := s.Summarize(ctx, value)
	if err != nil {
		return models.DataEntry{}, err
	}
	return models.DataEntry{
		KeyList:      keys,
		Value:        value,
		SummaryValue: summary,
	}, nil
}

// Stringify renders a completion value the way it is stored in an entry
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case map[string]any, []any:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	default:
		return fmt.Sprint(val)
	}
}
