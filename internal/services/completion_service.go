package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"datapipe/internal/config"
	"datapipe/internal/models"
	"datapipe/internal/pipeline"
)

const (
	completionSystemPrompt = "You are a helpful assistant that returns responses in JSON format."
	completionJSONSuffix   = "\n\nPlease return your response as a JSON object with the following keys: %s. Return a value or a list of values for each as appropriate."
)

// CompletionService calls an OpenAI-compatible /chat/completions endpoint
type CompletionService struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	metrics     *Metrics
}

// NewCompletionService creates a completion client from configuration
func NewCompletionService(cfg *config.Config, metrics *Metrics) *CompletionService {
	return &CompletionService{
		baseURL:     cfg.OpenAIBaseURL,
		apiKey:      cfg.OpenAIAPIKey,
		model:       cfg.OpenAIModel,
		temperature: cfg.OpenAITemperature,
		client:      &http.Client{Timeout: cfg.CompletionTimeout},
		metrics:     metrics,
	}
}

// ToolSpec is a function tool offered to the model
type ToolSpec struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes a callable function in OpenAI tool format
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is a raw chat completion request
type ChatRequest struct {
	Messages    []models.AgentMessage
	Tools       []ToolSpec
	Temperature float64
	JSONOutput  bool
}

// Complete sends prompt with a fixed JSON-output instruction naming keys and returns the parsed object
func (s *CompletionService) Complete(ctx context.Context, prompt string, keys []string) (map[string]any, error) {
	fullPrompt := prompt + fmt.Sprintf(completionJSONSuffix, strings.Join(keys, ", "))

	msg, err := s.Chat(ctx, ChatRequest{
		Messages: []models.AgentMessage{
			{Role: "system", Content: completionSystemPrompt},
			{Role: "user", Content: fullPrompt},
		},
		Temperature: s.temperature,
		JSONOutput:  true,
	})
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
		log.Printf("⚠️ [COMPLETION] Failed to parse JSON content (length: %d bytes): %v", len(msg.Content), err)
		return nil, pipeline.Upstream(err, "completion returned invalid JSON")
	}
	return result, nil
}

// Chat performs one chat completion round trip and returns the assistant message
func (s *CompletionService) Chat(ctx context.Context, req ChatRequest) (*models.AgentMessage, error) {
	start := time.Now()
	msg, err := s.chat(ctx, req)
	s.metrics.RecordCompletion(time.Since(start).Seconds(), err)
	return msg, err
}

func (s *CompletionService) chat(ctx context.Context, req ChatRequest) (*models.AgentMessage, error) {
	requestBody := map[string]interface{}{
		"model":       s.model,
		"messages":    req.Messages,
		"stream":      false,
		"temperature": req.Temperature,
	}
	if req.JSONOutput {
		requestBody["response_format"] = map[string]interface{}{"type": "json_object"}
	}
	if len(req.Tools) > 0 {
		requestBody["tools"] = req.Tools
		requestBody["tool_choice"] = "auto"
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, pipeline.Internal(err, "failed to marshal completion request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, pipeline.Internal(err, "failed to create completion request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, pipeline.Upstream(err, "completion request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pipeline.Upstream(err, "failed to read completion response")
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [COMPLETION] API error (status %d): %s", resp.StatusCode, truncateBody(body, 300))
		return nil, pipeline.Upstream(nil, "completion API error (status %d): %s", resp.StatusCode, truncateBody(body, 300))
	}

	var apiResponse struct {
		Choices []struct {
			Message models.AgentMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, pipeline.Upstream(err, "failed to parse completion response")
	}
	if len(apiResponse.Choices) == 0 {
		return nil, pipeline.Upstream(nil, "no choices in completion response")
	}

	msg := apiResponse.Choices[0].Message
	return &msg, nil
}

func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
