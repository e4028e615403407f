package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"datapipe/internal/config"
)

const analyticsTaskNameLength = 15

// AnalyticsService registers prompts as tasks with the remote analytics service
type AnalyticsService struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
	metrics     *Metrics
}

// NewAnalyticsService creates an analytics client from configuration
func NewAnalyticsService(cfg *config.Config, metrics *Metrics) *AnalyticsService {
	return &AnalyticsService{
		baseURL:     cfg.AnalyticsBaseURL,
		model:       cfg.OpenAIModel,
		temperature: cfg.OpenAITemperature,
		client:      &http.Client{Timeout: 30 * time.Second},
		metrics:     metrics,
	}
}

// CreateTask creates a task named after the prompt, attaches the prompt and activates the
// global quality evaluation. It returns the remote task id.
func (s *AnalyticsService) CreateTask(ctx context.Context, userID string, projectID int64, prompt string) (string, error) {
	taskID, err := s.createTask(ctx, userID, projectID, prompt)
	s.metrics.RecordAnalyticsTask(err)
	if err != nil {
		log.Printf("❌ [ANALYTICS] Task creation failed for project %d: %v", projectID, err)
		return "", err
	}
	log.Printf("✅ [ANALYTICS] Created task %s for project %d", taskID, projectID)
	return taskID, nil
}

func (s *AnalyticsService) createTask(ctx context.Context, userID string, projectID int64, prompt string) (string, error) {
	name := []rune(prompt)
	if len(name) > analyticsTaskNameLength {
		name = name[:analyticsTaskNameLength]
	}

	var created struct {
		TaskID json.RawMessage `json:"task_id"`
	}
	body, err := s.call(ctx, "POST", "/api/tasks/", userID, map[string]interface{}{
		"name":        string(name),
		"description": "",
		"projectId":   projectID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("failed to parse task response: %w", err)
	}

	taskID := rawID(created.TaskID)
	if taskID == "" {
		return "", fmt.Errorf("task creation did not return a task_id")
	}

	if _, err := s.call(ctx, "POST", "/api/tasks/"+taskID+"/prompts/", userID, map[string]interface{}{
		"taskId":      taskID,
		"promptText":  prompt,
		"modelName":   s.model,
		"temperature": s.temperature,
		"userId":      userID,
	}); err != nil {
		return "", fmt.Errorf("failed to add prompt to task: %w", err)
	}

	if _, err := s.call(ctx, "PUT", "/api/tasks/"+taskID+"/evals/global_quality/active/", userID, map[string]interface{}{
		"isActive": true,
	}); err != nil {
		return "", fmt.Errorf("failed to activate evaluation: %w", err)
	}

	return taskID, nil
}

func (s *AnalyticsService) call(ctx context.Context, method, path, userID string, payload interface{}) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+userID)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error while calling analytics API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%d - %s", resp.StatusCode, truncateBody(body, 300))
	}
	return body, nil
}

// rawID accepts a JSON string or number id
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
