package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SkyvernClient starts browser-automation runs on the Skyvern API
type SkyvernClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewSkyvernClient creates a Skyvern client
func NewSkyvernClient(baseURL, apiKey string) *SkyvernClient {
	return &SkyvernClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether an API key is set
func (c *SkyvernClient) Configured() bool {
	return c.apiKey != ""
}

// RunTask starts a task for prompt whose result is posted to webhookURL. It returns the provider run id.
func (c *SkyvernClient) RunTask(ctx context.Context, prompt, webhookURL string) (string, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"prompt":      prompt,
		"webhook_url": webhookURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/run/tasks", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("skyvern request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("skyvern API error (status %d): %s", resp.StatusCode, truncateBody(body, 300))
	}

	var result struct {
		RunID  string `json:"run_id"`
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.RunID != "" {
		return result.RunID, nil
	}
	return result.TaskID, nil
}
