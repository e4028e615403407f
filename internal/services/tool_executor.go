package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"datapipe/internal/models"
)

// ToolExecutor performs agent tool calls against this service's own HTTP API
type ToolExecutor struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewToolExecutor creates an executor sending requests to baseURL
func NewToolExecutor(baseURL string, timeout time.Duration) *ToolExecutor {
	return &ToolExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Execute calls the tool's endpoint on behalf of the caller identified by token.
// The result is always text for the model: the response body, or a description of the failure.
func (e *ToolExecutor) Execute(ctx context.Context, tool models.ToolDefinition, rawArgs, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := parseToolArgs(rawArgs)
	path := expandPath(tool.EndpointPath, args)
	target := e.baseURL + path

	var body io.Reader
	method := strings.ToUpper(tool.Method)
	switch method {
	case "GET", "DELETE":
		if query := toQuery(args); query != "" {
			target += "?" + query
		}
	case "POST", "PUT":
		payload, err := json.Marshal(args)
		if err != nil {
			return fmt.Sprintf("API error: %v", err), err
		}
		body = bytes.NewReader(payload)
	default:
		err := fmt.Errorf("unsupported HTTP method: %s", tool.Method)
		return fmt.Sprintf("Unsupported HTTP method: %s", tool.Method), err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Sprintf("API error: %v", err), err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Sprintf("Request timed out after %d seconds", int(e.timeout.Seconds())), err
		}
		return fmt.Sprintf("API error: %v", err), err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("API error: %v", err), err
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d", resp.StatusCode)
		return fmt.Sprintf("API call failed: %d - %s", resp.StatusCode, string(respBody)), err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, respBody, "", "  ") == nil {
		return pretty.String(), nil
	}
	return string(respBody), nil
}

// parseToolArgs decodes model-supplied arguments; non-object input is passed as "input"
func parseToolArgs(raw string) map[string]any {
	args := map[string]any{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"input": raw}
	}
	return args
}

// expandPath fills {name} placeholders from args, removing the used arguments
func expandPath(path string, args map[string]any) string {
	for name, value := range args {
		placeholder := "{" + name + "}"
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(fmt.Sprint(value)))
			delete(args, name)
		}
	}
	return path
}

func toQuery(args map[string]any) string {
	values := url.Values{}
	for name, value := range args {
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				values.Add(name, fmt.Sprint(item))
			}
		case string:
			values.Set(name, v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				values.Set(name, fmt.Sprint(v))
				continue
			}
			values.Set(name, string(encoded))
		}
	}
	return values.Encode()
}
