package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"datapipe/internal/config"
	"datapipe/internal/pipeline"
)

func newTestCompletion(url string) *CompletionService {
	return NewCompletionService(&config.Config{
		OpenAIBaseURL:     url,
		OpenAIAPIKey:      "sk-test",
		OpenAIModel:       "gpt-4.1-mini",
		OpenAITemperature: 0.2,
		CompletionTimeout: 5 * time.Second,
	}, nil)
}

func TestCompletionService_Complete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"summary\":\"short\",\"tags\":[\"a\",\"b\"]}"}}]}`))
	}))
	defer server.Close()

	svc := newTestCompletion(server.URL)
	result, err := svc.Complete(context.Background(), "Describe X", []string{"summary", "tags"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if result["summary"] != "short" {
		t.Errorf("summary = %v", result["summary"])
	}
	if tags, ok := result["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags = %v", result["tags"])
	}

	if captured["model"] != "gpt-4.1-mini" {
		t.Errorf("model = %v", captured["model"])
	}
	if captured["temperature"] != 0.2 {
		t.Errorf("temperature = %v", captured["temperature"])
	}
	format, _ := captured["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v", captured["response_format"])
	}

	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	system := messages[0].(map[string]any)
	if system["content"] != completionSystemPrompt {
		t.Errorf("system message = %v", system["content"])
	}
	user := messages[1].(map[string]any)["content"].(string)
	if !strings.HasPrefix(user, "Describe X\n\n") || !strings.Contains(user, "following keys: summary, tags.") {
		t.Errorf("user message = %q", user)
	}
}

func TestCompletionService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"non-200", http.StatusTooManyRequests, `{"error":"slow down"}`, "status 429"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"content not json", http.StatusOK, `{"choices":[{"message":{"content":"plain words"}}]}`, "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestCompletion(server.URL).Complete(context.Background(), "p", []string{"k"})
			if err == nil {
				t.Fatal("expected error")
			}
			if pipeline.KindOf(err) != pipeline.KindUpstream {
				t.Errorf("kind = %v, want upstream", pipeline.KindOf(err))
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestCompletionService_ChatWithTools(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"x\"}"}}]}}]}`))
	}))
	defer server.Close()

	msg, err := newTestCompletion(server.URL).Chat(context.Background(), ChatRequest{
		Tools: []ToolSpec{{Type: "function", Function: FunctionSpec{Name: "lookup", Parameters: map[string]any{"type": "object"}}}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "lookup" {
		t.Errorf("tool calls = %+v", msg.ToolCalls)
	}
	if captured["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v", captured["tool_choice"])
	}
	if _, ok := captured["response_format"]; ok {
		t.Error("response_format should only be sent for JSON output")
	}
}
