package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"datapipe/internal/config"
	"datapipe/internal/database"
	"datapipe/internal/models"
	"datapipe/internal/pipeline"
	"datapipe/internal/services"
	"datapipe/internal/store/sqlstore"
)

// echoCompleter answers every prompt with the prompt itself under each requested key
type echoCompleter struct {
	prompts []string
}

func (e *echoCompleter) Complete(ctx context.Context, prompt string, keys []string) (map[string]any, error) {
	e.prompts = append(e.prompts, prompt)
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = "result: " + prompt
	}
	return out, nil
}

type countingTasks struct {
	calls int
}

func (c *countingTasks) CreateTask(ctx context.Context, userID string, projectID int64, prompt string) (string, error) {
	c.calls++
	return "task-77", nil
}

type readyProvider struct {
	webhooks []string
}

func (p *readyProvider) Configured() bool { return true }

func (p *readyProvider) RunTask(ctx context.Context, prompt, webhookURL string) (string, error) {
	p.webhooks = append(p.webhooks, webhookURL)
	return "run-1", nil
}

type testEnv struct {
	app       *fiber.App
	completer *echoCompleter
	tasks     *countingTasks
	provider  *readyProvider
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := sqlstore.New(db)

	cfg := &config.Config{
		WebhookBaseURL:     "https://hooks.example.com",
		WebhookSecret:      "hook-secret",
		ResearchTimeout:    time.Hour,
		AgentMaxIterations: 3,
		AgentMaxExecution:  5 * time.Second,
		AgentMemoryTokens:  1000,
	}

	env := &testEnv{completer: &echoCompleter{}, tasks: &countingTasks{}, provider: &readyProvider{}}
	summarizer := pipeline.NewSummarizer(env.completer)
	orchestrator := pipeline.NewOrchestrator(st, pipeline.NewResolver(st, env.tasks), env.completer, summarizer)
	tools := services.NewToolRegistry()

	router := &Router{
		Objects:  NewObjectHandler(services.NewIngestService(st, summarizer, nil, nil), services.NewObjectService(st)),
		Prompts:  NewPromptHandler(orchestrator, services.NewProjectService(st), nil),
		Agents:   NewAgentHandler(services.NewAgentService(cfg, st, nil, tools, services.NewToolExecutor("http://unused", time.Second), nil), tools),
		Research: NewResearchHandler(services.NewResearchService(cfg, st, env.provider, nil)),
		Health:   NewHealthHandler(map[string]Pinger{"database": st}),
	}

	env.app = fiber.New()
	router.Register(env.app)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, decoded
}

func TestHealth(t *testing.T) {
	env := setupTestApp(t)
	status, body := env.do(t, "GET", "/health", "", nil)
	if status != fiber.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", status, body)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupTestApp(t)
	for _, path := range []string{"/objects", "/tools", "/tasks/pending"} {
		status, body := env.do(t, "GET", path, "", nil)
		if status != fiber.StatusUnauthorized {
			t.Errorf("GET %s status = %d", path, status)
		}
		if body["detail"] != "Authorization header required" {
			t.Errorf("GET %s body = %v", path, body)
		}
	}
}

func TestIngestApplyAndReturnData(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, "POST", "/record_project", "tok", models.RecordProjectRequest{
		SessionUID: "tok", UserID: "u1", ProjectID: 9,
	})
	if status != fiber.StatusOK || body["action"] != "created" {
		t.Fatalf("record_project = %d %v", status, body)
	}

	status, body = env.do(t, "POST", "/input_data", "tok", map[string]any{
		"created_object_name": "facts",
		"data_type":           "strings",
		"input_data":          []string{"sky is blue", "grass is green", "snow is white"},
	})
	if status != fiber.StatusOK || body["processed_count"] != float64(3) {
		t.Fatalf("input_data = %d %v", status, body)
	}
	if body["message"] != "Successfully processed 3 items" {
		t.Errorf("input_data message = %v", body["message"])
	}

	apply := map[string]any{
		"created_object_names": []string{"colors"},
		"prompt_string":        "Extract the color from {facts}",
		"inputs":               []map[string]string{{"input_object_name": "facts", "mode": "use_individually"}},
	}
	status, body = env.do(t, "POST", "/apply_prompt", "tok", apply)
	if status != fiber.StatusOK {
		t.Fatalf("apply_prompt = %d %v", status, body)
	}
	if body["combinations_processed"] != float64(3) || body["task_id"] != "task-77" {
		t.Errorf("apply_prompt body = %v", body)
	}
	if body["message"] != "Successfully processed 3 combinations" {
		t.Errorf("apply_prompt message = %v", body["message"])
	}
	if env.completer.prompts[0] != "Extract the color from sky is blue" {
		t.Errorf("first filled prompt = %q", env.completer.prompts[0])
	}

	// same prompt in the same session reuses the task
	env.do(t, "POST", "/apply_prompt", "tok", apply)
	if env.tasks.calls != 1 {
		t.Errorf("remote task created %d times, want 1", env.tasks.calls)
	}

	status, body = env.do(t, "GET", "/objects/colors", "tok", nil)
	if status != fiber.StatusOK {
		t.Fatalf("get object = %d %v", status, body)
	}
	data := body["data"].([]any)
	if len(data) != 6 {
		t.Fatalf("colors entries = %d, want 6", len(data))
	}
	first := data[0].(map[string]any)
	if keys := first["key_list"].([]any); len(keys) != 2 {
		t.Errorf("derived entry keys = %v, want source key plus own key", keys)
	}

	status, body = env.do(t, "GET", "/return_data/facts", "tok", nil)
	if status != fiber.StatusOK {
		t.Fatalf("return_data = %d %v", status, body)
	}
	if body["text_value"] != "sky is blue\ngrass is green\nsnow is white" || body["total_objects"] != float64(2) {
		t.Errorf("return_data body = %v", body)
	}

	status, body = env.do(t, "GET", "/objects", "tok", nil)
	if names := body["objects"].([]any); status != fiber.StatusOK || len(names) != 2 {
		t.Errorf("list objects = %d %v", status, body)
	}

	// objects are invisible to other callers
	status, body = env.do(t, "GET", "/objects/facts", "someone-else", nil)
	if status != fiber.StatusNotFound || body["error"] != "not_found" {
		t.Errorf("cross-scope get = %d %v", status, body)
	}

	status, _ = env.do(t, "DELETE", "/objects/facts", "tok", nil)
	if status != fiber.StatusOK {
		t.Errorf("delete = %d", status)
	}
	status, _ = env.do(t, "DELETE", "/objects/facts", "tok", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("second delete = %d", status)
	}
}

func TestApplyPromptErrors(t *testing.T) {
	env := setupTestApp(t)

	tests := []struct {
		name       string
		token      string
		body       map[string]any
		wantStatus int
	}{
		{
			name:  "no project for session",
			token: "fresh",
			body: map[string]any{
				"created_object_names": []string{"out"},
				"prompt_string":        "p {a}",
				"inputs":               []map[string]string{{"input_object_name": "a", "mode": "use_individually"}},
			},
			wantStatus: fiber.StatusNotFound,
		},
		{
			name:  "unknown mode",
			token: "fresh",
			body: map[string]any{
				"created_object_names": []string{"out"},
				"prompt_string":        "p {a}",
				"inputs":               []map[string]string{{"input_object_name": "a", "mode": "sideways"}},
			},
			wantStatus: fiber.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, "POST", "/apply_prompt", tt.token, tt.body)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d (%v)", status, tt.wantStatus, body)
			}
		})
	}
}

func TestAgentsAndTools(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, "POST", "/create-agent", "tok", models.CreateAgentRequest{AgentName: "helper", Instructions: "Be nice."})
	if status != fiber.StatusOK || body["agent_id"] != "helper" || body["message"] != "Agent created successfully" {
		t.Fatalf("create-agent = %d %v", status, body)
	}

	status, body = env.do(t, "GET", "/agents/helper", "tok", nil)
	if status != fiber.StatusOK || body["instructions"] != "Be nice." {
		t.Errorf("get agent = %d %v", status, body)
	}
	status, _ = env.do(t, "GET", "/agents/helper", "other", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("cross-scope agent status = %d", status)
	}

	status, body = env.do(t, "POST", "/register-tool", "tok", models.RegisterToolRequest{
		EndpointPath: "/return_data/{object_name}", Method: "get", Description: "Related data",
	})
	if status != fiber.StatusOK || body["tool_name"] != "get_return_data_{object_name}" {
		t.Errorf("register-tool = %d %v", status, body)
	}
	status, body = env.do(t, "POST", "/register-tool", "tok", map[string]string{"method": "GET"})
	if status != fiber.StatusBadRequest || !strings.HasPrefix(body["detail"].(string), "Missing required fields") {
		t.Errorf("register-tool missing fields = %d %v", status, body)
	}

	status, body = env.do(t, "GET", "/tools", "tok", nil)
	if status != fiber.StatusOK || body["total_tools"] != float64(3) {
		t.Errorf("tools = %d %v", status, body)
	}

	status, _ = env.do(t, "DELETE", "/agents/helper", "tok", nil)
	if status != fiber.StatusOK {
		t.Errorf("delete agent = %d", status)
	}
	status, _ = env.do(t, "POST", "/chat", "tok", models.ChatRequest{AgentID: "helper", Message: "hi"})
	if status != fiber.StatusNotFound {
		t.Errorf("chat with deleted agent = %d", status)
	}
}

func TestResearchFlow(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, "POST", "/research_topic", "tok", models.ResearchTopicRequest{Goal: "Acme CEO", ReturnData: []string{"ceo"}})
	if status != fiber.StatusOK || body["status"] != "pending" {
		t.Fatalf("research_topic = %d %v", status, body)
	}
	taskID := body["task_id"].(string)

	callback, err := url.Parse(env.provider.webhooks[0])
	if err != nil {
		t.Fatalf("bad webhook url: %v", err)
	}
	token := callback.Query().Get("token")

	status, body = env.do(t, "GET", "/tasks/pending", "tok", nil)
	if status != fiber.StatusOK || body["pending_tasks"] != float64(1) {
		t.Errorf("pending = %d %v", status, body)
	}

	webhookPath := "/webhook/skyvern/" + taskID
	payload := models.ResearchWebhookPayload{Status: "completed", Output: map[string]any{"ceo": "Jane Roe"}}

	status, _ = env.do(t, "POST", webhookPath+"?token=forged", "", payload)
	if status != fiber.StatusUnauthorized {
		t.Errorf("forged webhook status = %d", status)
	}

	status, body = env.do(t, "POST", webhookPath+"?token="+url.QueryEscape(token), "", payload)
	if status != fiber.StatusOK || body["status"] != "received" || body["task_status"] != "completed" {
		t.Fatalf("webhook = %d %v", status, body)
	}

	status, body = env.do(t, "GET", "/research_status/"+taskID, "tok", nil)
	if status != fiber.StatusOK || body["status"] != "completed" || body["output_data"] != `{"ceo":"Jane Roe"}` {
		t.Errorf("status = %d %v", status, body)
	}

	status, body = env.do(t, "GET", "/tasks/completed", "tok", nil)
	if status != fiber.StatusOK || body["completed_tasks"] != float64(1) {
		t.Errorf("completed = %d %v", status, body)
	}

	status, body = env.do(t, "DELETE", "/tasks/"+taskID, "tok", nil)
	if status != fiber.StatusOK || body["message"] != "Task "+taskID+" removed from completed tasks" {
		t.Errorf("delete = %d %v", status, body)
	}

	status, body = env.do(t, "GET", "/research_status/"+taskID, "tok", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("status after delete = %d %v", status, body)
	}
}
