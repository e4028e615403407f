package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"datapipe/internal/config"
)

func TestAnalyticsService_CreateTask(t *testing.T) {
	var calls []string
	var prompt map[string]any
	var created map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if got := r.Header.Get("Authorization"); got != "Basic user-9" {
			t.Errorf("Authorization = %q", got)
		}

		switch r.URL.Path {
		case "/api/tasks/":
			json.NewDecoder(r.Body).Decode(&created)
			w.Write([]byte(`{"task_id": 321}`))
		case "/api/tasks/321/prompts/":
			json.NewDecoder(r.Body).Decode(&prompt)
			w.Write([]byte(`{}`))
		case "/api/tasks/321/evals/global_quality/active/":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := NewAnalyticsService(&config.Config{
		AnalyticsBaseURL:  server.URL,
		OpenAIModel:       "gpt-4.1-mini",
		OpenAITemperature: 0.2,
	}, nil)

	taskID, err := svc.CreateTask(context.Background(), "user-9", 42, "Summarize the following text: {A}")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if taskID != "321" {
		t.Errorf("taskID = %q, want 321", taskID)
	}

	want := []string{
		"POST /api/tasks/",
		"POST /api/tasks/321/prompts/",
		"PUT /api/tasks/321/evals/global_quality/active/",
	}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", calls, want)
	}

	if created["name"] != "Summarize the f" {
		t.Errorf("task name = %v", created["name"])
	}
	if created["projectId"] != float64(42) {
		t.Errorf("projectId = %v", created["projectId"])
	}
	if prompt["promptText"] != "Summarize the following text: {A}" || prompt["modelName"] != "gpt-4.1-mini" {
		t.Errorf("prompt payload = %v", prompt)
	}
}

func TestAnalyticsService_FailureStopsSequence(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path == "/api/tasks/" {
			w.Write([]byte(`{"task_id": "t-1"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad prompt"))
	}))
	defer server.Close()

	svc := NewAnalyticsService(&config.Config{AnalyticsBaseURL: server.URL}, nil)
	_, err := svc.CreateTask(context.Background(), "u", 1, "p")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "failed to add prompt to task: 400 - bad prompt") {
		t.Errorf("error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestAnalyticsService_MissingTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	svc := NewAnalyticsService(&config.Config{AnalyticsBaseURL: server.URL}, nil)
	if _, err := svc.CreateTask(context.Background(), "u", 1, "p"); err == nil {
		t.Error("expected error when no task_id is returned")
	}
}
