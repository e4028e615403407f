package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"datapipe/internal/config"
	"datapipe/internal/models"
	"datapipe/internal/pipeline"
	"datapipe/internal/store"
)

// ErrInvalidWebhookToken is returned when a webhook call carries a missing or bad signature
var ErrInvalidWebhookToken = errors.New("invalid webhook token")

// ResearchProvider starts remote research runs
type ResearchProvider interface {
	Configured() bool
	RunTask(ctx context.Context, prompt, webhookURL string) (string, error)
}

// WebhookTokenClaims binds a webhook callback to one research task
type WebhookTokenClaims struct {
	jwt.RegisteredClaims
	TaskID string `json:"task_id"`
}

// ResearchService tracks research tasks delegated to the browser-automation provider
type ResearchService struct {
	tasks              store.ResearchStore
	provider           ResearchProvider
	metrics            *Metrics
	webhookBaseURL     string
	webhookSecret      []byte
	timeout            time.Duration
	completedRetention time.Duration
	pendingRetention   time.Duration
	now                func() time.Time
}

// NewResearchService creates a research service
func NewResearchService(cfg *config.Config, tasks store.ResearchStore, provider ResearchProvider, metrics *Metrics) *ResearchService {
	return &ResearchService{
		tasks:              tasks,
		provider:           provider,
		metrics:            metrics,
		webhookBaseURL:     strings.TrimRight(cfg.WebhookBaseURL, "/"),
		webhookSecret:      []byte(cfg.WebhookSecret),
		timeout:            cfg.ResearchTimeout,
		completedRetention: cfg.ResearchCompletedRetention,
		pendingRetention:   cfg.ResearchPendingRetention,
		now:                time.Now,
	}
}

// ResearchPrompt builds the instruction sent to the provider
func ResearchPrompt(goal string, returnData []string) string {
	keys := strings.Join(returnData, ", ")
	prompt := fmt.Sprintf("Starting from a google search, find %s. "+
		"Attempt to find this information without needing to log into any sites. ", goal)
	if len(returnData) > 1 {
		return prompt + fmt.Sprintf("Return an object with the following keys: %s. "+
			"Do not nest additional keys or categories under these keys, each of these keys should contain a single string.", keys)
	}
	return prompt + fmt.Sprintf("Return an object with the following key: %s. "+
		"Do not nest additional keys or categories under this key, it should just contain a single string.", keys)
}

// Start records a pending task and asks the provider to run it
func (s *ResearchService) Start(ctx context.Context, scope string, req models.ResearchTopicRequest) (*models.ResearchTopicResponse, error) {
	if strings.TrimSpace(req.Goal) == "" {
		return nil, pipeline.Validation("goal is required")
	}
	if !s.provider.Configured() {
		return nil, pipeline.Internal(nil, "Skyvern API key not configured. Please set SKYVERN_API_KEY environment variable.")
	}
	if len(req.ReturnData) == 0 {
		req.ReturnData = []string{"general_information"}
	}

	task := &models.ResearchTask{
		TaskID:     uuid.NewString(),
		Scope:      scope,
		Goal:       req.Goal,
		ReturnData: req.ReturnData,
		Prompt:     ResearchPrompt(req.Goal, req.ReturnData),
		Status:     models.ResearchTaskStatusPending,
		CreatedAt:  s.now(),
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, pipeline.Internal(err, "Error starting research task")
	}

	webhookURL, err := s.webhookURL(task.TaskID)
	if err != nil {
		return nil, pipeline.Internal(err, "Error starting research task")
	}

	log.Printf("🔎 [RESEARCH] Starting task %s", task.TaskID)
	providerID, err := s.provider.RunTask(ctx, task.Prompt, webhookURL)
	if err != nil {
		s.finish(ctx, task, models.ResearchTaskStatusFailed, nil, err.Error())
		return nil, pipeline.Upstream(err, "Error starting research task")
	}

	task.ProviderTaskID = providerID
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		log.Printf("⚠️  [RESEARCH] Failed to store provider id for task %s: %v", task.TaskID, err)
	}
	s.metrics.RecordResearch(string(task.Status))

	return &models.ResearchTopicResponse{
		TaskID:    task.TaskID,
		Status:    string(task.Status),
		Message:   fmt.Sprintf("Research task started successfully. Use /research_status/%s to check progress.", task.TaskID),
		CreatedAt: formatTime(task.CreatedAt),
	}, nil
}

// Status reports a task's state, timing out pending tasks older than the research timeout
func (s *ResearchService) Status(ctx context.Context, scope, taskID string) (*models.ResearchTopicResponse, error) {
	task, err := s.scopedTask(ctx, scope, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status == models.ResearchTaskStatusPending {
		if s.now().Sub(task.CreatedAt) <= s.timeout {
			return &models.ResearchTopicResponse{
				TaskID:    task.TaskID,
				Status:    string(task.Status),
				Message:   "Task is still in progress. Please check again in a few moments.",
				CreatedAt: formatTime(task.CreatedAt),
			}, nil
		}
		s.finish(ctx, task, models.ResearchTaskStatusTimeout, nil, "")
	}

	resp := &models.ResearchTopicResponse{
		TaskID:     task.TaskID,
		Status:     string(task.Status),
		OutputData: task.OutputData,
		CreatedAt:  formatTime(task.CreatedAt),
	}
	if task.CompletedAt != nil {
		resp.CompletedAt = formatTime(*task.CompletedAt)
	}
	switch task.Status {
	case models.ResearchTaskStatusCompleted:
		resp.Message = "Task completed successfully"
	case models.ResearchTaskStatusTimeout:
		resp.Message = fmt.Sprintf("Task timed out after %d minutes", int(s.timeout.Minutes()))
	default:
		resp.Message = "Task failed"
	}
	return resp, nil
}

// HandleWebhook completes a pending task with the provider's result.
// It reports false when the task is unknown or no longer pending.
func (s *ResearchService) HandleWebhook(ctx context.Context, taskID, token string, payload models.ResearchWebhookPayload) (bool, error) {
	if err := s.verifyWebhookToken(taskID, token); err != nil {
		return false, err
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("⚠️  [RESEARCH] Webhook for unknown task: %s", taskID)
		return false, nil
	}
	if err != nil {
		return false, pipeline.Internal(err, "failed to load research task")
	}
	if task.Status != models.ResearchTaskStatusPending {
		log.Printf("⚠️  [RESEARCH] Webhook for task %s which is already %s", taskID, task.Status)
		return false, nil
	}

	var output *string
	if payload.Output != nil {
		encoded, err := json.Marshal(payload.Output)
		if err != nil {
			return false, pipeline.Validation("invalid webhook output: %v", err)
		}
		text := string(encoded)
		output = &text
	}
	errText := ""
	if payload.Error != nil {
		errText = *payload.Error
	}

	status := webhookStatus(payload.Status)
	if status == models.ResearchTaskStatusFailed && errText == "" && payload.Status != "" {
		errText = "provider status: " + payload.Status
	}

	s.finish(ctx, task, status, output, errText)
	log.Printf("✅ [RESEARCH] Task %s finished with status %s", taskID, status)
	return true, nil
}

// ListPending returns the caller's pending tasks
func (s *ResearchService) ListPending(ctx context.Context, scope string) ([]*models.ResearchTask, error) {
	tasks, err := s.tasks.ListTasks(ctx, scope, models.ResearchTaskStatusPending)
	if err != nil {
		return nil, pipeline.Internal(err, "failed to list pending tasks")
	}
	return tasks, nil
}

// ListCompleted returns the caller's finished tasks
func (s *ResearchService) ListCompleted(ctx context.Context, scope string) ([]*models.ResearchTask, error) {
	tasks, err := s.tasks.ListTasks(ctx, scope,
		models.ResearchTaskStatusCompleted, models.ResearchTaskStatusFailed, models.ResearchTaskStatusTimeout)
	if err != nil {
		return nil, pipeline.Internal(err, "failed to list completed tasks")
	}
	return tasks, nil
}

// Delete removes a task and reports which list it was removed from ("pending" or "completed")
func (s *ResearchService) Delete(ctx context.Context, scope, taskID string) (string, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && task.Scope != scope) {
		return "", pipeline.NotFound("Task not found")
	}
	if err != nil {
		return "", pipeline.Internal(err, "failed to load research task")
	}

	deleted, err := s.tasks.DeleteTask(ctx, scope, taskID)
	if err != nil {
		return "", pipeline.Internal(err, "failed to delete research task")
	}
	if !deleted {
		return "", pipeline.NotFound("Task not found")
	}

	if task.Status == models.ResearchTaskStatusPending {
		return "pending", nil
	}
	return "completed", nil
}

// Cleanup removes finished tasks past retention and pending tasks that were abandoned
func (s *ResearchService) Cleanup(ctx context.Context) (int64, error) {
	now := s.now()
	removed, err := s.tasks.DeleteExpired(ctx, now.Add(-s.completedRetention), now.Add(-s.pendingRetention))
	if err != nil {
		return 0, fmt.Errorf("research cleanup failed: %w", err)
	}
	if removed > 0 {
		log.Printf("🧹 [RESEARCH] Cleanup removed %d tasks", removed)
	}
	return removed, nil
}

func (s *ResearchService) scopedTask(ctx context.Context, scope, taskID string) (*models.ResearchTask, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && task.Scope != scope) {
		return nil, pipeline.NotFound("Task with ID %s not found. It may have been cleaned up or never existed.", taskID)
	}
	if err != nil {
		return nil, pipeline.Internal(err, "failed to load research task")
	}
	return task, nil
}

func (s *ResearchService) finish(ctx context.Context, task *models.ResearchTask, status models.ResearchTaskStatus, output *string, errText string) {
	completedAt := s.now()
	task.Status = status
	task.OutputData = output
	task.Error = errText
	task.CompletedAt = &completedAt

	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		log.Printf("❌ [RESEARCH] Failed to update task %s: %v", task.TaskID, err)
	}
	s.metrics.RecordResearch(string(status))
}

// webhookURL returns the callback URL for a task, signed when a webhook secret is configured
func (s *ResearchService) webhookURL(taskID string) (string, error) {
	callback := fmt.Sprintf("%s/webhook/skyvern/%s", s.webhookBaseURL, taskID)
	if len(s.webhookSecret) == 0 {
		return callback, nil
	}

	token, err := s.signWebhookToken(taskID)
	if err != nil {
		return "", err
	}
	return callback + "?token=" + url.QueryEscape(token), nil
}

func (s *ResearchService) signWebhookToken(taskID string) (string, error) {
	now := s.now()
	claims := &WebhookTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "datapipe",
			Subject:   taskID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TaskID: taskID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.webhookSecret)
}

func (s *ResearchService) verifyWebhookToken(taskID, tokenString string) error {
	if len(s.webhookSecret) == 0 {
		return nil
	}
	if tokenString == "" {
		return ErrInvalidWebhookToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &WebhookTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.webhookSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookToken, err)
	}

	claims, ok := token.Claims.(*WebhookTokenClaims)
	if !ok || !token.Valid || claims.TaskID != taskID {
		return ErrInvalidWebhookToken
	}
	return nil
}

// webhookStatus maps a provider status onto the task lifecycle
func webhookStatus(status string) models.ResearchTaskStatus {
	switch strings.ToLower(status) {
	case "completed":
		return models.ResearchTaskStatusCompleted
	case "timeout", "timed_out":
		return models.ResearchTaskStatusTimeout
	default:
		return models.ResearchTaskStatusFailed
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
