package services

import (
	"context"
	"log"
	"strings"

	"datapipe/internal/models"
	"datapipe/internal/pipeline"
	"datapipe/internal/store"
)

// ProjectService records the session base record that prompt applications derive their task records from
type ProjectService struct {
	records store.RecordStore
}

// NewProjectService creates a project service
func NewProjectService(records store.RecordStore) *ProjectService {
	return &ProjectService{records: records}
}

// Record upserts the base record keyed by (project_id, user_id)
func (s *ProjectService) Record(ctx context.Context, userToken string, req models.RecordProjectRequest) (*models.UpsertResult, error) {
	var missing []string
	if strings.TrimSpace(req.SessionUID) == "" {
		missing = append(missing, "session_uid")
	}
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if len(missing) > 0 {
		return nil, pipeline.Validation("Missing required fields: [%s]", strings.Join(missing, ", "))
	}

	result, err := s.records.UpsertProject(ctx, &models.PromptRecord{
		SessionUID:   req.SessionUID,
		UserAPIKey:   req.UserAPIKey,
		UserName:     req.UserName,
		UserID:       req.UserID,
		ProjectID:    req.ProjectID,
		UserToken:    userToken,
		TaskID:       req.TaskID,
		PromptString: req.PromptString,
	})
	if err != nil {
		return nil, pipeline.Internal(err, "Failed to record project")
	}

	action := "updated"
	if result.Created {
		action = "created"
	}
	log.Printf("✅ [PROJECT] Project %d %s for session %s", req.ProjectID, action, req.SessionUID)
	return result, nil
}
