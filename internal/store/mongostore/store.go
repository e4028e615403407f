// Package mongostore implements the store boundaries on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datapipe/internal/database"
	"datapipe/internal/models"
	"datapipe/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store handles MongoDB CRUD for objects, prompt records, agents and research tasks
type Store struct {
	db       *database.MongoDB
	objects  *mongo.Collection
	prompts  *mongo.Collection
	agents   *mongo.Collection
	research *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// New creates a store over an initialised MongoDB connection
func New(db *database.MongoDB) *Store {
	return &Store{
		db:       db,
		objects:  db.Collection(database.CollectionDataObjects),
		prompts:  db.Collection(database.CollectionPrompts),
		agents:   db.Collection(database.CollectionAgents),
		research: db.Collection(database.CollectionResearchTasks),
	}
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

func objectFilter(scope, name string) bson.M {
	return bson.M{"scope": scope, "object_name": name}
}

// GetObject retrieves an object by name, scoped to the caller
func (s *Store) GetObject(ctx context.Context, scope, name string) (*models.DataObject, error) {
	var obj models.DataObject
	err := s.objects.FindOne(ctx, objectFilter(scope, name)).Decode(&obj)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	if obj.Data == nil {
		obj.Data = []models.DataEntry{}
	}
	return &obj, nil
}

// EnsureObject creates an empty object if none exists
func (s *Store) EnsureObject(ctx context.Context, scope, name string) error {
	now := time.Now().UTC()
	_, err := s.objects.UpdateOne(ctx, objectFilter(scope, name), bson.M{
		"$setOnInsert": bson.M{
			"data":       bson.A{},
			"created_at": now,
			"updated_at": now,
		},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to ensure object: %w", err)
	}
	return nil
}

// AppendEntries pushes entries onto the object in a single atomic update
func (s *Store) AppendEntries(ctx context.Context, scope, name string, entries ...models.DataEntry) error {
	if len(entries) == 0 {
		return s.EnsureObject(ctx, scope, name)
	}
	now := time.Now().UTC()
	_, err := s.objects.UpdateOne(ctx, objectFilter(scope, name), bson.M{
		"$push":        bson.M{"data": bson.M{"$each": entries}},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to append entries: %w", err)
	}
	return nil
}

// DeleteObject removes an object by name
func (s *Store) DeleteObject(ctx context.Context, scope, name string) (bool, error) {
	result, err := s.objects.DeleteOne(ctx, objectFilter(scope, name))
	if err != nil {
		return false, fmt.Errorf("failed to delete object: %w", err)
	}
	return result.DeletedCount > 0, nil
}

// ListObjects returns all objects in the scope
func (s *Store) ListObjects(ctx context.Context, scope string) ([]*models.DataObject, error) {
	cursor, err := s.objects.Find(ctx, bson.M{"scope": scope},
		options.Find().SetSort(bson.D{{Key: "object_name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer cursor.Close(ctx)

	var objects []*models.DataObject
	if err := cursor.All(ctx, &objects); err != nil {
		return nil, fmt.Errorf("failed to decode objects: %w", err)
	}
	return objects, nil
}

// FindByPrompt retrieves the record for an exact session and prompt string
func (s *Store) FindByPrompt(ctx context.Context, sessionUID, prompt string) (*models.PromptRecord, error) {
	return s.findRecord(ctx, bson.M{"session_uid": sessionUID, "prompt_string": prompt}, nil)
}

// FindBySession retrieves the most recently updated record of a session
func (s *Store) FindBySession(ctx context.Context, sessionUID string) (*models.PromptRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	return s.findRecord(ctx, bson.M{"session_uid": sessionUID}, opts)
}

func (s *Store) findRecord(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.PromptRecord, error) {
	var record models.PromptRecord
	var err error
	if opts != nil {
		err = s.prompts.FindOne(ctx, filter, opts).Decode(&record)
	} else {
		err = s.prompts.FindOne(ctx, filter).Decode(&record)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get prompt record: %w", err)
	}
	return &record, nil
}

// InsertRecord inserts a new prompt record
func (s *Store) InsertRecord(ctx context.Context, record *models.PromptRecord) (string, error) {
	record.ID = primitive.NilObjectID
	result, err := s.prompts.InsertOne(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to insert prompt record: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid
		return oid.Hex(), nil
	}
	return fmt.Sprint(result.InsertedID), nil
}

// UpsertProject writes the session base record; created_at is only set on insert
func (s *Store) UpsertProject(ctx context.Context, record *models.PromptRecord) (*models.UpsertResult, error) {
	now := time.Now().UTC()
	set := bson.M{
		"session_uid":  record.SessionUID,
		"user_api_key": record.UserAPIKey,
		"user_name":    record.UserName,
		"user_id":      record.UserID,
		"project_id":   record.ProjectID,
		"user_token":   record.UserToken,
		"updated_at":   now,
	}
	if record.TaskID != nil {
		set["task_id"] = *record.TaskID
	}
	if record.PromptString != nil {
		set["prompt_string"] = *record.PromptString
	}

	result, err := s.prompts.UpdateOne(ctx,
		bson.M{"project_id": record.ProjectID, "user_id": record.UserID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert project record: %w", err)
	}

	if result.UpsertedID != nil {
		id := fmt.Sprint(result.UpsertedID)
		if oid, ok := result.UpsertedID.(primitive.ObjectID); ok {
			id = oid.Hex()
		}
		return &models.UpsertResult{Created: true, DocumentID: id}, nil
	}
	return &models.UpsertResult{Created: false}, nil
}

// SaveAgent inserts or replaces an agent
func (s *Store) SaveAgent(ctx context.Context, agent *models.Agent) error {
	agent.UpdatedAt = time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = agent.UpdatedAt
	}
	_, err := s.agents.ReplaceOne(ctx,
		bson.M{"scope": agent.Scope, "agent_id": agent.AgentID},
		agent,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent, scoped to the caller
func (s *Store) GetAgent(ctx context.Context, scope, agentID string) (*models.Agent, error) {
	var agent models.Agent
	err := s.agents.FindOne(ctx, bson.M{"scope": scope, "agent_id": agentID}).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &agent, nil
}

// ListAgents returns the caller's agents, oldest first
func (s *Store) ListAgents(ctx context.Context, scope string) ([]*models.Agent, error) {
	cursor, err := s.agents.Find(ctx, bson.M{"scope": scope},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetProjection(bson.M{"history": 0}))
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer cursor.Close(ctx)

	var agents []*models.Agent
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("failed to decode agents: %w", err)
	}
	return agents, nil
}

// DeleteAgent removes an agent
func (s *Store) DeleteAgent(ctx context.Context, scope, agentID string) (bool, error) {
	result, err := s.agents.DeleteOne(ctx, bson.M{"scope": scope, "agent_id": agentID})
	if err != nil {
		return false, fmt.Errorf("failed to delete agent: %w", err)
	}
	return result.DeletedCount > 0, nil
}

// CreateTask inserts a new research task
func (s *Store) CreateTask(ctx context.Context, task *models.ResearchTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.Status == "" {
		task.Status = models.ResearchTaskStatusPending
	}
	if _, err := s.research.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to create research task: %w", err)
	}
	return nil
}

// GetTask retrieves a research task by id
func (s *Store) GetTask(ctx context.Context, taskID string) (*models.ResearchTask, error) {
	var task models.ResearchTask
	err := s.research.FindOne(ctx, bson.M{"task_id": taskID}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get research task: %w", err)
	}
	return &task, nil
}

// UpdateTask replaces a research task
func (s *Store) UpdateTask(ctx context.Context, task *models.ResearchTask) error {
	result, err := s.research.ReplaceOne(ctx, bson.M{"task_id": task.TaskID}, task)
	if err != nil {
		return fmt.Errorf("failed to update research task: %w", err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListTasks returns the caller's tasks in the given statuses, newest first
func (s *Store) ListTasks(ctx context.Context, scope string, statuses ...models.ResearchTaskStatus) ([]*models.ResearchTask, error) {
	filter := bson.M{"scope": scope}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	cursor, err := s.research.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list research tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*models.ResearchTask
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode research tasks: %w", err)
	}
	return tasks, nil
}

// DeleteTask removes a research task
func (s *Store) DeleteTask(ctx context.Context, scope, taskID string) (bool, error) {
	result, err := s.research.DeleteOne(ctx, bson.M{"scope": scope, "task_id": taskID})
	if err != nil {
		return false, fmt.Errorf("failed to delete research task: %w", err)
	}
	return result.DeletedCount > 0, nil
}

// DeleteExpired sweeps old terminal tasks and stale pending tasks
func (s *Store) DeleteExpired(ctx context.Context, completedBefore, pendingBefore time.Time) (int64, error) {
	result, err := s.research.DeleteMany(ctx, bson.M{
		"$or": bson.A{
			bson.M{
				"status":       bson.M{"$ne": models.ResearchTaskStatusPending},
				"completed_at": bson.M{"$lt": completedBefore},
			},
			bson.M{
				"status":     models.ResearchTaskStatusPending,
				"created_at": bson.M{"$lt": pendingBefore},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired research tasks: %w", err)
	}
	return result.DeletedCount, nil
}
