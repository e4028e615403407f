// Package sqlstore implements the store boundaries on SQLite or MySQL.
package sqlstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"datapipe/internal/database"
	"datapipe/internal/models"
	"datapipe/internal/store"
)

// Store handles SQL CRUD for objects, prompt records, agents and research tasks
type Store struct {
	db *database.DB
}

var _ store.Store = (*Store)(nil)

// New creates a store over an initialised SQL connection
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// upsert renders an insert that updates the given columns when the primary key already exists
func (s *Store) upsert(table string, columns, conflict, update []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)

	sets := make([]string, 0, len(update))
	if s.db.Dialect == database.DialectMySQL {
		for _, col := range update {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", col, col))
		}
		return query + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	for _, col := range update {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	return query + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(sets, ", "))
}

func (s *Store) insertIgnore(table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	if s.db.Dialect == database.DialectMySQL {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING", table, strings.Join(columns, ", "), placeholders)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func promptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// ---- objects ----

// GetObject retrieves an object and its entries in append order
func (s *Store) GetObject(ctx context.Context, scope, name string) (*models.DataObject, error) {
	obj := &models.DataObject{Scope: scope, Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM data_objects WHERE scope = ? AND object_name = ?`,
		scope, name,
	).Scan(&obj.CreatedAt, &obj.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key_list, value, summary_value FROM data_entries WHERE scope = ? AND object_name = ? ORDER BY id`,
		scope, name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}
	defer rows.Close()

	obj.Data = []models.DataEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		obj.Data = append(obj.Data, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return obj, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner, extra ...any) (models.DataEntry, error) {
	var (
		entry   models.DataEntry
		keys    string
		summary sql.NullString
	)
	dest := append(extra, &keys, &entry.Value, &summary)
	if err := row.Scan(dest...); err != nil {
		return entry, fmt.Errorf("failed to scan entry: %w", err)
	}
	if err := json.Unmarshal([]byte(keys), &entry.KeyList); err != nil {
		return entry, fmt.Errorf("failed to decode key_list: %w", err)
	}
	entry.SummaryValue = stringPtr(summary)
	return entry, nil
}

// EnsureObject creates an empty object if none exists
func (s *Store) EnsureObject(ctx context.Context, scope, name string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		s.insertIgnore("data_objects", []string{"scope", "object_name", "created_at", "updated_at"}),
		scope, name, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure object: %w", err)
	}
	return nil
}

// AppendEntries appends entries in one transaction, creating the object if needed
func (s *Store) AppendEntries(ctx context.Context, scope, name string, entries ...models.DataEntry) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			s.insertIgnore("data_objects", []string{"scope", "object_name", "created_at", "updated_at"}),
			scope, name, now, now,
		); err != nil {
			return fmt.Errorf("failed to ensure object: %w", err)
		}

		for _, entry := range entries {
			keys := entry.KeyList
			if keys == nil {
				keys = []string{}
			}
			encoded, err := json.Marshal(keys)
			if err != nil {
				return fmt.Errorf("failed to encode key_list: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO data_entries (scope, object_name, key_list, value, summary_value) VALUES (?, ?, ?, ?, ?)`,
				scope, name, string(encoded), entry.Value, nullString(entry.SummaryValue),
			); err != nil {
				return fmt.Errorf("failed to append entry: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE data_objects SET updated_at = ? WHERE scope = ? AND object_name = ?`,
			now, scope, name,
		); err != nil {
			return fmt.Errorf("failed to touch object: %w", err)
		}
		return nil
	})
}

// DeleteObject removes an object and its entries
func (s *Store) DeleteObject(ctx context.Context, scope, name string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM data_objects WHERE scope = ? AND object_name = ?`, scope, name)
		if err != nil {
			return fmt.Errorf("failed to delete object: %w", err)
		}
		n, _ := result.RowsAffected()
		deleted = n > 0

		if _, err := tx.ExecContext(ctx, `DELETE FROM data_entries WHERE scope = ? AND object_name = ?`, scope, name); err != nil {
			return fmt.Errorf("failed to delete entries: %w", err)
		}
		return nil
	})
	return deleted, err
}

// ListObjects returns every object in the scope with its entries
func (s *Store) ListObjects(ctx context.Context, scope string) ([]*models.DataObject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_name, created_at, updated_at FROM data_objects WHERE scope = ? ORDER BY object_name`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	var objects []*models.DataObject
	byName := make(map[string]*models.DataObject)
	for rows.Next() {
		obj := &models.DataObject{Scope: scope, Data: []models.DataEntry{}}
		if err := rows.Scan(&obj.Name, &obj.CreatedAt, &obj.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		objects = append(objects, obj)
		byName[obj.Name] = obj
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read objects: %w", err)
	}

	entryRows, err := s.db.QueryContext(ctx,
		`SELECT object_name, key_list, value, summary_value FROM data_entries WHERE scope = ? ORDER BY id`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var name string
		entry, err := scanEntry(entryRows, &name)
		if err != nil {
			return nil, err
		}
		if obj, ok := byName[name]; ok {
			obj.Data = append(obj.Data, entry)
		}
	}
	if err := entryRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return objects, nil
}

// ---- prompt records ----

const recordColumns = `id, session_uid, user_api_key, user_name, user_id, project_id, user_token, task_id, prompt_string, created_at, updated_at`

func scanRecord(row rowScanner) (*models.PromptRecord, error) {
	var (
		record models.PromptRecord
		id     int64
		taskID sql.NullString
		prompt sql.NullString
	)
	err := row.Scan(&id, &record.SessionUID, &record.UserAPIKey, &record.UserName, &record.UserID,
		&record.ProjectID, &record.UserToken, &taskID, &prompt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get prompt record: %w", err)
	}
	record.TaskID = stringPtr(taskID)
	record.PromptString = stringPtr(prompt)
	return &record, nil
}

// FindByPrompt retrieves the record for an exact session and prompt string
func (s *Store) FindByPrompt(ctx context.Context, sessionUID, prompt string) (*models.PromptRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM prompt_records
		 WHERE session_uid = ? AND prompt_hash = ? AND prompt_string = ?
		 ORDER BY id LIMIT 1`,
		sessionUID, promptHash(prompt), prompt,
	))
}

// FindBySession retrieves the most recently updated record of a session
func (s *Store) FindBySession(ctx context.Context, sessionUID string) (*models.PromptRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM prompt_records
		 WHERE session_uid = ?
		 ORDER BY updated_at DESC, id DESC LIMIT 1`,
		sessionUID,
	))
}

// InsertRecord inserts a new prompt record
func (s *Store) InsertRecord(ctx context.Context, record *models.PromptRecord) (string, error) {
	var hash sql.NullString
	if record.PromptString != nil {
		hash = sql.NullString{String: promptHash(*record.PromptString), Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_records (session_uid, user_api_key, user_name, user_id, project_id, user_token,
			task_id, prompt_string, prompt_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionUID, record.UserAPIKey, record.UserName, record.UserID, record.ProjectID, record.UserToken,
		nullString(record.TaskID), nullString(record.PromptString), hash,
		record.CreatedAt.UTC(), record.UpdatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert prompt record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read prompt record id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// UpsertProject writes the session base record keyed by (project_id, user_id)
func (s *Store) UpsertProject(ctx context.Context, record *models.PromptRecord) (*models.UpsertResult, error) {
	now := time.Now().UTC()
	var result *models.UpsertResult

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM prompt_records WHERE project_id = ? AND user_id = ? ORDER BY id LIMIT 1`,
			record.ProjectID, record.UserID,
		).Scan(&id)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			base := *record
			base.CreatedAt = now
			base.UpdatedAt = now
			var hash sql.NullString
			if base.PromptString != nil {
				hash = sql.NullString{String: promptHash(*base.PromptString), Valid: true}
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO prompt_records (session_uid, user_api_key, user_name, user_id, project_id, user_token,
					task_id, prompt_string, prompt_hash, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				base.SessionUID, base.UserAPIKey, base.UserName, base.UserID, base.ProjectID, base.UserToken,
				nullString(base.TaskID), nullString(base.PromptString), hash, now, now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert project record: %w", err)
			}
			newID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read project record id: %w", err)
			}
			result = &models.UpsertResult{Created: true, DocumentID: strconv.FormatInt(newID, 10)}
			return nil

		case err != nil:
			return fmt.Errorf("failed to look up project record: %w", err)
		}

		sets := []string{"session_uid = ?", "user_api_key = ?", "user_name = ?", "user_token = ?", "updated_at = ?"}
		args := []any{record.SessionUID, record.UserAPIKey, record.UserName, record.UserToken, now}
		if record.TaskID != nil {
			sets = append(sets, "task_id = ?")
			args = append(args, *record.TaskID)
		}
		if record.PromptString != nil {
			sets = append(sets, "prompt_string = ?", "prompt_hash = ?")
			args = append(args, *record.PromptString, promptHash(*record.PromptString))
		}
		args = append(args, id)

		if _, err := tx.ExecContext(ctx,
			`UPDATE prompt_records SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
		); err != nil {
			return fmt.Errorf("failed to update project record: %w", err)
		}
		result = &models.UpsertResult{Created: false}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ---- agents ----

// SaveAgent inserts or replaces an agent
func (s *Store) SaveAgent(ctx context.Context, agent *models.Agent) error {
	agent.UpdatedAt = time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = agent.UpdatedAt
	}
	history := agent.History
	if history == nil {
		history = []models.AgentMessage{}
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode agent history: %w", err)
	}

	query := s.upsert("agents",
		[]string{"scope", "agent_id", "agent_name", "instructions", "history", "created_at", "updated_at"},
		[]string{"scope", "agent_id"},
		[]string{"agent_name", "instructions", "history", "updated_at"},
	)
	if _, err := s.db.ExecContext(ctx, query,
		agent.Scope, agent.AgentID, agent.AgentName, agent.Instructions, string(encoded),
		agent.CreatedAt.UTC(), agent.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return nil
}

func scanAgent(row rowScanner, scope string) (*models.Agent, error) {
	agent := &models.Agent{Scope: scope}
	var history sql.NullString
	if err := row.Scan(&agent.AgentID, &agent.AgentName, &agent.Instructions, &history, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &agent.History); err != nil {
			return nil, fmt.Errorf("failed to decode agent history: %w", err)
		}
	}
	return agent, nil
}

// GetAgent retrieves an agent, scoped to the caller
func (s *Store) GetAgent(ctx context.Context, scope, agentID string) (*models.Agent, error) {
	return scanAgent(s.db.QueryRowContext(ctx,
		`SELECT agent_id, agent_name, instructions, history, created_at, updated_at FROM agents WHERE scope = ? AND agent_id = ?`,
		scope, agentID,
	), scope)
}

// ListAgents returns the caller's agents, oldest first
func (s *Store) ListAgents(ctx context.Context, scope string) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, agent_name, instructions, NULL, created_at, updated_at FROM agents WHERE scope = ? ORDER BY created_at, agent_id`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows, scope)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// DeleteAgent removes an agent
func (s *Store) DeleteAgent(ctx context.Context, scope, agentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE scope = ? AND agent_id = ?`, scope, agentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete agent: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ---- research tasks ----

const taskColumns = `task_id, scope, goal, return_data, prompt, provider_task_id, status, output_data, error, created_at, completed_at`

func scanTask(row rowScanner) (*models.ResearchTask, error) {
	var (
		task        models.ResearchTask
		returnData  string
		output      sql.NullString
		errText     sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&task.TaskID, &task.Scope, &task.Goal, &returnData, &task.Prompt, &task.ProviderTaskID,
		&task.Status, &output, &errText, &task.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get research task: %w", err)
	}
	if err := json.Unmarshal([]byte(returnData), &task.ReturnData); err != nil {
		return nil, fmt.Errorf("failed to decode return_data: %w", err)
	}
	task.OutputData = stringPtr(output)
	task.Error = errText.String
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return &task, nil
}

func taskArgs(task *models.ResearchTask) ([]any, error) {
	returnData := task.ReturnData
	if returnData == nil {
		returnData = []string{}
	}
	encoded, err := json.Marshal(returnData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode return_data: %w", err)
	}
	var completedAt sql.NullTime
	if task.CompletedAt != nil {
		completedAt = sql.NullTime{Time: task.CompletedAt.UTC(), Valid: true}
	}
	var errText sql.NullString
	if task.Error != "" {
		errText = sql.NullString{String: task.Error, Valid: true}
	}
	return []any{task.TaskID, task.Scope, task.Goal, string(encoded), task.Prompt, task.ProviderTaskID,
		string(task.Status), nullString(task.OutputData), errText, task.CreatedAt.UTC(), completedAt}, nil
}

// CreateTask inserts a new research task
func (s *Store) CreateTask(ctx context.Context, task *models.ResearchTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.Status == "" {
		task.Status = models.ResearchTaskStatusPending
	}
	args, err := taskArgs(task)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO research_tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...,
	); err != nil {
		return fmt.Errorf("failed to create research task: %w", err)
	}
	return nil
}

// GetTask retrieves a research task by id
func (s *Store) GetTask(ctx context.Context, taskID string) (*models.ResearchTask, error) {
	return scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM research_tasks WHERE task_id = ?`, taskID,
	))
}

// UpdateTask overwrites the mutable fields of a research task
func (s *Store) UpdateTask(ctx context.Context, task *models.ResearchTask) error {
	var completedAt sql.NullTime
	if task.CompletedAt != nil {
		completedAt = sql.NullTime{Time: task.CompletedAt.UTC(), Valid: true}
	}
	var errText sql.NullString
	if task.Error != "" {
		errText = sql.NullString{String: task.Error, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE research_tasks SET provider_task_id = ?, status = ?, output_data = ?, error = ?, completed_at = ? WHERE task_id = ?`,
		task.ProviderTaskID, string(task.Status), nullString(task.OutputData), errText, completedAt, task.TaskID,
	)
	if err != nil {
		return fmt.Errorf("failed to update research task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListTasks returns the caller's tasks in the given statuses, newest first
func (s *Store) ListTasks(ctx context.Context, scope string, statuses ...models.ResearchTaskStatus) ([]*models.ResearchTask, error) {
	query := `SELECT ` + taskColumns + ` FROM research_tasks WHERE scope = ?`
	args := []any{scope}
	if len(statuses) > 0 {
		query += ` AND status IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ") + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC, task_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list research tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.ResearchTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a research task
func (s *Store) DeleteTask(ctx context.Context, scope, taskID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM research_tasks WHERE scope = ? AND task_id = ?`, scope, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to delete research task: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// DeleteExpired sweeps old terminal tasks and stale pending tasks.
// Timestamps are compared in Go so both dialects share one code path.
func (s *Store) DeleteExpired(ctx context.Context, completedBefore, pendingBefore time.Time) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, status, created_at, completed_at FROM research_tasks`)
	if err != nil {
		return 0, fmt.Errorf("failed to scan research tasks: %w", err)
	}

	var expired []string
	for rows.Next() {
		var (
			id          string
			status      string
			createdAt   time.Time
			completedAt sql.NullTime
		)
		if err := rows.Scan(&id, &status, &createdAt, &completedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan research task: %w", err)
		}
		switch {
		case models.ResearchTaskStatus(status) == models.ResearchTaskStatusPending:
			if createdAt.Before(pendingBefore) {
				expired = append(expired, id)
			}
		case completedAt.Valid && completedAt.Time.Before(completedBefore):
			expired = append(expired, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read research tasks: %w", err)
	}

	var deleted int64
	for _, id := range expired {
		result, err := s.db.ExecContext(ctx, `DELETE FROM research_tasks WHERE task_id = ?`, id)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete research task %s: %w", id, err)
		}
		n, _ := result.RowsAffected()
		deleted += n
	}
	return deleted, nil
}
