package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"datapipe/internal/models"
	"datapipe/internal/store"
)

// memObjects is an in-memory ObjectStore for tests
type memObjects struct {
	mu      sync.Mutex
	objects map[string]*models.DataObject
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string]*models.DataObject)}
}

func memKey(scope, name string) string { return scope + "\x00" + name }

func (m *memObjects) GetObject(ctx context.Context, scope, name string) (*models.DataObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[memKey(scope, name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *obj
	clone.Data = append([]models.DataEntry{}, obj.Data...)
	return &clone, nil
}

func (m *memObjects) EnsureObject(ctx context.Context, scope, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[memKey(scope, name)]; !ok {
		m.objects[memKey(scope, name)] = &models.DataObject{Scope: scope, Name: name, Data: []models.DataEntry{}, CreatedAt: time.Now()}
	}
	return nil
}

func (m *memObjects) AppendEntries(ctx context.Context, scope, name string, entries ...models.DataEntry) error {
	m.EnsureObject(ctx, scope, name)
	m.mu.Lock()
	defer m.mu.Unlock()
	obj := m.objects[memKey(scope, name)]
	obj.Data = append(obj.Data, entries...)
	return nil
}

func (m *memObjects) DeleteObject(ctx context.Context, scope, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[memKey(scope, name)]
	delete(m.objects, memKey(scope, name))
	return ok, nil
}

func (m *memObjects) ListObjects(ctx context.Context, scope string) ([]*models.DataObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DataObject
	for k, obj := range m.objects {
		if strings.HasPrefix(k, scope+"\x00") {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// memRecords is an in-memory RecordStore for tests
type memRecords struct {
	mu      sync.Mutex
	records []*models.PromptRecord
	inserts int
}

func (m *memRecords) FindByPrompt(ctx context.Context, sessionUID, prompt string) (*models.PromptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.SessionUID == sessionUID && r.PromptString != nil && *r.PromptString == prompt {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memRecords) FindBySession(ctx context.Context, sessionUID string) (*models.PromptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.PromptRecord
	for _, r := range m.records {
		if r.SessionUID == sessionUID && (latest == nil || !r.UpdatedAt.Before(latest.UpdatedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (m *memRecords) InsertRecord(ctx context.Context, record *models.PromptRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	m.inserts++
	return fmt.Sprint(len(m.records)), nil
}

func (m *memRecords) UpsertProject(ctx context.Context, record *models.PromptRecord) (*models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.ProjectID == record.ProjectID && r.UserID == record.UserID {
			m.records[i] = record
			return &models.UpsertResult{}, nil
		}
	}
	m.records = append(m.records, record)
	return &models.UpsertResult{Created: true, DocumentID: fmt.Sprint(len(m.records))}, nil
}

// fakeTasks records remote task creation calls
type fakeTasks struct {
	calls   int
	prompts []string
	err     error
}

func (f *fakeTasks) CreateTask(ctx context.Context, userID string, projectID int64, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("task-%d", f.calls), nil
}

// fakeCompleter returns a canned response per call and records prompts
type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string, keys []string) (map[string]any, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, keys []string) (map[string]any, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(prompt, keys)
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = "result for " + prompt
	}
	return out, nil
}

func entry(value string, keys ...string) models.DataEntry {
	return models.DataEntry{KeyList: keys, Value: value}
}

func object(name string, entries ...models.DataEntry) *models.DataObject {
	return &models.DataObject{Name: name, Data: entries}
}
