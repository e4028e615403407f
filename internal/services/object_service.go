package services

import (
	"context"
	"errors"
	"strings"

	"datapipe/internal/models"
	"datapipe/internal/pipeline"
	"datapipe/internal/store"
)

// ObjectService serves reads and deletes of a caller's objects
type ObjectService struct {
	objects store.ObjectStore
}

// NewObjectService creates an object service
func NewObjectService(objects store.ObjectStore) *ObjectService {
	return &ObjectService{objects: objects}
}

// Get returns one object
func (s *ObjectService) Get(ctx context.Context, scope, name string) (*models.DataObject, error) {
	obj, err := s.objects.GetObject(ctx, scope, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, pipeline.NotFound("Object '%s' not found", name)
	}
	if err != nil {
		return nil, pipeline.Internal(err, "failed to load object '%s'", name)
	}
	return obj, nil
}

// List returns all objects in the scope
func (s *ObjectService) List(ctx context.Context, scope string) ([]*models.DataObject, error) {
	objects, err := s.objects.ListObjects(ctx, scope)
	if err != nil {
		return nil, pipeline.Internal(err, "failed to list objects")
	}
	return objects, nil
}

// Delete removes an object and its entries
func (s *ObjectService) Delete(ctx context.Context, scope, name string) error {
	deleted, err := s.objects.DeleteObject(ctx, scope, name)
	if err != nil {
		return pipeline.Internal(err, "failed to delete object '%s'", name)
	}
	if !deleted {
		return pipeline.NotFound("Object '%s' not found", name)
	}
	return nil
}

// Related returns the object together with every other object in the scope that shares
// at least one entry key with it
func (s *ObjectService) Related(ctx context.Context, scope, name string) (*models.RelatedObjects, error) {
	primary, err := s.Get(ctx, scope, name)
	if err != nil {
		return nil, err
	}

	result := &models.RelatedObjects{
		ObjectName:        primary.Name,
		TextValue:         joinValues(primary.Data),
		Data:              primary.Data,
		RelatedObjects:    []*models.DataObject{},
		SharedKeysSummary: []models.SharedKeysSummary{},
		PrimaryObjectKeys: primary.Keys(),
		TotalObjects:      1,
	}
	if result.Data == nil {
		result.Data = []models.DataEntry{}
	}
	if len(result.PrimaryObjectKeys) == 0 {
		result.PrimaryObjectKeys = []string{}
		return result, nil
	}

	primaryKeys := make(map[string]struct{}, len(result.PrimaryObjectKeys))
	for _, k := range result.PrimaryObjectKeys {
		primaryKeys[k] = struct{}{}
	}

	others, err := s.objects.ListObjects(ctx, scope)
	if err != nil {
		return nil, pipeline.Internal(err, "failed to list objects")
	}

	for _, other := range others {
		if other.Name == primary.Name {
			continue
		}

		var shared []string
		for _, k := range other.Keys() {
			if _, ok := primaryKeys[k]; ok {
				shared = append(shared, k)
			}
		}
		if len(shared) == 0 {
			continue
		}

		result.RelatedObjects = append(result.RelatedObjects, other)
		result.SharedKeysSummary = append(result.SharedKeysSummary, models.SharedKeysSummary{
			ObjectName:     other.Name,
			SharedKeys:     shared,
			SharedKeyCount: len(shared),
		})
	}

	result.TotalObjects = 1 + len(result.RelatedObjects)
	return result, nil
}

func joinValues(entries []models.DataEntry) string {
	values := make([]string, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return strings.Join(values, "\n")
}
