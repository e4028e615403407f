package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"datapipe/internal/extract"
	"datapipe/internal/models"
	"datapipe/internal/pipeline"
	"datapipe/internal/store"
)

// URLFetcher returns the text content of a URL
type URLFetcher interface {
	Fetch(ctx context.Context, scope, rawURL string) (string, error)
}

// IngestService turns submitted strings, files and URLs into entries of a named object
type IngestService struct {
	objects    store.ObjectStore
	summarizer *pipeline.Summarizer
	fetcher    URLFetcher
	metrics    *Metrics
	newKey     func() string
}

// NewIngestService creates an ingest service
func NewIngestService(objects store.ObjectStore, summarizer *pipeline.Summarizer, fetcher URLFetcher, metrics *Metrics) *IngestService {
	return &IngestService{
		objects:    objects,
		summarizer: summarizer,
		fetcher:    fetcher,
		metrics:    metrics,
		newKey:     uuid.NewString,
	}
}

// Ingest appends one entry per item to the object, creating the object when needed.
// Each entry gets a fresh key. It returns the number of items stored.
func (s *IngestService) Ingest(ctx context.Context, scope string, req models.InputDataRequest) (int, error) {
	if req.CreatedObjectName == "" {
		return 0, pipeline.Validation("created_object_name is required")
	}
	dataType, err := models.ParseDataType(req.DataType)
	if err != nil {
		return 0, pipeline.Validation("%s", err.Error())
	}

	if err := s.objects.EnsureObject(ctx, scope, req.CreatedObjectName); err != nil {
		return 0, pipeline.Internal(err, "failed to create object '%s'", req.CreatedObjectName)
	}

	processed := 0
	for _, item := range req.InputData {
		if err := ctx.Err(); err != nil {
			return processed, pipeline.Internal(err, "ingest interrupted after %d items", processed)
		}

		var (
			text    string
			itemErr error
		)
		switch dataType {
		case models.DataTypeStrings:
			text = rawText(item)
		case models.DataTypeFiles:
			text, itemErr = fileText(item)
		case models.DataTypeURLs:
			text, itemErr = s.urlText(ctx, scope, rawText(item))
		}
		s.metrics.RecordIngest(string(dataType), itemErr)

		entry, err := s.summarizer.NewEntry(ctx, []string{s.newKey()}, text)
		if err != nil {
			return processed, pipeline.Upstream(err, "summary failed for item %d of '%s'", processed+1, req.CreatedObjectName)
		}
		if err := s.objects.AppendEntries(ctx, scope, req.CreatedObjectName, entry); err != nil {
			return processed, pipeline.Internal(err, "failed to store entry in '%s'", req.CreatedObjectName)
		}
		processed++
	}

	log.Printf("✅ [INGEST] Stored %d %s items in object %s", processed, dataType, req.CreatedObjectName)
	return processed, nil
}

// rawText returns a JSON string item as-is and any other JSON value as its text
func rawText(item json.RawMessage) string {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return s
	}
	var v any
	if err := json.Unmarshal(item, &v); err != nil {
		return string(item)
	}
	return pipeline.Stringify(v)
}

// fileText extracts an uploaded file. On failure the returned text describes the error.
func fileText(item json.RawMessage) (string, error) {
	var upload models.FileUpload
	if err := json.Unmarshal(item, &upload); err != nil || upload.Filename == "" {
		return rawText(item), nil
	}

	data, err := base64.StdEncoding.DecodeString(upload.ContentBase64)
	if err != nil {
		err = fmt.Errorf("invalid base64 content: %w", err)
		return fmt.Sprintf("Error extracting text from file: %v", err), err
	}

	text, err := extract.Text(upload.Filename, data)
	if err != nil {
		log.Printf("⚠️  [INGEST] %v", err)
		return fmt.Sprintf("Error extracting text from file: %v", err), err
	}
	return text, nil
}

// urlText fetches a URL. On failure the returned text describes the error.
func (s *IngestService) urlText(ctx context.Context, scope, rawURL string) (string, error) {
	normalized := NormalizeURL(rawURL)

	text, err := s.fetcher.Fetch(ctx, scope, normalized)
	if err != nil {
		return fmt.Sprintf("Error fetching content from %s: %v", rawURL, err), err
	}
	return fmt.Sprintf("--- Content from %s ---\n%s", normalized, text), nil
}
