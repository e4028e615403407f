package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"datapipe/internal/models"
	"datapipe/internal/pipeline"
)

type stubFetcher struct {
	pages map[string]string
	urls  []string
}

func (f *stubFetcher) Fetch(ctx context.Context, scope, rawURL string) (string, error) {
	f.urls = append(f.urls, rawURL)
	if text, ok := f.pages[rawURL]; ok {
		return text, nil
	}
	return "", errors.New("HTTP error 404: 404 Not Found")
}

func rawItems(t *testing.T, items ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = b
	}
	return out
}

func newTestIngest(t *testing.T, fetcher URLFetcher) (*IngestService, *ObjectService) {
	t.Helper()
	st := newTestStore(t)
	svc := NewIngestService(st, pipeline.NewSummarizer(nil), fetcher, nil)
	n := 0
	svc.newKey = func() string {
		n++
		return fmt.Sprintf("key-%d", n)
	}
	return svc, NewObjectService(st)
}

func TestIngest_Strings(t *testing.T) {
	svc, objects := newTestIngest(t, &stubFetcher{})
	ctx := context.Background()

	count, err := svc.Ingest(ctx, "tok", models.InputDataRequest{
		CreatedObjectName: "A",
		DataType:          "strings",
		InputData:         rawItems(t, "alpha", "beta", 7),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	obj, err := objects.Get(ctx, "tok", "A")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	wantValues := []string{"alpha", "beta", "7"}
	for i, entry := range obj.Data {
		if entry.Value != wantValues[i] {
			t.Errorf("entry %d value = %q, want %q", i, entry.Value, wantValues[i])
		}
		if len(entry.KeyList) != 1 || entry.KeyList[0] != fmt.Sprintf("key-%d", i+1) {
			t.Errorf("entry %d keys = %v", i, entry.KeyList)
		}
		if entry.SummaryValue != nil {
			t.Errorf("short entry %d should have no summary", i)
		}
	}
}

func TestIngest_Files(t *testing.T) {
	svc, objects := newTestIngest(t, &stubFetcher{})
	ctx := context.Background()

	csv := base64.StdEncoding.EncodeToString([]byte("a,b\n1,2\n"))
	_, err := svc.Ingest(ctx, "tok", models.InputDataRequest{
		CreatedObjectName: "F",
		DataType:          "files",
		InputData: rawItems(t,
			models.FileUpload{Filename: "t.csv", ContentBase64: csv},
			"already text",
			models.FileUpload{Filename: "x.txt", ContentBase64: "%%%"},
		),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	obj, _ := objects.Get(ctx, "tok", "F")
	if len(obj.Data) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(obj.Data))
	}
	if obj.Data[0].Value != "a b\n1 2" {
		t.Errorf("csv value = %q", obj.Data[0].Value)
	}
	if obj.Data[1].Value != "already text" {
		t.Errorf("raw string value = %q", obj.Data[1].Value)
	}
	if !strings.HasPrefix(obj.Data[2].Value, "Error extracting text from file:") {
		t.Errorf("bad upload value = %q", obj.Data[2].Value)
	}
}

func TestIngest_URLs(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{"https://example.com/a": "page text"}}
	svc, objects := newTestIngest(t, fetcher)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "tok", models.InputDataRequest{
		CreatedObjectName: "U",
		DataType:          "urls",
		InputData:         rawItems(t, "example.com/a", "https://example.com/missing"),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if fetcher.urls[0] != "https://example.com/a" {
		t.Errorf("URL should be normalized, fetched %q", fetcher.urls[0])
	}

	obj, _ := objects.Get(ctx, "tok", "U")
	if obj.Data[0].Value != "--- Content from https://example.com/a ---\npage text" {
		t.Errorf("page value = %q", obj.Data[0].Value)
	}
	if !strings.HasPrefix(obj.Data[1].Value, "Error fetching content from https://example.com/missing:") {
		t.Errorf("failed fetch value = %q", obj.Data[1].Value)
	}
}

func TestIngest_Validation(t *testing.T) {
	svc, _ := newTestIngest(t, &stubFetcher{})

	tests := []struct {
		name string
		req  models.InputDataRequest
	}{
		{"missing name", models.InputDataRequest{DataType: "strings"}},
		{"bad data type", models.InputDataRequest{CreatedObjectName: "A", DataType: "images"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), "tok", tt.req)
			if pipeline.KindOf(err) != pipeline.KindValidation {
				t.Errorf("error = %v, want validation", err)
			}
		})
	}
}

func TestIngest_EmptyListCreatesObject(t *testing.T) {
	svc, objects := newTestIngest(t, &stubFetcher{})
	ctx := context.Background()

	count, err := svc.Ingest(ctx, "tok", models.InputDataRequest{CreatedObjectName: "E", DataType: "strings"})
	if err != nil || count != 0 {
		t.Fatalf("Ingest() = %d, %v", count, err)
	}
	obj, err := objects.Get(ctx, "tok", "E")
	if err != nil {
		t.Fatalf("object should exist: %v", err)
	}
	if len(obj.Data) != 0 {
		t.Errorf("expected no entries, got %d", len(obj.Data))
	}
}

type failingCompleter struct{ calls int }

func (c *failingCompleter) Complete(ctx context.Context, prompt string, keys []string) (map[string]any, error) {
	c.calls++
	return nil, errors.New("completion service down")
}

func TestIngest_SummaryFailure(t *testing.T) {
	st := newTestStore(t)
	completer := &failingCompleter{}
	svc := NewIngestService(st, pipeline.NewSummarizer(completer), &stubFetcher{}, nil)
	objects := NewObjectService(st)
	ctx := context.Background()

	count, err := svc.Ingest(ctx, "tok", models.InputDataRequest{
		CreatedObjectName: "L",
		DataType:          "strings",
		InputData:         rawItems(t, "short", strings.Repeat("w", 1500), "never reached"),
	})
	if pipeline.KindOf(err) != pipeline.KindUpstream {
		t.Fatalf("error = %v, want upstream", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if completer.calls != 1 {
		t.Errorf("summary calls = %d, want 1", completer.calls)
	}

	obj, _ := objects.Get(ctx, "tok", "L")
	if len(obj.Data) != 1 || obj.Data[0].Value != "short" {
		t.Errorf("stored entries = %+v", obj.Data)
	}
}
