package services

import (
	"context"
	"path/filepath"
	"testing"

	"datapipe/internal/database"
	"datapipe/internal/store/sqlstore"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlstore.New(db)
}
