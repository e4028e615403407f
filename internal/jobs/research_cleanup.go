package jobs

import (
	"context"
	"log"
)

// ResearchCleaner removes expired research tasks
type ResearchCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// ResearchCleanupJob sweeps finished research tasks past retention and abandoned pending ones
type ResearchCleanupJob struct {
	research ResearchCleaner
}

// NewResearchCleanupJob creates a new research cleanup job
func NewResearchCleanupJob(research ResearchCleaner) *ResearchCleanupJob {
	return &ResearchCleanupJob{research: research}
}

// Run executes one sweep
func (j *ResearchCleanupJob) Run(ctx context.Context) error {
	removed, err := j.research.Cleanup(ctx)
	if err != nil {
		return err
	}
	log.Printf("🧹 [CLEANUP] Research sweep removed %d tasks", removed)
	return nil
}
