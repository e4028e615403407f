package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// Job interface that all scheduled jobs must implement
type Job interface {
	Run(ctx context.Context) error
}

// Locker serializes job runs across instances
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, lockValue string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error)
}

// JobScheduler runs registered jobs on cron schedules
type JobScheduler struct {
	scheduler  gocron.Scheduler
	locker     Locker
	instanceID string
	lockTTL    time.Duration

	jobs    map[string]Job
	handles map[string]gocron.Job
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// NewJobScheduler creates a new job scheduler. A nil locker runs every job locally.
func NewJobScheduler(locker Locker) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler:  scheduler,
		locker:     locker,
		instanceID: uuid.NewString(),
		lockTTL:    5 * time.Minute,
		jobs:       make(map[string]Job),
		handles:    make(map[string]gocron.Job),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Register adds a job that runs on the given five-field cron expression
func (s *JobScheduler) Register(name, cronExpr string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			s.runJob(name, job)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.handles[name] = handle
	log.Printf("✅ [SCHEDULER] Registered job: %s (cron: %s)", name, cronExpr)
	return nil
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))
	s.scheduler.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *JobScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown failed: %w", err)
	}
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
	return nil
}

// RunNow immediately runs a specific job
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return s.runLocked(name, job)
}

// runJob executes a scheduled run and logs its outcome
func (s *JobScheduler) runJob(name string, job Job) {
	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	startTime := time.Now()

	if err := s.runLocked(name, job); err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		return
	}
	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
}

// runLocked runs the job while holding the cluster-wide lock for it, when a locker is set.
// A run is skipped when another instance holds the lock.
func (s *JobScheduler) runLocked(name string, job Job) error {
	if s.locker == nil {
		return job.Run(s.ctx)
	}

	lockKey := "job-lock:" + name
	acquired, err := s.locker.AcquireLock(s.ctx, lockKey, s.instanceID, s.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		log.Printf("⏭️  [SCHEDULER] Job '%s' already running on another instance", name)
		return nil
	}
	defer func() {
		if _, err := s.locker.ReleaseLock(context.Background(), lockKey, s.instanceID); err != nil {
			log.Printf("⚠️  [SCHEDULER] Failed to release lock for job '%s': %v", name, err)
		}
	}()

	return job.Run(s.ctx)
}

// GetStatus returns the status of all jobs
func (s *JobScheduler) GetStatus() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]JobStatus, len(s.handles))
	for name, handle := range s.handles {
		st := JobStatus{Name: name, Registered: true}
		if next, err := handle.NextRun(); err == nil {
			st.NextRunTime = next
		}
		if last, err := handle.LastRun(); err == nil {
			st.LastRunTime = last
		}
		status[name] = st
	}
	return status
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string    `json:"name"`
	NextRunTime time.Time `json:"next_run_time"`
	LastRunTime time.Time `json:"last_run_time,omitempty"`
	Registered  bool      `json:"registered"`
}
