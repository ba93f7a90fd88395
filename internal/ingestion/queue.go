package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/instant-tutor/backend/internal/metrics"
	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/pkg/logger"
)

const saveTimeout = 5 * time.Second

var (
	ErrQueueFull   = errors.New("ingestion queue is full")
	ErrQueueClosed = errors.New("ingestion queue is closed")
	ErrJobNotFound = errors.New("ingestion job not found")
)

type JobStore interface {
	CreateJob(ctx context.Context, job *models.IngestionJob) error
	UpdateJob(ctx context.Context, job *models.IngestionJob) error
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)
}

type Runner interface {
	Run(ctx context.Context, job *models.IngestionJob, report func(*models.IngestionJob)) error
}

// Queue runs ingestion jobs on a fixed pool of workers fed by a bounded
// buffer. Job state is persisted through the JobStore at every step.
type Queue struct {
	store   JobStore
	runner  Runner
	jobs    chan *models.IngestionJob
	workers int

	mu     sync.RWMutex
	closed bool
	group  *errgroup.Group
	cancel context.CancelFunc
}

func NewQueue(store JobStore, runner Runner, size, workers int) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		store:   store,
		runner:  runner,
		jobs:    make(chan *models.IngestionJob, size),
		workers: workers,
	}
}

// Start launches the workers. They stop when ctx ends or the queue is shut
// down.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < q.workers; i++ {
		worker := i
		g.Go(func() error {
			q.work(gctx, worker)
			return nil
		})
	}

	q.mu.Lock()
	q.group = g
	q.cancel = cancel
	q.mu.Unlock()

	logger.Info("Ingestion queue started", zap.Int("workers", q.workers), zap.Int("capacity", cap(q.jobs)))
}

func (q *Queue) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			metrics.IngestionQueueDepth.Dec()
			logger.Debug("Worker picked job", zap.Int("worker", worker), zap.String("job_id", job.ID))
			q.execute(ctx, job)
		}
	}
}

// Enqueue persists a pending job and hands it to the workers. It never
// blocks: a full buffer yields ErrQueueFull and the job is marked failed.
func (q *Queue) Enqueue(ctx context.Context, courseID string, locators []string) (*models.IngestionJob, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	job := newJob(courseID, locators)
	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	snapshot := cloneJob(job)
	select {
	case q.jobs <- job:
		metrics.IngestionQueueDepth.Inc()
	default:
		job.Status = models.JobFailed
		job.Error = ErrQueueFull.Error()
		q.save(ctx, job)
		metrics.IngestionJobs.WithLabelValues("rejected").Inc()
		return nil, ErrQueueFull
	}

	logger.Info("Ingestion job queued",
		zap.String("job_id", job.ID),
		zap.String("course_id", courseID),
		zap.Int("items", len(locators)),
	)

	return &snapshot, nil
}

// Process runs a job in the calling goroutine and returns its final state.
func (q *Queue) Process(ctx context.Context, courseID string, locators []string) (*models.IngestionJob, error) {
	job := newJob(courseID, locators)
	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	q.execute(ctx, job)
	return job, nil
}

func (q *Queue) Job(ctx context.Context, id string) (*models.IngestionJob, error) {
	return q.store.GetJob(ctx, id)
}

func (q *Queue) execute(ctx context.Context, job *models.IngestionJob) {
	start := time.Now()

	job.Status = models.JobRunning
	job.UpdatedAt = time.Now()
	q.save(ctx, job)

	err := q.runner.Run(ctx, job, func(j *models.IngestionJob) { q.save(ctx, j) })

	outcome := "succeeded"
	switch {
	case err != nil:
		job.Status = models.JobFailed
		job.Error = appendError(job.Error, "canceled")
		outcome = "canceled"
	case job.TotalItems > 0 && job.FailedItems == job.TotalItems:
		job.Status = models.JobFailed
		outcome = "failed"
	default:
		job.Status = models.JobSucceeded
	}
	job.UpdatedAt = time.Now()
	q.save(ctx, job)

	metrics.IngestionJobs.WithLabelValues(outcome).Inc()
	logger.Info("Ingestion job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("processed", job.ProcessedItems),
		zap.Int("failed", job.FailedItems),
		zap.Int("chunks", job.ChunkCount),
		zap.Duration("duration", time.Since(start)),
	)
}

// save persists job even after ctx was canceled so that shutdown leaves a
// terminal state behind.
func (q *Queue) save(ctx context.Context, job *models.IngestionJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := q.store.UpdateJob(ctx, job); err != nil {
		logger.Error("Failed to persist job state", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// Shutdown stops accepting jobs and lets the workers drain the buffer. When
// ctx ends first, in-flight and queued jobs are canceled and marked failed.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	group, cancel := q.group, q.cancel
	q.mu.Unlock()

	var err error
	if group != nil {
		done := make(chan error, 1)
		go func() { done <- group.Wait() }()

		select {
		case err = <-done:
		case <-ctx.Done():
			cancel()
			<-done
			err = ctx.Err()
		}
		cancel()
	}

	for job := range q.jobs {
		metrics.IngestionQueueDepth.Dec()
		job.Status = models.JobFailed
		job.Error = appendError(job.Error, "canceled")
		job.UpdatedAt = time.Now()
		q.save(ctx, job)
		metrics.IngestionJobs.WithLabelValues("canceled").Inc()
	}

	logger.Info("Ingestion queue stopped")
	return err
}

func newJob(courseID string, locators []string) *models.IngestionJob {
	now := time.Now()
	return &models.IngestionJob{
		ID:         uuid.NewString(),
		CourseID:   courseID,
		Status:     models.JobPending,
		Locators:   append([]string(nil), locators...),
		TotalItems: len(locators),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func appendError(existing, msg string) string {
	if existing == "" {
		return msg
	}
	return existing + "; " + msg
}

// MemoryJobStore keeps job state in process when no database is
// configured.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]models.IngestionJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]models.IngestionJob)}
}

func (s *MemoryJobStore) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryJobStore) UpdateJob(ctx context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryJobStore) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := cloneJob(&job)
	return &out, nil
}

func cloneJob(job *models.IngestionJob) models.IngestionJob {
	c := *job
	c.Locators = append([]string(nil), job.Locators...)
	return c
}
