package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	"BrentShift/pkg/cache"
	applogger "BrentShift/pkg/logger"
	"BrentShift/pkg/queue"
)

// JobType is the queue message type of an analysis job.
const JobType = "changepoint.analyze"

// JobUseCase runs analyses through the work queue. Job state lives in the
// cache under job:<id>.
type JobUseCase struct {
	analysis *AnalysisUseCase
	queue    queue.Publisher
	cache    cache.Service
	ttl      time.Duration
	metrics  domrepo.Metrics
	l        *applogger.Logger

	now   func() time.Time
	newID func() string
}

// NewJobUseCase creates the job runner. A nil queue disables Submit.
func NewJobUseCase(analysis *AnalysisUseCase, q queue.Publisher, c cache.Service, ttl time.Duration, metrics domrepo.Metrics, l *applogger.Logger) *JobUseCase {
	if l == nil {
		l = applogger.NewNop()
	}
	return &JobUseCase{
		analysis: analysis,
		queue:    q,
		cache:    c,
		ttl:      ttl,
		metrics:  metrics,
		l:        l,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Submit records a queued job and enqueues it.
func (uc *JobUseCase) Submit(ctx context.Context, req *models.AnalyzeRequest) (*models.Job, error) {
	if uc.queue == nil || uc.cache == nil {
		return nil, ErrJobsDisabled
	}
	now := uc.now().UTC()
	job := &models.Job{
		ID:        uc.newID(),
		Status:    models.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Request:   req,
	}
	if err := uc.save(ctx, job); err != nil {
		return nil, err
	}
	if err := uc.queue.Enqueue(ctx, JobType, job.ID, req); err != nil {
		_ = uc.cache.Delete(ctx, jobKey(job.ID))
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	uc.metrics.RecordJob(string(models.JobQueued))
	return job, nil
}

// Job returns the current state of a job.
func (uc *JobUseCase) Job(ctx context.Context, id string) (*models.Job, error) {
	if uc.cache == nil {
		return nil, ErrJobsDisabled
	}
	var job models.Job
	if err := uc.cache.Get(ctx, jobKey(id), &job); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("job %s: %w", id, domrepo.ErrNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func (uc *JobUseCase) Name() string { return "change-point-analysis" }

func (uc *JobUseCase) Type() string { return JobType }

// Handle runs one job. Errors that a retry cannot fix are returned as
// permanent so the queue dead-letters them at once.
func (uc *JobUseCase) Handle(ctx context.Context, msg queue.Message) error {
	req, err := queue.ParsePayload[models.AnalyzeRequest](msg)
	if err != nil {
		uc.fail(msg.ID, msg.Attempts+1, err)
		return queue.Permanent(err)
	}

	job := uc.load(ctx, msg.ID, req)
	job.Status = models.JobRunning
	job.Attempts = msg.Attempts + 1
	job.UpdatedAt = uc.now().UTC()
	if err := uc.save(ctx, job); err != nil {
		uc.l.Warn("job state write failed", applogger.String("id", msg.ID), applogger.Error(err))
	}
	uc.metrics.RecordJob(string(models.JobRunning))

	rec, err := uc.analysis.run(ctx, req, ModeJob, nil, 0)
	if err != nil {
		if Permanent(err) {
			uc.fail(msg.ID, job.Attempts, err)
			return queue.Permanent(err)
		}
		return err
	}

	sum := rec.Summary()
	job.Status = models.JobDone
	job.Result = &sum
	job.UpdatedAt = uc.now().UTC()
	if err := uc.save(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("store job result: %w", err)
	}
	uc.metrics.RecordJob(string(models.JobDone))
	return nil
}

// DeadLetter marks a job failed once the queue gives up on it.
func (uc *JobUseCase) DeadLetter(_ context.Context, msg queue.Message, err error) {
	if queue.IsPermanent(err) {
		// already recorded by Handle
		return
	}
	uc.fail(msg.ID, msg.Attempts+1, err)
}

func (uc *JobUseCase) fail(id string, attempts int, cause error) {
	ctx := context.Background()
	job := uc.load(ctx, id, nil)
	mapped := MapAnalysisError(cause)
	job.Status = models.JobFailed
	job.Attempts = attempts
	job.UpdatedAt = uc.now().UTC()
	job.Error = &models.ErrorDetail{Code: mapped.Code, Message: cause.Error()}
	if err := uc.save(ctx, job); err != nil {
		uc.l.Error("job state write failed", applogger.String("id", id), applogger.Error(err))
	}
	uc.metrics.RecordJob(string(models.JobFailed))
}

// load returns the stored job or a fresh record when it expired.
func (uc *JobUseCase) load(ctx context.Context, id string, req *models.AnalyzeRequest) *models.Job {
	var job models.Job
	if err := uc.cache.Get(ctx, jobKey(id), &job); err != nil {
		now := uc.now().UTC()
		return &models.Job{ID: id, Status: models.JobQueued, CreatedAt: now, UpdatedAt: now, Request: req}
	}
	return &job
}

func (uc *JobUseCase) save(ctx context.Context, job *models.Job) error {
	if err := uc.cache.Set(ctx, jobKey(job.ID), job, uc.ttl); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}

func jobKey(id string) string { return cache.Key("job", id) }

var _ queue.Job = (*JobUseCase)(nil)
