package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/common"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when an update targets a completed or failed job.
	ErrJobFinished = errors.New("job already finished")
)

// JobRepository stores recommendation jobs. Claim is the only operation that
// must be atomic: it moves a job from pending to processing at most once.
type JobRepository interface {
	Create(ctx context.Context, job *dto.Job) error
	Get(ctx context.Context, id string) (*dto.Job, error)
	Update(ctx context.Context, id string, update dto.JobUpdate, now time.Time) (*dto.Job, error)
	// GetByStatus returns jobs in status ordered oldest first. limit <= 0 means no limit.
	GetByStatus(ctx context.Context, status dto.JobStatus, limit int) ([]dto.Job, error)
	Delete(ctx context.Context, id string) error
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
}

// applyJobUpdate merges update into job. A finished job is never changed, so a
// job moves into completed or failed at most once.
func applyJobUpdate(job *dto.Job, update dto.JobUpdate, now time.Time) error {
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, job.ID, job.Status)
	}
	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.Result != nil {
		job.Result = update.Result
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
	job.UpdatedAt = now
	return nil
}

// goCache treats -1 as "never expire"; job lifetime is enforced by the cleanup cron.
const noExpiration time.Duration = -1

type memoryJobRepository struct {
	mu    sync.Mutex
	cache cache.Cache
}

// NewMemoryJobRepository keeps jobs in a process-local go-cache. Jobs do not
// survive a restart and are invisible to other processes.
func NewMemoryJobRepository(c cache.Cache) JobRepository {
	return &memoryJobRepository{cache: c}
}

func jobKey(id string) string {
	return fmt.Sprintf(common.KEY_JOB, id)
}

func (r *memoryJobRepository) load(id string) (*dto.Job, bool) {
	job, ok := cache.GetFromCache[dto.Job](r.cache, jobKey(id))
	if !ok {
		return nil, false
	}
	return &job, true
}

func (r *memoryJobRepository) Create(ctx context.Context, job *dto.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.load(job.ID); exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	r.cache.Set(jobKey(job.ID), *job, noExpiration)
	return nil
}

func (r *memoryJobRepository) Get(ctx context.Context, id string) (*dto.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.load(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (r *memoryJobRepository) Update(ctx context.Context, id string, update dto.JobUpdate, now time.Time) (*dto.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.load(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	if err := applyJobUpdate(job, update, now); err != nil {
		return nil, err
	}
	r.cache.Set(jobKey(id), *job, noExpiration)
	return job, nil
}

func (r *memoryJobRepository) GetByStatus(ctx context.Context, status dto.JobStatus, limit int) ([]dto.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := jobKey("")
	var jobs []dto.Job
	for key, item := range r.cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		job, ok := item.(dto.Job)
		if !ok || job.Status != status {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *memoryJobRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Delete(jobKey(id))
	return nil
}

func (r *memoryJobRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.load(id)
	if !ok {
		return false, ErrJobNotFound
	}
	if job.Status != dto.JobStatusPending {
		return false, nil
	}
	job.Status = dto.JobStatusProcessing
	job.UpdatedAt = now
	r.cache.Set(jobKey(id), *job, noExpiration)
	return true, nil
}
