package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"portfolio-advisor/internal/dto"
)

// claimScript flips a job hash from pending to processing and moves its id
// between the status indexes in one step.
//
// KEYS[1] job hash, KEYS[2] pending index, KEYS[3] processing index
// ARGV[1] job id, ARGV[2] updated_at, ARGV[3] created_at score
var claimScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'pending' then
	return 0
end
redis.call('HSET', KEYS[1], 'status', 'processing', 'updated_at', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

const maxUpdateAttempts = 5

type redisJobRepository struct {
	client *goredis.Client
	prefix string
}

// NewRedisJobRepository stores each job as a hash with a sorted set per status
// scored by creation time.
func NewRedisJobRepository(client *goredis.Client, prefix string) JobRepository {
	return &redisJobRepository{client: client, prefix: prefix}
}

func (r *redisJobRepository) jobKey(id string) string {
	return fmt.Sprintf("%s:job:%s", r.prefix, id)
}

func (r *redisJobRepository) statusKey(status dto.JobStatus) string {
	return fmt.Sprintf("%s:jobs:%s", r.prefix, status)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (r *redisJobRepository) Create(ctx context.Context, job *dto.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	created, err := r.client.HSetNX(ctx, r.jobKey(job.ID), "data", data).Result()
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if !created {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, r.jobKey(job.ID),
			"status", string(job.Status),
			"created_at", strconv.FormatInt(job.CreatedAt.UnixMilli(), 10),
			"updated_at", job.UpdatedAt.Format(time.RFC3339Nano),
		)
		pipe.ZAdd(ctx, r.statusKey(job.Status), goredis.Z{Score: score(job.CreatedAt), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}
	return nil
}

// decode rebuilds a job from its hash. status and updated_at fields win over
// the copy inside data because Claim only touches those fields.
func (r *redisJobRepository) decode(fields map[string]string) (*dto.Job, error) {
	raw, ok := fields["data"]
	if !ok {
		return nil, ErrJobNotFound
	}
	var job dto.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if s := fields["status"]; s != "" {
		job.Status = dto.JobStatus(s)
	}
	if u := fields["updated_at"]; u != "" {
		if t, err := time.Parse(time.RFC3339Nano, u); err == nil {
			job.UpdatedAt = t
		}
	}
	return &job, nil
}

func (r *redisJobRepository) Get(ctx context.Context, id string) (*dto.Job, error) {
	fields, err := r.client.HGetAll(ctx, r.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return r.decode(fields)
}

// Update is an optimistic WATCH transaction on the job hash, so a concurrent
// claim or update makes it start over instead of overwriting.
func (r *redisJobRepository) Update(ctx context.Context, id string, update dto.JobUpdate, now time.Time) (*dto.Job, error) {
	key := r.jobKey(id)
	var job *dto.Job
	apply := func(tx *goredis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to get job: %w", err)
		}
		if len(fields) == 0 {
			return ErrJobNotFound
		}
		current, err := r.decode(fields)
		if err != nil {
			return err
		}
		previous := current.Status
		if err := applyJobUpdate(current, update, now); err != nil {
			return err
		}

		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"data", data,
				"status", string(current.Status),
				"updated_at", current.UpdatedAt.Format(time.RFC3339Nano),
			)
			if previous != current.Status {
				pipe.ZRem(ctx, r.statusKey(previous), id)
				pipe.ZAdd(ctx, r.statusKey(current.Status), goredis.Z{Score: score(current.CreatedAt), Member: id})
			}
			return nil
		})
		if err != nil {
			return err
		}
		job = current
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, apply, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobFinished) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to update job: %w", err)
		}
		return job, nil
	}
	return nil, fmt.Errorf("failed to update job %s: still contended after %d attempts", id, maxUpdateAttempts)
}

func (r *redisJobRepository) GetByStatus(ctx context.Context, status dto.JobStatus, limit int) ([]dto.Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRange(ctx, r.statusKey(status), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s jobs: %w", status, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s jobs: %w", status, err)
	}

	jobs := make([]dto.Job, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// hash expired or deleted out from under the index
			r.client.ZRem(ctx, r.statusKey(status), ids[i])
			continue
		}
		job, err := r.decode(fields)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		if job.Status != status {
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (r *redisJobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, r.jobKey(id))
		for _, s := range []dto.JobStatus{dto.JobStatusPending, dto.JobStatusProcessing, dto.JobStatusCompleted, dto.JobStatusFailed} {
			pipe.ZRem(ctx, r.statusKey(s), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (r *redisJobRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	job, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}

	res, err := claimScript.Run(ctx, r.client,
		[]string{r.jobKey(id), r.statusKey(dto.JobStatusPending), r.statusKey(dto.JobStatusProcessing)},
		id, now.Format(time.RFC3339Nano), score(job.CreatedAt),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return res == 1, nil
}
