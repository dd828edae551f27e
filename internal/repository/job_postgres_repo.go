package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/model"
	"portfolio-advisor/pkg/utils"
)

type postgresJobRepository struct {
	db  *gorm.DB
	uow UnitOfWork
}

func NewPostgresJobRepository(db *gorm.DB) JobRepository {
	return &postgresJobRepository{
		db:  db,
		uow: NewUnitOfWork(db),
	}
}

func toJobModel(job *dto.Job) (*model.RecommendationJob, error) {
	payload, err := json.Marshal(job.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	m := &model.RecommendationJob{
		ID:        job.ID,
		Type:      job.Type,
		Status:    string(job.Status),
		Payload:   datatypes.JSON(payload),
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Result != nil {
		result, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job result: %w", err)
		}
		m.Result = datatypes.JSON(result)
	}
	return m, nil
}

func fromJobModel(m *model.RecommendationJob) (*dto.Job, error) {
	job := &dto.Job{
		ID:        m.ID,
		Type:      m.Type,
		Status:    dto.JobStatus(m.Status),
		Error:     m.Error,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(m.Payload, &job.Profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	if len(m.Result) > 0 && string(m.Result) != "null" {
		var result dto.RecommendationResult
		if err := json.Unmarshal(m.Result, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
		job.Result = &result
	}
	return job, nil
}

func (r *postgresJobRepository) Create(ctx context.Context, job *dto.Job) error {
	m, err := toJobModel(job)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *postgresJobRepository) find(ctx context.Context, id string, opts ...utils.DBOption) (*model.RecommendationJob, error) {
	var m model.RecommendationJob
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("id = ?", id).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &m, nil
}

func (r *postgresJobRepository) Get(ctx context.Context, id string) (*dto.Job, error) {
	m, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromJobModel(m)
}

func (r *postgresJobRepository) Update(ctx context.Context, id string, update dto.JobUpdate, now time.Time) (*dto.Job, error) {
	var job *dto.Job
	err := r.uow.Run(ctx, func(opts ...utils.DBOption) error {
		m, err := r.find(ctx, id, append(opts, utils.WithLockForUpdate())...)
		if err != nil {
			return err
		}
		if job, err = fromJobModel(m); err != nil {
			return err
		}
		if err := applyJobUpdate(job, update, now); err != nil {
			return err
		}

		updated, err := toJobModel(job)
		if err != nil {
			return err
		}
		return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
			Model(&model.RecommendationJob{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     updated.Status,
				"result":     updated.Result,
				"error":      updated.Error,
				"updated_at": updated.UpdatedAt,
			}).Error
	})
	if err != nil {
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobFinished) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return job, nil
}

func (r *postgresJobRepository) GetByStatus(ctx context.Context, status dto.JobStatus, limit int) ([]dto.Job, error) {
	var rows []model.RecommendationJob
	err := utils.ApplyOptions(r.db.WithContext(ctx),
		utils.WithWhere("status = ?", string(status)),
		utils.WithOrder("created_at ASC"),
		utils.WithLimit(limit),
	).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s jobs: %w", status, err)
	}

	jobs := make([]dto.Job, 0, len(rows))
	for i := range rows {
		job, err := fromJobModel(&rows[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (r *postgresJobRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.RecommendationJob{}).Error; err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Claim relies on the row-level conditional update: only one caller can see
// status = pending and flip it.
func (r *postgresJobRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.RecommendationJob{}).
		Where("id = ? AND status = ?", id, string(dto.JobStatusPending)).
		Updates(map[string]interface{}{
			"status":     string(dto.JobStatusProcessing),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.find(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
