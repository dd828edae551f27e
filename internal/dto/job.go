package dto

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

const JobTypePortfolioRecommendation = "portfolio_recommendation"

// Job is a deferred recommendation request as the services see it.
type Job struct {
	ID        string                `json:"id"`
	Type      string                `json:"type"`
	Status    JobStatus             `json:"status"`
	Profile   UserProfile           `json:"profile"`
	Result    *RecommendationResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// JobUpdate is a partial update. Nil fields are left unchanged.
type JobUpdate struct {
	Status *JobStatus
	Result *RecommendationResult
	Error  *string
}

type JobAcceptedResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

type JobStatusResponse struct {
	JobID     string                `json:"jobId"`
	Status    JobStatus             `json:"status"`
	Progress  int                   `json:"progress"`
	Result    *RecommendationResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}
