package model

import (
	"time"

	"gorm.io/datatypes"
)

type RecommendationJob struct {
	ID        string         `gorm:"type:varchar(36);primaryKey"`
	Type      string         `gorm:"type:varchar(50);not null"`
	Status    string         `gorm:"type:varchar(20);not null;index"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	Result    datatypes.JSON `gorm:"type:jsonb"`
	Error     string         `gorm:"type:text"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null;index"`
}

func (RecommendationJob) TableName() string {
	return "recommendation_jobs"
}
