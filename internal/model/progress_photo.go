package model

import (
	"time"

	"gorm.io/gorm"
)

// ProgressPhoto 打卡附带的进度照片，按 (subject, challenge, period) 松散关联打卡
type ProgressPhoto struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SubjectID    string    `gorm:"type:varchar(36);not null;index:idx_photo_natural_key,priority:1" json:"userId"`
	ChallengeID  string    `gorm:"type:varchar(36);not null;index:idx_photo_natural_key,priority:2" json:"challengeId"`
	PeriodNumber int       `gorm:"not null;index:idx_photo_natural_key,priority:3" json:"weekNumber"`
	PhotoURL     string    `gorm:"size:1024;not null" json:"photoUrl"`
	ObjectKey    string    `gorm:"size:512" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (ProgressPhoto) TableName() string {
	return "progress_photos"
}

func (p *ProgressPhoto) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = GenerateUUID()
	}
	return nil
}
