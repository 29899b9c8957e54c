package model

import "time"

type ChallengeStatus string

const (
	ChallengeDraft     ChallengeStatus = "draft"
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeCancelled ChallengeStatus = "cancelled"
)

func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengeDraft, ChallengeActive, ChallengeCompleted, ChallengeCancelled:
		return true
	}
	return false
}

// Challenge 教练创建的多周训练挑战
// swagger:model Challenge
type Challenge struct {
	UUIDBase
	CoachID       string          `gorm:"type:varchar(36);index;not null" json:"coachId"`
	Name          string          `gorm:"size:200;not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	DurationWeeks int             `gorm:"not null" json:"durationWeeks"`
	StartDate     time.Time       `json:"startDate"`
	EndDate       time.Time       `json:"endDate"`
	Status        ChallengeStatus `gorm:"size:20;not null;default:'draft'" json:"status"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// ChallengeParticipant 学员参与挑战的关系
type ChallengeParticipant struct {
	ChallengeID string    `gorm:"type:varchar(36);primaryKey" json:"challengeId"`
	UserID      string    `gorm:"type:varchar(36);primaryKey;index" json:"userId"`
	JoinedAt    time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}

func (ChallengeParticipant) TableName() string {
	return "challenge_participants"
}
