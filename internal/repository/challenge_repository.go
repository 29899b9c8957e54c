package repository

import (
	"context"
	"fitcoach_backend/internal/model"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ParticipantSummary 挑战参与者及其打卡、照片数量
type ParticipantSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	JoinedAt      time.Time `json:"joinedAt"`
	CheckInsCount int64     `json:"checkInsCount"`
	PhotosCount   int64     `json:"photosCount"`
}

type ChallengeRepository struct {
	DB *gorm.DB
}

func NewChallengeRepository(db *gorm.DB) *ChallengeRepository {
	return &ChallengeRepository{DB: db}
}

func (r *ChallengeRepository) Create(ctx context.Context, challenge *model.Challenge) error {
	return r.DB.WithContext(ctx).Create(challenge).Error
}

func (r *ChallengeRepository) FindByID(ctx context.Context, id string) (*model.Challenge, error) {
	var challenge model.Challenge
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&challenge).Error; err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (r *ChallengeRepository) FindByIDAndCoach(ctx context.Context, id, coachID string) (*model.Challenge, error) {
	var challenge model.Challenge
	err := r.DB.WithContext(ctx).Where("id = ? AND coach_id = ?", id, coachID).First(&challenge).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// FindForParticipant 仅当用户已加入时返回挑战
func (r *ChallengeRepository) FindForParticipant(ctx context.Context, id, userID string) (*model.Challenge, error) {
	var challenge model.Challenge
	err := r.DB.WithContext(ctx).
		Joins("JOIN challenge_participants cp ON cp.challenge_id = challenges.id").
		Where("challenges.id = ? AND cp.user_id = ?", id, userID).
		First(&challenge).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (r *ChallengeRepository) ListByCoach(ctx context.Context, coachID string) ([]model.Challenge, error) {
	challenges := []model.Challenge{}
	err := r.DB.WithContext(ctx).Where("coach_id = ?", coachID).Order("created_at DESC").Find(&challenges).Error
	return challenges, err
}

func (r *ChallengeRepository) ListByParticipant(ctx context.Context, userID string) ([]model.Challenge, error) {
	challenges := []model.Challenge{}
	err := r.DB.WithContext(ctx).
		Joins("JOIN challenge_participants cp ON cp.challenge_id = challenges.id").
		Where("cp.user_id = ?", userID).
		Order("challenges.created_at DESC").
		Find(&challenges).Error
	return challenges, err
}

// ListByCoachAndParticipant 教练名下且学员已加入的挑战
func (r *ChallengeRepository) ListByCoachAndParticipant(ctx context.Context, coachID, userID string) ([]model.Challenge, error) {
	challenges := []model.Challenge{}
	err := r.DB.WithContext(ctx).
		Joins("JOIN challenge_participants cp ON cp.challenge_id = challenges.id").
		Where("challenges.coach_id = ? AND cp.user_id = ?", coachID, userID).
		Order("challenges.created_at DESC").
		Find(&challenges).Error
	return challenges, err
}

func (r *ChallengeRepository) IsParticipant(ctx context.Context, challengeID, userID string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ChallengeParticipant{}).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *ChallengeRepository) AddParticipant(ctx context.Context, challengeID, userID string) error {
	return r.DB.WithContext(ctx).Create(&model.ChallengeParticipant{
		ChallengeID: challengeID,
		UserID:      userID,
	}).Error
}

// CoachHasClient 学员是否参加过该教练的任一挑战
func (r *ChallengeRepository) CoachHasClient(ctx context.Context, coachID, clientID string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ChallengeParticipant{}).
		Joins("JOIN challenges c ON c.id = challenge_participants.challenge_id").
		Where("challenge_participants.user_id = ? AND c.coach_id = ?", clientID, coachID).
		Count(&count).Error
	return count > 0, err
}

// Update 只写入调用方给出的列
func (r *ChallengeRepository) Update(ctx context.Context, challenge *model.Challenge, columns map[string]interface{}) error {
	if len(columns) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(challenge).Updates(columns).Error
}

// DeleteCascade 在一个事务里删除挑战及其参与者、打卡、照片和分析
func (r *ChallengeRepository) DeleteCascade(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		related := []interface{}{
			&model.ChallengeParticipant{},
			&model.CheckIn{},
			&model.ProgressPhoto{},
			&model.AnalysisRecord{},
		}
		for _, m := range related {
			if err := tx.Where("challenge_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("delete %T: %w", m, err)
			}
		}
		return tx.Where("id = ?", id).Delete(&model.Challenge{}).Error
	})
}

// ListPhotoKeys 挑战下所有照片的对象路径，删除挑战后用于清理存储
func (r *ChallengeRepository) ListPhotoKeys(ctx context.Context, challengeID string) ([]string, error) {
	var keys []string
	err := r.DB.WithContext(ctx).Model(&model.ProgressPhoto{}).
		Where("challenge_id = ? AND object_key <> ''", challengeID).
		Pluck("object_key", &keys).Error
	return keys, err
}

func (r *ChallengeRepository) ListParticipants(ctx context.Context, challengeID string) ([]ParticipantSummary, error) {
	participants := []ParticipantSummary{}
	err := r.DB.WithContext(ctx).
		Table("users AS u").
		Select(`u.id, u.name, u.email, cp.joined_at,
			COUNT(DISTINCT ci.id) AS check_ins_count,
			COUNT(DISTINCT pp.id) AS photos_count`).
		Joins("JOIN challenge_participants cp ON cp.user_id = u.id").
		Joins("LEFT JOIN check_ins ci ON ci.subject_id = u.id AND ci.challenge_id = cp.challenge_id").
		Joins("LEFT JOIN progress_photos pp ON pp.subject_id = u.id AND pp.challenge_id = cp.challenge_id").
		Where("cp.challenge_id = ?", challengeID).
		Group("u.id, u.name, u.email, cp.joined_at").
		Order("cp.joined_at DESC").
		Scan(&participants).Error
	return participants, err
}
