package service

import (
	"context"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/repository"
	"fitcoach_backend/internal/util"
	"fitcoach_backend/pkg/logger"
	"strings"
	"time"

	"go.uber.org/zap"
)

type CreateChallengeInput struct {
	Name          string
	Description   string
	DurationWeeks int
	StartDate     time.Time
	EndDate       time.Time
}

// ChallengePatch 教练可修改的字段，nil 表示不修改
type ChallengePatch struct {
	Name        *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	Status      *model.ChallengeStatus
}

type ChallengeService struct {
	Repo     *repository.ChallengeRepository
	Uploader BlobUploader
}

func NewChallengeService(repo *repository.ChallengeRepository, uploader BlobUploader) *ChallengeService {
	return &ChallengeService{Repo: repo, Uploader: uploader}
}

func (s *ChallengeService) Create(ctx context.Context, coachID string, in CreateChallengeInput) (*model.Challenge, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, util.NewValidation("Name is required")
	}
	if in.DurationWeeks < 1 {
		return nil, util.NewValidation("Duration must be at least 1 week")
	}
	if !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		return nil, util.NewValidation("End date must be after start date")
	}

	challenge := &model.Challenge{
		CoachID:       coachID,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		DurationWeeks: in.DurationWeeks,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Status:        model.ChallengeDraft,
	}
	if err := s.Repo.Create(ctx, challenge); err != nil {
		return nil, util.NewInternal("Error creating challenge", err)
	}
	return challenge, nil
}

// List 教练看到自己创建的，学员看到已加入的
func (s *ChallengeService) List(ctx context.Context, claims *util.Claims) ([]model.Challenge, error) {
	var (
		challenges []model.Challenge
		err        error
	)
	if claims.Role == model.Coach {
		challenges, err = s.Repo.ListByCoach(ctx, claims.UserID)
	} else {
		challenges, err = s.Repo.ListByParticipant(ctx, claims.UserID)
	}
	if err != nil {
		return nil, util.NewInternal("Error retrieving challenges", err)
	}
	return challenges, nil
}

func (s *ChallengeService) Get(ctx context.Context, claims *util.Claims, id string) (*model.Challenge, error) {
	var (
		challenge *model.Challenge
		err       error
	)
	if claims.Role == model.Coach {
		challenge, err = s.Repo.FindByIDAndCoach(ctx, id, claims.UserID)
	} else {
		challenge, err = s.Repo.FindForParticipant(ctx, id, claims.UserID)
	}
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, util.NewInternal("Error retrieving challenge", err)
	}
	return challenge, nil
}

func (s *ChallengeService) Join(ctx context.Context, challengeID, userID string) error {
	challenge, err := s.Repo.FindByID(ctx, challengeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return util.ErrChallengeNotActive
		}
		return util.NewInternal("Error joining challenge", err)
	}
	if challenge.Status != model.ChallengeActive {
		return util.ErrChallengeNotActive
	}

	joined, err := s.Repo.IsParticipant(ctx, challengeID, userID)
	if err != nil {
		return util.NewInternal("Error joining challenge", err)
	}
	if joined {
		return util.ErrAlreadyParticipant
	}

	if err := s.Repo.AddParticipant(ctx, challengeID, userID); err != nil {
		return util.NewInternal("Error joining challenge", err)
	}
	return nil
}

// EnsureCoach 挑战存在且属于该教练
func (s *ChallengeService) EnsureCoach(ctx context.Context, challengeID, coachID string) (*model.Challenge, error) {
	challenge, err := s.Repo.FindByIDAndCoach(ctx, challengeID, coachID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, util.NewInternal("Error retrieving challenge", err)
	}
	return challenge, nil
}

// EnsureOwnedBy 用于 AI 接口：挑战不存在为 404，属于其他教练为 403
func (s *ChallengeService) EnsureOwnedBy(ctx context.Context, challengeID, coachID string) error {
	challenge, err := s.Repo.FindByID(ctx, challengeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return util.ErrChallengeNotFound
		}
		return util.NewInternal("Error retrieving challenge", err)
	}
	if challenge.CoachID != coachID {
		return util.ErrPermissionDenied
	}
	return nil
}

// EnsureParticipant 学员只能向已加入的挑战提交打卡
func (s *ChallengeService) EnsureParticipant(ctx context.Context, challengeID, userID string) error {
	ok, err := s.Repo.IsParticipant(ctx, challengeID, userID)
	if err != nil {
		return util.NewInternal("Error retrieving challenge", err)
	}
	if !ok {
		return util.NewForbidden("Not a participant of this challenge")
	}
	return nil
}

func (s *ChallengeService) EnsureClientOfCoach(ctx context.Context, coachID, clientID string) error {
	ok, err := s.Repo.CoachHasClient(ctx, coachID, clientID)
	if err != nil {
		return util.NewInternal("Error retrieving client", err)
	}
	if !ok {
		return util.ErrClientNotAssociated
	}
	return nil
}

func (s *ChallengeService) ListForCoachAndClient(ctx context.Context, coachID, clientID string) ([]model.Challenge, error) {
	challenges, err := s.Repo.ListByCoachAndParticipant(ctx, coachID, clientID)
	if err != nil {
		return nil, util.NewInternal("Error retrieving challenges", err)
	}
	return challenges, nil
}

// Update 只写入 ChallengePatch 中出现的字段
func (s *ChallengeService) Update(ctx context.Context, id, coachID string, patch ChallengePatch) (*model.Challenge, error) {
	challenge, err := s.EnsureCoach(ctx, id, coachID)
	if err != nil {
		return nil, err
	}

	columns := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, util.NewValidation("Name cannot be empty")
		}
		columns["name"] = name
	}
	if patch.Description != nil {
		columns["description"] = *patch.Description
	}
	if patch.StartDate != nil {
		columns["start_date"] = *patch.StartDate
	}
	if patch.EndDate != nil {
		columns["end_date"] = *patch.EndDate
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, util.NewValidation("Invalid status")
		}
		columns["status"] = *patch.Status
	}

	if err := s.Repo.Update(ctx, challenge, columns); err != nil {
		return nil, util.NewInternal("Error updating challenge", err)
	}
	return s.EnsureCoach(ctx, id, coachID)
}

// Delete 级联删除数据库记录，之后尽力清理对象存储中的照片
func (s *ChallengeService) Delete(ctx context.Context, id, coachID string) error {
	if _, err := s.EnsureCoach(ctx, id, coachID); err != nil {
		return err
	}

	keys, err := s.Repo.ListPhotoKeys(ctx, id)
	if err != nil {
		return util.NewInternal("Error deleting challenge", err)
	}
	if err := s.Repo.DeleteCascade(ctx, id); err != nil {
		return util.NewInternal("Error deleting challenge", err)
	}

	if s.Uploader != nil {
		cleanupCtx := context.WithoutCancel(ctx)
		for _, key := range keys {
			if err := s.Uploader.Delete(cleanupCtx, key); err != nil {
				logger.Log.Warn("Failed to delete progress photo", zap.String("path", key), zap.Error(err))
			}
		}
	}
	logger.Log.Info("Challenge deleted", zap.String("challengeId", id), zap.Int("photos", len(keys)))
	return nil
}

func (s *ChallengeService) Participants(ctx context.Context, id, coachID string) ([]repository.ParticipantSummary, error) {
	if _, err := s.EnsureCoach(ctx, id, coachID); err != nil {
		return nil, err
	}
	participants, err := s.Repo.ListParticipants(ctx, id)
	if err != nil {
		return nil, util.NewInternal("Error retrieving participants", err)
	}
	return participants, nil
}
