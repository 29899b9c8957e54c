package service

import (
	"context"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/repository"
	"fitcoach_backend/internal/util"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ProfilePatch 用户可修改的资料字段
type ProfilePatch struct {
	Name  *string
	Email *string
}

// ClientChallengeProgress 学员在某个挑战下的打卡历史
type ClientChallengeProgress struct {
	Challenge model.Challenge           `json:"challenge"`
	History   []repository.HistoryEntry `json:"history"`
}

type ClientProgress struct {
	Client     *model.User               `json:"client"`
	Challenges []ClientChallengeProgress `json:"challenges"`
}

type UserService struct {
	UserRepo   *repository.UserRepository
	Challenges *ChallengeService
	CheckIns   *CheckInService
}

func NewUserService(userRepo *repository.UserRepository, challenges *ChallengeService, checkIns *CheckInService) *UserService {
	return &UserService{UserRepo: userRepo, Challenges: challenges, CheckIns: checkIns}
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, util.NewInternal("Error retrieving profile", err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*model.User, error) {
	columns := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, util.NewValidation("Name cannot be empty")
		}
		columns["name"] = name
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		taken, err := s.UserRepo.EmailTakenByOther(ctx, email, userID)
		if err != nil {
			return nil, util.NewInternal("Error updating profile", err)
		}
		if taken {
			return nil, util.ErrEmailRegistered
		}
		columns["email"] = email
	}

	if err := s.UserRepo.UpdateColumns(ctx, userID, columns); err != nil {
		return nil, util.NewInternal("Error updating profile", err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)); err != nil {
		return util.NewAppError(util.KindUnauthorized, "Current password is incorrect", nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(next), bcryptCost)
	if err != nil {
		return util.NewInternal("Error changing password", err)
	}
	if err := s.UserRepo.UpdatePassword(ctx, userID, string(hashed)); err != nil {
		return util.NewInternal("Error changing password", err)
	}
	return nil
}

// ClientProgress 教练查看学员在自己各个挑战下的打卡进度
func (s *UserService) ClientProgress(ctx context.Context, coachID, clientID string) (*ClientProgress, error) {
	if err := s.Challenges.EnsureClientOfCoach(ctx, coachID, clientID); err != nil {
		return nil, err
	}
	client, err := s.GetProfile(ctx, clientID)
	if err != nil {
		return nil, err
	}

	challenges, err := s.Challenges.ListForCoachAndClient(ctx, coachID, clientID)
	if err != nil {
		return nil, err
	}

	progress := &ClientProgress{Client: client, Challenges: make([]ClientChallengeProgress, 0, len(challenges))}
	for _, c := range challenges {
		history, err := s.CheckIns.GetHistory(ctx, clientID, c.ID)
		if err != nil {
			return nil, err
		}
		progress.Challenges = append(progress.Challenges, ClientChallengeProgress{Challenge: c, History: history})
	}
	return progress, nil
}
