package service

import (
	"context"
	"fitcoach_backend/internal/config"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/repository"
	"fitcoach_backend/internal/util"
	"fitcoach_backend/pkg/logger"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     model.UserRole
}

type AuthResult struct {
	User   *model.User     `json:"user"`
	Tokens *util.TokenPair `json:"tokens"`
}

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
	}
}

func (s *AuthService) issueTokens(user *model.User) (*util.TokenPair, error) {
	pair, err := util.GenerateTokenPair(user.ID, user.Role, s.Cfg.JWT.Secret, s.Cfg.JWT.AccessExpire, s.Cfg.JWT.RefreshExpire)
	if err != nil {
		return nil, util.NewInternal("Error generating tokens", err)
	}
	return pair, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if !in.Role.Valid() {
		return nil, util.NewValidation("Invalid role")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	_, err := s.UserRepo.FindByEmail(ctx, email)
	if err == nil {
		return nil, util.ErrEmailRegistered
	} else if !repository.IsNotFound(err) {
		return nil, util.NewInternal("Error creating user", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, util.NewInternal("Error creating user", err)
	}

	user := &model.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: string(hashedPassword),
		Role:     in.Role,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, util.NewInternal("Error creating user", err)
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("User registered", zap.String("userId", user.ID), zap.String("role", string(user.Role)))
	return &AuthResult{User: user, Tokens: tokens}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.UserRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, util.NewInternal("Error logging in", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh 只接受 refresh 类型的 token，并确认用户仍然存在
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*util.TokenPair, error) {
	if refreshToken == "" {
		return nil, util.NewValidation("Refresh token is required")
	}

	claims, err := util.ParseJWT(refreshToken, s.Cfg.JWT.Secret)
	if err != nil || claims.TokenType != util.TokenTypeRefresh {
		return nil, util.NewAppError(util.KindUnauthorized, "Invalid refresh token", err)
	}

	user, err := s.UserRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NewAppError(util.KindUnauthorized, "User not found", nil)
		}
		return nil, util.NewInternal("Error refreshing token", err)
	}
	return s.issueTokens(user)
}
