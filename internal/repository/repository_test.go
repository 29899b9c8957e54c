package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fitcoach_backend/internal/config"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.InitDB(&config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "fitcoach-repo-test.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, name string, role model.UserRole) *model.User {
	t.Helper()

	user := &model.User{
		Name:     name,
		Email:    name + "@example.com",
		Password: "test-hash",
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestChallenge(t *testing.T, db *gorm.DB, coachID string, weeks int) *model.Challenge {
	t.Helper()

	challenge := &model.Challenge{
		CoachID:       coachID,
		Name:          "Spring Cut",
		DurationWeeks: weeks,
		StartDate:     time.Now().UTC(),
		EndDate:       time.Now().UTC().AddDate(0, 0, 7*weeks),
		Status:        model.ChallengeActive,
	}
	require.NoError(t, db.Create(challenge).Error)
	return challenge
}

func createTestCheckIn(t *testing.T, repo *CheckInRepository, subjectID, challengeID string, period int, weight float64) *model.CheckIn {
	t.Helper()

	checkIn := &model.CheckIn{
		SubjectID:    subjectID,
		ChallengeID:  challengeID,
		PeriodNumber: period,
		CheckInMetrics: model.CheckInMetrics{
			Weight: &weight,
		},
	}
	require.NoError(t, repo.SaveCheckIn(context.Background(), checkIn))
	return checkIn
}
