package service

import (
	"context"
	"errors"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/repository"
	"fitcoach_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newUserService(f *fixture) *UserService {
	return NewUserService(repository.NewUserRepository(f.db), f.challenges, f.service)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	svc := newUserService(f)
	ctx := context.Background()

	updated, err := svc.UpdateProfile(ctx, f.client.ID, ProfilePatch{
		Name:  strPtr("  Jamie Lee "),
		Email: strPtr("Jamie.Lee@Example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Jamie Lee", updated.Name)
	assert.Equal(t, "jamie.lee@example.com", updated.Email)

	_, err = svc.UpdateProfile(ctx, f.coach.ID, ProfilePatch{Email: strPtr("JAMIE.LEE@example.com")})
	assert.True(t, errors.Is(err, util.ErrEmailRegistered))

	_, err = svc.UpdateProfile(ctx, f.client.ID, ProfilePatch{Name: strPtr("   ")})
	assert.Equal(t, util.KindValidation, util.KindOf(err))

	_, err = svc.GetProfile(ctx, "missing")
	assert.True(t, errors.Is(err, util.ErrUserNotFound))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	svc := newUserService(f)
	ctx := context.Background()

	hashed, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", f.client.ID).Update("password", string(hashed)).Error)

	err = svc.ChangePassword(ctx, f.client.ID, "wrong-password", "new-password")
	assert.Equal(t, util.KindUnauthorized, util.KindOf(err))

	require.NoError(t, svc.ChangePassword(ctx, f.client.ID, "old-password", "new-password"))

	user, err := svc.GetProfile(ctx, f.client.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("new-password")))
}

func TestClientProgress(t *testing.T) {
	f := newFixture(t)
	svc := newUserService(f)
	ctx := context.Background()

	for _, week := range []int{1, 2} {
		require.NoError(t, f.db.Create(&model.CheckIn{
			SubjectID:      f.client.ID,
			ChallengeID:    f.challenge.ID,
			PeriodNumber:   week,
			CheckInMetrics: model.CheckInMetrics{Weight: floatPtr(80 - float64(week))},
		}).Error)
	}

	progress, err := svc.ClientProgress(ctx, f.coach.ID, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, f.client.ID, progress.Client.ID)
	require.Len(t, progress.Challenges, 1)
	assert.Equal(t, f.challenge.ID, progress.Challenges[0].Challenge.ID)
	require.Len(t, progress.Challenges[0].History, 2)
	assert.Equal(t, 2, progress.Challenges[0].History[0].PeriodNumber)

	other := f.createUser(t, "Other Coach", model.Coach)
	_, err = svc.ClientProgress(ctx, other.ID, f.client.ID)
	assert.True(t, errors.Is(err, util.ErrClientNotAssociated))
}
