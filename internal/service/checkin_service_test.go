package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitPersistsCheckInPhotosAndAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Submit(ctx, SubmitCheckInInput{
		SubjectID:    f.client.ID,
		ChallengeID:  f.challenge.ID,
		PeriodNumber: 3,
		Metrics: model.CheckInMetrics{
			Weight:       floatPtr(80.5),
			Measurements: model.Measurements{"waist": 85},
			EnergyLevel:  intPtr(7),
		},
		Photos: []PhotoUpload{
			{Filename: "front view.png", ContentType: "text/plain", Content: pngBytes},
			{Filename: "side.png", ContentType: "image/png", Content: pngBytes},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result.CheckIn)
	require.NotNil(t, result.Analysis)
	assert.Equal(t, "Down 1kg", result.Analysis.Summary)
	assert.Equal(t, "Keep going", result.Analysis.Encouragement)

	assert.EqualValues(t, 1, f.count(t, &model.CheckIn{}))
	assert.EqualValues(t, 2, f.count(t, &model.ProgressPhoto{}))
	assert.EqualValues(t, 1, f.count(t, &model.AnalysisRecord{}))

	prefix := fmt.Sprintf("progress-photos/%s/%s/week-3/", f.client.ID, f.challenge.ID)
	require.Len(t, f.uploader.uploads, 2)
	assert.Equal(t, prefix+"1700000000000-front-view.png", f.uploader.uploads[0])
	assert.Equal(t, prefix+"1700000000000-side.png", f.uploader.uploads[1])
	assert.Equal(t, []string{"image/png", "image/png"}, f.uploader.mimeSeen)

	stored, err := f.repo.GetAnalysis(ctx, f.client.ID, f.challenge.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "More protein", stored.Recommendations)
}

func TestSubmitRollsBackWhenSecondUploadFails(t *testing.T) {
	f := newFixture(t)
	f.uploader.failOn = 2

	_, err := f.service.Submit(context.Background(), SubmitCheckInInput{
		SubjectID:    f.client.ID,
		ChallengeID:  f.challenge.ID,
		PeriodNumber: 1,
		Photos: []PhotoUpload{
			{Filename: "a.png", Content: pngBytes},
			{Filename: "b.png", Content: pngBytes},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrStorageFailure))

	assert.Zero(t, f.count(t, &model.CheckIn{}))
	assert.Zero(t, f.count(t, &model.ProgressPhoto{}))
	assert.Zero(t, f.count(t, &model.AnalysisRecord{}))
	assert.Equal(t, f.uploader.uploads, f.uploader.deleted)
	assert.Zero(t, f.generator.calls)
}

func TestSubmitRollsBackWhenGenerationFails(t *testing.T) {
	f := newFixture(t)
	f.generator.err = errors.New("upstream timeout")

	_, err := f.service.Submit(context.Background(), SubmitCheckInInput{
		SubjectID:    f.client.ID,
		ChallengeID:  f.challenge.ID,
		PeriodNumber: 2,
		Metrics:      model.CheckInMetrics{Weight: floatPtr(79)},
		Photos:       []PhotoUpload{{Filename: "a.png", Content: pngBytes}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrAnalysisUnavailable))
	assert.Equal(t, 500, util.StatusForKind(util.KindOf(err)))

	assert.Zero(t, f.count(t, &model.CheckIn{}))
	assert.Zero(t, f.count(t, &model.ProgressPhoto{}))
	assert.Zero(t, f.count(t, &model.AnalysisRecord{}))
	assert.Len(t, f.uploader.deleted, 1)
}

func TestSubmitRollsBackOnEmptyCompletion(t *testing.T) {
	f := newFixture(t)
	f.generator.responses = []string{"   "}

	_, err := f.service.Submit(context.Background(), SubmitCheckInInput{
		SubjectID:    f.client.ID,
		ChallengeID:  f.challenge.ID,
		PeriodNumber: 2,
	})
	assert.True(t, errors.Is(err, util.ErrAnalysisUnavailable))
	assert.Zero(t, f.count(t, &model.CheckIn{}))
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	tooBig := append(append([]byte{}, pngBytes...), make([]byte, 5<<20)...)

	cases := []struct {
		name    string
		mutate  func(in *SubmitCheckInInput)
		message string
	}{
		{"week zero", func(in *SubmitCheckInInput) { in.PeriodNumber = 0 }, "Invalid week number"},
		{"negative weight", func(in *SubmitCheckInInput) { in.Metrics.Weight = floatPtr(-1) }, "Invalid weight"},
		{"sleep over 24", func(in *SubmitCheckInInput) { in.Metrics.SleepHours = floatPtr(25) }, "Invalid sleep hours"},
		{"energy over 10", func(in *SubmitCheckInInput) { in.Metrics.EnergyLevel = intPtr(11) }, "Invalid energy level"},
		{"infinite weight", func(in *SubmitCheckInInput) { in.Metrics.Weight = floatPtr(math.Inf(1)) }, "Invalid weight"},
		{"NaN sleep", func(in *SubmitCheckInInput) { in.Metrics.SleepHours = floatPtr(math.NaN()) }, "Invalid sleep hours"},
		{"NaN measurement", func(in *SubmitCheckInInput) {
			in.Metrics.Measurements = model.Measurements{"waist": math.NaN()}
		}, "Invalid measurements"},
		{"too many photos", func(in *SubmitCheckInInput) {
			for i := 0; i < 4; i++ {
				in.Photos = append(in.Photos, PhotoUpload{Filename: "p.png", Content: pngBytes})
			}
		}, "At most 3 photos are allowed"},
		{"not an image", func(in *SubmitCheckInInput) {
			in.Photos = []PhotoUpload{{Filename: "p.png", Content: []byte("plain text")}}
		}, "Only image files are allowed"},
		{"too large", func(in *SubmitCheckInInput) {
			in.Photos = []PhotoUpload{{Filename: "p.png", Content: tooBig}}
		}, "File too large"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := SubmitCheckInInput{SubjectID: f.client.ID, ChallengeID: f.challenge.ID, PeriodNumber: 1}
			tc.mutate(&in)

			_, err := f.service.Submit(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, util.KindValidation, util.KindOf(err))
			assert.Equal(t, tc.message, err.Error())
		})
	}
	assert.Zero(t, f.count(t, &model.CheckIn{}))
	assert.Zero(t, f.generator.calls)
}

func TestSubmitIncludesPreviousWeeksInPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for week := 1; week <= 2; week++ {
		_, err := f.service.Submit(ctx, SubmitCheckInInput{
			SubjectID:    f.client.ID,
			ChallengeID:  f.challenge.ID,
			PeriodNumber: week,
			Metrics:      model.CheckInMetrics{Weight: floatPtr(82 - float64(week))},
		})
		require.NoError(t, err)
	}

	require.Len(t, f.generator.prompts, 2)
	assert.Contains(t, f.generator.prompts[0], "No previous check-ins available")
	assert.Contains(t, f.generator.prompts[1], "Week 1:\n- Weight: 81kg (change to current: -1kg)")
	assert.Contains(t, f.generator.prompts[1], "Week: 2 of 8")
	assert.Equal(t, "gpt-4", f.generator.opts[1].Model)
}

func TestRegenerateOverwritesAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, SubmitCheckInInput{
		SubjectID:    f.client.ID,
		ChallengeID:  f.challenge.ID,
		PeriodNumber: 4,
		Metrics:      model.CheckInMetrics{Mood: strPtr("tired")},
	})
	require.NoError(t, err)

	original, err := f.repo.GetAnalysis(ctx, f.client.ID, f.challenge.ID, 4)
	require.NoError(t, err)
	old := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, f.db.Model(&model.AnalysisRecord{}).Where("id = ?", original.ID).UpdateColumn("updated_at", old).Error)

	f.generator.responses = []string{"Fresh summary\n\nSleep more\n\nLow energy\n\nYou got this"}
	updated, err := f.service.Regenerate(ctx, original.ID)
	require.NoError(t, err)

	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, "Fresh summary", updated.Summary)
	assert.Equal(t, "Sleep more", updated.Recommendations)
	assert.Equal(t, "Low energy", updated.FlaggedIssues)
	assert.Equal(t, "You got this", updated.Encouragement)
	assert.True(t, updated.UpdatedAt.After(old))
	assert.EqualValues(t, 1, f.count(t, &model.AnalysisRecord{}))
	assert.Equal(t, 2, f.generator.calls)
}

func TestRegenerateUnknownAnalysis(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Regenerate(context.Background(), "missing")
	assert.True(t, errors.Is(err, util.ErrAnalysisNotFound))
	assert.Zero(t, f.generator.calls)
}

func TestAnalyzeCheckInStoresAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checkIn := &model.CheckIn{SubjectID: f.client.ID, ChallengeID: f.challenge.ID, PeriodNumber: 5}
	require.NoError(t, f.repo.SaveCheckIn(ctx, checkIn))

	analysis, err := f.service.AnalyzeCheckIn(ctx, checkIn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Down 1kg", analysis.Summary)

	stored, err := f.repo.GetAnalysis(ctx, f.client.ID, f.challenge.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, "More protein", stored.Recommendations)

	_, err = f.service.AnalyzeCheckIn(ctx, "missing")
	assert.True(t, errors.Is(err, util.ErrCheckInNotFound))
}

func TestGetAnalysisForCheckInHidesOtherSubjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Submit(ctx, SubmitCheckInInput{
		SubjectID:    f.client.ID,
		ChallengeID:  f.challenge.ID,
		PeriodNumber: 1,
	})
	require.NoError(t, err)

	record, err := f.service.GetAnalysisForCheckIn(ctx, f.client.ID, result.CheckIn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Down 1kg", record.Summary)

	_, err = f.service.GetAnalysisForCheckIn(ctx, f.coach.ID, result.CheckIn.ID)
	assert.True(t, errors.Is(err, util.ErrCheckInNotFound))
}

func TestGetHistoryAfterSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for week := 1; week <= 3; week++ {
		var photos []PhotoUpload
		if week == 2 {
			photos = []PhotoUpload{{Filename: "w2.png", Content: pngBytes}}
		}
		_, err := f.service.Submit(ctx, SubmitCheckInInput{
			SubjectID:    f.client.ID,
			ChallengeID:  f.challenge.ID,
			PeriodNumber: week,
			Photos:       photos,
		})
		require.NoError(t, err)
	}
	require.NoError(t, f.db.Where("period_number <> ?", 2).Delete(&model.AnalysisRecord{}).Error)

	history, err := f.service.GetHistory(ctx, f.client.ID, f.challenge.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 3, history[0].PeriodNumber)
	assert.Nil(t, history[0].Analysis)
	assert.NotNil(t, history[1].Analysis)
	assert.Len(t, history[1].Photos, 1)
	assert.True(t, strings.HasSuffix(history[1].Photos[0].PhotoURL, "w2.png"))
	assert.Nil(t, history[2].Analysis)
	assert.Empty(t, history[2].Photos)
}
