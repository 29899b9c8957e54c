package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	ctx := context.Background()
	svc := NewIdempotencyService(NewMemoryIdempotencyStore(), time.Hour)
	key := svc.StorageKey("user-1", "POST /api/check-ins", "abc")
	hash := svc.RequestHash([]byte(`{"weekNumber":2}`))

	cached, err := svc.Begin(ctx, key, hash)
	require.NoError(t, err)
	assert.Nil(t, cached)

	_, err = svc.Begin(ctx, key, hash)
	assert.True(t, errors.Is(err, util.ErrRequestInProgress))

	require.NoError(t, svc.Complete(ctx, key, hash, map[string]string{"checkIn": "ci-1"}))

	cached, err = svc.Begin(ctx, key, hash)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.Unmarshal(cached, &body))
	assert.Equal(t, "ci-1", body["checkIn"])
}

func TestIdempotencyAbortAllowsRetry(t *testing.T) {
	ctx := context.Background()
	svc := NewIdempotencyService(NewMemoryIdempotencyStore(), time.Hour)
	key := svc.StorageKey("user-1", "POST /api/check-ins", "abc")

	_, err := svc.Begin(ctx, key, "h1")
	require.NoError(t, err)
	require.NoError(t, svc.Abort(ctx, key))

	cached, err := svc.Begin(ctx, key, "h2")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestIdempotencyRejectsKeyReusedForDifferentRequest(t *testing.T) {
	ctx := context.Background()
	svc := NewIdempotencyService(NewMemoryIdempotencyStore(), time.Hour)
	key := svc.StorageKey("user-1", "POST /api/check-ins", "abc")
	week2 := svc.RequestHash([]byte(`{"weekNumber":2}`))
	week3 := svc.RequestHash([]byte(`{"weekNumber":3}`))
	assert.NotEqual(t, week2, week3)

	_, err := svc.Begin(ctx, key, week2)
	require.NoError(t, err)

	_, err = svc.Begin(ctx, key, week3)
	assert.True(t, errors.Is(err, util.ErrIdempotencyKeyReused))

	require.NoError(t, svc.Complete(ctx, key, week2, map[string]int{"weekNumber": 2}))

	cached, err := svc.Begin(ctx, key, week3)
	assert.Nil(t, cached)
	assert.True(t, errors.Is(err, util.ErrIdempotencyKeyReused))
	assert.Equal(t, util.KindConflict, util.KindOf(err))
}

func TestSubmitFingerprintCoversPayload(t *testing.T) {
	base := SubmitCheckInInput{
		SubjectID:    "u1",
		ChallengeID:  "c1",
		PeriodNumber: 2,
		Metrics:      model.CheckInMetrics{Weight: floatPtr(80), Measurements: model.Measurements{"waist": 82, "hips": 95}},
		Photos:       []PhotoUpload{{Filename: "front.png", Content: []byte("a")}},
	}
	fingerprint := func(in SubmitCheckInInput) string {
		b, err := in.Fingerprint()
		require.NoError(t, err)
		return string(b)
	}

	same := base
	same.Metrics.Measurements = model.Measurements{"hips": 95, "waist": 82}
	same.Photos = []PhotoUpload{{Filename: "front.png", ContentType: "image/png", Content: []byte("a")}}
	assert.Equal(t, fingerprint(base), fingerprint(same))

	otherWeek := base
	otherWeek.PeriodNumber = 3
	assert.NotEqual(t, fingerprint(base), fingerprint(otherWeek))

	otherPhoto := base
	otherPhoto.Photos = []PhotoUpload{{Filename: "front.png", Content: []byte("b")}}
	assert.NotEqual(t, fingerprint(base), fingerprint(otherPhoto))
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	svc := NewIdempotencyService(NewMemoryIdempotencyStore(), time.Hour)
	assert.NotEqual(t,
		svc.StorageKey("user-1", "POST /api/check-ins", "abc"),
		svc.StorageKey("user-2", "POST /api/check-ins", "abc"))
}

func TestMemoryIdempotencyStoreExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	ok, err := store.Reserve(ctx, "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = store.Reserve(ctx, "k", []byte("v2"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
