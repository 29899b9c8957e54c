package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fitcoach_backend/internal/config"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/repository"
	"fitcoach_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// 最小的合法 PNG 文件头，足够 http.DetectContentType 识别
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.InitDB(&config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "fitcoach-service-test.db"),
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

type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	prompts   []string
	opts      []GenerateOptions
}

func (g *fakeGenerator) Generate(ctx context.Context, system, prompt string, opts GenerateOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", nil
	}
	resp := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return resp, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	failOn   int
	uploads  []string
	deleted  []string
	mimeSeen []string
}

func (u *fakeUploader) Upload(ctx context.Context, content []byte, mimeType, path string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failOn > 0 && len(u.uploads)+1 == u.failOn {
		return "", errors.New("bucket unavailable")
	}
	u.uploads = append(u.uploads, path)
	u.mimeSeen = append(u.mimeSeen, mimeType)
	return "https://cdn.example.com/" + path, nil
}

func (u *fakeUploader) Delete(ctx context.Context, path string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = append(u.deleted, path)
	return nil
}

const jsonAnalysis = `{"summary":"Down 1kg","recommendations":"More protein","flaggedIssues":"","encouragement":"Keep going"}`

type fixture struct {
	db         *gorm.DB
	repo       *repository.CheckInRepository
	generator  *fakeGenerator
	uploader   *fakeUploader
	service    *CheckInService
	challenges *ChallengeService
	coach      *model.User
	client     *model.User
	challenge  *model.Challenge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	repo := repository.NewCheckInRepository(db)
	generator := &fakeGenerator{responses: []string{jsonAnalysis}}
	uploader := &fakeUploader{}
	analysis := NewAnalysisService(generator, config.AIConfig{Model: "gpt-4", Temperature: 0.7, MaxTokens: 1000}, 4)
	svc := NewCheckInService(db, repo, uploader, analysis, config.CheckInConfig{})
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }

	f := &fixture{
		db:         db,
		repo:       repo,
		generator:  generator,
		uploader:   uploader,
		service:    svc,
		challenges: NewChallengeService(repository.NewChallengeRepository(db), uploader),
	}
	f.coach = f.createUser(t, "Coach Carter", model.Coach)
	f.client = f.createUser(t, "Jamie", model.Client)
	f.challenge = &model.Challenge{
		CoachID:       f.coach.ID,
		Name:          "Spring Cut",
		DurationWeeks: 8,
		StartDate:     time.Now().UTC(),
		EndDate:       time.Now().UTC().AddDate(0, 0, 56),
		Status:        model.ChallengeActive,
	}
	require.NoError(t, db.Create(f.challenge).Error)
	require.NoError(t, db.Create(&model.ChallengeParticipant{ChallengeID: f.challenge.ID, UserID: f.client.ID}).Error)
	return f
}

func (f *fixture) createUser(t *testing.T, name string, role model.UserRole) *model.User {
	t.Helper()
	user := &model.User{Name: name, Email: filepath.Base(t.Name()) + "-" + string(role) + "-" + name + "@example.com", Password: "x", Role: role}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *fixture) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(m).Count(&n).Error)
	return n
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }
