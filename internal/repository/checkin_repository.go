package repository

import (
	"context"
	"errors"
	"fitcoach_backend/internal/model"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HistoryEntry 单条打卡及同周的照片与分析
type HistoryEntry struct {
	model.CheckIn
	Photos   []model.ProgressPhoto `json:"photos"`
	Analysis *model.AnalysisRecord `json:"analysis"`
}

// AnalysisHistoryItem 教练查看学员分析历史时的一行
type AnalysisHistoryItem struct {
	model.AnalysisRecord
	ChallengeName string `json:"challengeName"`
}

type CheckInRepository struct {
	DB *gorm.DB
}

func NewCheckInRepository(db *gorm.DB) *CheckInRepository {
	return &CheckInRepository{DB: db}
}

// WithTx 返回绑定到事务的仓库，事务内的读写都要经过它
func (r *CheckInRepository) WithTx(tx *gorm.DB) *CheckInRepository {
	return &CheckInRepository{DB: tx}
}

func (r *CheckInRepository) SaveCheckIn(ctx context.Context, checkIn *model.CheckIn) error {
	if err := r.DB.WithContext(ctx).Create(checkIn).Error; err != nil {
		return fmt.Errorf("insert check-in: %w", err)
	}
	return nil
}

func (r *CheckInRepository) SavePhoto(ctx context.Context, photo *model.ProgressPhoto) error {
	if err := r.DB.WithContext(ctx).Create(photo).Error; err != nil {
		return fmt.Errorf("insert progress photo: %w", err)
	}
	return nil
}

// UpsertAnalysis 按 (subject, challenge, period) 插入或覆盖，单条语句完成
func (r *CheckInRepository) UpsertAnalysis(ctx context.Context, record *model.AnalysisRecord) error {
	now := time.Now()
	if record.ID == "" {
		record.ID = model.GenerateUUID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subject_id"}, {Name: "challenge_id"}, {Name: "period_number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"summary", "recommendations", "flagged_issues", "encouragement", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

func (r *CheckInRepository) GetAnalysis(ctx context.Context, subjectID, challengeID string, period int) (*model.AnalysisRecord, error) {
	var record model.AnalysisRecord
	err := r.DB.WithContext(ctx).
		Where("subject_id = ? AND challenge_id = ? AND period_number = ?", subjectID, challengeID, period).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetHistory 三个查询并发执行，按周次降序组装
// 只能在非事务连接上调用
func (r *CheckInRepository) GetHistory(ctx context.Context, subjectID, challengeID string) ([]HistoryEntry, error) {
	var (
		checkIns []model.CheckIn
		photos   []model.ProgressPhoto
		analyses []model.AnalysisRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.DB.WithContext(gctx).
			Where("subject_id = ? AND challenge_id = ?", subjectID, challengeID).
			Order("period_number DESC").Order("created_at DESC").
			Find(&checkIns).Error
	})
	g.Go(func() error {
		return r.DB.WithContext(gctx).
			Where("subject_id = ? AND challenge_id = ?", subjectID, challengeID).
			Order("period_number DESC").Order("created_at DESC").
			Find(&photos).Error
	})
	g.Go(func() error {
		return r.DB.WithContext(gctx).
			Where("subject_id = ? AND challenge_id = ?", subjectID, challengeID).
			Order("period_number DESC").
			Find(&analyses).Error
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load check-in history: %w", err)
	}

	photosByPeriod := make(map[int][]model.ProgressPhoto)
	for _, p := range photos {
		photosByPeriod[p.PeriodNumber] = append(photosByPeriod[p.PeriodNumber], p)
	}
	analysisByPeriod := make(map[int]*model.AnalysisRecord, len(analyses))
	for i := range analyses {
		analysisByPeriod[analyses[i].PeriodNumber] = &analyses[i]
	}

	history := make([]HistoryEntry, 0, len(checkIns))
	for _, ci := range checkIns {
		entry := HistoryEntry{
			CheckIn:  ci,
			Photos:   photosByPeriod[ci.PeriodNumber],
			Analysis: analysisByPeriod[ci.PeriodNumber],
		}
		if entry.Photos == nil {
			entry.Photos = []model.ProgressPhoto{}
		}
		history = append(history, entry)
	}
	return history, nil
}

// FindPrevious 返回当前周之前最多 limit 条打卡，周次降序
func (r *CheckInRepository) FindPrevious(ctx context.Context, subjectID, challengeID string, period, limit int) ([]model.CheckIn, error) {
	var checkIns []model.CheckIn
	err := r.DB.WithContext(ctx).
		Where("subject_id = ? AND challenge_id = ? AND period_number < ?", subjectID, challengeID, period).
		Order("period_number DESC").Order("created_at DESC").
		Limit(limit).
		Find(&checkIns).Error
	if err != nil {
		return nil, fmt.Errorf("load previous check-ins: %w", err)
	}
	return checkIns, nil
}

func (r *CheckInRepository) FindByID(ctx context.Context, id string) (*model.CheckIn, error) {
	var checkIn model.CheckIn
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&checkIn).Error; err != nil {
		return nil, err
	}
	return &checkIn, nil
}

// FindLatestByNaturalKey 同一周多次提交时取最新一条
func (r *CheckInRepository) FindLatestByNaturalKey(ctx context.Context, subjectID, challengeID string, period int) (*model.CheckIn, error) {
	var checkIn model.CheckIn
	err := r.DB.WithContext(ctx).
		Where("subject_id = ? AND challenge_id = ? AND period_number = ?", subjectID, challengeID, period).
		Order("created_at DESC").
		First(&checkIn).Error
	if err != nil {
		return nil, err
	}
	return &checkIn, nil
}

func (r *CheckInRepository) FindAnalysisByID(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	var record model.AnalysisRecord
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *CheckInRepository) FindSubject(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *CheckInRepository) FindChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	var challenge model.Challenge
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&challenge).Error; err != nil {
		return nil, err
	}
	return &challenge, nil
}

// ListAnalysesBySubject 学员在该教练名下所有挑战的分析，最近更新的在前
func (r *CheckInRepository) ListAnalysesBySubject(ctx context.Context, subjectID, coachID string) ([]AnalysisHistoryItem, error) {
	items := []AnalysisHistoryItem{}
	err := r.DB.WithContext(ctx).
		Table("analysis_records AS a").
		Select("a.*, c.name AS challenge_name").
		Joins("JOIN challenges c ON c.id = a.challenge_id").
		Where("a.subject_id = ? AND c.coach_id = ?", subjectID, coachID).
		Order("a.updated_at DESC").
		Scan(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return items, nil
}

// IsNotFound gorm 未找到记录
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
