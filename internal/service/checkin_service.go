package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fitcoach_backend/internal/config"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/repository"
	"fitcoach_backend/internal/util"
	"fitcoach_backend/pkg/logger"
	"fitcoach_backend/pkg/monitoring"
	"fitcoach_backend/pkg/tracing"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Analyzer 生成结构化分析
type Analyzer interface {
	Analyze(ctx context.Context, reader AnalysisContextReader, cc CheckInContext) (*model.StructuredAnalysis, error)
}

// PhotoUpload 一张待上传的进度照片
type PhotoUpload struct {
	Filename    string
	ContentType string
	Content     []byte
}

type SubmitCheckInInput struct {
	SubjectID    string
	ChallengeID  string
	PeriodNumber int
	Metrics      model.CheckInMetrics
	Photos       []PhotoUpload
}

// Fingerprint 打卡请求的规范化表示，照片以文件名和内容摘要代替原始字节
func (in SubmitCheckInInput) Fingerprint() ([]byte, error) {
	type photoDigest struct {
		Filename string `json:"filename"`
		SHA256   string `json:"sha256"`
	}
	photos := make([]photoDigest, 0, len(in.Photos))
	for _, p := range in.Photos {
		sum := sha256.Sum256(p.Content)
		photos = append(photos, photoDigest{Filename: p.Filename, SHA256: hex.EncodeToString(sum[:])})
	}
	return json.Marshal(struct {
		ChallengeID  string               `json:"challengeId"`
		PeriodNumber int                  `json:"weekNumber"`
		Metrics      model.CheckInMetrics `json:"metrics"`
		Photos       []photoDigest        `json:"photos"`
	}{in.ChallengeID, in.PeriodNumber, in.Metrics, photos})
}

type SubmitResult struct {
	CheckIn  *model.CheckIn            `json:"checkIn"`
	Analysis *model.StructuredAnalysis `json:"analysis"`
}

type CheckInService struct {
	DB       *gorm.DB
	Repo     *repository.CheckInRepository
	Uploader BlobUploader
	Analyzer Analyzer
	Config   config.CheckInConfig

	now func() time.Time
}

func NewCheckInService(db *gorm.DB, repo *repository.CheckInRepository, uploader BlobUploader, analyzer Analyzer, cfg config.CheckInConfig) *CheckInService {
	if cfg.MaxPhotos <= 0 {
		cfg.MaxPhotos = util.MaxPhotosPerCheckIn
	}
	if cfg.MaxPhotoBytes <= 0 {
		cfg.MaxPhotoBytes = util.MaxPhotoBytes
	}
	return &CheckInService{
		DB:       db,
		Repo:     repo,
		Uploader: uploader,
		Analyzer: analyzer,
		Config:   cfg,
		now:      time.Now,
	}
}

// validate 校验输入并用嗅探到的类型覆盖客户端声明的 Content-Type
func (s *CheckInService) validate(in *SubmitCheckInInput) error {
	if in.SubjectID == "" {
		return util.NewAppError(util.KindUnauthorized, "No token provided", nil)
	}
	if in.ChallengeID == "" {
		return util.NewValidation("Invalid challenge ID")
	}
	if in.PeriodNumber < 1 {
		return util.NewValidation("Invalid week number")
	}

	m := in.Metrics
	if m.Weight != nil && !inRange(*m.Weight, 0, math.MaxFloat64) {
		return util.NewValidation("Invalid weight")
	}
	for _, v := range m.Measurements {
		if !inRange(v, 0, math.MaxFloat64) {
			return util.NewValidation("Invalid measurements")
		}
	}
	if m.SleepHours != nil && !inRange(*m.SleepHours, 0, 24) {
		return util.NewValidation("Invalid sleep hours")
	}
	if m.EnergyLevel != nil && (*m.EnergyLevel < 1 || *m.EnergyLevel > 10) {
		return util.NewValidation("Invalid energy level")
	}

	if len(in.Photos) > s.Config.MaxPhotos {
		return util.NewValidation(fmt.Sprintf("At most %d photos are allowed", s.Config.MaxPhotos))
	}
	for i := range in.Photos {
		p := &in.Photos[i]
		if len(p.Content) == 0 {
			return util.NewValidation("Empty photo upload")
		}
		if int64(len(p.Content)) > s.Config.MaxPhotoBytes {
			return util.NewValidation("File too large")
		}
		mimeType, err := util.ValidateMimeType(bytes.NewReader(p.Content), []string{util.MimeImage})
		if err != nil {
			return util.NewValidation("Only image files are allowed")
		}
		p.ContentType = mimeType
	}
	return nil
}

// inRange 要求 v 为有限值且落在 [lo, hi]，NaN 与 Inf 均视为越界
func inRange(v, lo, hi float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= lo && v <= hi
}

// Submit 在一个事务中保存打卡、上传照片、生成并保存分析，任一步失败整体回滚
func (s *CheckInService) Submit(ctx context.Context, in SubmitCheckInInput) (result *SubmitResult, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "checkin.submit")
	span.SetAttributes(
		attribute.String("checkin.challenge_id", in.ChallengeID),
		attribute.Int("checkin.week_number", in.PeriodNumber),
		attribute.Int("checkin.photos", len(in.Photos)),
	)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(util.KindOf(err))
		}
		monitoring.CheckInSubmissions.WithLabelValues(outcome).Inc()
		tracing.EndSpan(span, err)
	}()

	if err := s.validate(&in); err != nil {
		return nil, err
	}

	checkIn := &model.CheckIn{
		SubjectID:      in.SubjectID,
		ChallengeID:    in.ChallengeID,
		PeriodNumber:   in.PeriodNumber,
		CheckInMetrics: in.Metrics,
	}

	var (
		uploaded []string
		analysis *model.StructuredAnalysis
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)

		if err := repo.SaveCheckIn(ctx, checkIn); err != nil {
			return util.NewStorageFailure("Error submitting check-in", err)
		}

		used := make(map[string]bool, len(in.Photos))
		for _, p := range in.Photos {
			path := s.photoPath(in, p.Filename, used)
			url, err := s.Uploader.Upload(ctx, p.Content, p.ContentType, path)
			if err != nil {
				return storageFailure("Error uploading file", err)
			}
			uploaded = append(uploaded, path)

			photo := &model.ProgressPhoto{
				SubjectID:    in.SubjectID,
				ChallengeID:  in.ChallengeID,
				PeriodNumber: in.PeriodNumber,
				PhotoURL:     url,
				ObjectKey:    path,
			}
			if err := repo.SavePhoto(ctx, photo); err != nil {
				return util.NewStorageFailure("Error submitting check-in", err)
			}
		}

		a, err := s.Analyzer.Analyze(ctx, repo, ContextFromCheckIn(checkIn))
		if err != nil {
			return err
		}

		record := &model.AnalysisRecord{
			SubjectID:    in.SubjectID,
			ChallengeID:  in.ChallengeID,
			PeriodNumber: in.PeriodNumber,
		}
		record.Apply(*a)
		if err := repo.UpsertAnalysis(ctx, record); err != nil {
			return util.NewStorageFailure("Error submitting check-in", err)
		}

		analysis = a
		return nil
	})
	if err != nil {
		s.discardUploads(ctx, uploaded)
		var appErr *util.AppError
		if !errors.As(err, &appErr) {
			err = util.NewInternal("Error submitting check-in", err)
		}
		logger.Log.Warn("Check-in submission rolled back",
			zap.String("subjectId", in.SubjectID),
			zap.String("challengeId", in.ChallengeID),
			zap.Int("weekNumber", in.PeriodNumber),
			zap.Error(err))
		return nil, err
	}

	logger.Log.Info("Check-in submitted",
		zap.String("checkInId", checkIn.ID),
		zap.String("subjectId", in.SubjectID),
		zap.String("challengeId", in.ChallengeID),
		zap.Int("weekNumber", in.PeriodNumber),
		zap.Int("photos", len(uploaded)))

	return &SubmitResult{CheckIn: checkIn, Analysis: analysis}, nil
}

// photoPath progress-photos/{subject}/{challenge}/week-{n}/{毫秒时间戳}-{文件名}
func (s *CheckInService) photoPath(in SubmitCheckInInput, filename string, used map[string]bool) string {
	name := util.SanitizeFilename(filename)
	millis := s.now().UnixMilli()
	for {
		path := fmt.Sprintf("progress-photos/%s/%s/week-%d/%d-%s", in.SubjectID, in.ChallengeID, in.PeriodNumber, millis, name)
		if !used[path] {
			used[path] = true
			return path
		}
		millis++
	}
}

// discardUploads 回滚后尽力删除本次已上传的对象
func (s *CheckInService) discardUploads(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	cleanupCtx := context.WithoutCancel(ctx)
	for _, path := range paths {
		if err := s.Uploader.Delete(cleanupCtx, path); err != nil {
			logger.Log.Warn("Failed to delete orphaned progress photo",
				zap.String("path", path),
				zap.Error(err))
		}
	}
}

func storageFailure(message string, err error) error {
	var appErr *util.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return util.NewStorageFailure(message, err)
}

// Regenerate 对分析对应周最新的一次打卡重新生成分析并原地覆盖
// 调用方负责校验教练是否拥有该挑战
func (s *CheckInService) Regenerate(ctx context.Context, analysisID string) (record *model.AnalysisRecord, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "analysis.regenerate")
	defer func() { tracing.EndSpan(span, err) }()

	existing, err := s.GetAnalysisByID(ctx, analysisID)
	if err != nil {
		return nil, err
	}

	checkIn, err := s.Repo.FindLatestByNaturalKey(ctx, existing.SubjectID, existing.ChallengeID, existing.PeriodNumber)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NewNotFound("Check-in data not found")
		}
		return nil, util.NewInternal("Error regenerating analysis", err)
	}

	if _, err := s.analyzeAndStore(ctx, checkIn); err != nil {
		return nil, err
	}

	updated, err := s.Repo.GetAnalysis(ctx, existing.SubjectID, existing.ChallengeID, existing.PeriodNumber)
	if err != nil {
		return nil, util.NewInternal("Error regenerating analysis", err)
	}
	logger.Log.Info("Analysis regenerated", zap.String("analysisId", updated.ID))
	return updated, nil
}

// AnalyzeCheckIn 为已有打卡生成分析并保存
func (s *CheckInService) AnalyzeCheckIn(ctx context.Context, checkInID string) (analysis *model.StructuredAnalysis, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "analysis.analyze_checkin")
	defer func() { tracing.EndSpan(span, err) }()

	checkIn, err := s.GetCheckIn(ctx, checkInID)
	if err != nil {
		return nil, err
	}
	return s.analyzeAndStore(ctx, checkIn)
}

func (s *CheckInService) analyzeAndStore(ctx context.Context, checkIn *model.CheckIn) (*model.StructuredAnalysis, error) {
	a, err := s.Analyzer.Analyze(ctx, s.Repo, ContextFromCheckIn(checkIn))
	if err != nil {
		return nil, err
	}

	record := &model.AnalysisRecord{
		SubjectID:    checkIn.SubjectID,
		ChallengeID:  checkIn.ChallengeID,
		PeriodNumber: checkIn.PeriodNumber,
	}
	record.Apply(*a)
	if err := s.Repo.UpsertAnalysis(ctx, record); err != nil {
		return nil, util.NewStorageFailure("Error saving analysis", err)
	}
	return a, nil
}

func (s *CheckInService) GetCheckIn(ctx context.Context, id string) (*model.CheckIn, error) {
	checkIn, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrCheckInNotFound
		}
		return nil, util.NewInternal("Error retrieving check-in", err)
	}
	return checkIn, nil
}

func (s *CheckInService) GetAnalysisByID(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	record, err := s.Repo.FindAnalysisByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrAnalysisNotFound
		}
		return nil, util.NewInternal("Error retrieving analysis", err)
	}
	return record, nil
}

func (s *CheckInService) GetHistory(ctx context.Context, subjectID, challengeID string) ([]repository.HistoryEntry, error) {
	history, err := s.Repo.GetHistory(ctx, subjectID, challengeID)
	if err != nil {
		return nil, util.NewInternal("Error retrieving check-in history", err)
	}
	return history, nil
}

// GetAnalysisForCheckIn 只允许查看自己的打卡分析，他人的打卡按不存在处理
func (s *CheckInService) GetAnalysisForCheckIn(ctx context.Context, subjectID, checkInID string) (*model.AnalysisRecord, error) {
	checkIn, err := s.GetCheckIn(ctx, checkInID)
	if err != nil {
		return nil, err
	}
	if checkIn.SubjectID != subjectID {
		return nil, util.ErrCheckInNotFound
	}

	record, err := s.Repo.GetAnalysis(ctx, checkIn.SubjectID, checkIn.ChallengeID, checkIn.PeriodNumber)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrAnalysisNotFound
		}
		return nil, util.NewInternal("Error retrieving analysis", err)
	}
	return record, nil
}

func (s *CheckInService) ListClientAnalyses(ctx context.Context, clientID, coachID string) ([]repository.AnalysisHistoryItem, error) {
	items, err := s.Repo.ListAnalysesBySubject(ctx, clientID, coachID)
	if err != nil {
		return nil, util.NewInternal("Error retrieving analysis history", err)
	}
	return items, nil
}
