package controller

import (
	"encoding/json"
	"errors"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/service"
	"fitcoach_backend/internal/util"
	"fitcoach_backend/pkg/logger"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const submitEndpoint = "POST /api/check-ins"

type CheckInController struct {
	CheckIns    *service.CheckInService
	Challenges  *service.ChallengeService
	Idempotency *service.IdempotencyService
}

func NewCheckInController(checkIns *service.CheckInService, challenges *service.ChallengeService, idempotency *service.IdempotencyService) *CheckInController {
	return &CheckInController{
		CheckIns:    checkIns,
		Challenges:  challenges,
		Idempotency: idempotency,
	}
}

// SubmitCheckIn godoc
// @Summary 提交周打卡
// @Description 保存打卡数据和进度照片，并生成 AI 分析。支持 Idempotency-Key 重放
// @Tags 打卡
// @Accept multipart/form-data
// @Produce json
// @Param challengeId formData string true "挑战ID"
// @Param weekNumber formData int true "第几周"
// @Param weight formData number false "体重(kg)"
// @Param measurements formData string false "围度 JSON，如 {\"waist\":80}"
// @Param mood formData string false "心情"
// @Param sleepHours formData number false "睡眠时长"
// @Param energyLevel formData int false "精力 1-10"
// @Param notes formData string false "备注"
// @Param photos formData file false "进度照片，最多3张"
// @Param Idempotency-Key header string false "幂等键"
// @Success 201 {object} util.Response{data=service.SubmitResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 500 {object} util.Response
// @Security ApiKeyAuth
// @Router /check-ins [post]
func (c *CheckInController) SubmitCheckIn(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	input, err := c.bindSubmission(ctx, claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	if err := c.Challenges.EnsureParticipant(ctx.Request.Context(), input.ChallengeID, claims.UserID); err != nil {
		util.HandleError(ctx, err)
		return
	}

	key := strings.TrimSpace(ctx.GetHeader(util.IdempotencyKeyHeader))
	if key == "" || c.Idempotency == nil {
		result, err := c.CheckIns.Submit(ctx.Request.Context(), *input)
		if err != nil {
			util.HandleError(ctx, err)
			return
		}
		util.Created(ctx, result)
		return
	}

	canonical, err := input.Fingerprint()
	if err != nil {
		util.HandleError(ctx, util.NewValidation("Invalid form data"))
		return
	}
	requestHash := c.Idempotency.RequestHash(canonical)
	storageKey := c.Idempotency.StorageKey(claims.UserID, submitEndpoint, key)
	cached, err := c.Idempotency.Begin(ctx.Request.Context(), storageKey, requestHash)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if cached != nil {
		ctx.Header("Idempotent-Replayed", "true")
		util.Created(ctx, cached)
		return
	}

	result, err := c.CheckIns.Submit(ctx.Request.Context(), *input)
	if err != nil {
		if abortErr := c.Idempotency.Abort(ctx.Request.Context(), storageKey); abortErr != nil {
			logger.Log.Warn("Failed to release idempotency key", zap.Error(abortErr))
		}
		util.HandleError(ctx, err)
		return
	}

	if err := c.Idempotency.Complete(ctx.Request.Context(), storageKey, requestHash, result); err != nil {
		logger.Log.Warn("Failed to store idempotent response", zap.String("userId", claims.UserID), zap.Error(err))
	}
	util.Created(ctx, result)
}

// bindSubmission 解析 multipart 表单，字段格式错误直接返回校验错误
func (c *CheckInController) bindSubmission(ctx *gin.Context, userID string) (*service.SubmitCheckInInput, error) {
	maxBytes := c.CheckIns.Config.MaxPhotoBytes
	maxPhotos := c.CheckIns.Config.MaxPhotos

	form, err := ctx.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, util.NewValidation("Invalid form data")
	}

	input := &service.SubmitCheckInInput{
		SubjectID:   userID,
		ChallengeID: strings.TrimSpace(ctx.PostForm("challengeId")),
	}
	if input.ChallengeID == "" {
		return nil, util.NewValidation("Invalid challenge ID")
	}

	week, err := util.ParseOptionalInt(ctx.PostForm("weekNumber"))
	if err != nil || week == nil {
		return nil, util.NewValidation("Invalid week number")
	}
	input.PeriodNumber = *week

	if input.Metrics.Weight, err = util.ParseOptionalFloat(ctx.PostForm("weight")); err != nil {
		return nil, util.NewValidation("Invalid weight")
	}
	if raw := strings.TrimSpace(ctx.PostForm("measurements")); raw != "" {
		var m model.Measurements
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, util.NewValidation("Invalid measurements")
		}
		input.Metrics.Measurements = m
	}
	if input.Metrics.SleepHours, err = util.ParseOptionalFloat(ctx.PostForm("sleepHours")); err != nil {
		return nil, util.NewValidation("Invalid sleep hours")
	}
	if input.Metrics.EnergyLevel, err = util.ParseOptionalInt(ctx.PostForm("energyLevel")); err != nil {
		return nil, util.NewValidation("Invalid energy level")
	}
	input.Metrics.Mood = util.OptionalString(ctx.PostForm("mood"))
	input.Metrics.Notes = util.OptionalString(ctx.PostForm("notes"))

	if form == nil {
		return input, nil
	}
	files := form.File["photos"]
	if len(files) > maxPhotos {
		return nil, util.NewValidation(fmt.Sprintf("At most %d photos are allowed", maxPhotos))
	}
	for _, fh := range files {
		if fh.Size > maxBytes {
			return nil, util.NewValidation("File too large")
		}
		content, err := readUpload(fh, maxBytes)
		if err != nil {
			return nil, util.NewValidation("Invalid form data")
		}
		input.Photos = append(input.Photos, service.PhotoUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     content,
		})
	}
	return input, nil
}

func readUpload(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// 多读一个字节，超限交给 service 判断
	return io.ReadAll(io.LimitReader(f, maxBytes+1))
}

// GetCheckInHistory godoc
// @Summary 打卡历史
// @Description 当前用户在某挑战下的打卡，按周倒序，附带照片和分析
// @Tags 打卡
// @Produce json
// @Param challengeId path string true "挑战ID"
// @Success 200 {object} util.Response{data=[]repository.HistoryEntry}
// @Security ApiKeyAuth
// @Router /check-ins/history/{challengeId} [get]
func (c *CheckInController) GetCheckInHistory(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	history, err := c.CheckIns.GetHistory(ctx.Request.Context(), claims.UserID, ctx.Param("challengeId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, history)
}

// GetCheckInAnalysis godoc
// @Summary 打卡对应的 AI 分析
// @Tags 打卡
// @Produce json
// @Param checkInId path string true "打卡ID"
// @Success 200 {object} util.Response{data=model.AnalysisRecord}
// @Failure 404 {object} util.Response
// @Security ApiKeyAuth
// @Router /check-ins/analysis/{checkInId} [get]
func (c *CheckInController) GetCheckInAnalysis(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	record, err := c.CheckIns.GetAnalysisForCheckIn(ctx.Request.Context(), claims.UserID, ctx.Param("checkInId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, record)
}
