package controller

import (
	"errors"
	"fitcoach_backend/internal/service"
	"fitcoach_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AIController 教练侧的 AI 分析接口
type AIController struct {
	CheckIns   *service.CheckInService
	Challenges *service.ChallengeService
}

func NewAIController(checkIns *service.CheckInService, challenges *service.ChallengeService) *AIController {
	return &AIController{CheckIns: checkIns, Challenges: challenges}
}

// AnalyzeCheckIn godoc
// @Summary 分析学员打卡
// @Description 对教练名下挑战中的打卡重新生成 AI 分析并保存
// @Tags AI
// @Produce json
// @Param checkInId path string true "打卡ID"
// @Success 200 {object} util.Response{data=model.StructuredAnalysis}
// @Failure 404 {object} util.Response
// @Failure 500 {object} util.Response
// @Security ApiKeyAuth
// @Router /ai/analyze/{checkInId} [post]
func (c *AIController) AnalyzeCheckIn(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	checkIn, err := c.CheckIns.GetCheckIn(ctx.Request.Context(), ctx.Param("checkInId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	// 不属于该教练的打卡按不存在处理
	if _, err := c.Challenges.EnsureCoach(ctx.Request.Context(), checkIn.ChallengeID, claims.UserID); err != nil {
		if errors.Is(err, util.ErrChallengeNotFound) {
			err = util.ErrCheckInNotFound
		}
		util.HandleError(ctx, err)
		return
	}

	analysis, err := c.CheckIns.AnalyzeCheckIn(ctx.Request.Context(), checkIn.ID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, analysis)
}

// GetAnalysisHistory godoc
// @Summary 学员的分析历史
// @Tags AI
// @Produce json
// @Param clientId path string true "学员ID"
// @Success 200 {object} util.Response{data=[]repository.AnalysisHistoryItem}
// @Failure 404 {object} util.Response
// @Security ApiKeyAuth
// @Router /ai/history/{clientId} [get]
func (c *AIController) GetAnalysisHistory(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	clientID := ctx.Param("clientId")

	if err := c.Challenges.EnsureClientOfCoach(ctx.Request.Context(), claims.UserID, clientID); err != nil {
		util.HandleError(ctx, err)
		return
	}

	items, err := c.CheckIns.ListClientAnalyses(ctx.Request.Context(), clientID, claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, items)
}

// RegenerateAnalysis godoc
// @Summary 重新生成分析
// @Description 覆盖已有分析记录，保留记录ID
// @Tags AI
// @Produce json
// @Param analysisId path string true "分析ID"
// @Success 200 {object} util.Response{data=model.AnalysisRecord}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 500 {object} util.Response
// @Security ApiKeyAuth
// @Router /ai/regenerate/{analysisId} [post]
func (c *AIController) RegenerateAnalysis(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	existing, err := c.CheckIns.GetAnalysisByID(ctx.Request.Context(), ctx.Param("analysisId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	if err := c.Challenges.EnsureOwnedBy(ctx.Request.Context(), existing.ChallengeID, claims.UserID); err != nil {
		util.HandleError(ctx, err)
		return
	}

	record, err := c.CheckIns.Regenerate(ctx.Request.Context(), existing.ID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, record)
}
