package controller

import (
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/service"
	"fitcoach_backend/internal/util"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type ChallengeController struct {
	ChallengeService *service.ChallengeService
}

func NewChallengeController(challengeService *service.ChallengeService) *ChallengeController {
	return &ChallengeController{ChallengeService: challengeService}
}

type CreateChallengeRequest struct {
	Name          string    `json:"name" binding:"required"`
	Description   string    `json:"description"`
	DurationWeeks int       `json:"durationWeeks" binding:"required,min=1"`
	StartDate     time.Time `json:"startDate" binding:"required"`
	EndDate       time.Time `json:"endDate" binding:"required"`
}

// UpdateChallengeRequest 仅允许修改以下字段
type UpdateChallengeRequest struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	StartDate   *time.Time             `json:"startDate"`
	EndDate     *time.Time             `json:"endDate"`
	Status      *model.ChallengeStatus `json:"status"`
}

// CreateChallenge godoc
// @Summary 创建挑战
// @Description 教练创建挑战，初始状态为 draft
// @Tags 挑战
// @Accept json
// @Produce json
// @Param body body CreateChallengeRequest true "挑战信息"
// @Success 201 {object} util.Response{data=model.Challenge}
// @Failure 400 {object} util.Response
// @Security ApiKeyAuth
// @Router /challenges [post]
func (c *ChallengeController) CreateChallenge(ctx *gin.Context) {
	var req CreateChallengeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	challenge, err := c.ChallengeService.Create(ctx.Request.Context(), claims.UserID, service.CreateChallengeInput{
		Name:          req.Name,
		Description:   req.Description,
		DurationWeeks: req.DurationWeeks,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, challenge)
}

// GetChallenges godoc
// @Summary 挑战列表
// @Description 教练返回自己创建的挑战，学员返回已加入的挑战
// @Tags 挑战
// @Produce json
// @Success 200 {object} util.Response{data=[]model.Challenge}
// @Security ApiKeyAuth
// @Router /challenges [get]
func (c *ChallengeController) GetChallenges(ctx *gin.Context) {
	challenges, err := c.ChallengeService.List(ctx.Request.Context(), util.GetUserFromContext(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, challenges)
}

// GetChallenge godoc
// @Summary 挑战详情
// @Tags 挑战
// @Produce json
// @Param id path string true "挑战ID"
// @Success 200 {object} util.Response{data=model.Challenge}
// @Failure 404 {object} util.Response
// @Security ApiKeyAuth
// @Router /challenges/{id} [get]
func (c *ChallengeController) GetChallenge(ctx *gin.Context) {
	challenge, err := c.ChallengeService.Get(ctx.Request.Context(), util.GetUserFromContext(ctx), ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, challenge)
}

// JoinChallenge godoc
// @Summary 加入挑战
// @Tags 挑战
// @Produce json
// @Param id path string true "挑战ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response "挑战不存在或未开始"
// @Failure 409 {object} util.Response "已加入"
// @Security ApiKeyAuth
// @Router /challenges/{id}/join [post]
func (c *ChallengeController) JoinChallenge(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if err := c.ChallengeService.Join(ctx.Request.Context(), ctx.Param("id"), claims.UserID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Message(ctx, http.StatusOK, "Successfully joined the challenge")
}

// UpdateChallenge godoc
// @Summary 修改挑战
// @Tags 挑战
// @Accept json
// @Produce json
// @Param id path string true "挑战ID"
// @Param body body UpdateChallengeRequest true "修改字段"
// @Success 200 {object} util.Response{data=model.Challenge}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Security ApiKeyAuth
// @Router /challenges/{id} [patch]
func (c *ChallengeController) UpdateChallenge(ctx *gin.Context) {
	var req UpdateChallengeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	challenge, err := c.ChallengeService.Update(ctx.Request.Context(), ctx.Param("id"), claims.UserID, service.ChallengePatch{
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Status:      req.Status,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, challenge)
}

// DeleteChallenge godoc
// @Summary 删除挑战
// @Description 级联删除参与者、打卡、照片和分析
// @Tags 挑战
// @Produce json
// @Param id path string true "挑战ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Security ApiKeyAuth
// @Router /challenges/{id} [delete]
func (c *ChallengeController) DeleteChallenge(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if err := c.ChallengeService.Delete(ctx.Request.Context(), ctx.Param("id"), claims.UserID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Message(ctx, http.StatusOK, "Challenge deleted successfully")
}

// GetParticipants godoc
// @Summary 挑战参与者
// @Tags 挑战
// @Produce json
// @Param id path string true "挑战ID"
// @Success 200 {object} util.Response{data=[]repository.ParticipantSummary}
// @Security ApiKeyAuth
// @Router /challenges/{id}/participants [get]
func (c *ChallengeController) GetParticipants(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	participants, err := c.ChallengeService.Participants(ctx.Request.Context(), ctx.Param("id"), claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, participants)
}
