package controller

import (
	"fitcoach_backend/internal/service"
	"fitcoach_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	UserService *service.UserService
}

func NewUserController(userService *service.UserService) *UserController {
	return &UserController{UserService: userService}
}

type UpdateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email" binding:"omitempty,email"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

// GetProfile godoc
// @Summary 获取个人资料
// @Tags 用户
// @Produce json
// @Success 200 {object} util.Response{data=model.User}
// @Security ApiKeyAuth
// @Router /users/profile [get]
func (c *UserController) GetProfile(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	user, err := c.UserService.GetProfile(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UpdateProfile godoc
// @Summary 修改个人资料
// @Tags 用户
// @Accept json
// @Produce json
// @Param body body UpdateProfileRequest true "姓名/邮箱"
// @Success 200 {object} util.Response{data=model.User}
// @Failure 409 {object} util.Response "邮箱已被占用"
// @Security ApiKeyAuth
// @Router /users/profile [patch]
func (c *UserController) UpdateProfile(ctx *gin.Context) {
	var req UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	user, err := c.UserService.UpdateProfile(ctx.Request.Context(), claims.UserID, service.ProfilePatch{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// ChangePassword godoc
// @Summary 修改密码
// @Tags 用户
// @Accept json
// @Produce json
// @Param body body ChangePasswordRequest true "当前密码和新密码"
// @Success 200 {object} util.Response
// @Failure 401 {object} util.Response "当前密码错误"
// @Security ApiKeyAuth
// @Router /users/change-password [post]
func (c *UserController) ChangePassword(ctx *gin.Context) {
	var req ChangePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if err := c.UserService.ChangePassword(ctx.Request.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Message(ctx, http.StatusOK, "Password updated successfully")
}

// GetClientProgress godoc
// @Summary 学员进度
// @Description 教练查看学员在自己挑战中的打卡、照片和分析
// @Tags 用户
// @Produce json
// @Param id path string true "学员ID"
// @Success 200 {object} util.Response{data=service.ClientProgress}
// @Failure 404 {object} util.Response
// @Security ApiKeyAuth
// @Router /users/clients/{id}/progress [get]
func (c *UserController) GetClientProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	progress, err := c.UserService.ClientProgress(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}
