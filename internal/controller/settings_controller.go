package controller

import (
	"context"

	"lms_backend/internal/model"
	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SettingsController struct {
	SettingsService *service.SettingsService
}

func NewSettingsController(settingsService *service.SettingsService) *SettingsController {
	return &SettingsController{SettingsService: settingsService}
}

// Get godoc
// @Summary 平台评审设置
// @Tags 平台设置
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.PlatformSettings} "成功"
// @Router /api/admin/settings [get]
func (c *SettingsController) Get(ctx *gin.Context) {
	settings := c.SettingsService.Snapshot()
	util.Success(ctx, settings)
}

// Update godoc
// @Summary 更新平台评审设置
// @Description 自动审批开关、评分阈值、结构性要求、每日上限、角色容量与 SLA 目标
// @Tags 平台设置
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body model.PlatformSettings true "新设置"
// @Success 200 {object} util.Response{data=model.PlatformSettings} "成功"
// @Failure 400 {object} util.Response "参数错误"
// @Router /api/admin/settings [put]
func (c *SettingsController) Update(ctx *gin.Context) {
	var req model.PlatformSettings
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if req.ScoreThreshold < 0 || req.ScoreThreshold > 100 {
		util.BadRequest(ctx, "scoreThreshold 必须在 0-100 之间")
		return
	}

	if err := c.SettingsService.Update(&req); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, c.SettingsService.Snapshot())
}

// AutoApprovalStats godoc
// @Summary 当日自动审批用量
// @Tags 平台设置
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/admin/settings/auto-approval/stats [get]
func (c *SettingsController) AutoApprovalStats(ctx *gin.Context) {
	settings := c.SettingsService.Snapshot()
	count := c.SettingsService.DailyAutoApprovalCount(context.Background())
	util.Success(ctx, gin.H{
		"enabled": settings.AutoApprovalEnabled,
		"used":    count,
		"cap":     settings.DailyAutoApprovalCap,
	})
}
