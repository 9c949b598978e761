package controller

import (
	"errors"
	"strconv"

	"lms_backend/internal/model"
	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ApprovalController struct {
	ApprovalService   *service.ApprovalService
	AssignmentService *service.AssignmentService
}

func NewApprovalController(approvalService *service.ApprovalService, assignmentService *service.AssignmentService) *ApprovalController {
	return &ApprovalController{
		ApprovalService:   approvalService,
		AssignmentService: assignmentService,
	}
}

// List godoc
// @Summary 审批记录列表
// @Tags 课程审批
// @Produce  json
// @Security BearerAuth
// @Param   status query string false "审批状态"
// @Param   priority query string false "优先级"
// @Param   page query int false "页码" default(1)
// @Param   limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/approvals [get]
func (c *ApprovalController) List(ctx *gin.Context) {
	page, limit := pagination(ctx)
	status := model.ApprovalStatus(ctx.Query("status"))
	priority := model.ApprovalPriority(ctx.Query("priority"))

	items, total, err := c.ApprovalService.List(status, priority, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: items, Total: total, Page: page, Limit: limit})
}

// Get godoc
// @Summary 查询审批记录
// @Tags 课程审批
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "记录 ID"
// @Success 200 {object} util.Response{data=model.CourseApproval} "成功"
// @Failure 404 {object} util.Response "记录不存在"
// @Router /api/admin/approvals/{id} [get]
func (c *ApprovalController) Get(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid approval id")
		return
	}

	a, err := c.ApprovalService.Get(uint(id))
	if err != nil {
		if errors.Is(err, util.ErrApprovalNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, a)
}

// ListMine godoc
// @Summary 分配给我的审批任务
// @Tags 课程审批
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.CourseApproval} "成功"
// @Router /api/approvals/assigned [get]
func (c *ApprovalController) ListMine(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	items, err := c.ApprovalService.ListAssignedTo(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, items)
}

// SubmitReview godoc
// @Summary 提交评审意见
// @Description 审核人提交 (角色, 评分, 问题清单)；满足条件时自动推进阶段并可能触发自动裁决
// @Tags 课程审批
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "记录 ID"
// @Param   body body service.ReviewRequest true "评审内容"
// @Success 200 {object} util.Response{data=model.CourseApproval} "成功"
// @Failure 403 {object} util.Response "未被分配到该审批"
// @Failure 404 {object} util.Response "记录不存在"
// @Failure 409 {object} util.Response "记录已裁决"
// @Router /api/approvals/{id}/reviews [post]
func (c *ApprovalController) SubmitReview(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid approval id")
		return
	}

	var req service.ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	a, err := c.ApprovalService.SubmitReview(uint(id), claims, req)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrApprovalNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrReviewerNotAssigned):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrAlreadyDecided):
			util.Conflict(ctx, "该审批已裁决，不可再提交评审")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, a)
}

type AssignReviewerRequest struct {
	Role       string `json:"role" binding:"required"`
	ReviewerID uint   `json:"reviewerId"` // 为空时由引擎自动挑选
}

// AssignReviewer godoc
// @Summary 分配审核人
// @Description reviewerId 为空时按工作量与专长自动挑选；指定时为管理员手工指派（可覆盖已有槽位）
// @Tags 课程审批
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "记录 ID"
// @Param   body body AssignReviewerRequest true "分配请求"
// @Success 200 {object} util.Response{data=model.ReviewerAssignment} "成功"
// @Failure 400 {object} util.Response "角色不合法"
// @Failure 404 {object} util.Response "记录或用户不存在"
// @Failure 409 {object} util.Response "无可用审核人或审核人已占其他槽位"
// @Router /api/admin/approvals/{id}/assign [post]
func (c *ApprovalController) AssignReviewer(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid approval id")
		return
	}

	var req AssignReviewerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	role := model.ReviewerRole(req.Role)

	var assignment *model.ReviewerAssignment
	if req.ReviewerID == 0 {
		assignment, err = c.AssignmentService.AssignRole(uint(id), role, claims.Name)
	} else {
		assignment, err = c.AssignmentService.AssignSpecific(uint(id), role, req.ReviewerID, claims.Name)
	}
	if err != nil {
		switch {
		case errors.Is(err, util.ErrInvalidReviewerRole):
			util.BadRequest(ctx, "审核角色不合法")
		case errors.Is(err, util.ErrApprovalNotFound), errors.Is(err, util.ErrUserNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrNoAvailableReviewer):
			util.Conflict(ctx, "该角色当前无可用审核人")
		case errors.Is(err, util.ErrReviewerAlreadyInTeam):
			util.Conflict(ctx, "该审核人已在此审批中担任其他角色")
		case errors.Is(err, util.ErrAlreadyDecided):
			util.Conflict(ctx, "该审批已裁决")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, assignment)
}

// Decide godoc
// @Summary 最终裁决
// @Description 管理员对悬置的审批作出 approved / rejected 终决；拒绝时自动生成重新提交指引
// @Tags 课程审批
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "记录 ID"
// @Param   body body service.FinalDecisionRequest true "裁决"
// @Success 200 {object} util.Response{data=model.CourseApproval} "成功"
// @Failure 400 {object} util.Response "裁决不合法"
// @Failure 404 {object} util.Response "记录不存在"
// @Failure 409 {object} util.Response "记录已裁决"
// @Router /api/admin/approvals/{id}/decision [post]
func (c *ApprovalController) Decide(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid approval id")
		return
	}

	var req service.FinalDecisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	a, err := c.ApprovalService.MakeFinalDecision(uint(id), claims, req)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrApprovalNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrAlreadyDecided):
			util.Conflict(ctx, "该审批已裁决")
		default:
			util.BadRequest(ctx, err.Error())
		}
		return
	}
	util.Success(ctx, a)
}

// Dashboard godoc
// @Summary 审批队列概览
// @Description 按状态、优先级与 SLA 桶统计
// @Tags 课程审批
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.ApprovalDashboard} "成功"
// @Router /api/admin/approvals/dashboard [get]
func (c *ApprovalController) Dashboard(ctx *gin.Context) {
	dashboard, err := c.ApprovalService.GetDashboard()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, dashboard)
}
