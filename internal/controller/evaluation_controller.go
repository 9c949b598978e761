package controller

import (
	"errors"
	"strconv"

	"lms_backend/internal/model"
	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type EvaluationController struct {
	EvaluationService *service.EvaluationService
}

func NewEvaluationController(evaluationService *service.EvaluationService) *EvaluationController {
	return &EvaluationController{EvaluationService: evaluationService}
}

type SubmitCourseRequest struct {
	CourseID uint `json:"courseId" binding:"required"`
}

// Submit godoc
// @Summary 提交课程评估
// @Description 课程进入评估流水线：后台评分完成后自动审批或转入人工审核
// @Tags 课程评估
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body SubmitCourseRequest true "课程 ID"
// @Success 201 {object} util.Response{data=model.CourseEvaluation} "已受理，状态为 processing"
// @Failure 400 {object} util.Response "课程状态不允许提交"
// @Failure 403 {object} util.Response "只有课程讲师可提交"
// @Failure 404 {object} util.Response "课程不存在"
// @Failure 409 {object} util.Response "已有在途评估"
// @Router /api/evaluations [post]
func (c *EvaluationController) Submit(ctx *gin.Context) {
	var req SubmitCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	ev, err := c.EvaluationService.Submit(req.CourseID, claims)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrCourseNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrCourseNotSubmittable):
			util.BadRequest(ctx, "当前课程状态不允许提交评估")
		case errors.Is(err, util.ErrDuplicateSubmission):
			util.Conflict(ctx, "该课程已有在途评估，请等待其结束后再提交")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, ev)
}

// Get godoc
// @Summary 查询评估记录
// @Tags 课程评估
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "评估 ID"
// @Success 200 {object} util.Response{data=model.CourseEvaluation} "成功"
// @Failure 404 {object} util.Response "评估不存在"
// @Router /api/evaluations/{id} [get]
func (c *EvaluationController) Get(ctx *gin.Context) {
	ev, err := c.EvaluationService.Get(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrEvaluationNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	// 讲师只能查看自己的评估
	claims := util.GetUserFromContext(ctx)
	if claims.Role != model.Admin && ev.SubmitterID != claims.UserID {
		util.Forbidden(ctx)
		return
	}
	util.Success(ctx, ev)
}

// LatestForCourse godoc
// @Summary 课程最近一次评估
// @Description 返回课程最近一次提交尝试（含终态记录）
// @Tags 课程评估
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "课程 ID"
// @Success 200 {object} util.Response{data=model.CourseEvaluation} "成功"
// @Failure 403 {object} util.Response "只能查询自己的课程"
// @Failure 404 {object} util.Response "课程或评估不存在"
// @Router /api/courses/{id}/evaluation [get]
func (c *EvaluationController) LatestForCourse(ctx *gin.Context) {
	courseID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	claims := util.GetUserFromContext(ctx)
	ev, err := c.EvaluationService.GetLatestForCourse(uint(courseID), claims)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrCourseNotFound), errors.Is(err, util.ErrEvaluationNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, ev)
}

// ListPending godoc
// @Summary 待人工审核的评估队列
// @Tags 课程评估
// @Produce  json
// @Security BearerAuth
// @Param   page query int false "页码" default(1)
// @Param   limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/evaluations/pending [get]
func (c *EvaluationController) ListPending(ctx *gin.Context) {
	page, limit := pagination(ctx)
	evs, total, err := c.EvaluationService.ListPending(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: evs, Total: total, Page: page, Limit: limit})
}

// List godoc
// @Summary 评估列表（可按状态过滤）
// @Tags 课程评估
// @Produce  json
// @Security BearerAuth
// @Param   status query string false "评估状态"
// @Param   page query int false "页码" default(1)
// @Param   limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/evaluations [get]
func (c *EvaluationController) List(ctx *gin.Context) {
	page, limit := pagination(ctx)
	status := model.EvaluationStatus(ctx.Query("status"))
	evs, total, err := c.EvaluationService.List(status, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: evs, Total: total, Page: page, Limit: limit})
}

// AdminReview godoc
// @Summary 管理员复核评估
// @Description 对处于 admin_review 状态的评估直接作出通过/拒绝/退回修订的决定
// @Tags 课程评估
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "评估 ID"
// @Param   body body service.AdminReviewRequest true "复核决定"
// @Success 200 {object} util.Response{data=model.CourseEvaluation} "成功"
// @Failure 400 {object} util.Response "决定不合法或评估不在待复核状态"
// @Failure 404 {object} util.Response "评估不存在"
// @Router /api/admin/evaluations/{id}/review [post]
func (c *EvaluationController) AdminReview(ctx *gin.Context) {
	var req service.AdminReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	ev, err := c.EvaluationService.SubmitAdminReview(ctx.Param("id"), claims, req)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrEvaluationNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrEvaluationNotReviewable):
			util.BadRequest(ctx, "该评估不在待人工复核状态")
		default:
			util.BadRequest(ctx, err.Error())
		}
		return
	}
	util.Success(ctx, ev)
}

type BulkApproveRequest struct {
	EvaluationIDs []string `json:"evaluationIds" binding:"required,min=1"`
	Feedback      string   `json:"feedback"`
}

// BulkApprove godoc
// @Summary 批量通过评估
// @Description 逐条独立处理，单条失败不影响其余
// @Tags 课程评估
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body BulkApproveRequest true "评估 ID 列表"
// @Success 200 {object} util.Response{data=service.BulkApproveResult} "成功"
// @Router /api/admin/evaluations/bulk-approve [post]
func (c *EvaluationController) BulkApprove(ctx *gin.Context) {
	var req BulkApproveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	result := c.EvaluationService.BulkApprove(req.EvaluationIDs, claims, req.Feedback)
	util.Success(ctx, result)
}

// Retry godoc
// @Summary 重试评估
// @Description failed 终态或长时间无进展的 processing 记录可重试，产生一次新的提交尝试
// @Tags 课程评估
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "评估 ID"
// @Success 201 {object} util.Response{data=model.CourseEvaluation} "新评估已受理"
// @Failure 400 {object} util.Response "评估当前不可重试"
// @Failure 404 {object} util.Response "评估不存在"
// @Failure 409 {object} util.Response "已有在途评估"
// @Router /api/admin/evaluations/{id}/retry [post]
func (c *EvaluationController) Retry(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	ev, err := c.EvaluationService.Retry(ctx.Param("id"), claims)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrEvaluationNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrEvaluationNotRetryable):
			util.BadRequest(ctx, "该评估当前不可重试")
		case errors.Is(err, util.ErrDuplicateSubmission):
			util.Conflict(ctx, "该课程已有在途评估")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, ev)
}

// Stats godoc
// @Summary 评估流水线概览
// @Tags 课程评估
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/admin/evaluations/stats [get]
func (c *EvaluationController) Stats(ctx *gin.Context) {
	stats, err := c.EvaluationService.Stats()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

func pagination(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
