package service

import (
	"context"
	"fmt"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// evaluationStore 评估记录的持久化接口，由 repository 层实现
type evaluationStore interface {
	FindByID(id string) (*model.CourseEvaluation, error)
	CreateGuarded(ev *model.CourseEvaluation, markCourse func(tx *gorm.DB) error) error
	UpdateLocked(id string, fn func(tx *gorm.DB, ev *model.CourseEvaluation) error) error
	ListByStatus(status model.EvaluationStatus, page, limit int) ([]model.CourseEvaluation, int64, error)
	FindLatestByCourse(courseID uint) (*model.CourseEvaluation, error)
	CountByStatus() (map[model.EvaluationStatus]int64, error)
}

// courseStore 课程状态回写接口
type courseStore interface {
	FindByID(id uint) (*model.Course, error)
	UpdateStatus(courseID uint, status model.CourseStatus) error
	MarkPublished(courseID uint, at time.Time) error
}

// EvaluationService 课程提交到终态的评估编排器：
// 提交建档、后台评分派发、自动审批判定、人工复核与批量操作。
type EvaluationService struct {
	Repo      evaluationStore
	Courses   courseStore
	Scoring   *ScoringService
	Approvals *ApprovalService
	Settings  *SettingsService
	Notifier  *NotificationService

	queue *ScoringQueue
}

func NewEvaluationService(
	repo evaluationStore,
	courses courseStore,
	scoring *ScoringService,
	approvals *ApprovalService,
	settings *SettingsService,
	notifier *NotificationService,
	workers, queueSize int,
) *EvaluationService {
	s := &EvaluationService{
		Repo:      repo,
		Courses:   courses,
		Scoring:   scoring,
		Approvals: approvals,
		Settings:  settings,
		Notifier:  notifier,
	}
	s.queue = NewScoringQueue(workers, queueSize, s.processScoringJob)
	return s
}

// StartWorkers 启动后台评分 worker，随应用生命周期启停
func (s *EvaluationService) StartWorkers() {
	s.queue.Run()
}

func (s *EvaluationService) Stop() {
	s.queue.Stop()
}

// courseSubmittable 可发起提交的课程状态。
// 已上架课程（approved）提交的是内容更新，同样走完整流水线。
func courseSubmittable(c *model.Course) bool {
	switch c.Status {
	case model.CourseDraft, model.CourseNeedsRevision, model.CourseRejected, model.CourseApproved:
		return true
	default:
		return false
	}
}

// Submit 提交课程进入评估流水线：
// 建档与重复提交检查在同一事务内完成，评分任务入队后立即返回 processing 状态记录。
func (s *EvaluationService) Submit(courseID uint, submitter *util.Claims) (*model.CourseEvaluation, error) {
	course, err := s.Courses.FindByID(courseID)
	if err != nil {
		return nil, err
	}
	if submitter.Role != model.Admin && course.InstructorID != submitter.UserID {
		return nil, util.ErrPermissionDenied
	}
	if !courseSubmittable(course) {
		return nil, util.ErrCourseNotSubmittable
	}

	now := time.Now()
	ev := &model.CourseEvaluation{
		CourseID:      courseID,
		SubmitterID:   submitter.UserID,
		SubmitterName: submitter.Name,
		SubmitterRole: submitter.Role,
		SubmittedAt:   now,
		Status:        model.EvaluationProcessing,
		AdminReview:   model.AdminReview{Decision: model.DecisionPending},
	}
	ev.AppendLog("submission", "课程提交进入评估流水线", nil)

	err = s.Repo.CreateGuarded(ev, func(tx *gorm.DB) error {
		return repository.MarkCourseSubmitted(tx, courseID, now)
	})
	if err != nil {
		return nil, err
	}

	monitoring.EvaluationsTotal.WithLabelValues("submitted").Inc()

	if err := s.queue.Enqueue(ScoringJob{EvaluationID: ev.ID}); err != nil {
		// 队列满：这次尝试立即失败，课程退回待修订，不留悬挂的 processing 记录
		logger.Log.Warn("scoring queue full, failing submission",
			zap.String("evaluationId", ev.ID), zap.Error(err))
		s.markFailed(ev.ID, courseID, "评分队列已满，请稍后重试", err)
		return s.Repo.FindByID(ev.ID)
	}

	return ev, nil
}

// processScoringJob 评分 worker 的任务入口
func (s *EvaluationService) processScoringJob(job ScoringJob) {
	ev, err := s.Repo.FindByID(job.EvaluationID)
	if err != nil {
		logger.Log.Error("scoring job: evaluation not found",
			zap.String("evaluationId", job.EvaluationID), zap.Error(err))
		return
	}
	if ev.Status != model.EvaluationProcessing {
		// 任务重放或管理员已介入，跳过
		logger.Log.Warn("scoring job skipped, evaluation not in processing",
			zap.String("evaluationId", ev.ID), zap.String("status", string(ev.Status)))
		return
	}
	if ev.Course == nil {
		s.markFailed(ev.ID, ev.CourseID, "课程记录缺失", nil)
		return
	}

	start := time.Now()
	analysis, err := s.Scoring.EvaluateCourse(context.Background(), ev.Course)
	monitoring.ScoringDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Log.Error("course scoring failed",
			zap.String("evaluationId", ev.ID),
			zap.Uint("courseId", ev.CourseID),
			zap.Error(err))
		s.markFailed(ev.ID, ev.CourseID, "内容评分失败", err)
		return
	}

	updateErr := s.Repo.UpdateLocked(ev.ID, func(tx *gorm.DB, e *model.CourseEvaluation) error {
		e.AIAnalysis = analysis
		e.Status = model.EvaluationAICompleted
		e.AppendLog("scoring", fmt.Sprintf("评分完成，综合分 %d", analysis.OverallScore), nil)
		return nil
	})
	if updateErr != nil {
		logger.Log.Error("failed to store scoring result",
			zap.String("evaluationId", ev.ID), zap.Error(updateErr))
		return
	}
	monitoring.EvaluationsTotal.WithLabelValues("ai_completed").Inc()

	s.runAutoApproval(ev.ID)
}

// markFailed 评估失败终态 + 课程退回 needs_revision + 通知提交者
func (s *EvaluationService) markFailed(evalID string, courseID uint, message string, cause error) {
	var submitterID uint
	err := s.Repo.UpdateLocked(evalID, func(tx *gorm.DB, e *model.CourseEvaluation) error {
		e.Status = model.EvaluationFailed
		e.AppendLog("failure", message, cause)
		submitterID = e.SubmitterID
		return nil
	})
	if err != nil {
		logger.Log.Error("failed to mark evaluation failed",
			zap.String("evaluationId", evalID), zap.Error(err))
		return
	}
	monitoring.EvaluationsTotal.WithLabelValues("failed").Inc()

	if err := s.Courses.UpdateStatus(courseID, model.CourseNeedsRevision); err != nil {
		logger.Log.Error("failed to return course to needs_revision",
			zap.Uint("courseId", courseID), zap.Error(err))
	}

	s.Notifier.NotifyUser(submitterID, NotifyPayload{
		Type:    "evaluation_failed",
		Title:   "课程评估失败",
		Message: message + "，课程已退回，可修订后重新提交",
	})
}

// autoApprovalChecks 自动审批的结构性检查，返回未满足条件的原因列表。
// 纯函数，空切片表示全部通过。
func autoApprovalChecks(course *model.Course, analysis *model.CourseAnalysis, settings model.PlatformSettings) []string {
	var reasons []string
	if analysis.OverallScore < settings.ScoreThreshold {
		reasons = append(reasons,
			fmt.Sprintf("综合评分 %d 低于自动审批阈值 %d", analysis.OverallScore, settings.ScoreThreshold))
	}
	if len(course.Description) < settings.MinDescriptionLength {
		reasons = append(reasons,
			fmt.Sprintf("课程描述长度 %d 低于最低要求 %d", len(course.Description), settings.MinDescriptionLength))
	}
	if len(course.Sections) < settings.MinSections {
		reasons = append(reasons,
			fmt.Sprintf("章节数 %d 低于最低要求 %d", len(course.Sections), settings.MinSections))
	}
	if total := course.TotalLessons(); total < settings.MinLessons {
		reasons = append(reasons,
			fmt.Sprintf("课时数 %d 低于最低要求 %d", total, settings.MinLessons))
	}
	return reasons
}

// autoApprovalReasons 自动审批的总开关与结构性检查。
// 开关关闭时直接短路：无论评分多高都不会自动通过。
func autoApprovalReasons(course *model.Course, analysis *model.CourseAnalysis, settings model.PlatformSettings) []string {
	if !settings.AutoApprovalEnabled {
		return []string{"自动审批已关闭"}
	}
	return autoApprovalChecks(course, analysis, settings)
}

// dailyCapExceeded 当日第 n 次自动通过是否越过上限；cap <= 0 表示不设限
func dailyCapExceeded(n int64, cap int) bool {
	return cap > 0 && n > int64(cap)
}

// runAutoApproval 评分完成后的自动审批判定。
// 全部检查通过且当日配额未满则直接上架；否则转入人工审批流程。
func (s *EvaluationService) runAutoApproval(evalID string) {
	ev, err := s.Repo.FindByID(evalID)
	if err != nil || ev.AIAnalysis == nil || ev.Course == nil {
		logger.Log.Error("auto-approval: evaluation incomplete",
			zap.String("evaluationId", evalID), zap.Error(err))
		return
	}

	settings := s.Settings.Snapshot()
	reasons := autoApprovalReasons(ev.Course, ev.AIAnalysis, settings)

	if len(reasons) == 0 {
		// 配额检查放最后：先占名额，超限再回退，避免并发下超发
		n, err := s.Settings.IncrDailyAutoApprovals(context.Background())
		switch {
		case err != nil:
			logger.Log.Error("auto-approval: daily counter unavailable, routing to review",
				zap.String("evaluationId", evalID), zap.Error(err))
			reasons = append(reasons, "自动审批计数服务不可用")
		case dailyCapExceeded(n, settings.DailyAutoApprovalCap):
			s.Settings.DecrDailyAutoApprovals(context.Background())
			reasons = append(reasons, fmt.Sprintf("当日自动审批数量已达上限 %d", settings.DailyAutoApprovalCap))
		}
	}

	if len(reasons) == 0 {
		s.autoApprove(ev)
		return
	}
	s.routeToReview(ev, reasons)
}

// autoApprove 自动通过：评估完结、课程上架、记录自动决定
func (s *EvaluationService) autoApprove(ev *model.CourseEvaluation) {
	now := time.Now()
	err := s.Repo.UpdateLocked(ev.ID, func(tx *gorm.DB, e *model.CourseEvaluation) error {
		e.Status = model.EvaluationCompleted
		e.AdminReview = model.AdminReview{
			Decision:    model.DecisionApproved,
			Feedback:    "自动审批通过",
			IsAutomatic: true,
			ReviewedAt:  &now,
		}
		e.AppendLog("auto_approval", "满足全部自动审批条件，课程自动上架", nil)
		return nil
	})
	if err != nil {
		logger.Log.Error("auto-approval: failed to complete evaluation",
			zap.String("evaluationId", ev.ID), zap.Error(err))
		s.Settings.DecrDailyAutoApprovals(context.Background())
		return
	}

	if err := s.Courses.MarkPublished(ev.CourseID, now); err != nil {
		logger.Log.Error("auto-approval: failed to publish course",
			zap.Uint("courseId", ev.CourseID), zap.Error(err))
	}

	monitoring.EvaluationsTotal.WithLabelValues("completed").Inc()
	monitoring.AutoApprovals.Inc()

	s.Notifier.NotifyUser(ev.SubmitterID, NotifyPayload{
		Type:    "auto_approved",
		Title:   "课程已自动上架",
		Message: fmt.Sprintf("课程《%s》通过自动审批并已上架", ev.Course.Title),
	})
}

// routeToReview 不满足自动审批：评估进入 admin_review 并创建人工审批记录
func (s *EvaluationService) routeToReview(ev *model.CourseEvaluation, reasons []string) {
	err := s.Repo.UpdateLocked(ev.ID, func(tx *gorm.DB, e *model.CourseEvaluation) error {
		e.Status = model.EvaluationAdminReview
		for _, r := range reasons {
			e.AppendLog("auto_approval", "未满足自动审批条件："+r, nil)
		}
		return nil
	})
	if err != nil {
		logger.Log.Error("failed to route evaluation to admin review",
			zap.String("evaluationId", ev.ID), zap.Error(err))
		return
	}
	monitoring.EvaluationsTotal.WithLabelValues("admin_review").Inc()

	if _, err := s.Approvals.CreateForEvaluation(ev, ev.Course, reasons); err != nil {
		logger.Log.Error("failed to create approval record",
			zap.String("evaluationId", ev.ID), zap.Error(err))
	}
}

func (s *EvaluationService) Get(id string) (*model.CourseEvaluation, error) {
	return s.Repo.FindByID(id)
}

// GetLatestForCourse 课程最近一次提交尝试，讲师只能查自己的课程
func (s *EvaluationService) GetLatestForCourse(courseID uint, viewer *util.Claims) (*model.CourseEvaluation, error) {
	course, err := s.Courses.FindByID(courseID)
	if err != nil {
		return nil, err
	}
	if viewer.Role != model.Admin && course.InstructorID != viewer.UserID {
		return nil, util.ErrPermissionDenied
	}
	return s.Repo.FindLatestByCourse(courseID)
}

// ListPending 待人工处理的评估队列
func (s *EvaluationService) ListPending(page, limit int) ([]model.CourseEvaluation, int64, error) {
	return s.Repo.ListByStatus(model.EvaluationAdminReview, page, limit)
}

func (s *EvaluationService) List(status model.EvaluationStatus, page, limit int) ([]model.CourseEvaluation, int64, error) {
	return s.Repo.ListByStatus(status, page, limit)
}

type AdminReviewRequest struct {
	Decision      model.ReviewDecision   `json:"decision" binding:"required"` // approved / rejected / needs_revision
	OverrideScore *int                   `json:"overrideScore"`
	Feedback      string                 `json:"feedback"`
	Comments      string                 `json:"comments"`
	Revision      *model.RevisionRequest `json:"revisionRequest"`
}

// SubmitAdminReview 管理员对单条评估的直接复核，绕过多阶段审批流程。
// 仅允许处于 admin_review 状态的记录；决定写入后评估进入终态。
func (s *EvaluationService) SubmitAdminReview(evalID string, actor *util.Claims, req AdminReviewRequest) (*model.CourseEvaluation, error) {
	switch req.Decision {
	case model.DecisionApproved, model.DecisionRejected, model.DecisionNeedsRevision:
	default:
		return nil, fmt.Errorf("invalid decision %q", req.Decision)
	}
	if req.OverrideScore != nil {
		clamped := ClampScore(*req.OverrideScore)
		req.OverrideScore = &clamped
	}

	now := time.Now()
	var courseID uint
	var submitterID uint
	err := s.Repo.UpdateLocked(evalID, func(tx *gorm.DB, e *model.CourseEvaluation) error {
		if e.Status != model.EvaluationAdminReview {
			return util.ErrEvaluationNotReviewable
		}
		e.Status = model.EvaluationCompleted
		e.AdminReview = model.AdminReview{
			Decision:        req.Decision,
			ReviewerID:      actor.UserID,
			ReviewerName:    actor.Name,
			OverrideScore:   req.OverrideScore,
			Feedback:        req.Feedback,
			Comments:        req.Comments,
			RevisionRequest: req.Revision,
			ReviewedAt:      &now,
		}
		e.AppendLog("admin_review", fmt.Sprintf("管理员 %s 作出决定：%s", actor.Name, req.Decision), nil)
		courseID = e.CourseID
		submitterID = e.SubmitterID
		return nil
	})
	if err != nil {
		return nil, err
	}
	monitoring.EvaluationsTotal.WithLabelValues("completed").Inc()

	s.applyAdminDecision(courseID, submitterID, req.Decision, req.Feedback, now)
	return s.Repo.FindByID(evalID)
}

func (s *EvaluationService) applyAdminDecision(courseID, submitterID uint, decision model.ReviewDecision, feedback string, now time.Time) {
	var courseStatus model.CourseStatus
	var title string
	switch decision {
	case model.DecisionApproved:
		if err := s.Courses.MarkPublished(courseID, now); err != nil {
			logger.Log.Error("failed to publish course",
				zap.Uint("courseId", courseID), zap.Error(err))
		}
		title = "课程审核通过"
	case model.DecisionRejected:
		courseStatus = model.CourseRejected
		title = "课程审核未通过"
	case model.DecisionNeedsRevision:
		courseStatus = model.CourseNeedsRevision
		title = "课程需要修订"
	}
	if courseStatus != "" {
		if err := s.Courses.UpdateStatus(courseID, courseStatus); err != nil {
			logger.Log.Error("failed to update course status",
				zap.Uint("courseId", courseID), zap.Error(err))
		}
	}

	message := title
	if feedback != "" {
		message += "：" + feedback
	}
	s.Notifier.NotifyUser(submitterID, NotifyPayload{
		Type:    "admin_review",
		Title:   title,
		Message: message,
	})
}

type BulkApproveResult struct {
	Approved []string          `json:"approved"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// BulkApprove 批量通过：逐条独立处理，单条失败不影响其余
func (s *EvaluationService) BulkApprove(evalIDs []string, actor *util.Claims, feedback string) *BulkApproveResult {
	result := &BulkApproveResult{Failed: make(map[string]string)}
	for _, id := range evalIDs {
		_, err := s.SubmitAdminReview(id, actor, AdminReviewRequest{
			Decision: model.DecisionApproved,
			Feedback: feedback,
		})
		if err != nil {
			result.Failed[id] = err.Error()
			continue
		}
		result.Approved = append(result.Approved, id)
	}
	return result
}

// stuckEvaluationThreshold 超过该时长仍停留在 processing 的评估视为卡死。
// 进程非正常退出时队列中的任务随之丢失，对应记录不会再被任何 worker 接手。
const stuckEvaluationThreshold = 30 * time.Minute

// evaluationStuck 卡死判定：processing 且提交后长时间无进展
func evaluationStuck(ev *model.CourseEvaluation, now time.Time) bool {
	return ev.Status == model.EvaluationProcessing &&
		now.Sub(ev.SubmittedAt) > stuckEvaluationThreshold
}

// Retry 管理员重试评估：failed 终态可直接重试；卡死的 processing 记录
// 先标记失败以解除重复提交保护，再产生一次新的提交尝试
func (s *EvaluationService) Retry(evalID string, actor *util.Claims) (*model.CourseEvaluation, error) {
	prev, err := s.Repo.FindByID(evalID)
	if err != nil {
		return nil, err
	}

	switch {
	case prev.Status == model.EvaluationFailed:
	case evaluationStuck(prev, time.Now()):
		if err := s.failStuck(prev.ID, actor.Name); err != nil {
			return nil, err
		}
	default:
		return nil, util.ErrEvaluationNotRetryable
	}

	now := time.Now()
	ev := &model.CourseEvaluation{
		CourseID:      prev.CourseID,
		SubmitterID:   prev.SubmitterID,
		SubmitterName: prev.SubmitterName,
		SubmitterRole: prev.SubmitterRole,
		SubmittedAt:   now,
		Status:        model.EvaluationProcessing,
		AdminReview:   model.AdminReview{Decision: model.DecisionPending},
	}
	ev.AppendLog("submission", fmt.Sprintf("管理员 %s 重试失败的评估 %s", actor.Name, prev.ID), nil)

	err = s.Repo.CreateGuarded(ev, func(tx *gorm.DB) error {
		return repository.MarkCourseSubmitted(tx, prev.CourseID, now)
	})
	if err != nil {
		return nil, err
	}
	monitoring.EvaluationsTotal.WithLabelValues("submitted").Inc()

	if err := s.queue.Enqueue(ScoringJob{EvaluationID: ev.ID}); err != nil {
		s.markFailed(ev.ID, ev.CourseID, "评分队列已满，请稍后重试", err)
		return s.Repo.FindByID(ev.ID)
	}
	return ev, nil
}

// failStuck 把卡死的 processing 记录转入 failed。
// 行锁下复查状态，避免与迟到的 worker 结果竞争。
func (s *EvaluationService) failStuck(evalID, actor string) error {
	err := s.Repo.UpdateLocked(evalID, func(tx *gorm.DB, e *model.CourseEvaluation) error {
		if e.Status != model.EvaluationProcessing {
			return util.ErrEvaluationNotRetryable
		}
		e.Status = model.EvaluationFailed
		e.AppendLog("failure", fmt.Sprintf("评分长时间无响应，管理员 %s 标记失败并重试", actor), nil)
		return nil
	})
	if err != nil {
		return err
	}
	monitoring.EvaluationsTotal.WithLabelValues("failed").Inc()
	return nil
}

// Stats 评估流水线概览
func (s *EvaluationService) Stats() (map[model.EvaluationStatus]int64, error) {
	return s.Repo.CountByStatus()
}
