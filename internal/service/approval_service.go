package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 自动裁决阈值：综合分达到 autoApproveScore 自动通过，
// 低于 autoRejectScore 自动拒绝，之间的区间留给人工终审。
const (
	autoApproveScore = 90.0
	autoRejectScore  = 60.0
)

// ApprovalService 人工多阶段审批的工作流引擎：评审提交、阶段推进、
// 自动裁决、最终裁决与 SLA 跟踪。
type ApprovalService struct {
	Repo        *repository.ApprovalRepository
	Evaluations *repository.EvaluationRepository
	Courses     *repository.CourseRepository
	Users       *repository.UserRepository
	Assignments *AssignmentService
	Settings    *SettingsService
	Notifier    *NotificationService
}

func NewApprovalService(
	repo *repository.ApprovalRepository,
	evals *repository.EvaluationRepository,
	courses *repository.CourseRepository,
	users *repository.UserRepository,
	assignments *AssignmentService,
	settings *SettingsService,
	notifier *NotificationService,
) *ApprovalService {
	return &ApprovalService{
		Repo:        repo,
		Evaluations: evals,
		Courses:     courses,
		Users:       users,
		Assignments: assignments,
		Settings:    settings,
		Notifier:    notifier,
	}
}

// ---- 纯决策逻辑（无副作用，便于直接测试） ----

// ClassifySLA 超过目标时长为 breached，超过 80% 为 at_risk，否则 on_track
func ClassifySLA(elapsedHours, targetHours float64) model.SLAStatus {
	if targetHours <= 0 {
		return model.SLAOnTrack
	}
	if elapsedHours > targetHours {
		return model.SLABreached
	}
	if elapsedHours > 0.8*targetHours {
		return model.SLAAtRisk
	}
	return model.SLAOnTrack
}

// RecomputeSLA 每次记录变更后重算 SLA 状态。仅作提示用途，从不阻塞任何迁移。
func RecomputeSLA(a *model.CourseApproval, now time.Time) {
	elapsed := now.Sub(a.CreatedAt).Hours()
	if a.SLA.ActualHours != nil {
		elapsed = *a.SLA.ActualHours
	}
	a.SLA.Status = ClassifySLA(elapsed, float64(a.SLA.TargetHours))
}

// StageSatisfied 阶段完成条件：该阶段要求的每个角色都至少有一条已提交评审
func StageSatisfied(a *model.CourseApproval, stage model.ApprovalStage, reqs model.StageRequirements) bool {
	required := reqs[stage]
	if len(required) == 0 {
		return true
	}
	reviewed := make(map[model.ReviewerRole]bool, len(a.Feedback.Reviews))
	for _, r := range a.Feedback.Reviews {
		reviewed[r.Role] = true
	}
	for _, role := range required {
		if !reviewed[role] {
			return false
		}
	}
	return true
}

// AdvanceStages 沿固定顺序推进阶段，返回本次新完成的阶段。
// 推进只由当前阶段指针驱动：条件早已满足时重复检查不会再次推进（幂等）。
// completed 阶段只能由最终裁决写入，这里最多推进到 final_approval。
func AdvanceStages(a *model.CourseApproval, reqs model.StageRequirements, now time.Time) []model.ApprovalStage {
	var completed []model.ApprovalStage
	for a.ReviewProcess.CurrentStage != model.StageCompleted {
		if !StageSatisfied(a, a.ReviewProcess.CurrentStage, reqs) {
			break
		}
		next, ok := model.NextStage(a.ReviewProcess.CurrentStage)
		if !ok || next == model.StageCompleted {
			break
		}
		a.ReviewProcess.CompletedStages = append(a.ReviewProcess.CompletedStages, model.CompletedStage{
			Stage:       a.ReviewProcess.CurrentStage,
			CompletedAt: now,
		})
		completed = append(completed, a.ReviewProcess.CurrentStage)
		a.ReviewProcess.CurrentStage = next
	}
	return completed
}

// EvaluateAutoDecision 每条评审落库后执行的自动裁决规则：
// 任一未解决的 critical 问题 => 拒绝；综合分 >= 90 => 通过；< 60 => 拒绝；
// 否则悬置，等待人工终审。
func EvaluateAutoDecision(a *model.CourseApproval) (model.ApprovalStatus, string, []model.ReviewIssue, bool) {
	var criticals []model.ReviewIssue
	for _, r := range a.Feedback.Reviews {
		for _, issue := range r.Issues {
			if issue.Severity == model.SeverityCritical && !issue.Resolved {
				criticals = append(criticals, issue)
			}
		}
	}
	if len(criticals) > 0 {
		return model.ApprovalRejected,
			fmt.Sprintf("存在 %d 个未解决的严重问题", len(criticals)), criticals, true
	}

	if len(a.Feedback.Reviews) == 0 {
		return "", "", nil, false
	}

	score := a.Feedback.OverallScore
	if score >= autoApproveScore {
		return model.ApprovalApproved,
			fmt.Sprintf("综合评分 %.1f 达到自动通过线 %.0f", score, autoApproveScore), nil, true
	}
	if score < autoRejectScore {
		return model.ApprovalRejected,
			fmt.Sprintf("综合评分 %.1f 低于自动拒绝线 %.0f", score, autoRejectScore), nil, true
	}
	return "", "", nil, false
}

// BuildResubmissionGuidelines 按类别聚合未解决问题，每类取最高严重度，
// 按严重度降序输出重新提交指引。
func BuildResubmissionGuidelines(reviews []model.Review) []string {
	type categoryIssue struct {
		category string
		issue    model.ReviewIssue
	}
	byCategory := make(map[string]model.ReviewIssue)
	for _, r := range reviews {
		for _, issue := range r.Issues {
			if issue.Resolved {
				continue
			}
			category := issue.Category
			if category == "" {
				category = "general"
			}
			if existing, ok := byCategory[category]; !ok ||
				model.SeverityRank[issue.Severity] > model.SeverityRank[existing.Severity] {
				byCategory[category] = issue
			}
		}
	}

	items := make([]categoryIssue, 0, len(byCategory))
	for c, issue := range byCategory {
		items = append(items, categoryIssue{category: c, issue: issue})
	}
	sort.Slice(items, func(i, j int) bool {
		ri, rj := model.SeverityRank[items[i].issue.Severity], model.SeverityRank[items[j].issue.Severity]
		if ri != rj {
			return ri > rj
		}
		return items[i].category < items[j].category
	})

	guidelines := make([]string, 0, len(items))
	for _, it := range items {
		line := fmt.Sprintf("【%s】(%s) %s", it.category, it.issue.Severity, it.issue.Description)
		if it.issue.Suggestion != "" {
			line += " — 建议：" + it.issue.Suggestion
		}
		guidelines = append(guidelines, line)
	}
	return guidelines
}

// ---- 工作流操作 ----

// CreateForEvaluation 自动审批未通过时由评估编排器调用：
// 建立审批记录并为当前阶段自动分配审核人。
func (s *ApprovalService) CreateForEvaluation(ev *model.CourseEvaluation, course *model.Course, reasons []string) (*model.CourseApproval, error) {
	now := time.Now()
	year := now.Year()

	seq, err := s.Settings.NextApprovalSequence(context.Background(), year)
	if err != nil {
		return nil, fmt.Errorf("allocate approval id: %w", err)
	}

	submissionType, priority := classifySubmission(course)
	a := &model.CourseApproval{
		ApprovalID:     model.FormatApprovalID(year, seq),
		CourseID:       course.ID,
		EvaluationID:   ev.ID,
		SubmitterID:    ev.SubmitterID,
		SubmitterName:  ev.SubmitterName,
		SubmissionType: submissionType,
		Priority:       priority,
		Status:         model.ApprovalPending,
		ReviewProcess:  model.ReviewProcess{CurrentStage: model.StageInitialReview},
		ReviewTeam:     model.ReviewTeam{Slots: make(map[model.ReviewerRole]*model.ReviewerAssignment)},
		Feedback:       model.ApprovalFeedback{},
		SLA: model.SLAInfo{
			TargetHours: s.Settings.SLATargetHours(priority),
			Status:      model.SLAOnTrack,
		},
	}
	a.Audit("created", "system", "", model.ApprovalPending, strings.Join(reasons, "; "))

	if err := s.Repo.Create(a); err != nil {
		return nil, err
	}

	s.Assignments.AutoAssign(a.ID)

	s.Notifier.NotifyUser(ev.SubmitterID, NotifyPayload{
		Type:    "approval_created",
		Title:   "课程进入人工审核",
		Message: fmt.Sprintf("课程《%s》未满足自动审批条件，已进入人工审核流程（%s）", course.Title, a.ApprovalID),
	})

	return s.Repo.FindByID(a.ID)
}

// classifySubmission 已上架课程的改动按更新处理并提高优先级；
// 此前被退回的课程按重新提交处理。
func classifySubmission(course *model.Course) (model.SubmissionType, model.ApprovalPriority) {
	if course.IsPublished {
		return model.SubmissionCourseUpdate, model.PriorityHigh
	}
	if course.Status == model.CourseNeedsRevision || course.Status == model.CourseRejected {
		return model.SubmissionResubmission, model.PriorityNormal
	}
	return model.SubmissionNewCourse, model.PriorityNormal
}

type ReviewRequest struct {
	Score    int                 `json:"score" binding:"min=0,max=100"`
	Category string              `json:"category"`
	Feedback string              `json:"feedback"`
	Issues   []model.ReviewIssue `json:"issues"`
	Approved bool                `json:"approved"`
}

// decisionEffects 行锁事务提交后执行的跨记录副作用。
// 记录存储只保证单文档原子性，课程与评估的状态回写在审批记录落库后进行。
type decisionEffects struct {
	approvalID  string
	decision    model.ApprovalStatus
	reason      string
	guidelines  []string
	courseID    uint
	evalID      string
	submitterID uint
	decidedAt   time.Time
}

// SubmitReview 追加一条 (审核人, 角色) 评审：重算综合分、推进阶段、执行自动裁决。
// 整个读-改-写序列在行锁内串行化，并发评审不会丢失综合分重算或重复推进阶段。
func (s *ApprovalService) SubmitReview(approvalID uint, reviewer *util.Claims, req ReviewRequest) (*model.CourseApproval, error) {
	reqs := s.Settings.StageRequirements()
	now := time.Now()

	var effects *decisionEffects
	var advanced []model.ApprovalStage

	err := s.Repo.UpdateLocked(approvalID, func(tx *gorm.DB, a *model.CourseApproval) error {
		if a.Decided() {
			return util.ErrAlreadyDecided
		}

		role, ok := a.ReviewTeam.RoleOf(reviewer.UserID)
		if !ok {
			return util.ErrReviewerNotAssigned
		}

		review := model.Review{
			ReviewerID:   reviewer.UserID,
			ReviewerName: reviewer.Name,
			Role:         role,
			Score:        ClampScore(req.Score),
			Category:     req.Category,
			Feedback:     req.Feedback,
			Issues:       req.Issues,
			Approved:     req.Approved,
			SubmittedAt:  now,
		}
		a.Feedback.Reviews = append(a.Feedback.Reviews, review)
		a.Feedback.RecomputeOverallScore()
		a.Audit("review_submitted", reviewer.Name, a.Status, a.Status,
			fmt.Sprintf("%s 评分 %d，综合分 %.1f", role, review.Score, a.Feedback.OverallScore))

		advanced = AdvanceStages(a, reqs, now)
		for _, stage := range advanced {
			a.Audit("stage_completed", "system", a.Status, a.Status,
				fmt.Sprintf("%s -> %s", stage, a.ReviewProcess.CurrentStage))
		}

		if decision, reason, criticals, ok := EvaluateAutoDecision(a); ok {
			guidelines := []string(nil)
			if decision == model.ApprovalRejected {
				guidelines = BuildResubmissionGuidelines(a.Feedback.Reviews)
				// 自动拒绝的指引必须点名触发的严重问题
				for _, c := range criticals {
					guidelines = append([]string{
						fmt.Sprintf("【严重问题】%s：%s", c.Category, c.Description),
					}, guidelines...)
				}
			}
			eff, err := s.applyDecision(a, decision, "system:auto", reason, guidelines, now)
			if err != nil {
				return err
			}
			effects = eff
		}

		RecomputeSLA(a, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if effects != nil {
		s.runDecisionEffects(effects)
	}

	return s.Repo.FindByID(approvalID)
}

type FinalDecisionRequest struct {
	Decision model.ApprovalStatus `json:"decision" binding:"required"` // approved / rejected
	Reason   string               `json:"reason"`
}

// MakeFinalDecision 悬置区间内的人工终审
func (s *ApprovalService) MakeFinalDecision(approvalID uint, actor *util.Claims, req FinalDecisionRequest) (*model.CourseApproval, error) {
	if req.Decision != model.ApprovalApproved && req.Decision != model.ApprovalRejected {
		return nil, fmt.Errorf("invalid decision %q: must be approved or rejected", req.Decision)
	}

	now := time.Now()
	var effects *decisionEffects

	err := s.Repo.UpdateLocked(approvalID, func(tx *gorm.DB, a *model.CourseApproval) error {
		if a.Decided() {
			return util.ErrAlreadyDecided
		}
		guidelines := []string(nil)
		if req.Decision == model.ApprovalRejected {
			guidelines = BuildResubmissionGuidelines(a.Feedback.Reviews)
		}
		eff, err := s.applyDecision(a, req.Decision, actor.Name, req.Reason, guidelines, now)
		if err != nil {
			return err
		}
		effects = eff
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.runDecisionEffects(effects)
	return s.Repo.FindByID(approvalID)
}

// applyDecision 写入终态：记录一经裁决即不可变
func (s *ApprovalService) applyDecision(a *model.CourseApproval, decision model.ApprovalStatus, maker, reason string, guidelines []string, now time.Time) (*decisionEffects, error) {
	if a.Decided() {
		return nil, util.ErrAlreadyDecided
	}

	prev := a.Status
	a.Decision = model.ApprovalDecision{
		FinalDecision:          decision,
		DecisionMaker:          maker,
		Reason:                 reason,
		ResubmissionGuidelines: guidelines,
		DecidedAt:              &now,
	}
	a.Status = decision
	if a.ReviewProcess.CurrentStage != model.StageCompleted {
		a.ReviewProcess.CompletedStages = append(a.ReviewProcess.CompletedStages, model.CompletedStage{
			Stage:       a.ReviewProcess.CurrentStage,
			CompletedAt: now,
		})
		a.ReviewProcess.CurrentStage = model.StageCompleted
	}
	a.ReviewTeam.CompletedAt = &now

	actual := now.Sub(a.CreatedAt).Hours()
	a.SLA.ActualHours = &actual
	a.SLA.Status = ClassifySLA(actual, float64(a.SLA.TargetHours))

	a.Audit("final_decision", maker, prev, decision, reason)

	decidedBy := "manual"
	if maker == "system:auto" {
		decidedBy = "auto"
	}
	monitoring.ApprovalDecisions.WithLabelValues(string(decision), decidedBy).Inc()

	return &decisionEffects{
		approvalID:  a.ApprovalID,
		decision:    decision,
		reason:      reason,
		guidelines:  guidelines,
		courseID:    a.CourseID,
		evalID:      a.EvaluationID,
		submitterID: a.SubmitterID,
		decidedAt:   now,
	}, nil
}

// runDecisionEffects 审批记录落库后的课程/评估状态回写与通知
func (s *ApprovalService) runDecisionEffects(eff *decisionEffects) {
	// 裁决事务内未预加载课程，通知文案的课程名在这里补查
	course, err := s.Courses.FindByID(eff.courseID)
	if err != nil {
		course = nil
	}
	courseName := courseDisplayName(course, eff.courseID)

	if eff.decision == model.ApprovalApproved {
		if err := s.Courses.MarkPublished(eff.courseID, eff.decidedAt); err != nil {
			logger.Log.Error("failed to publish course after approval",
				zap.Uint("courseId", eff.courseID), zap.Error(err))
		}
	} else {
		if err := s.Courses.UpdateStatus(eff.courseID, model.CourseRejected); err != nil {
			logger.Log.Error("failed to update course status after rejection",
				zap.Uint("courseId", eff.courseID), zap.Error(err))
		}
	}

	if eff.evalID != "" {
		evalDecision := model.DecisionApproved
		if eff.decision == model.ApprovalRejected {
			evalDecision = model.DecisionRejected
		}
		err := s.Evaluations.UpdateLocked(eff.evalID, func(tx *gorm.DB, ev *model.CourseEvaluation) error {
			ev.Status = model.EvaluationCompleted
			ev.AdminReview.Decision = evalDecision
			ev.AdminReview.Feedback = eff.reason
			ev.AdminReview.ReviewedAt = &eff.decidedAt
			ev.AppendLog("approval_workflow", fmt.Sprintf("审批流程结束：%s", eff.decision), nil)
			return nil
		})
		if err != nil {
			logger.Log.Error("failed to complete evaluation after decision",
				zap.String("evaluationId", eff.evalID), zap.Error(err))
		}
	}

	title := "课程审批已通过"
	message := fmt.Sprintf("课程《%s》已通过审批并上架", courseName)
	if eff.decision == model.ApprovalRejected {
		title = "课程审批未通过"
		message = fmt.Sprintf("课程《%s》未通过审批：%s", courseName, eff.reason)
		if len(eff.guidelines) > 0 {
			message += "\n重新提交指引：\n" + strings.Join(eff.guidelines, "\n")
		}
	}
	s.Notifier.NotifyUser(eff.submitterID, NotifyPayload{
		Type:     "approval_decided",
		Title:    title,
		Message:  message,
		Priority: "high",
	})
}

// courseDisplayName 通知文案里的课程名，课程查不到时回退到编号
func courseDisplayName(course *model.Course, courseID uint) string {
	if course != nil && course.Title != "" {
		return course.Title
	}
	return fmt.Sprintf("#%d", courseID)
}

// ---- 查询与后台巡检 ----

func (s *ApprovalService) Get(id uint) (*model.CourseApproval, error) {
	return s.Repo.FindByID(id)
}

func (s *ApprovalService) GetByApprovalID(approvalID string) (*model.CourseApproval, error) {
	return s.Repo.FindByApprovalID(approvalID)
}

func (s *ApprovalService) List(status model.ApprovalStatus, priority model.ApprovalPriority, page, limit int) ([]model.CourseApproval, int64, error) {
	return s.Repo.List(status, priority, page, limit)
}

func (s *ApprovalService) ListAssignedTo(reviewerID uint) ([]model.CourseApproval, error) {
	return s.Repo.ListAssignedTo(reviewerID)
}

type ApprovalDashboard struct {
	ByStatus   map[model.ApprovalStatus]int64   `json:"byStatus"`
	ByPriority map[model.ApprovalPriority]int64 `json:"byPriority"`
	BySLA      map[model.SLAStatus]int64        `json:"bySla"`
}

// GetDashboard 审批队列概览：按状态、优先级与 SLA 桶计数
func (s *ApprovalService) GetDashboard() (*ApprovalDashboard, error) {
	counts, err := s.Repo.CountsByStatusAndPriority()
	if err != nil {
		return nil, err
	}

	dashboard := &ApprovalDashboard{
		ByStatus:   counts.ByStatus,
		ByPriority: counts.ByPriority,
		BySLA: map[model.SLAStatus]int64{
			model.SLAOnTrack:  0,
			model.SLAAtRisk:   0,
			model.SLABreached: 0,
		},
	}

	active, err := s.Repo.ListActive()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, a := range active {
		status := ClassifySLA(now.Sub(a.CreatedAt).Hours(), float64(a.SLA.TargetHours))
		dashboard.BySLA[status]++
	}
	return dashboard, nil
}

// MonitorSLAs 后台定时巡检：重算在途审批的 SLA，状态恶化时升级通知。
// SLA 只驱动通知，从不阻塞流程。
func (s *ApprovalService) MonitorSLAs() error {
	active, err := s.Repo.ListActive()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, item := range active {
		prev := item.SLA.Status
		next := ClassifySLA(now.Sub(item.CreatedAt).Hours(), float64(item.SLA.TargetHours))
		if next == prev {
			continue
		}

		var escalated *model.CourseApproval
		err := s.Repo.UpdateLocked(item.ID, func(tx *gorm.DB, a *model.CourseApproval) error {
			if a.Decided() {
				return nil
			}
			RecomputeSLA(a, now)
			if a.SLA.Status != prev {
				a.Audit("sla_escalation", "system", a.Status, a.Status,
					fmt.Sprintf("%s -> %s", prev, a.SLA.Status))
				escalated = a
			}
			return nil
		})
		if err != nil {
			logger.Log.Error("sla monitor update failed",
				zap.String("approvalId", item.ApprovalID), zap.Error(err))
			continue
		}

		if escalated != nil && escalated.SLA.Status != model.SLAOnTrack {
			if escalated.SLA.Status == model.SLABreached {
				monitoring.SLABreaches.Inc()
			}
			for _, slot := range escalated.ReviewTeam.Slots {
				if slot == nil {
					continue
				}
				s.Notifier.Notify(slot.ReviewerID, NotifyPayload{
					Type:     "sla_escalation",
					Title:    "审批时限预警",
					Message:  fmt.Sprintf("审批 %s 的 SLA 状态变为 %s，请尽快处理", escalated.ApprovalID, escalated.SLA.Status),
					Priority: "high",
				})
			}
		}
	}
	return nil
}
