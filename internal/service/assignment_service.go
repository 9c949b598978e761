package service

import (
	"fmt"
	"sort"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AssignmentService 审核人分配引擎：按当前工作量与专长挑选审核人，
// 并执行每个角色的容量上限。
type AssignmentService struct {
	Approvals *repository.ApprovalRepository
	Users     *repository.UserRepository
	Settings  *SettingsService
	Notifier  *NotificationService
}

func NewAssignmentService(approvals *repository.ApprovalRepository, users *repository.UserRepository, settings *SettingsService, notifier *NotificationService) *AssignmentService {
	return &AssignmentService{
		Approvals: approvals,
		Users:     users,
		Settings:  settings,
		Notifier:  notifier,
	}
}

// SelectReviewer 纯选择逻辑：剔除已在本记录持有槽位者与达到容量上限者，
// 有专长匹配者优先，再按工作量升序（同工作量按 id 稳定排序）取最低。
func SelectReviewer(role model.ReviewerRole, candidates []model.User, workloads map[uint]int, capacity int, exclude map[uint]bool) (*model.User, bool) {
	eligible := make([]model.User, 0, len(candidates))
	for _, c := range candidates {
		if exclude[c.ID] {
			continue
		}
		if workloads[c.ID] >= capacity {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil, false
	}

	matched := make([]model.User, 0, len(eligible))
	for _, c := range eligible {
		for _, e := range c.Expertise {
			if e == string(role) {
				matched = append(matched, c)
				break
			}
		}
	}
	if len(matched) > 0 {
		eligible = matched
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		wi, wj := workloads[eligible[i].ID], workloads[eligible[j].ID]
		if wi != wj {
			return wi < wj
		}
		return eligible[i].ID < eligible[j].ID
	})
	return &eligible[0], true
}

// AutoAssign 审批记录创建时为当前阶段所需的全部角色各分配一名审核人。
// 某个角色无人可用不阻塞记录：槽位留空，等待重试或管理员手工指派。
func (s *AssignmentService) AutoAssign(approvalID uint) {
	a, err := s.Approvals.FindByID(approvalID)
	if err != nil {
		logger.Log.Error("auto-assign: approval not found", zap.Uint("approvalId", approvalID), zap.Error(err))
		return
	}

	reqs := s.Settings.StageRequirements()
	for _, role := range reqs[a.ReviewProcess.CurrentStage] {
		if slot := a.ReviewTeam.Slots[role]; slot != nil {
			continue
		}
		if _, err := s.AssignRole(approvalID, role, "system"); err != nil {
			logger.Log.Warn("auto-assign: role left unassigned",
				zap.String("approvalId", a.ApprovalID),
				zap.String("role", string(role)),
				zap.Error(err))
		}
	}
}

// AssignRole 引擎自动挑选审核人填入角色槽位
func (s *AssignmentService) AssignRole(approvalID uint, role model.ReviewerRole, actor string) (*model.ReviewerAssignment, error) {
	if !model.ValidReviewerRole(role) {
		return nil, util.ErrInvalidReviewerRole
	}

	candidates, err := s.Users.ListReviewerCandidates()
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, util.ErrNoAvailableReviewer
	}

	ids := make([]uint, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	workloads, err := s.Approvals.CountActiveByReviewers(ids)
	if err != nil {
		return nil, err
	}

	var assigned *model.ReviewerAssignment
	err = s.Approvals.UpdateLocked(approvalID, func(tx *gorm.DB, a *model.CourseApproval) error {
		if a.Decided() {
			return util.ErrAlreadyDecided
		}

		// 一条记录内一个审核人最多占一个槽位
		exclude := make(map[uint]bool, len(a.ReviewTeam.Slots))
		for _, slot := range a.ReviewTeam.Slots {
			if slot != nil {
				exclude[slot.ReviewerID] = true
			}
		}

		pick, ok := SelectReviewer(role, candidates, workloads, s.Settings.RoleCapacity(role), exclude)
		if !ok {
			return util.ErrNoAvailableReviewer
		}

		assignment, err := s.fillSlot(tx, a, role, pick, actor)
		if err != nil {
			return err
		}
		assigned = assignment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyAssigned(assigned, approvalID)
	return assigned, nil
}

// AssignSpecific 管理员手工指派，始终允许并覆盖已有槽位
func (s *AssignmentService) AssignSpecific(approvalID uint, role model.ReviewerRole, reviewerID uint, actor string) (*model.ReviewerAssignment, error) {
	if !model.ValidReviewerRole(role) {
		return nil, util.ErrInvalidReviewerRole
	}

	reviewer, err := s.Users.FindByID(reviewerID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}

	var assigned *model.ReviewerAssignment
	err = s.Approvals.UpdateLocked(approvalID, func(tx *gorm.DB, a *model.CourseApproval) error {
		if a.Decided() {
			return util.ErrAlreadyDecided
		}

		// 已持有其他槽位的审核人不能再占一个
		if held, ok := a.ReviewTeam.RoleOf(reviewerID); ok && held != role {
			return util.ErrReviewerAlreadyInTeam
		}

		assignment, err := s.fillSlot(tx, a, role, reviewer, actor)
		if err != nil {
			return err
		}
		assigned = assignment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyAssigned(assigned, approvalID)
	return assigned, nil
}

// fillSlot 槽位写入 + 规范化索引表维护 + 首次分配的状态迁移，须在行锁事务内调用
func (s *AssignmentService) fillSlot(tx *gorm.DB, a *model.CourseApproval, role model.ReviewerRole, reviewer *model.User, actor string) (*model.ReviewerAssignment, error) {
	now := time.Now()

	if a.ReviewTeam.Slots == nil {
		a.ReviewTeam.Slots = make(map[model.ReviewerRole]*model.ReviewerAssignment)
	}
	prev := a.ReviewTeam.Slots[role]

	assignment := &model.ReviewerAssignment{
		ReviewerID: reviewer.ID,
		Name:       reviewer.Name,
		AssignedAt: now,
	}
	a.ReviewTeam.Slots[role] = assignment

	// 覆盖指派时先清掉旧索引行；物理删除，软删除残留会撞唯一索引
	if prev != nil {
		if err := tx.Unscoped().Where("approval_id = ? AND role = ?", a.ID, role).
			Delete(&model.ApprovalAssignment{}).Error; err != nil {
			return nil, err
		}
	}
	if err := tx.Create(&model.ApprovalAssignment{
		ApprovalID: a.ID,
		ReviewerID: reviewer.ID,
		Role:       role,
	}).Error; err != nil {
		return nil, err
	}

	// 首次成功分配：pending -> under_review
	if a.Status == model.ApprovalPending {
		a.Audit("reviewer_assigned", actor, a.Status, model.ApprovalUnderReview,
			fmt.Sprintf("%s -> %s", role, reviewer.Name))
		a.Status = model.ApprovalUnderReview
		a.ReviewTeam.AssignedDate = &now
		a.ReviewTeam.StartedAt = &now
	} else {
		detail := fmt.Sprintf("%s -> %s", role, reviewer.Name)
		if prev != nil {
			detail = fmt.Sprintf("%s -> %s (replaced %s)", role, reviewer.Name, prev.Name)
		}
		a.Audit("reviewer_assigned", actor, a.Status, a.Status, detail)
	}

	RecomputeSLA(a, now)
	return assignment, nil
}

func (s *AssignmentService) notifyAssigned(assignment *model.ReviewerAssignment, approvalID uint) {
	if assignment == nil {
		return
	}
	a, err := s.Approvals.FindByID(approvalID)
	if err != nil {
		return
	}
	title := "新的课程审批任务"
	courseTitle := ""
	if a.Course != nil {
		courseTitle = a.Course.Title
	}
	s.Notifier.NotifyUser(assignment.ReviewerID, NotifyPayload{
		Type:     "approval_assigned",
		Title:    title,
		Message:  fmt.Sprintf("课程《%s》(%s) 已分配给你审核", courseTitle, a.ApprovalID),
		Priority: string(a.Priority),
	})
}
