package repository

import (
	"errors"

	"lms_backend/internal/model"
	"lms_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ApprovalRepository struct {
	DB *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{DB: db}
}

func (r *ApprovalRepository) Create(a *model.CourseApproval) error {
	return r.DB.Create(a).Error
}

func (r *ApprovalRepository) FindByID(id uint) (*model.CourseApproval, error) {
	var a model.CourseApproval
	err := r.DB.Preload("Course").First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrApprovalNotFound
	}
	return &a, err
}

func (r *ApprovalRepository) FindByApprovalID(approvalID string) (*model.CourseApproval, error) {
	var a model.CourseApproval
	err := r.DB.Preload("Course").Where("approval_id = ?", approvalID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrApprovalNotFound
	}
	return &a, err
}

// UpdateLocked 评审提交、阶段推进、最终裁决等读-改-写序列都必须经由行锁串行化。
// fn 内对 ReviewTeam / Feedback / AuditLog 的追加因此保持提交顺序。
func (r *ApprovalRepository) UpdateLocked(id uint, fn func(tx *gorm.DB, a *model.CourseApproval) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var a model.CourseApproval
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&a, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrApprovalNotFound
			}
			return err
		}
		if err := fn(tx, &a); err != nil {
			return err
		}
		return tx.Save(&a).Error
	})
}

func (r *ApprovalRepository) List(status model.ApprovalStatus, priority model.ApprovalPriority, page, limit int) ([]model.CourseApproval, int64, error) {
	var as []model.CourseApproval
	var total int64

	query := r.DB.Model(&model.CourseApproval{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if priority != "" {
		query = query.Where("priority = ?", priority)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Preload("Course").
		Order("created_at desc").
		Offset(offset).Limit(limit).
		Find(&as).Error
	return as, total, err
}

// ListAssignedTo 审核人名下的在途审批
func (r *ApprovalRepository) ListAssignedTo(reviewerID uint) ([]model.CourseApproval, error) {
	var as []model.CourseApproval
	err := r.DB.Preload("Course").
		Joins("JOIN approval_assignments ON approval_assignments.approval_id = course_approvals.id AND approval_assignments.deleted_at IS NULL").
		Where("approval_assignments.reviewer_id = ?", reviewerID).
		Where("course_approvals.status IN ?", model.ActiveApprovalStatuses).
		Order("course_approvals.created_at asc").
		Find(&as).Error
	return as, err
}

// CountActiveByReviewers 候选人当前工作量：持有任一槽位且记录仍在途的审批数
func (r *ApprovalRepository) CountActiveByReviewers(reviewerIDs []uint) (map[uint]int, error) {
	type row struct {
		ReviewerID uint
		Count      int
	}
	var rows []row
	err := r.DB.Model(&model.ApprovalAssignment{}).
		Select("approval_assignments.reviewer_id, count(*) as count").
		Joins("JOIN course_approvals ON course_approvals.id = approval_assignments.approval_id").
		Where("approval_assignments.reviewer_id IN ?", reviewerIDs).
		Where("approval_assignments.deleted_at IS NULL").
		Where("course_approvals.status IN ?", model.ActiveApprovalStatuses).
		Group("approval_assignments.reviewer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int, len(rows))
	for _, r := range rows {
		out[r.ReviewerID] = r.Count
	}
	return out, nil
}

// ListActive SLA 巡检用：所有未裁决的审批
func (r *ApprovalRepository) ListActive() ([]model.CourseApproval, error) {
	var as []model.CourseApproval
	err := r.DB.Where("status IN ?", model.ActiveApprovalStatuses).Find(&as).Error
	return as, err
}

type DashboardCounts struct {
	ByStatus   map[model.ApprovalStatus]int64   `json:"byStatus"`
	ByPriority map[model.ApprovalPriority]int64 `json:"byPriority"`
	BySLA      map[model.SLAStatus]int64        `json:"bySla"`
}

// DashboardCounts 审批队列概览：按状态、优先级分组计数（SLA 桶由服务层补充）
func (r *ApprovalRepository) CountsByStatusAndPriority() (*DashboardCounts, error) {
	counts := &DashboardCounts{
		ByStatus:   map[model.ApprovalStatus]int64{},
		ByPriority: map[model.ApprovalPriority]int64{},
		BySLA:      map[model.SLAStatus]int64{},
	}

	type statusRow struct {
		Status model.ApprovalStatus
		Count  int64
	}
	var statusRows []statusRow
	if err := r.DB.Model(&model.CourseApproval{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusRows).Error; err != nil {
		return nil, err
	}
	for _, row := range statusRows {
		counts.ByStatus[row.Status] = row.Count
	}

	type priorityRow struct {
		Priority model.ApprovalPriority
		Count    int64
	}
	var priorityRows []priorityRow
	if err := r.DB.Model(&model.CourseApproval{}).
		Where("status IN ?", model.ActiveApprovalStatuses).
		Select("priority, count(*) as count").
		Group("priority").
		Scan(&priorityRows).Error; err != nil {
		return nil, err
	}
	for _, row := range priorityRows {
		counts.ByPriority[row.Priority] = row.Count
	}

	return counts, nil
}
