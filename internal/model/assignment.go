package model

// ApprovalAssignment 审批分配的规范化索引表。
// ReviewTeam JSON 是文档视图；本表用于工作量统计的 SQL 查询，
// 并以唯一索引兜底「一条记录内一个审核人最多占一个槽位」的约束。
type ApprovalAssignment struct {
	BaseModel
	ApprovalID uint         `gorm:"index;uniqueIndex:idx_approval_role;uniqueIndex:idx_approval_reviewer;type:bigint unsigned" json:"approvalId"`
	ReviewerID uint         `gorm:"index;uniqueIndex:idx_approval_reviewer;type:bigint unsigned" json:"reviewerId"`
	Role       ReviewerRole `gorm:"size:20;uniqueIndex:idx_approval_role" json:"role"`
}

func (ApprovalAssignment) TableName() string {
	return "approval_assignments"
}
