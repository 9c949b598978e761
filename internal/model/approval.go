package model

import (
	"fmt"
	"time"
)

type ReviewerRole string

const (
	RolePrimary   ReviewerRole = "primary"
	RoleContent   ReviewerRole = "content"
	RoleTechnical ReviewerRole = "technical"
	RoleQuality   ReviewerRole = "quality"
	RoleFinal     ReviewerRole = "final"
)

var AllReviewerRoles = []ReviewerRole{RolePrimary, RoleContent, RoleTechnical, RoleQuality, RoleFinal}

func ValidReviewerRole(r ReviewerRole) bool {
	for _, role := range AllReviewerRoles {
		if r == role {
			return true
		}
	}
	return false
}

type ApprovalStage string

const (
	StageInitialReview    ApprovalStage = "initial_review"
	StageContentReview    ApprovalStage = "content_review"
	StageQualityAssurance ApprovalStage = "quality_assurance"
	StageFinalApproval    ApprovalStage = "final_approval"
	StageCompleted        ApprovalStage = "completed"
)

// StageOrder 审批阶段固定顺序，只允许向前推进
var StageOrder = []ApprovalStage{
	StageInitialReview,
	StageContentReview,
	StageQualityAssurance,
	StageFinalApproval,
	StageCompleted,
}

// NextStage 返回下一阶段；completed 之后没有下一阶段
func NextStage(s ApprovalStage) (ApprovalStage, bool) {
	for i, stage := range StageOrder {
		if stage == s && i+1 < len(StageOrder) {
			return StageOrder[i+1], true
		}
	}
	return s, false
}

// StageRequirements 每个阶段要求哪些角色至少提交一条评审
type StageRequirements map[ApprovalStage][]ReviewerRole

func DefaultStageRequirements() StageRequirements {
	return StageRequirements{
		StageInitialReview:    {RolePrimary},
		StageContentReview:    {RoleContent, RoleTechnical},
		StageQualityAssurance: {RoleQuality},
		StageFinalApproval:    {RoleFinal},
	}
}

type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "pending"
	ApprovalUnderReview      ApprovalStatus = "under_review"
	ApprovalRevisionRequired ApprovalStatus = "revision_required"
	ApprovalApproved         ApprovalStatus = "approved"
	ApprovalRejected         ApprovalStatus = "rejected"
)

// ActiveApprovalStatuses 计入审核人工作量的状态
var ActiveApprovalStatuses = []ApprovalStatus{
	ApprovalPending,
	ApprovalUnderReview,
	ApprovalRevisionRequired,
}

type SubmissionType string

const (
	SubmissionNewCourse       SubmissionType = "new_course"
	SubmissionCourseUpdate    SubmissionType = "course_update"
	SubmissionContentRevision SubmissionType = "content_revision"
	SubmissionResubmission    SubmissionType = "resubmission"
)

type ApprovalPriority string

const (
	PriorityLow    ApprovalPriority = "low"
	PriorityNormal ApprovalPriority = "normal"
	PriorityHigh   ApprovalPriority = "high"
	PriorityUrgent ApprovalPriority = "urgent"
)

type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// SeverityRank 排序用；数值越大越严重
var SeverityRank = map[IssueSeverity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

type ReviewIssue struct {
	Severity    IssueSeverity `json:"severity"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Location    string        `json:"location,omitempty"`
	Suggestion  string        `json:"suggestion,omitempty"`
	Resolved    bool          `json:"resolved"`
}

// Review 一条 (审核人, 角色) 的评审提交
type Review struct {
	ReviewerID   uint          `json:"reviewerId"`
	ReviewerName string        `json:"reviewerName"`
	Role         ReviewerRole  `json:"role"`
	Score        int           `json:"score"`
	Category     string        `json:"category,omitempty"`
	Feedback     string        `json:"feedback"`
	Issues       []ReviewIssue `json:"issues,omitempty"`
	Approved     bool          `json:"approved"`
	SubmittedAt  time.Time     `json:"submittedAt"`
}

type ReviewerAssignment struct {
	ReviewerID uint      `json:"reviewerId"`
	Name       string    `json:"name"`
	AssignedAt time.Time `json:"assignedAt"`
}

// ReviewTeam 五个固定角色槽位，每个槽位最多一名审核人
type ReviewTeam struct {
	Slots        map[ReviewerRole]*ReviewerAssignment `json:"slots"`
	AssignedDate *time.Time                           `json:"assignedDate,omitempty"`
	StartedAt    *time.Time                           `json:"startedAt,omitempty"`
	CompletedAt  *time.Time                           `json:"completedAt,omitempty"`
}

// RoleOf 返回审核人在本记录中持有的角色槽位
func (t *ReviewTeam) RoleOf(reviewerID uint) (ReviewerRole, bool) {
	for role, a := range t.Slots {
		if a != nil && a.ReviewerID == reviewerID {
			return role, true
		}
	}
	return "", false
}

type CompletedStage struct {
	Stage       ApprovalStage `json:"stage"`
	CompletedAt time.Time     `json:"completedAt"`
}

type ReviewProcess struct {
	CurrentStage    ApprovalStage    `json:"currentStage"`
	CompletedStages []CompletedStage `json:"completedStages,omitempty"`
}

type ApprovalFeedback struct {
	Reviews      []Review `json:"reviews"`
	OverallScore float64  `json:"overallScore"`
}

// RecomputeOverallScore 所有评审分数的算术平均；每追加一条评审后重算
func (f *ApprovalFeedback) RecomputeOverallScore() {
	if len(f.Reviews) == 0 {
		f.OverallScore = 0
		return
	}
	sum := 0
	for _, r := range f.Reviews {
		sum += r.Score
	}
	f.OverallScore = float64(sum) / float64(len(f.Reviews))
}

type SLAStatus string

const (
	SLAOnTrack  SLAStatus = "on_track"
	SLAAtRisk   SLAStatus = "at_risk"
	SLABreached SLAStatus = "breached"
)

type SLAInfo struct {
	TargetHours int       `json:"targetHours"`
	ActualHours *float64  `json:"actualHours,omitempty"`
	Status      SLAStatus `json:"status"`
}

type ApprovalDecision struct {
	FinalDecision          ApprovalStatus `json:"finalDecision,omitempty"` // approved / rejected
	DecisionMaker          string         `json:"decisionMaker,omitempty"`
	Reason                 string         `json:"reason,omitempty"`
	ResubmissionGuidelines []string       `json:"resubmissionGuidelines,omitempty"`
	DecidedAt              *time.Time     `json:"decidedAt,omitempty"`
}

type AuditEntry struct {
	Action         string         `json:"action"`
	Actor          string         `json:"actor"`
	Timestamp      time.Time      `json:"timestamp"`
	PreviousStatus ApprovalStatus `json:"previousStatus,omitempty"`
	NewStatus      ApprovalStatus `json:"newStatus,omitempty"`
	Detail         string         `json:"detail,omitempty"`
}

// CourseApproval 人工多阶段审批记录，仅在自动化无法决定时创建
// swagger:model CourseApproval
type CourseApproval struct {
	BaseModel
	ApprovalID     string           `gorm:"size:20;uniqueIndex;not null" json:"approvalId"`
	CourseID       uint             `gorm:"index;type:bigint unsigned" json:"courseId"`
	Course         *Course          `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	EvaluationID   string           `gorm:"size:36;index" json:"evaluationId"`
	SubmitterID    uint             `gorm:"index;type:bigint unsigned" json:"submitterId"`
	SubmitterName  string           `gorm:"size:100" json:"submitterName"`
	SubmissionType SubmissionType   `gorm:"size:20;default:'new_course'" json:"submissionType"`
	Priority       ApprovalPriority `gorm:"size:10;default:'normal';index" json:"priority"`
	Status         ApprovalStatus   `gorm:"size:20;default:'pending';index" json:"status"`
	ReviewProcess  ReviewProcess    `gorm:"type:json;serializer:json" json:"reviewProcess"`
	ReviewTeam     ReviewTeam       `gorm:"type:json;serializer:json" json:"reviewTeam"`
	Feedback       ApprovalFeedback `gorm:"type:json;serializer:json" json:"feedback"`
	SLA            SLAInfo          `gorm:"type:json;serializer:json" json:"sla"`
	Decision       ApprovalDecision `gorm:"type:json;serializer:json" json:"decision"`
	AuditLog       []AuditEntry     `gorm:"type:json;serializer:json" json:"auditLog"`
}

func (CourseApproval) TableName() string {
	return "course_approvals"
}

// Decided 终态判定：finalDecision 一旦写入，记录不可再变更
func (a *CourseApproval) Decided() bool {
	return a.Decision.FinalDecision != ""
}

// Audit 审计日志仅追加，保持写入顺序
func (a *CourseApproval) Audit(action, actor string, prev, next ApprovalStatus, detail string) {
	a.AuditLog = append(a.AuditLog, AuditEntry{
		Action:         action,
		Actor:          actor,
		Timestamp:      time.Now(),
		PreviousStatus: prev,
		NewStatus:      next,
		Detail:         detail,
	})
}

// FormatApprovalID 生成人类可读审批号，序号由 Redis 年度序列保证唯一
func FormatApprovalID(year int, seq int64) string {
	return fmt.Sprintf("APPR-%d-%06d", year, seq)
}
