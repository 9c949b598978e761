package model

import "time"

type EvaluationStatus string

const (
	EvaluationProcessing  EvaluationStatus = "processing"
	EvaluationAICompleted EvaluationStatus = "ai_completed"
	EvaluationAdminReview EvaluationStatus = "admin_review"
	EvaluationCompleted   EvaluationStatus = "completed"
	EvaluationFailed      EvaluationStatus = "failed"
)

// IsTerminal 终态：completed / failed，之后才允许发起新一次提交
func (s EvaluationStatus) IsTerminal() bool {
	return s == EvaluationCompleted || s == EvaluationFailed
}

// NonTerminalEvaluationStatuses 重复提交保护所检查的在途状态
var NonTerminalEvaluationStatuses = []EvaluationStatus{
	EvaluationProcessing,
	EvaluationAICompleted,
	EvaluationAdminReview,
}

type ReviewDecision string

const (
	DecisionPending       ReviewDecision = "pending"
	DecisionApproved      ReviewDecision = "approved"
	DecisionRejected      ReviewDecision = "rejected"
	DecisionNeedsRevision ReviewDecision = "needs_revision"
)

// DimensionScore 单维度评分，0-100
type DimensionScore struct {
	Score    int      `json:"score"`
	Feedback string   `json:"feedback"`
	Issues   []string `json:"issues,omitempty"`
}

// CourseAnalysis 评分模型的结构化输出
type CourseAnalysis struct {
	ContentQuality   DimensionScore `json:"contentQuality"`
	StructureQuality DimensionScore `json:"structureQuality"`
	EducationalValue DimensionScore `json:"educationalValue"`
	Completeness     DimensionScore `json:"completeness"`
	OverallScore     int            `json:"overallScore"`
	Strengths        []string       `json:"strengths,omitempty"`
	Weaknesses       []string       `json:"weaknesses,omitempty"`
	Recommendations  []string       `json:"recommendations,omitempty"`
	ModelID          string         `json:"modelId,omitempty"`
	AnalyzedAt       *time.Time     `json:"analyzedAt,omitempty"`
}

type RevisionRequest struct {
	Sections []string   `json:"sections"`
	Details  string     `json:"details"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type AdminReview struct {
	Decision        ReviewDecision   `json:"decision"`
	ReviewerID      uint             `json:"reviewerId,omitempty"`
	ReviewerName    string           `json:"reviewerName,omitempty"`
	OverrideScore   *int             `json:"overrideScore,omitempty"`
	Feedback        string           `json:"feedback,omitempty"`
	Comments        string           `json:"comments,omitempty"`
	RevisionRequest *RevisionRequest `json:"revisionRequest,omitempty"`
	// IsAutomatic 自动审批产生的决定
	IsAutomatic bool       `json:"isAutomatic,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
}

type ProcessingLog struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
}

// CourseEvaluation 一次课程提交的评估记录，每次提交尝试一条，终态后只会被新记录取代
// swagger:model CourseEvaluation
type CourseEvaluation struct {
	UUIDBase
	CourseID      uint             `gorm:"index;type:bigint unsigned" json:"courseId"`
	Course        *Course          `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	SubmitterID   uint             `gorm:"index;type:bigint unsigned" json:"submitterId"`
	SubmitterName string           `gorm:"size:100" json:"submitterName"`
	SubmitterRole UserRole         `gorm:"size:20" json:"submitterRole"`
	SubmittedAt   time.Time        `json:"submittedAt"`
	Status        EvaluationStatus `gorm:"size:20;default:'processing';index" json:"status"`
	AIAnalysis    *CourseAnalysis  `gorm:"type:json;serializer:json" json:"aiAnalysis,omitempty"`
	AdminReview   AdminReview      `gorm:"type:json;serializer:json" json:"adminReview"`
	ProcessingLogs []ProcessingLog `gorm:"type:json;serializer:json" json:"processingLogs"`
}

func (CourseEvaluation) TableName() string {
	return "course_evaluations"
}

// AppendLog 处理日志仅追加，保持写入顺序
func (e *CourseEvaluation) AppendLog(stage, message string, err error) {
	entry := ProcessingLog{
		Timestamp: time.Now(),
		Stage:     stage,
		Message:   message,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	e.ProcessingLogs = append(e.ProcessingLogs, entry)
}
