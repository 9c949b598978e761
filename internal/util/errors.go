package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrPermissionDenied   = errors.New("permission denied")

	ErrCourseNotFound       = errors.New("course not found")
	ErrCourseNotSubmittable = errors.New("course is not in a submittable state")
	// ErrDuplicateSubmission 同一课程已有在途评估，需等其结束后再提交
	ErrDuplicateSubmission = errors.New("a previous submission for this course is still being evaluated")

	ErrEvaluationNotFound      = errors.New("evaluation not found")
	ErrEvaluationNotRetryable  = errors.New("only a failed evaluation can be retried")
	ErrEvaluationNotReviewable = errors.New("evaluation is not awaiting admin review")
	// ErrScoringFailed 评分模型调用失败或输出不合法，该次尝试终止
	ErrScoringFailed = errors.New("content scoring failed")

	ErrApprovalNotFound      = errors.New("approval record not found")
	ErrNoAvailableReviewer   = errors.New("no reviewer available for this role")
	ErrReviewerNotAssigned   = errors.New("reviewer is not assigned to this approval")
	ErrReviewerAlreadyInTeam = errors.New("reviewer already holds a role on this approval")
	ErrAlreadyDecided        = errors.New("approval has already been decided")
	ErrInvalidReviewerRole   = errors.New("invalid reviewer role")
)
