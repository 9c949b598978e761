package service

import (
	"strings"
	"testing"
	"time"

	"lms_backend/internal/model"
)

func TestClassifySLA(t *testing.T) {
	tests := []struct {
		name    string
		elapsed float64
		target  float64
		want    model.SLAStatus
	}{
		{"fresh", 10, 72, model.SLAOnTrack},
		{"half target", 36, 72, model.SLAOnTrack},
		{"exactly 80 percent", 57.6, 72, model.SLAOnTrack},
		{"at risk", 61.2, 72, model.SLAAtRisk}, // 85%
		{"exactly target", 72, 72, model.SLAAtRisk},
		{"breached", 79.2, 72, model.SLABreached}, // 110%
		{"no target", 1000, 0, model.SLAOnTrack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifySLA(tt.elapsed, tt.target); got != tt.want {
				t.Errorf("ClassifySLA(%.1f, %.1f) = %s, want %s", tt.elapsed, tt.target, got, tt.want)
			}
		})
	}
}

func approvalWithReviews(stage model.ApprovalStage, reviews ...model.Review) *model.CourseApproval {
	a := &model.CourseApproval{
		Status:        model.ApprovalUnderReview,
		ReviewProcess: model.ReviewProcess{CurrentStage: stage},
		ReviewTeam:    model.ReviewTeam{Slots: map[model.ReviewerRole]*model.ReviewerAssignment{}},
		Feedback:      model.ApprovalFeedback{Reviews: reviews},
	}
	a.Feedback.RecomputeOverallScore()
	return a
}

func review(role model.ReviewerRole, score int, issues ...model.ReviewIssue) model.Review {
	return model.Review{
		ReviewerID:  1,
		Role:        role,
		Score:       score,
		Issues:      issues,
		SubmittedAt: time.Now(),
	}
}

func TestStageSatisfied(t *testing.T) {
	reqs := model.DefaultStageRequirements()

	t.Run("missing required role", func(t *testing.T) {
		a := approvalWithReviews(model.StageContentReview, review(model.RoleContent, 80))
		if StageSatisfied(a, model.StageContentReview, reqs) {
			t.Error("content_review needs both content and technical reviews")
		}
	})

	t.Run("all roles reviewed", func(t *testing.T) {
		a := approvalWithReviews(model.StageContentReview,
			review(model.RoleContent, 80), review(model.RoleTechnical, 75))
		if !StageSatisfied(a, model.StageContentReview, reqs) {
			t.Error("stage should be satisfied with both required roles")
		}
	})

	t.Run("stage with no requirements", func(t *testing.T) {
		a := approvalWithReviews(model.StageInitialReview)
		if !StageSatisfied(a, "unknown_stage", reqs) {
			t.Error("stage without requirements is trivially satisfied")
		}
	})
}

func TestAdvanceStages(t *testing.T) {
	reqs := model.DefaultStageRequirements()
	now := time.Now()

	t.Run("cascades through satisfied stages", func(t *testing.T) {
		// initial 与 content 的评审都已在场，应连续推进两个阶段
		a := approvalWithReviews(model.StageInitialReview,
			review(model.RolePrimary, 80),
			review(model.RoleContent, 78),
			review(model.RoleTechnical, 82))

		completed := AdvanceStages(a, reqs, now)
		if len(completed) != 2 {
			t.Fatalf("completed %d stages, want 2: %v", len(completed), completed)
		}
		if a.ReviewProcess.CurrentStage != model.StageQualityAssurance {
			t.Errorf("current stage = %s, want quality_assurance", a.ReviewProcess.CurrentStage)
		}
	})

	t.Run("idempotent on re-check", func(t *testing.T) {
		a := approvalWithReviews(model.StageInitialReview, review(model.RolePrimary, 80))

		first := AdvanceStages(a, reqs, now)
		if len(first) != 1 || a.ReviewProcess.CurrentStage != model.StageContentReview {
			t.Fatalf("first advance: completed=%v stage=%s", first, a.ReviewProcess.CurrentStage)
		}

		second := AdvanceStages(a, reqs, now)
		if len(second) != 0 {
			t.Errorf("second advance completed %v, want none", second)
		}
		if len(a.ReviewProcess.CompletedStages) != 1 {
			t.Errorf("completed stages recorded %d times, want exactly once", len(a.ReviewProcess.CompletedStages))
		}
	})

	t.Run("stops before completed", func(t *testing.T) {
		a := approvalWithReviews(model.StageInitialReview,
			review(model.RolePrimary, 80),
			review(model.RoleContent, 78),
			review(model.RoleTechnical, 82),
			review(model.RoleQuality, 85),
			review(model.RoleFinal, 88))

		AdvanceStages(a, reqs, now)
		if a.ReviewProcess.CurrentStage != model.StageFinalApproval {
			t.Errorf("current stage = %s; completed is only entered by a final decision", a.ReviewProcess.CurrentStage)
		}
	})
}

func TestEvaluateAutoDecision(t *testing.T) {
	t.Run("no reviews yet", func(t *testing.T) {
		a := approvalWithReviews(model.StageInitialReview)
		if _, _, _, ok := EvaluateAutoDecision(a); ok {
			t.Error("no decision expected without reviews")
		}
	})

	t.Run("critical issue rejects even with high score", func(t *testing.T) {
		a := approvalWithReviews(model.StageContentReview,
			review(model.RolePrimary, 92, model.ReviewIssue{
				Severity: model.SeverityCritical, Category: "accuracy", Description: "示例代码无法编译",
			}))
		decision, _, criticals, ok := EvaluateAutoDecision(a)
		if !ok || decision != model.ApprovalRejected {
			t.Fatalf("decision = %s ok=%v, want rejected", decision, ok)
		}
		if len(criticals) != 1 {
			t.Errorf("criticals = %d, want 1", len(criticals))
		}
	})

	t.Run("resolved critical does not reject", func(t *testing.T) {
		a := approvalWithReviews(model.StageContentReview,
			review(model.RolePrimary, 75, model.ReviewIssue{
				Severity: model.SeverityCritical, Category: "accuracy", Description: "已修复", Resolved: true,
			}))
		if decision, _, _, ok := EvaluateAutoDecision(a); ok {
			t.Errorf("unexpected decision %s for mid-range score with resolved critical", decision)
		}
	})

	t.Run("high score approves", func(t *testing.T) {
		a := approvalWithReviews(model.StageContentReview,
			review(model.RolePrimary, 92), review(model.RoleContent, 90))
		decision, _, _, ok := EvaluateAutoDecision(a)
		if !ok || decision != model.ApprovalApproved {
			t.Fatalf("decision = %s ok=%v, want approved", decision, ok)
		}
	})

	t.Run("low score rejects", func(t *testing.T) {
		a := approvalWithReviews(model.StageContentReview,
			review(model.RolePrimary, 50), review(model.RoleContent, 55))
		decision, _, _, ok := EvaluateAutoDecision(a)
		if !ok || decision != model.ApprovalRejected {
			t.Fatalf("decision = %s ok=%v, want rejected", decision, ok)
		}
	})

	t.Run("mid-range defers to human", func(t *testing.T) {
		a := approvalWithReviews(model.StageContentReview,
			review(model.RolePrimary, 75), review(model.RoleContent, 80))
		if decision, _, _, ok := EvaluateAutoDecision(a); ok {
			t.Errorf("unexpected auto decision %s for mid-range score", decision)
		}
	})
}

func TestBuildResubmissionGuidelines(t *testing.T) {
	reviews := []model.Review{
		review(model.RoleContent, 60,
			model.ReviewIssue{Severity: model.SeverityMedium, Category: "structure", Description: "章节顺序混乱", Suggestion: "按难度重排"},
			model.ReviewIssue{Severity: model.SeverityHigh, Category: "structure", Description: "缺少练习"},
			model.ReviewIssue{Severity: model.SeverityLow, Category: "style", Description: "标题大小写不一致", Resolved: true},
		),
		review(model.RoleTechnical, 55,
			model.ReviewIssue{Severity: model.SeverityCritical, Category: "accuracy", Description: "示例输出有误"},
		),
	}

	guidelines := BuildResubmissionGuidelines(reviews)

	// 已解决的问题不出现；每个类别只保留最高严重度
	if len(guidelines) != 2 {
		t.Fatalf("guidelines = %d entries, want 2: %v", len(guidelines), guidelines)
	}
	if !strings.Contains(guidelines[0], "accuracy") {
		t.Errorf("first guideline should be the critical accuracy issue, got %q", guidelines[0])
	}
	if !strings.Contains(guidelines[1], "缺少练习") {
		t.Errorf("structure category should keep its highest-severity issue, got %q", guidelines[1])
	}
}

func TestRecomputeSLA(t *testing.T) {
	created := time.Now().Add(-80 * time.Hour)
	a := &model.CourseApproval{
		SLA: model.SLAInfo{TargetHours: 72, Status: model.SLAOnTrack},
	}
	a.CreatedAt = created

	RecomputeSLA(a, time.Now())
	if a.SLA.Status != model.SLABreached {
		t.Errorf("sla status = %s, want breached after 80h of a 72h target", a.SLA.Status)
	}

	// 已裁决的记录以 ActualHours 为准，不再随时间漂移
	actual := 30.0
	a.SLA.ActualHours = &actual
	RecomputeSLA(a, time.Now())
	if a.SLA.Status != model.SLAOnTrack {
		t.Errorf("sla status = %s, want on_track frozen at actual 30h", a.SLA.Status)
	}
}

func TestCourseDisplayName(t *testing.T) {
	if got := courseDisplayName(&model.Course{Title: "Go 进阶"}, 3); got != "Go 进阶" {
		t.Errorf("courseDisplayName = %q, want the course title", got)
	}
	if got := courseDisplayName(nil, 3); got != "#3" {
		t.Errorf("missing course fallback = %q, want #3", got)
	}
	if got := courseDisplayName(&model.Course{}, 9); got != "#9" {
		t.Errorf("empty title fallback = %q, want #9", got)
	}
}
