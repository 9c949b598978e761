package model

import (
	"testing"
	"time"
)

func TestNextStage(t *testing.T) {
	tests := []struct {
		from   ApprovalStage
		want   ApprovalStage
		wantOK bool
	}{
		{StageInitialReview, StageContentReview, true},
		{StageContentReview, StageQualityAssurance, true},
		{StageQualityAssurance, StageFinalApproval, true},
		{StageFinalApproval, StageCompleted, true},
		{StageCompleted, StageCompleted, false},
	}
	for _, tt := range tests {
		got, ok := NextStage(tt.from)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NextStage(%s) = (%s, %v), want (%s, %v)", tt.from, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRecomputeOverallScore(t *testing.T) {
	f := ApprovalFeedback{}
	f.RecomputeOverallScore()
	if f.OverallScore != 0 {
		t.Errorf("empty feedback score = %f, want 0", f.OverallScore)
	}

	f.Reviews = []Review{{Score: 80}, {Score: 85}, {Score: 91}}
	f.RecomputeOverallScore()
	want := (80.0 + 85.0 + 91.0) / 3.0
	if f.OverallScore != want {
		t.Errorf("overall = %f, want %f", f.OverallScore, want)
	}
}

func TestReviewTeamRoleOf(t *testing.T) {
	team := ReviewTeam{
		Slots: map[ReviewerRole]*ReviewerAssignment{
			RolePrimary: {ReviewerID: 7, Name: "甲"},
			RoleContent: nil,
		},
	}

	if role, ok := team.RoleOf(7); !ok || role != RolePrimary {
		t.Errorf("RoleOf(7) = (%s, %v), want (primary, true)", role, ok)
	}
	if _, ok := team.RoleOf(8); ok {
		t.Error("RoleOf(8) should not find a slot")
	}
}

func TestFormatApprovalID(t *testing.T) {
	if got := FormatApprovalID(2026, 42); got != "APPR-2026-000042" {
		t.Errorf("FormatApprovalID = %q", got)
	}
	if got := FormatApprovalID(2026, 1234567); got != "APPR-2026-1234567" {
		t.Errorf("sequence beyond six digits should not truncate: %q", got)
	}
}

func TestDecided(t *testing.T) {
	a := &CourseApproval{}
	if a.Decided() {
		t.Error("new approval should not be decided")
	}
	now := time.Now()
	a.Decision = ApprovalDecision{FinalDecision: ApprovalApproved, DecidedAt: &now}
	if !a.Decided() {
		t.Error("approval with final decision should be decided")
	}
}

func TestEvaluationStatusTerminal(t *testing.T) {
	terminal := []EvaluationStatus{EvaluationCompleted, EvaluationFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range NonTerminalEvaluationStatuses {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
