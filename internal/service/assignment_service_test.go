package service

import (
	"testing"

	"lms_backend/internal/model"
)

func reviewerUser(id uint, expertise ...string) model.User {
	u := model.User{
		Name:      "reviewer",
		Role:      model.Reviewer,
		Expertise: expertise,
		IsActive:  true,
	}
	u.ID = id
	return u
}

func TestSelectReviewer(t *testing.T) {
	candidates := []model.User{
		reviewerUser(1, "content"),
		reviewerUser(2),
		reviewerUser(3, "content", "technical"),
	}

	t.Run("prefers expertise match", func(t *testing.T) {
		workloads := map[uint]int{1: 3, 2: 0, 3: 3}
		pick, ok := SelectReviewer(model.RoleContent, candidates, workloads, 10, nil)
		if !ok {
			t.Fatal("expected a reviewer")
		}
		// 2 号工作量最低但无 content 专长，专长匹配优先
		if pick.ID != 1 && pick.ID != 3 {
			t.Errorf("picked %d, want an expertise match (1 or 3)", pick.ID)
		}
	})

	t.Run("lowest workload among matches", func(t *testing.T) {
		workloads := map[uint]int{1: 5, 3: 2}
		pick, ok := SelectReviewer(model.RoleContent, candidates, workloads, 10, nil)
		if !ok || pick.ID != 3 {
			t.Fatalf("picked %v, want reviewer 3 with lower workload", pick)
		}
	})

	t.Run("workload tie breaks by id", func(t *testing.T) {
		workloads := map[uint]int{1: 2, 3: 2}
		pick, ok := SelectReviewer(model.RoleContent, candidates, workloads, 10, nil)
		if !ok || pick.ID != 1 {
			t.Fatalf("picked %v, want reviewer 1 on tie", pick)
		}
	})

	t.Run("capacity excludes saturated reviewers", func(t *testing.T) {
		workloads := map[uint]int{1: 8, 2: 8, 3: 8}
		if _, ok := SelectReviewer(model.RoleContent, candidates, workloads, 8, nil); ok {
			t.Error("no reviewer should be eligible at capacity")
		}
	})

	t.Run("excluded reviewers are skipped", func(t *testing.T) {
		workloads := map[uint]int{}
		exclude := map[uint]bool{1: true, 3: true}
		pick, ok := SelectReviewer(model.RoleContent, candidates, workloads, 10, exclude)
		if !ok || pick.ID != 2 {
			t.Fatalf("picked %v, want reviewer 2 (others hold slots)", pick)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		if _, ok := SelectReviewer(model.RoleContent, nil, nil, 10, nil); ok {
			t.Error("expected no reviewer from empty candidate list")
		}
	})
}
