package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"lms_backend/internal/model"
	"lms_backend/internal/util"
)

func pipelineSettings() model.PlatformSettings {
	return model.PlatformSettings{
		AutoApprovalEnabled:  true,
		ScoreThreshold:       85,
		MinDescriptionLength: 50,
		MinSections:          3,
		MinLessons:           5,
	}
}

func richCourse() *model.Course {
	lesson := model.CourseLesson{Title: "lesson", Type: "video", Duration: 15}
	return &model.Course{
		Title:       "完整课程",
		Description: strings.Repeat("课程介绍", 20), // 远超 50 字符
		Sections: []model.CourseSection{
			{Title: "一", Lessons: []model.CourseLesson{lesson, lesson}},
			{Title: "二", Lessons: []model.CourseLesson{lesson, lesson}},
			{Title: "三", Lessons: []model.CourseLesson{lesson}},
		},
	}
}

func TestAutoApprovalChecks(t *testing.T) {
	analysis := &model.CourseAnalysis{OverallScore: 90}

	t.Run("all checks pass", func(t *testing.T) {
		reasons := autoApprovalChecks(richCourse(), analysis, pipelineSettings())
		if len(reasons) != 0 {
			t.Errorf("unexpected reasons: %v", reasons)
		}
	})

	t.Run("score below threshold", func(t *testing.T) {
		low := &model.CourseAnalysis{OverallScore: 84}
		reasons := autoApprovalChecks(richCourse(), low, pipelineSettings())
		if len(reasons) != 1 {
			t.Fatalf("reasons = %v, want exactly the score reason", reasons)
		}
	})

	t.Run("short description fails even with high score", func(t *testing.T) {
		course := richCourse()
		course.Description = "只有三十个字符左右的简介"
		reasons := autoApprovalChecks(course, analysis, pipelineSettings())
		if len(reasons) != 1 || !strings.Contains(reasons[0], "描述") {
			t.Errorf("reasons = %v, want description-length failure", reasons)
		}
	})

	t.Run("too few sections", func(t *testing.T) {
		course := richCourse()
		course.Sections = course.Sections[:2]
		reasons := autoApprovalChecks(course, analysis, pipelineSettings())
		found := false
		for _, r := range reasons {
			if strings.Contains(r, "章节") {
				found = true
			}
		}
		if !found {
			t.Errorf("reasons = %v, want section-count failure", reasons)
		}
	})

	t.Run("too few lessons", func(t *testing.T) {
		course := richCourse()
		for i := range course.Sections {
			course.Sections[i].Lessons = course.Sections[i].Lessons[:1]
		}
		reasons := autoApprovalChecks(course, analysis, pipelineSettings())
		found := false
		for _, r := range reasons {
			if strings.Contains(r, "课时") {
				found = true
			}
		}
		if !found {
			t.Errorf("reasons = %v, want lesson-count failure", reasons)
		}
	})

	t.Run("multiple failures accumulate", func(t *testing.T) {
		course := &model.Course{Title: "空课程", Description: "短"}
		low := &model.CourseAnalysis{OverallScore: 40}
		reasons := autoApprovalChecks(course, low, pipelineSettings())
		if len(reasons) != 4 {
			t.Errorf("reasons = %d, want all 4 checks to fail: %v", len(reasons), reasons)
		}
	})
}

func TestAutoApprovalReasonsDisabled(t *testing.T) {
	perfect := &model.CourseAnalysis{OverallScore: 100}

	settings := pipelineSettings()
	settings.AutoApprovalEnabled = false
	if reasons := autoApprovalReasons(richCourse(), perfect, settings); len(reasons) == 0 {
		t.Fatal("开关关闭时必须给出转人工原因，满分课程也不例外")
	}

	settings.AutoApprovalEnabled = true
	if reasons := autoApprovalReasons(richCourse(), perfect, settings); len(reasons) != 0 {
		t.Errorf("开关开启且全部检查通过，reasons = %v", reasons)
	}
}

func TestDailyCapExceeded(t *testing.T) {
	tests := []struct {
		n    int64
		cap  int
		want bool
	}{
		{1, 50, false},
		{50, 50, false},
		{51, 50, true},
		{1000, 0, false}, // cap <= 0 不设限
	}
	for _, tt := range tests {
		if got := dailyCapExceeded(tt.n, tt.cap); got != tt.want {
			t.Errorf("dailyCapExceeded(%d, %d) = %v, want %v", tt.n, tt.cap, got, tt.want)
		}
	}
}

func TestEvaluationStuck(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		ev   model.CourseEvaluation
		want bool
	}{
		{"刚入队的 processing", model.CourseEvaluation{Status: model.EvaluationProcessing, SubmittedAt: now.Add(-time.Minute)}, false},
		{"长时间无进展的 processing", model.CourseEvaluation{Status: model.EvaluationProcessing, SubmittedAt: now.Add(-time.Hour)}, true},
		{"失败记录不算卡死", model.CourseEvaluation{Status: model.EvaluationFailed, SubmittedAt: now.Add(-time.Hour)}, false},
		{"完结记录不算卡死", model.CourseEvaluation{Status: model.EvaluationCompleted, SubmittedAt: now.Add(-time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluationStuck(&tt.ev, now); got != tt.want {
				t.Errorf("evaluationStuck = %v, want %v", got, tt.want)
			}
		})
	}
}

// ---- 基于内存实现的提交流程测试 ----

type fakeEvaluationStore struct {
	mu    sync.Mutex
	seq   int
	evals map[string]*model.CourseEvaluation
}

func newFakeEvaluationStore() *fakeEvaluationStore {
	return &fakeEvaluationStore{evals: make(map[string]*model.CourseEvaluation)}
}

func (f *fakeEvaluationStore) FindByID(id string) (*model.CourseEvaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.evals[id]
	if !ok {
		return nil, util.ErrEvaluationNotFound
	}
	copied := *ev
	return &copied, nil
}

// CreateGuarded 与 SQL 实现同一约束：同课程存在非终态评估时拒绝
func (f *fakeEvaluationStore) CreateGuarded(ev *model.CourseEvaluation, _ func(tx *gorm.DB) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.evals {
		if e.CourseID == ev.CourseID && !e.Status.IsTerminal() {
			return util.ErrDuplicateSubmission
		}
	}
	f.seq++
	ev.ID = fmt.Sprintf("eval-%d", f.seq)
	copied := *ev
	f.evals[ev.ID] = &copied
	return nil
}

func (f *fakeEvaluationStore) UpdateLocked(id string, fn func(tx *gorm.DB, ev *model.CourseEvaluation) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.evals[id]
	if !ok {
		return util.ErrEvaluationNotFound
	}
	return fn(nil, ev)
}

func (f *fakeEvaluationStore) ListByStatus(model.EvaluationStatus, int, int) ([]model.CourseEvaluation, int64, error) {
	return nil, 0, nil
}

func (f *fakeEvaluationStore) FindLatestByCourse(uint) (*model.CourseEvaluation, error) {
	return nil, util.ErrEvaluationNotFound
}

func (f *fakeEvaluationStore) CountByStatus() (map[model.EvaluationStatus]int64, error) {
	return nil, nil
}

type fakeCourseStore struct {
	courses map[uint]*model.Course
}

func (f *fakeCourseStore) FindByID(id uint) (*model.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, util.ErrCourseNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCourseStore) UpdateStatus(id uint, status model.CourseStatus) error {
	if c, ok := f.courses[id]; ok {
		c.Status = status
	}
	return nil
}

func (f *fakeCourseStore) MarkPublished(id uint, _ time.Time) error {
	if c, ok := f.courses[id]; ok {
		c.Status = model.CourseApproved
		c.IsPublished = true
	}
	return nil
}

func newPipelineForTest() (*EvaluationService, *fakeEvaluationStore, *fakeCourseStore) {
	evals := newFakeEvaluationStore()
	courses := &fakeCourseStore{courses: make(map[uint]*model.Course)}
	svc := NewEvaluationService(evals, courses, nil, nil, nil, nil, 1, 16)
	return svc, evals, courses
}

func TestSubmitDuplicateGuard(t *testing.T) {
	svc, evals, courses := newPipelineForTest()
	courses.courses[1] = &model.Course{Title: "Go 入门", Status: model.CourseDraft, InstructorID: 7}
	instructor := &util.Claims{UserID: 7, Name: "讲师", Role: model.Instructor}

	first, err := svc.Submit(1, instructor)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if first.Status != model.EvaluationProcessing {
		t.Errorf("first submit status = %s, want processing", first.Status)
	}

	if _, err := svc.Submit(1, instructor); !errors.Is(err, util.ErrDuplicateSubmission) {
		t.Fatalf("second submit err = %v, want ErrDuplicateSubmission", err)
	}

	// 前一次尝试进入终态后允许再次提交
	evals.evals[first.ID].Status = model.EvaluationFailed
	if _, err := svc.Submit(1, instructor); err != nil {
		t.Fatalf("submit after terminal prior attempt: %v", err)
	}
}

func TestRetryStuckProcessing(t *testing.T) {
	admin := &util.Claims{UserID: 1, Name: "管理员", Role: model.Admin}

	t.Run("stale processing record is failed then retried", func(t *testing.T) {
		svc, evals, courses := newPipelineForTest()
		courses.courses[1] = &model.Course{Title: "Go 入门", Status: model.CourseDraft, InstructorID: 7}

		stuck := &model.CourseEvaluation{
			CourseID:    1,
			SubmitterID: 7,
			Status:      model.EvaluationProcessing,
			SubmittedAt: time.Now().Add(-time.Hour),
		}
		if err := evals.CreateGuarded(stuck, nil); err != nil {
			t.Fatalf("seed stuck evaluation: %v", err)
		}

		// 卡死记录阻塞同课程的新提交
		if _, err := svc.Submit(1, admin); !errors.Is(err, util.ErrDuplicateSubmission) {
			t.Fatalf("submit err = %v, want ErrDuplicateSubmission", err)
		}

		fresh, err := svc.Retry(stuck.ID, admin)
		if err != nil {
			t.Fatalf("retry stuck evaluation: %v", err)
		}
		if fresh.ID == stuck.ID {
			t.Error("retry should create a fresh attempt, not reuse the stuck record")
		}
		if got := evals.evals[stuck.ID].Status; got != model.EvaluationFailed {
			t.Errorf("stuck record status = %s, want failed", got)
		}
		if fresh.Status != model.EvaluationProcessing {
			t.Errorf("fresh attempt status = %s, want processing", fresh.Status)
		}
	})

	t.Run("recent processing record is not retryable", func(t *testing.T) {
		svc, evals, courses := newPipelineForTest()
		courses.courses[1] = &model.Course{Title: "Go 入门", Status: model.CourseDraft, InstructorID: 7}

		running := &model.CourseEvaluation{
			CourseID:    1,
			SubmitterID: 7,
			Status:      model.EvaluationProcessing,
			SubmittedAt: time.Now(),
		}
		if err := evals.CreateGuarded(running, nil); err != nil {
			t.Fatalf("seed running evaluation: %v", err)
		}

		if _, err := svc.Retry(running.ID, admin); !errors.Is(err, util.ErrEvaluationNotRetryable) {
			t.Errorf("retry err = %v, want ErrEvaluationNotRetryable", err)
		}
	})
}

func TestCourseSubmittable(t *testing.T) {
	tests := []struct {
		status model.CourseStatus
		want   bool
	}{
		{model.CourseDraft, true},
		{model.CourseNeedsRevision, true},
		{model.CourseRejected, true},
		{model.CourseApproved, true}, // 已上架课程提交内容更新
		{model.CourseSubmitted, false},
	}
	for _, tt := range tests {
		c := &model.Course{Status: tt.status}
		if got := courseSubmittable(c); got != tt.want {
			t.Errorf("courseSubmittable(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
