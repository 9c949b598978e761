package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"lms_backend/internal/config"
	"lms_backend/internal/model"
	"lms_backend/internal/util"
)

func TestClampScore(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-10, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{150, 100},
	}
	for _, tt := range tests {
		if got := ClampScore(tt.in); got != tt.want {
			t.Errorf("ClampScore(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMeanScore(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   int
	}{
		{"empty", nil, 0},
		{"single", []int{80}, 80},
		{"exact", []int{80, 90, 70, 60}, 75},
		{"rounds up", []int{80, 81, 81, 81}, 81}, // 80.75 -> 81
		{"rounds half up", []int{85, 86, 85, 86}, 86},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MeanScore(tt.scores...); got != tt.want {
				t.Errorf("MeanScore(%v) = %d, want %d", tt.scores, got, tt.want)
			}
		})
	}
}

func validAnalysisJSON(content, structure, educational, completeness int, overall string) string {
	base := fmt.Sprintf(`"contentQuality":{"score":%d,"feedback":"ok"},"structureQuality":{"score":%d,"feedback":"ok"},"educationalValue":{"score":%d,"feedback":"ok"},"completeness":{"score":%d,"feedback":"ok"}`,
		content, structure, educational, completeness)
	if overall != "" {
		base += `,"overallScore":` + overall
	}
	return "{" + base + `,"strengths":["clear"],"weaknesses":[],"recommendations":[]}`
}

func TestParseAnalysis(t *testing.T) {
	t.Run("valid output", func(t *testing.T) {
		analysis, err := ParseAnalysis([]byte(validAnalysisJSON(80, 85, 90, 75, "82")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if analysis.ContentQuality.Score != 80 {
			t.Errorf("contentQuality = %d, want 80", analysis.ContentQuality.Score)
		}
		if analysis.OverallScore != 82 {
			t.Errorf("overallScore = %d, want 82", analysis.OverallScore)
		}
	})

	t.Run("missing overall falls back to mean", func(t *testing.T) {
		analysis, err := ParseAnalysis([]byte(validAnalysisJSON(80, 90, 70, 60, "")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if analysis.OverallScore != 75 {
			t.Errorf("overallScore = %d, want mean 75", analysis.OverallScore)
		}
	})

	t.Run("out-of-range scores are clamped", func(t *testing.T) {
		analysis, err := ParseAnalysis([]byte(validAnalysisJSON(150, -20, 90, 75, "130")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if analysis.ContentQuality.Score != 100 {
			t.Errorf("contentQuality = %d, want clamped 100", analysis.ContentQuality.Score)
		}
		if analysis.StructureQuality.Score != 0 {
			t.Errorf("structureQuality = %d, want clamped 0", analysis.StructureQuality.Score)
		}
		if analysis.OverallScore != 100 {
			t.Errorf("overallScore = %d, want clamped 100", analysis.OverallScore)
		}
	})

	t.Run("markdown fenced output", func(t *testing.T) {
		fenced := "```json\n" + validAnalysisJSON(80, 85, 90, 75, "82") + "\n```"
		if _, err := ParseAnalysis([]byte(fenced)); err != nil {
			t.Fatalf("fenced JSON should parse: %v", err)
		}
	})

	t.Run("missing dimension is a scoring failure, not a zero", func(t *testing.T) {
		partial := `{"contentQuality":{"score":80},"structureQuality":{"score":85},"educationalValue":{"score":90},"overallScore":85}`
		_, err := ParseAnalysis([]byte(partial))
		if !errors.Is(err, util.ErrScoringFailed) {
			t.Fatalf("error = %v, want ErrScoringFailed", err)
		}
	})

	t.Run("non-JSON output", func(t *testing.T) {
		_, err := ParseAnalysis([]byte("I cannot evaluate this course."))
		if !errors.Is(err, util.ErrScoringFailed) {
			t.Fatalf("error = %v, want ErrScoringFailed", err)
		}
	})
}

func testCourse() *model.Course {
	return &model.Course{
		Title:       "Go 并发编程",
		Description: "从 goroutine 到 channel 的系统课程，覆盖调度、同步原语与常见并发模式。",
		Sections: []model.CourseSection{
			{Title: "基础", Lessons: []model.CourseLesson{{Title: "goroutine", Type: "video", Duration: 20}}},
		},
	}
}

func scoringStub(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.WriteHeader(status)
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEvaluateCourse(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := scoringStub(t, http.StatusOK, validAnalysisJSON(88, 90, 85, 80, "86"))
		defer srv.Close()

		s := NewScoringService(config.AIConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
		analysis, err := s.EvaluateCourse(context.Background(), testCourse())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if analysis.OverallScore != 86 {
			t.Errorf("overallScore = %d, want 86", analysis.OverallScore)
		}
		if analysis.ModelID != "test-model" {
			t.Errorf("modelId = %q, want test-model", analysis.ModelID)
		}
		if analysis.AnalyzedAt == nil {
			t.Error("analyzedAt should be set")
		}
	})

	t.Run("upstream error status", func(t *testing.T) {
		srv := scoringStub(t, http.StatusBadGateway, "")
		defer srv.Close()

		s := NewScoringService(config.AIConfig{BaseURL: srv.URL, APIKey: "test-key"})
		_, err := s.EvaluateCourse(context.Background(), testCourse())
		if !errors.Is(err, util.ErrScoringFailed) {
			t.Fatalf("error = %v, want ErrScoringFailed", err)
		}
	})

	t.Run("malformed model output", func(t *testing.T) {
		srv := scoringStub(t, http.StatusOK, "抱歉，我无法评估该课程。")
		defer srv.Close()

		s := NewScoringService(config.AIConfig{BaseURL: srv.URL, APIKey: "test-key"})
		_, err := s.EvaluateCourse(context.Background(), testCourse())
		if !errors.Is(err, util.ErrScoringFailed) {
			t.Fatalf("error = %v, want ErrScoringFailed", err)
		}
	})
}
