package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"lms_backend/internal/config"
	"lms_backend/internal/model"
	"lms_backend/internal/util"
)

// ScoringService 调用外部内容评分模型（OpenAI 兼容接口）。
// 模型本身是黑盒：这里只负责构造规范化课程载荷、校验并钳位输出。
// 上游输出不合法（非 JSON、缺必填字段）是评分失败，不会被默默当作 0 分。
type ScoringService struct {
	cfg    config.AIConfig
	client *http.Client
}

func NewScoringService(cfg config.AIConfig) *ScoringService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ScoringService{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// CoursePayload 发给评分模型的规范化课程载荷
type CoursePayload struct {
	Title              string                   `json:"title"`
	Description        string                   `json:"description"`
	LearningObjectives []string                 `json:"learningObjectives"`
	Sections           []model.CourseSection    `json:"sections"`
	Assignments        []model.CourseAssignment `json:"assignments"`
}

func BuildCoursePayload(course *model.Course) CoursePayload {
	return CoursePayload{
		Title:              course.Title,
		Description:        course.Description,
		LearningObjectives: course.LearningObjectives,
		Sections:           course.Sections,
		Assignments:        course.Assignments,
	}
}

type scoringChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type scoringChatRequest struct {
	Model    string               `json:"model"`
	Messages []scoringChatMessage `json:"messages"`
}

type scoringChatResponse struct {
	Choices []struct {
		Message scoringChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// rawDimension 子评分用指针字段区分「缺失」与「0 分」
type rawDimension struct {
	Score    *int     `json:"score"`
	Feedback string   `json:"feedback"`
	Issues   []string `json:"issues"`
}

type rawAnalysis struct {
	ContentQuality   *rawDimension `json:"contentQuality"`
	StructureQuality *rawDimension `json:"structureQuality"`
	EducationalValue *rawDimension `json:"educationalValue"`
	Completeness     *rawDimension `json:"completeness"`
	OverallScore     *int          `json:"overallScore"`
	Strengths        []string      `json:"strengths"`
	Weaknesses       []string      `json:"weaknesses"`
	Recommendations  []string      `json:"recommendations"`
}

const scoringSystemPrompt = `你是一个在线教育平台的课程质量评估专家。请从以下四个维度对课程打分（0-100 的整数）：
contentQuality（内容质量）、structureQuality（结构质量）、educationalValue（教育价值）、completeness（完整度）。
只输出一个 JSON 对象，不要输出任何其他文字。格式：
{"contentQuality":{"score":0,"feedback":"","issues":[]},"structureQuality":{"score":0,"feedback":"","issues":[]},"educationalValue":{"score":0,"feedback":"","issues":[]},"completeness":{"score":0,"feedback":"","issues":[]},"overallScore":0,"strengths":[],"weaknesses":[],"recommendations":[]}`

// EvaluateCourse 调用评分模型并返回校验后的分析结果
func (s *ScoringService) EvaluateCourse(ctx context.Context, course *model.Course) (*model.CourseAnalysis, error) {
	payload, err := json.Marshal(BuildCoursePayload(course))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal course payload: %v", util.ErrScoringFailed, err)
	}

	reqBody := scoringChatRequest{
		Model: s.cfg.Model,
		Messages: []scoringChatMessage{
			{Role: "system", Content: scoringSystemPrompt},
			{Role: "user", Content: "请评估以下课程：\n\n" + string(payload)},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrScoringFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrScoringFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrScoringFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: scoring API status %d: %s", util.ErrScoringFailed, resp.StatusCode, string(body))
	}

	var chatResp scoringChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrScoringFailed, err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", util.ErrScoringFailed, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: scoring model returned no choices", util.ErrScoringFailed)
	}

	analysis, err := ParseAnalysis([]byte(chatResp.Choices[0].Message.Content))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	analysis.ModelID = s.cfg.Model
	analysis.AnalyzedAt = &now
	return analysis, nil
}

// ParseAnalysis 解析并校验模型输出。四个子评分缺一不可；
// 分数钳位到 [0,100]；overallScore 缺失时取四项均值（四舍五入）。
func ParseAnalysis(content []byte) (*model.CourseAnalysis, error) {
	raw := extractJSON(string(content))

	var ra rawAnalysis
	if err := json.Unmarshal([]byte(raw), &ra); err != nil {
		return nil, fmt.Errorf("%w: malformed model output: %v", util.ErrScoringFailed, err)
	}

	dims := map[string]*rawDimension{
		"contentQuality":   ra.ContentQuality,
		"structureQuality": ra.StructureQuality,
		"educationalValue": ra.EducationalValue,
		"completeness":     ra.Completeness,
	}
	for name, d := range dims {
		if d == nil || d.Score == nil {
			return nil, fmt.Errorf("%w: missing required field %q", util.ErrScoringFailed, name)
		}
	}

	analysis := &model.CourseAnalysis{
		ContentQuality:   toDimension(ra.ContentQuality),
		StructureQuality: toDimension(ra.StructureQuality),
		EducationalValue: toDimension(ra.EducationalValue),
		Completeness:     toDimension(ra.Completeness),
		Strengths:        ra.Strengths,
		Weaknesses:       ra.Weaknesses,
		Recommendations:  ra.Recommendations,
	}

	if ra.OverallScore != nil {
		analysis.OverallScore = ClampScore(*ra.OverallScore)
	} else {
		analysis.OverallScore = MeanScore(
			analysis.ContentQuality.Score,
			analysis.StructureQuality.Score,
			analysis.EducationalValue.Score,
			analysis.Completeness.Score,
		)
	}

	return analysis, nil
}

func toDimension(d *rawDimension) model.DimensionScore {
	return model.DimensionScore{
		Score:    ClampScore(*d.Score),
		Feedback: d.Feedback,
		Issues:   d.Issues,
	}
}

// ClampScore 钳位到 [0,100]
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// MeanScore 四项均值，四舍五入
func MeanScore(scores ...int) int {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}

// extractJSON 容忍模型把 JSON 包在 markdown 代码块里
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	if start := strings.Index(content, "{"); start > 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}
	return content
}
