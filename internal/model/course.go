package model

import "time"

type CourseStatus string

const (
	CourseDraft         CourseStatus = "draft"
	CourseSubmitted     CourseStatus = "submitted"
	CourseApproved      CourseStatus = "approved"
	CourseRejected      CourseStatus = "rejected"
	CourseNeedsRevision CourseStatus = "needs_revision"
)

type CourseLesson struct {
	Title    string `json:"title"`
	Type     string `json:"type"` // video, text, quiz, exercise
	Duration int    `json:"duration"`
}

type CourseSection struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Lessons     []CourseLesson `json:"lessons"`
}

type CourseAssignment struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Course 课程目录记录。流水线只读取内容、写回状态，课程本身由课程管理模块维护。
// swagger:model Course
type Course struct {
	BaseModel
	Title              string             `gorm:"size:255;not null" json:"title"`
	Description        string             `gorm:"type:text" json:"description"`
	InstructorID       uint               `gorm:"index;type:bigint unsigned" json:"instructorId"`
	Instructor         *User              `gorm:"foreignKey:InstructorID" json:"instructor,omitempty"`
	LearningObjectives []string           `gorm:"type:json;serializer:json" json:"learningObjectives"`
	Sections           []CourseSection    `gorm:"type:json;serializer:json" json:"sections"`
	Assignments        []CourseAssignment `gorm:"type:json;serializer:json" json:"assignments"`
	Status             CourseStatus       `gorm:"size:20;default:'draft';index" json:"status"`
	IsPublished        bool               `gorm:"default:false" json:"isPublished"`
	PublishedAt        *time.Time         `json:"publishedAt,omitempty"`
	SubmittedAt        *time.Time         `json:"submittedAt,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

func (c *Course) TotalLessons() int {
	total := 0
	for _, s := range c.Sections {
		total += len(s.Lessons)
	}
	return total
}
